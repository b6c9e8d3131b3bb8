// File: connection/oidmap.go
// Author: momentics <momentics@gmail.com>
//
// OIDMap is the opaque associative structure carried by Connection per
// spec.md §3/§GLOSSARY: it identifies user-defined types by protocol
// object identifier, and is consumed only by the serialization layer —
// the core never inspects it.

package connection

import "sync"

// OIDMap maps PostgreSQL type OIDs to and from type names. The zero value
// is ready to use.
type OIDMap struct {
	mu     sync.RWMutex
	byOID  map[uint32]string
	byName map[string]uint32
}

// Register associates oid with name, overwriting any prior association.
func (m *OIDMap) Register(oid uint32, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byOID == nil {
		m.byOID = make(map[uint32]string)
		m.byName = make(map[string]uint32)
	}
	m.byOID[oid] = name
	m.byName[name] = oid
}

// NameOf returns the type name registered for oid, if any.
func (m *OIDMap) NameOf(oid uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.byOID[oid]
	return name, ok
}

// OIDOf returns the OID registered for name, if any.
func (m *OIDMap) OIDOf(name string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	oid, ok := m.byName[name]
	return oid, ok
}
