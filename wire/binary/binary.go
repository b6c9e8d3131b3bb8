// Package binary implements the wire-level binary value framing invariants
// of spec.md §6/§8: network byte order for fixed-width integers and
// floats, byte strings stored as-is, and the 1-D array header layout.
// General serialization, OID resolution, and type-aware encode/decode are
// explicitly out of scope for the rest of this module; this package exists
// because scenario 7 of spec.md §8 names an exact literal byte sequence as
// a testable law.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package binary

import (
	"encoding/binary"
	"math"
)

// ArrayHeader is the fixed 1-D array preamble preceding length-prefixed
// elements: ndim, has_nulls, elem_oid, dim_len, lower_bound, each a
// big-endian int32.
type ArrayHeader struct {
	NDim       int32
	HasNulls   int32
	ElemOID    int32
	DimLen     int32
	LowerBound int32
}

// DefaultLowerBound is the 1-based lower bound PostgreSQL uses for arrays
// built from a Go slice.
const DefaultLowerBound int32 = 1

// EncodeArrayHeader appends a 1-D array header for dimLen elements of
// elemOID to dst and returns the extended slice.
func EncodeArrayHeader(dst []byte, elemOID, dimLen int32) []byte {
	h := ArrayHeader{NDim: 1, HasNulls: 0, ElemOID: elemOID, DimLen: dimLen, LowerBound: DefaultLowerBound}
	dst = PutInt32(dst, h.NDim)
	dst = PutInt32(dst, h.HasNulls)
	dst = PutInt32(dst, h.ElemOID)
	dst = PutInt32(dst, h.DimLen)
	dst = PutInt32(dst, h.LowerBound)
	return dst
}

// DecodeArrayHeader reads a 1-D array header from the front of src,
// returning it and the remaining bytes.
func DecodeArrayHeader(src []byte) (ArrayHeader, []byte) {
	var h ArrayHeader
	h.NDim, src = GetInt32(src)
	h.HasNulls, src = GetInt32(src)
	h.ElemOID, src = GetInt32(src)
	h.DimLen, src = GetInt32(src)
	h.LowerBound, src = GetInt32(src)
	return h, src
}

// EncodeElement appends a length-prefixed element, or, when data is nil,
// the null sentinel: a length prefix of -1 followed by zero data bytes.
func EncodeElement(dst []byte, data []byte) []byte {
	if data == nil {
		return PutInt32(dst, -1)
	}
	dst = PutInt32(dst, int32(len(data)))
	return append(dst, data...)
}

// DecodeElement reads one length-prefixed element from the front of src,
// returning the element bytes (nil for the null sentinel) and the
// remaining bytes.
func DecodeElement(src []byte) (data []byte, rest []byte) {
	n, rest := GetInt32(src)
	if n < 0 {
		return nil, rest
	}
	return rest[:n], rest[n:]
}

// EncodeFloat32Array encodes a 1-D PostgreSQL float4 array (OID 700) from
// values, per spec.md §8 scenario 7.
func EncodeFloat32Array(values []float32) []byte {
	const float4OID = 700
	dst := EncodeArrayHeader(nil, float4OID, int32(len(values)))
	for _, v := range values {
		dst = EncodeElement(dst, PutFloat32(nil, v))
	}
	return dst
}

// PutInt32 appends v in network byte order.
func PutInt32(dst []byte, v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return append(dst, buf[:]...)
}

// GetInt32 reads a big-endian int32 from the front of src, returning the
// value and the remaining bytes.
func GetInt32(src []byte) (int32, []byte) {
	return int32(binary.BigEndian.Uint32(src[:4])), src[4:]
}

// PutInt64 appends v in network byte order.
func PutInt64(dst []byte, v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return append(dst, buf[:]...)
}

// GetInt64 reads a big-endian int64 from the front of src, returning the
// value and the remaining bytes.
func GetInt64(src []byte) (int64, []byte) {
	return int64(binary.BigEndian.Uint64(src[:8])), src[8:]
}

// PutFloat32 appends v's IEEE-754 bits in network byte order.
func PutFloat32(dst []byte, v float32) []byte {
	return PutInt32(dst, int32(math.Float32bits(v)))
}

// GetFloat32 reads a big-endian IEEE-754 float32 from the front of src.
func GetFloat32(src []byte) (float32, []byte) {
	bits, rest := GetInt32(src)
	return math.Float32frombits(uint32(bits)), rest
}

// PutFloat64 appends v's IEEE-754 bits in network byte order.
func PutFloat64(dst []byte, v float64) []byte {
	return PutInt64(dst, int64(math.Float64bits(v)))
}

// GetFloat64 reads a big-endian IEEE-754 float64 from the front of src.
func GetFloat64(src []byte) (float64, []byte) {
	bits, rest := GetInt64(src)
	return math.Float64frombits(uint64(bits)), rest
}
