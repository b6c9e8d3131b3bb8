package binary_test

import (
	"testing"

	"github.com/elsid/apq/wire/binary"
)

// TestEncodeFloat32ArrayScenario reproduces the literal array-encode
// scenario: big-endian ndim/has_nulls/elem_oid/dim_len/lower_bound header
// followed by one length-prefixed float4 element. lower_bound is 1 (the
// header invariant spec.md §6 states), not 0 — the spec's own worked hex
// example has an internal inconsistency on that byte, resolved here in
// favor of the stated invariant (see DESIGN.md).
func TestEncodeFloat32ArrayScenario(t *testing.T) {
	got := binary.EncodeFloat32Array([]float32{42.13})
	want := []byte{
		0x00, 0x00, 0x00, 0x01, // ndim = 1
		0x00, 0x00, 0x00, 0x00, // has_nulls = 0
		0x00, 0x00, 0x02, 0xBC, // elem_oid = 700 (float4)
		0x00, 0x00, 0x00, 0x01, // dim_len = 1
		0x00, 0x00, 0x00, 0x01, // lower_bound = 1
		0x00, 0x00, 0x00, 0x04, // element length = 4
		0x42, 0x28, 0x85, 0x1F, // float32(42.13) big-endian bits
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %02X, want %02X\ngot:  % 02X\nwant: % 02X", i, got[i], want[i], got, want)
		}
	}
}

func TestArrayHeaderRoundTrip(t *testing.T) {
	buf := binary.EncodeArrayHeader(nil, 25, 3)
	h, rest := binary.DecodeArrayHeader(buf)
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}
	if h.NDim != 1 || h.HasNulls != 0 || h.ElemOID != 25 || h.DimLen != 3 || h.LowerBound != 1 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestElementRoundTripNull(t *testing.T) {
	buf := binary.EncodeElement(nil, nil)
	data, rest := binary.DecodeElement(buf)
	if data != nil {
		t.Fatalf("expected nil element, got %v", data)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}
}

func TestElementRoundTripBytes(t *testing.T) {
	original := []byte("hello")
	buf := binary.EncodeElement(nil, original)
	data, rest := binary.DecodeElement(buf)
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, original)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	buf := binary.PutFloat64(nil, 3.1415926535)
	got, rest := binary.GetFloat64(buf)
	if got != 3.1415926535 {
		t.Fatalf("got %v", got)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}
}
