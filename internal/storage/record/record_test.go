package record

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 16383, 16384, 1 << 28, 1 << 35, 1 << 55, ^uint64(0)}
	for _, v := range vals {
		var buf [9]byte
		n := PutVarint(buf[:], v)
		if n != VarintLen(v) {
			t.Fatalf("VarintLen(%d)=%d, PutVarint wrote %d", v, VarintLen(v), n)
		}
		got, m := GetVarint(buf[:n])
		if m != n || got != v {
			t.Fatalf("round trip %d: got (%d,%d)", v, got, m)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	cols := []any{nil, int64(0), int64(1), int64(42), int64(-1), float64(3.5), "hello", []byte{1, 2, 3}}
	buf, err := EncodeRecord(cols, nil)
	if err != nil {
		t.Fatal(err)
	}
	size, err := ComputeEncodedSize(cols)
	if err != nil || size != len(buf) {
		t.Fatalf("ComputeEncodedSize mismatch: %d vs %d (err=%v)", size, len(buf), err)
	}
	got, err := DecodeRecord(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(cols) {
		t.Fatalf("got %d columns, want %d", len(got), len(cols))
	}
	if got[0].Kind != KindNull {
		t.Errorf("col0 should be null")
	}
	if got[2].Int != 1 {
		t.Errorf("col2 = %d, want 1", got[2].Int)
	}
	if got[4].Int != -1 {
		t.Errorf("col4 = %d, want -1", got[4].Int)
	}
	if got[5].Float != 3.5 {
		t.Errorf("col5 = %v, want 3.5", got[5].Float)
	}
	if string(got[6].Bytes) != "hello" {
		t.Errorf("col6 = %q, want hello", got[6].Bytes)
	}
	if !bytes.Equal(got[7].Bytes, []byte{1, 2, 3}) {
		t.Errorf("col7 = %v", got[7].Bytes)
	}
}

func TestZeroCopyColumnOffsets(t *testing.T) {
	cols := []any{"abc", int64(7), "defgh"}
	buf, err := EncodeRecord(cols, nil)
	if err != nil {
		t.Fatal(err)
	}
	var types [8]uint64
	n, bodyOff, err := ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatal(err)
	}
	offs := make([]int, n)
	if err := ComputeColumnOffsets(types[:n], n, bodyOff, offs); err != nil {
		t.Fatal(err)
	}
	s, err := DecodeStringAt(buf, types[0], offs[0])
	if err != nil || s != "abc" {
		t.Fatalf("got %q, err %v", s, err)
	}
	s2, err := DecodeStringAt(buf, types[2], offs[2])
	if err != nil || s2 != "defgh" {
		t.Fatalf("got %q, err %v", s2, err)
	}
}
