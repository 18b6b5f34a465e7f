package record

import (
	"fmt"
	"math"
)

// Kind distinguishes the interpretation of a ColumnValue's payload.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
)

// ColumnValue is a single decoded column: a serial type plus a typed
// payload. Text/Blob values returned by Decode alias the original payload
// slice (zero-copy); callers that need to retain them past the buffer's
// lifetime must copy.
type ColumnValue struct {
	Serial uint64
	Kind   Kind
	Int    int64
	Float  float64
	Bytes  []byte // Text or Blob payload (aliases the record buffer)
}

// serialType computes the SQLite serial type for v.
func serialType(v any) (uint64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return intSerialType(x), nil
	case int:
		return intSerialType(int64(x)), nil
	case float64:
		return 7, nil
	case []byte:
		return uint64(12 + 2*len(x)), nil
	case string:
		return uint64(13 + 2*len(x)), nil
	default:
		return 0, fmt.Errorf("record: unsupported column type %T", v)
	}
}

func intSerialType(v int64) uint64 {
	switch {
	case v == 0:
		return 8
	case v == 1:
		return 9
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	case v >= -(1<<23) && v <= (1<<23)-1:
		return 3
	case v >= -(1<<31) && v <= (1<<31)-1:
		return 4
	case v >= -(1<<47) && v <= (1<<47)-1:
		return 5
	default:
		return 6
	}
}

// intSerialSize returns the body size in bytes for an integer serial type
// in 1..6, or 0 for the zero-body types 8/9.
func intSerialSize(serial uint64) int {
	switch serial {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 5:
		return 6
	case 6:
		return 8
	default:
		return 0
	}
}

// bodySize returns the number of body bytes a serial type occupies.
func bodySize(serial uint64) (int, error) {
	switch {
	case serial == 0, serial == 8, serial == 9:
		return 0, nil
	case serial >= 1 && serial <= 6:
		return intSerialSize(serial), nil
	case serial == 7:
		return 8, nil
	case serial == 10 || serial == 11:
		return 0, fmt.Errorf("record: reserved serial type %d", serial)
	case serial >= 12 && serial%2 == 0:
		return int((serial - 12) / 2), nil
	case serial >= 13:
		return int((serial - 13) / 2), nil
	default:
		return 0, fmt.Errorf("record: invalid serial type %d", serial)
	}
}

// ComputeEncodedSize returns the exact byte length EncodeRecord would
// produce for cols, including the self-describing header.
func ComputeEncodedSize(cols []any) (int, error) {
	bodyLen := 0
	hdrBodyLen := 0
	serials := make([]uint64, len(cols))
	for i, c := range cols {
		st, err := serialType(c)
		if err != nil {
			return 0, err
		}
		serials[i] = st
		hdrBodyLen += VarintLen(st)
		sz, err := bodySize(st)
		if err != nil {
			return 0, err
		}
		bodyLen += sz
	}
	hdrSize := selfConsistentHeaderSize(hdrBodyLen)
	return hdrSize + bodyLen, nil
}

// selfConsistentHeaderSize resolves the header-size varint's own length
// depending on itself (§4.3): start from the varint-size of the body
// alone, add it in, and bump once more if that changed the varint width.
func selfConsistentHeaderSize(hdrBodyLen int) int {
	size := hdrBodyLen + VarintLen(uint64(hdrBodyLen))
	for {
		candidate := hdrBodyLen + VarintLen(uint64(size))
		if candidate == size {
			return size
		}
		size = candidate
	}
}

// EncodeRecord serializes cols (nil, int64/int, float64, string, []byte)
// into the SQLite record format, appending to buf and returning the
// result. An INTEGER PRIMARY KEY column must be passed as nil by the
// caller (its value lives in the cell's rowid, not the record body).
func EncodeRecord(cols []any, buf []byte) ([]byte, error) {
	n, err := ComputeEncodedSize(cols)
	if err != nil {
		return nil, err
	}
	start := len(buf)
	if cap(buf)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, buf)
		buf = grown
	}
	buf = buf[:start+n]

	serials := make([]uint64, len(cols))
	hdrBodyLen := 0
	for i, c := range cols {
		st, _ := serialType(c)
		serials[i] = st
		hdrBodyLen += VarintLen(st)
	}
	hdrSize := selfConsistentHeaderSize(hdrBodyLen)

	off := start
	var tmp [9]byte
	w := PutVarint(tmp[:], uint64(hdrSize))
	copy(buf[off:], tmp[:w])
	off += w
	for _, st := range serials {
		w := PutVarint(tmp[:], st)
		copy(buf[off:], tmp[:w])
		off += w
	}
	for i, c := range cols {
		off += writeBody(buf[off:], serials[i], c)
	}
	return buf, nil
}

func writeBody(dst []byte, serial uint64, v any) int {
	switch {
	case serial == 0, serial == 8, serial == 9:
		return 0
	case serial >= 1 && serial <= 6:
		iv := asInt64(v)
		sz := intSerialSize(serial)
		for i := 0; i < sz; i++ {
			shift := uint(8 * (sz - 1 - i))
			dst[i] = byte(iv >> shift)
		}
		return sz
	case serial == 7:
		bits := math.Float64bits(v.(float64))
		for i := 0; i < 8; i++ {
			dst[i] = byte(bits >> uint(8*(7-i)))
		}
		return 8
	default:
		switch x := v.(type) {
		case []byte:
			copy(dst, x)
			return len(x)
		case string:
			copy(dst, x)
			return len(x)
		}
		return 0
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	default:
		return 0
	}
}

// ReadSerialTypes parses the record header out of payload, filling the
// caller-supplied out slice (reused across calls to avoid allocation) and
// returning the number of columns and the offset where the column bodies
// begin.
func ReadSerialTypes(payload []byte, out []uint64) (cols int, bodyOffset int, err error) {
	hdrSize, n := GetVarint(payload)
	if n == 0 {
		return 0, 0, fmt.Errorf("record: empty payload")
	}
	off := n
	count := 0
	for off < int(hdrSize) {
		st, w := GetVarint(payload[off:])
		if w == 0 {
			return 0, 0, fmt.Errorf("record: truncated header")
		}
		if count < len(out) {
			out[count] = st
		}
		count++
		off += w
	}
	if count > len(out) {
		return count, int(hdrSize), fmt.Errorf("record: header has %d columns, buffer holds %d", count, len(out))
	}
	return count, int(hdrSize), nil
}

// ComputeColumnOffsets fills outOffsets[i] with the byte offset (relative
// to payload start) where column i's body begins, for the first K entries
// of types. outOffsets must have length >= K.
func ComputeColumnOffsets(types []uint64, k int, bodyOffset int, outOffsets []int) error {
	off := bodyOffset
	for i := 0; i < k; i++ {
		outOffsets[i] = off
		sz, err := bodySize(types[i])
		if err != nil {
			return err
		}
		off += sz
	}
	return nil
}

// DecodeRecord fully decodes payload into a slice of ColumnValue. Text and
// Blob values alias payload.
func DecodeRecord(payload []byte) ([]ColumnValue, error) {
	var typesBuf [64]uint64
	types := typesBuf[:]
	cols, bodyOff, err := ReadSerialTypes(payload, types)
	if err != nil {
		if cols > len(types) {
			types = make([]uint64, cols)
			cols, bodyOff, err = ReadSerialTypes(payload, types)
		}
		if err != nil {
			return nil, err
		}
	}
	types = types[:cols]
	out := make([]ColumnValue, cols)
	off := bodyOff
	for i, st := range types {
		cv, sz, err := decodeAt(payload, st, off)
		if err != nil {
			return nil, err
		}
		out[i] = cv
		off += sz
	}
	return out, nil
}

func decodeAt(payload []byte, serial uint64, off int) (ColumnValue, int, error) {
	switch {
	case serial == 0:
		return ColumnValue{Serial: serial, Kind: KindNull}, 0, nil
	case serial == 8:
		return ColumnValue{Serial: serial, Kind: KindInt, Int: 0}, 0, nil
	case serial == 9:
		return ColumnValue{Serial: serial, Kind: KindInt, Int: 1}, 0, nil
	case serial >= 1 && serial <= 6:
		sz := intSerialSize(serial)
		if off+sz > len(payload) {
			return ColumnValue{}, 0, fmt.Errorf("record: truncated int body")
		}
		var v int64
		b0 := payload[off]
		if b0&0x80 != 0 {
			v = -1 // sign-extend
		}
		for i := 0; i < sz; i++ {
			v = (v << 8) | int64(payload[off+i])
		}
		return ColumnValue{Serial: serial, Kind: KindInt, Int: v}, sz, nil
	case serial == 7:
		if off+8 > len(payload) {
			return ColumnValue{}, 0, fmt.Errorf("record: truncated float body")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits = (bits << 8) | uint64(payload[off+i])
		}
		return ColumnValue{Serial: serial, Kind: KindFloat, Float: math.Float64frombits(bits)}, 8, nil
	case serial == 10 || serial == 11:
		return ColumnValue{}, 0, fmt.Errorf("record: reserved serial type %d", serial)
	case serial >= 12 && serial%2 == 0:
		sz := int((serial - 12) / 2)
		if off+sz > len(payload) {
			return ColumnValue{}, 0, fmt.Errorf("record: truncated blob")
		}
		return ColumnValue{Serial: serial, Kind: KindBlob, Bytes: payload[off : off+sz]}, sz, nil
	default:
		sz := int((serial - 13) / 2)
		if off+sz > len(payload) {
			return ColumnValue{}, 0, fmt.Errorf("record: truncated text")
		}
		return ColumnValue{Serial: serial, Kind: KindText, Bytes: payload[off : off+sz]}, sz, nil
	}
}

// DecodeStringAt materializes the TEXT/BLOB value at offset off in payload
// with the given serial type, without decoding the rest of the record.
// Used by the entitlement row evaluator to read a single tag column.
func DecodeStringAt(payload []byte, serialType uint64, off int) (string, error) {
	cv, _, err := decodeAt(payload, serialType, off)
	if err != nil {
		return "", err
	}
	return string(cv.Bytes), nil
}
