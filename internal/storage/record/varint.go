// Package record implements the SQLite serial-type row codec: varints,
// header/body layout, and zero-copy column extraction (§4.3).
package record

// PutVarint encodes v using the SQLite 1-9 byte big-endian varint dialect
// into buf (which must have capacity for at least 9 bytes) and returns the
// number of bytes written.
//
// Bytes 1-8 carry 7 payload bits each with the high bit set as a
// continuation flag; the 9th byte (if reached) carries all 8 remaining
// bits verbatim.
func PutVarint(buf []byte, v uint64) int {
	if v>>56 == 0 {
		// Fits in at most 8 varint bytes of 7 bits each.
		var tmp [9]byte
		n := 0
		for {
			tmp[n] = byte(v & 0x7f)
			v >>= 7
			n++
			if v == 0 {
				break
			}
		}
		for i := 0; i < n; i++ {
			b := tmp[n-1-i]
			if i < n-1 {
				b |= 0x80
			}
			buf[i] = b
		}
		return n
	}
	// 9-byte form: first 8 bytes carry 7 bits each (MSB first), continuation
	// set on all but the last, the 9th byte carries the low 8 bits raw.
	for i := 0; i < 8; i++ {
		shift := uint(57 - 7*i)
		buf[i] = byte((v>>shift)&0x7f) | 0x80
	}
	buf[8] = byte(v)
	return 9
}

// VarintLen returns the number of bytes PutVarint would use for v.
func VarintLen(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	case v < 1<<35:
		return 5
	case v < 1<<42:
		return 6
	case v < 1<<49:
		return 7
	case v < 1<<56:
		return 8
	default:
		return 9
	}
}

// GetVarint decodes a varint from the start of buf, returning the value
// and the number of bytes consumed (1-9), or (0, 0) if buf is empty.
func GetVarint(buf []byte) (uint64, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	if len(buf) >= 9 {
		// Fast path mirrors SQLite's own unrolled decoder.
		var v uint64
		for i := 0; i < 8; i++ {
			b := buf[i]
			if b < 0x80 {
				v = (v << 7) | uint64(b)
				return v, i + 1
			}
			v = (v << 7) | uint64(b&0x7f)
		}
		v = (v << 8) | uint64(buf[8])
		return v, 9
	}
	var v uint64
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if i == 8 {
			v = (v << 8) | uint64(b)
			return v, 9
		}
		if b < 0x80 {
			v = (v << 7) | uint64(b)
			return v, i + 1
		}
		v = (v << 7) | uint64(b&0x7f)
	}
	// Ran out of bytes without a terminator: treat as truncated.
	return v, len(buf)
}
