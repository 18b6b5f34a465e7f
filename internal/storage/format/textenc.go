package format

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// DecodeText converts a TEXT column body to a UTF-8 Go string according to
// the database header's text-encoding field (offset 56, §3). Most sharc
// databases are created with EncodingUTF8, in which case this is a plain
// passthrough; EncodingUTF16LE/EncodingUTF16BE route through
// golang.org/x/text so files written by a SQLite build configured for a
// 16-bit encoding still decode correctly.
func DecodeText(b []byte, encoding uint32) (string, error) {
	switch encoding {
	case 0, EncodingUTF8:
		return string(b), nil
	case EncodingUTF16LE:
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("format: decode utf16le text: %w", err)
		}
		return string(out), nil
	case EncodingUTF16BE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("format: decode utf16be text: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("format: unknown text encoding %d", encoding)
	}
}

// EncodeText converts a UTF-8 Go string to the on-disk byte representation
// for the given text encoding, the inverse of DecodeText.
func EncodeText(s string, encoding uint32) ([]byte, error) {
	switch encoding {
	case 0, EncodingUTF8:
		return []byte(s), nil
	case EncodingUTF16LE:
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("format: encode utf16le text: %w", err)
		}
		return out, nil
	case EncodingUTF16BE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("format: encode utf16be text: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("format: unknown text encoding %d", encoding)
	}
}
