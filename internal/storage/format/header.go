// Package format defines the on-disk SQLite 3 file format constants and
// structures that the rest of sharc builds on: the 100-byte database
// header, B-tree page types and header offsets, and TEXT encoding
// conversion. Varints and serial types live in internal/storage/record.
package format

import (
	"encoding/binary"
	"fmt"
)

// File-level constants.
const (
	// HeaderSize is the size of the database header (first 100 bytes of
	// page 1).
	HeaderSize = 100

	// Magic is the 16-byte magic string every sharc file begins with.
	Magic = "SQLite format 3\x00"

	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 65536
)

// Header byte offsets, relative to the start of page 1.
const (
	OffsetMagic          = 0
	OffsetPageSize       = 16 // uint16 BE, 1 means 65536
	OffsetWriteVersion   = 18
	OffsetReadVersion    = 19
	OffsetReservedSpace  = 20
	OffsetMaxPayloadFrac = 21
	OffsetMinPayloadFrac = 22
	OffsetLeafPayloadFrac = 23
	OffsetFileChangeCtr  = 24
	OffsetPageCount      = 28
	OffsetFreelistTrunk  = 32
	OffsetFreelistCount  = 36
	OffsetSchemaCookie   = 40
	OffsetSchemaFormat   = 44
	OffsetDefaultCache   = 48
	OffsetLargestRoot    = 52
	OffsetTextEncoding   = 56
	OffsetUserVersion    = 60
	OffsetIncrVacuum     = 64
	OffsetAppID          = 68
	OffsetReserved       = 72 // 20 bytes, must be zero
	OffsetVersionValidFor = 92
	OffsetSQLiteVersion  = 96
)

// Text encodings, stored at OffsetTextEncoding.
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

// B-tree page types, the single byte at the start of every b-tree page
// (page 1's b-tree header begins 100 bytes in, per §3).
const (
	PageInteriorIndex = 0x02
	PageInteriorTable = 0x05
	PageLeafIndex     = 0x0A
	PageLeafTable     = 0x0D
)

// B-tree page header layout. Interior pages carry a 12-byte header
// (including the right-child pointer); leaf pages carry 8.
const (
	BTreeOffType          = 0
	BTreeOffFirstFreeblock = 1
	BTreeOffCellCount     = 3
	BTreeOffCellContent   = 5
	BTreeOffFragBytes     = 7
	BTreeOffRightChild    = 8 // interior only

	BTreeHeaderSizeLeaf     = 8
	BTreeHeaderSizeInterior = 12
)

// Header is the parsed 100-byte database header.
type Header struct {
	PageSize        uint16 // 1 means 65536
	WriteVersion    uint8
	ReadVersion     uint8
	ReservedSpace   uint8
	MaxPayloadFrac  uint8
	MinPayloadFrac  uint8
	LeafPayloadFrac uint8
	FileChangeCtr   uint32
	PageCount       uint32
	FreelistTrunk   uint32
	FreelistCount   uint32
	SchemaCookie    uint32
	SchemaFormat    uint32
	DefaultCache    uint32
	LargestRoot     uint32
	TextEncoding    uint32
	UserVersion     uint32
	IncrVacuum      uint32
	AppID           uint32
	VersionValidFor uint32
	SQLiteVersion   uint32
}

// PageSizeBytes returns the effective page size, expanding the 65536 special case.
func (h *Header) PageSizeBytes() int {
	if h.PageSize == 1 {
		return MaxPageSize
	}
	return int(h.PageSize)
}

// New builds a default header for a freshly created database of the given
// page size.
func New(pageSize int) *Header {
	stored := uint16(pageSize)
	if pageSize == MaxPageSize {
		stored = 1
	}
	return &Header{
		PageSize:        stored,
		WriteVersion:    1,
		ReadVersion:     1,
		MaxPayloadFrac:  64,
		MinPayloadFrac:  32,
		LeafPayloadFrac: 32,
		PageCount:       1,
		SchemaFormat:    4,
		TextEncoding:    EncodingUTF8,
		SQLiteVersion:   3045000,
	}
}

// Parse decodes a Header from the first 100 bytes of page 1.
func Parse(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("format: header needs %d bytes, got %d", HeaderSize, len(buf))
	}
	if string(buf[OffsetMagic:OffsetMagic+16]) != Magic {
		return nil, fmt.Errorf("format: bad magic %q", buf[OffsetMagic:OffsetMagic+16])
	}
	h := &Header{
		PageSize:        binary.BigEndian.Uint16(buf[OffsetPageSize:]),
		WriteVersion:    buf[OffsetWriteVersion],
		ReadVersion:     buf[OffsetReadVersion],
		ReservedSpace:   buf[OffsetReservedSpace],
		MaxPayloadFrac:  buf[OffsetMaxPayloadFrac],
		MinPayloadFrac:  buf[OffsetMinPayloadFrac],
		LeafPayloadFrac: buf[OffsetLeafPayloadFrac],
		FileChangeCtr:   binary.BigEndian.Uint32(buf[OffsetFileChangeCtr:]),
		PageCount:       binary.BigEndian.Uint32(buf[OffsetPageCount:]),
		FreelistTrunk:   binary.BigEndian.Uint32(buf[OffsetFreelistTrunk:]),
		FreelistCount:   binary.BigEndian.Uint32(buf[OffsetFreelistCount:]),
		SchemaCookie:    binary.BigEndian.Uint32(buf[OffsetSchemaCookie:]),
		SchemaFormat:    binary.BigEndian.Uint32(buf[OffsetSchemaFormat:]),
		DefaultCache:    binary.BigEndian.Uint32(buf[OffsetDefaultCache:]),
		LargestRoot:     binary.BigEndian.Uint32(buf[OffsetLargestRoot:]),
		TextEncoding:    binary.BigEndian.Uint32(buf[OffsetTextEncoding:]),
		UserVersion:     binary.BigEndian.Uint32(buf[OffsetUserVersion:]),
		IncrVacuum:      binary.BigEndian.Uint32(buf[OffsetIncrVacuum:]),
		AppID:           binary.BigEndian.Uint32(buf[OffsetAppID:]),
		VersionValidFor: binary.BigEndian.Uint32(buf[OffsetVersionValidFor:]),
		SQLiteVersion:   binary.BigEndian.Uint32(buf[OffsetSQLiteVersion:]),
	}
	if !ValidPageSize(h.PageSizeBytes()) {
		return nil, fmt.Errorf("format: invalid page size %d", h.PageSizeBytes())
	}
	return h, nil
}

// Serialize writes the header into a HeaderSize-byte buffer.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[OffsetMagic:], Magic)
	binary.BigEndian.PutUint16(buf[OffsetPageSize:], h.PageSize)
	buf[OffsetWriteVersion] = h.WriteVersion
	buf[OffsetReadVersion] = h.ReadVersion
	buf[OffsetReservedSpace] = h.ReservedSpace
	buf[OffsetMaxPayloadFrac] = h.MaxPayloadFrac
	buf[OffsetMinPayloadFrac] = h.MinPayloadFrac
	buf[OffsetLeafPayloadFrac] = h.LeafPayloadFrac
	binary.BigEndian.PutUint32(buf[OffsetFileChangeCtr:], h.FileChangeCtr)
	binary.BigEndian.PutUint32(buf[OffsetPageCount:], h.PageCount)
	binary.BigEndian.PutUint32(buf[OffsetFreelistTrunk:], h.FreelistTrunk)
	binary.BigEndian.PutUint32(buf[OffsetFreelistCount:], h.FreelistCount)
	binary.BigEndian.PutUint32(buf[OffsetSchemaCookie:], h.SchemaCookie)
	binary.BigEndian.PutUint32(buf[OffsetSchemaFormat:], h.SchemaFormat)
	binary.BigEndian.PutUint32(buf[OffsetDefaultCache:], h.DefaultCache)
	binary.BigEndian.PutUint32(buf[OffsetLargestRoot:], h.LargestRoot)
	binary.BigEndian.PutUint32(buf[OffsetTextEncoding:], h.TextEncoding)
	binary.BigEndian.PutUint32(buf[OffsetUserVersion:], h.UserVersion)
	binary.BigEndian.PutUint32(buf[OffsetIncrVacuum:], h.IncrVacuum)
	binary.BigEndian.PutUint32(buf[OffsetAppID:], h.AppID)
	binary.BigEndian.PutUint32(buf[OffsetVersionValidFor:], h.VersionValidFor)
	binary.BigEndian.PutUint32(buf[OffsetSQLiteVersion:], h.SQLiteVersion)
	return buf
}

// ValidPageSize reports whether size is a power of two in [MinPageSize, MaxPageSize].
func ValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// IsSharcSystemTable reports whether name is one of sharc's reserved
// system tables or an HNSW shadow table, per §6.
func IsSharcSystemTable(name string) bool {
	return len(name) > 7 && name[:7] == "_sharc_"
}
