// Package wal implements the SQLite write-ahead log file format (§4.1,
// §6): a 32-byte file header followed by a sequence of 24-byte frame
// headers each immediately followed by one page image. Frames form the
// unit of crash recovery; only frames belonging to a committed
// transaction are ever replayed.
package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

const (
	FileHeaderSize  = 32
	FrameHeaderSize = 24

	walMagicBigEndian    = 0x377f0682
	walMagicLittleEndian = 0x377f0683
)

// FileHeader is the 32-byte header at the start of a WAL file.
type FileHeader struct {
	Magic        uint32
	FormatVer    uint32
	PageSize     uint32
	CheckpointSeq uint32
	Salt1        uint32
	Salt2        uint32
	Checksum1    uint32
	Checksum2    uint32
}

func (h *FileHeader) Serialize() []byte {
	buf := make([]byte, FileHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.FormatVer)
	binary.BigEndian.PutUint32(buf[8:12], h.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], h.CheckpointSeq)
	binary.BigEndian.PutUint32(buf[16:20], h.Salt1)
	binary.BigEndian.PutUint32(buf[20:24], h.Salt2)
	binary.BigEndian.PutUint32(buf[24:28], h.Checksum1)
	binary.BigEndian.PutUint32(buf[28:32], h.Checksum2)
	return buf
}

func ParseFileHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return nil, fmt.Errorf("wal: header too short (%d bytes)", len(buf))
	}
	h := &FileHeader{
		Magic:         binary.BigEndian.Uint32(buf[0:4]),
		FormatVer:     binary.BigEndian.Uint32(buf[4:8]),
		PageSize:      binary.BigEndian.Uint32(buf[8:12]),
		CheckpointSeq: binary.BigEndian.Uint32(buf[12:16]),
		Salt1:         binary.BigEndian.Uint32(buf[16:20]),
		Salt2:         binary.BigEndian.Uint32(buf[20:24]),
		Checksum1:     binary.BigEndian.Uint32(buf[24:28]),
		Checksum2:     binary.BigEndian.Uint32(buf[28:32]),
	}
	if h.Magic != walMagicBigEndian && h.Magic != walMagicLittleEndian {
		return nil, fmt.Errorf("wal: bad magic 0x%08x", h.Magic)
	}
	want1, want2 := checksum(buf[:24], 0, 0, h.Magic == walMagicBigEndian)
	if want1 != h.Checksum1 || want2 != h.Checksum2 {
		return nil, fmt.Errorf("wal: header checksum mismatch")
	}
	return h, nil
}

// FrameHeader is the 24-byte header preceding each page image.
type FrameHeader struct {
	PageNumber uint32
	// DBSizeAfterCommit is nonzero only on the last frame of a committed
	// transaction; it records the database's page count at that commit.
	DBSizeAfterCommit uint32
	Salt1             uint32
	Salt2             uint32
	Checksum1         uint32
	Checksum2         uint32
}

func (f *FrameHeader) serialize(bigEndian bool) []byte {
	buf := make([]byte, FrameHeaderSize)
	order := byteOrder(bigEndian)
	order.PutUint32(buf[0:4], f.PageNumber)
	order.PutUint32(buf[4:8], f.DBSizeAfterCommit)
	order.PutUint32(buf[8:12], f.Salt1)
	order.PutUint32(buf[12:16], f.Salt2)
	order.PutUint32(buf[16:20], f.Checksum1)
	order.PutUint32(buf[20:24], f.Checksum2)
	return buf
}

func parseFrameHeader(buf []byte, bigEndian bool) *FrameHeader {
	order := byteOrder(bigEndian)
	return &FrameHeader{
		PageNumber:        order.Uint32(buf[0:4]),
		DBSizeAfterCommit: order.Uint32(buf[4:8]),
		Salt1:             order.Uint32(buf[8:12]),
		Salt2:             order.Uint32(buf[12:16]),
		Checksum1:         order.Uint32(buf[16:20]),
		Checksum2:         order.Uint32(buf[20:24]),
	}
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// checksum computes the WAL's cumulative two-word checksum over data,
// which must be a multiple of 8 bytes, continuing from (s1, s2).
func checksum(data []byte, s1, s2 uint32, bigEndian bool) (uint32, uint32) {
	order := byteOrder(bigEndian)
	for i := 0; i+8 <= len(data); i += 8 {
		s1 += order.Uint32(data[i:i+4]) + s2
		s2 += order.Uint32(data[i+4:i+8]) + s1
	}
	return s1, s2
}

// Writer appends frames to a WAL file, maintaining the running checksum
// and salt values established at file creation.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	pageSize  uint32
	bigEndian bool
	salt1     uint32
	salt2     uint32
	ck1       uint32
	ck2       uint32
	offset    int64
}

// Create opens a fresh WAL file at path, writing the 32-byte header with
// the given salts (random, supplied by the caller so tests can pin them).
func Create(path string, pageSize uint32, salt1, salt2 uint32, bigEndian bool) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: create %s: %w", path, err)
	}
	magic := uint32(walMagicLittleEndian)
	if bigEndian {
		magic = walMagicBigEndian
	}
	h := &FileHeader{
		Magic:     magic,
		FormatVer: 3007000,
		PageSize:  pageSize,
		Salt1:     salt1,
		Salt2:     salt2,
	}
	buf := h.Serialize()
	c1, c2 := checksum(buf[:24], 0, 0, bigEndian)
	h.Checksum1, h.Checksum2 = c1, c2
	binary.BigEndian.PutUint32(buf[24:28], c1)
	binary.BigEndian.PutUint32(buf[28:32], c2)
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: write header: %w", err)
	}
	return &Writer{
		f:         f,
		pageSize:  pageSize,
		bigEndian: bigEndian,
		salt1:     salt1,
		salt2:     salt2,
		ck1:       c1,
		ck2:       c2,
		offset:    FileHeaderSize,
	}, nil
}

// AppendFrame writes one page image as the next WAL frame. dbSizeAfterCommit
// is 0 for every frame except the last one in a committed transaction,
// which carries the database's new page count — the marker a reader uses
// to recognize a transaction boundary.
func (w *Writer) AppendFrame(pageNumber uint32, data []byte, dbSizeAfterCommit uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if uint32(len(data)) != w.pageSize {
		return fmt.Errorf("wal: frame data is %d bytes, want %d", len(data), w.pageSize)
	}
	hdr := &FrameHeader{
		PageNumber:        pageNumber,
		DBSizeAfterCommit: dbSizeAfterCommit,
		Salt1:             w.salt1,
		Salt2:             w.salt2,
	}
	partial := hdr.serialize(w.bigEndian)
	c1, c2 := checksum(partial[:8], w.ck1, w.ck2, w.bigEndian)
	c1, c2 = checksum(data, c1, c2, w.bigEndian)
	hdr.Checksum1, hdr.Checksum2 = c1, c2
	full := hdr.serialize(w.bigEndian)

	if _, err := w.f.WriteAt(full, w.offset); err != nil {
		return fmt.Errorf("wal: write frame header: %w", err)
	}
	if _, err := w.f.WriteAt(data, w.offset+FrameHeaderSize); err != nil {
		return fmt.Errorf("wal: write frame data: %w", err)
	}
	w.ck1, w.ck2 = c1, c2
	w.offset += FrameHeaderSize + int64(w.pageSize)
	return nil
}

// Sync flushes the WAL file to stable storage.
func (w *Writer) Sync() error { return w.f.Sync() }

func (w *Writer) Close() error { return w.f.Close() }
