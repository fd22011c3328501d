// Package wal implements the Ultra-Scale Map's write-ahead log: a sequence
// of length-implicit, CRC-32 protected records, buffered in memory and
// flushed to a storage backend, with a recovery reader tolerant of torn
// tails.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// OpKind identifies the mutation a WAL record describes.
type OpKind uint8

const (
	// OpPut records a put (insert or replace).
	OpPut OpKind = 1
	// OpRemove records a remove.
	OpRemove OpKind = 2
	// OpClear records a clear.
	OpClear OpKind = 3
	// OpCheckpoint records a checkpoint marker; its payload is always empty.
	OpCheckpoint OpKind = 4
)

// Magic is the fixed 4-byte record magic.
var Magic = [4]byte{'U', 'S', 'M', '1'}

// HeaderSize is the fixed header length in bytes, per the bit-exact
// on-disk layout: magic(4) transaction_id(8) timestamp_ns(8) op_kind(1)
// reserved(3) key_len(4) value_len(4) value_type_tag(1) reserved(3)
// crc32(4).
const HeaderSize = 40

// CRC32Table is the Castagnoli CRC-32 table used for WAL record checksums.
var CRC32Table = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed-size portion of a WAL record preceding its key and
// value bytes.
type Header struct {
	TransactionID uint64
	TimestampNs   int64
	OpKind        OpKind
	KeyLen        uint32
	ValueLen      uint32
	ValueTypeTag  uint8
	CRC32         uint32
}

// Record is a fully materialized WAL record: header plus key and value
// payload bytes.
type Record struct {
	Header Header
	Key    []byte
	Value  []byte
}

// encodeHeader writes h into a HeaderSize-byte buffer, computing and
// filling the CRC-32 field (which covers bytes [0, 36) — every header
// field except the CRC itself).
func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)

	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint64(buf[4:12], h.TransactionID)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.TimestampNs))
	buf[20] = byte(h.OpKind)
	// buf[21:24] reserved, zero.
	binary.LittleEndian.PutUint32(buf[24:28], h.KeyLen)
	binary.LittleEndian.PutUint32(buf[28:32], h.ValueLen)
	buf[32] = h.ValueTypeTag
	// buf[33:36] reserved, zero.

	crc := crc32.Checksum(buf[0:36], CRC32Table)
	binary.LittleEndian.PutUint32(buf[36:40], crc)

	return buf
}

// decodeHeader parses buf (which must be HeaderSize bytes) into a Header,
// verifying the magic and CRC. checkCRC allows callers to skip CRC
// verification (config.enable_checksums = false is debugging-only: the
// field is always written, but verification can be disabled).
func decodeHeader(buf []byte, checkCRC bool) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("wal: header must be %d bytes, got %d", HeaderSize, len(buf))
	}

	if string(buf[0:4]) != string(Magic[:]) {
		return Header{}, fmt.Errorf("wal: bad magic %q: %w", buf[0:4], ErrCorrupt)
	}

	storedCRC := binary.LittleEndian.Uint32(buf[36:40])

	if checkCRC {
		computed := crc32.Checksum(buf[0:36], CRC32Table)
		if computed != storedCRC {
			return Header{}, fmt.Errorf("wal: crc mismatch (stored %08x computed %08x): %w", storedCRC, computed, ErrCorrupt)
		}
	}

	return Header{
		TransactionID: binary.LittleEndian.Uint64(buf[4:12]),
		TimestampNs:   int64(binary.LittleEndian.Uint64(buf[12:20])),
		OpKind:        OpKind(buf[20]),
		KeyLen:        binary.LittleEndian.Uint32(buf[24:28]),
		ValueLen:      binary.LittleEndian.Uint32(buf[28:32]),
		ValueTypeTag:  buf[32],
		CRC32:         storedCRC,
	}, nil
}

// Encode serializes a full record: header, then key bytes, then value
// bytes.
func Encode(h Header, key, value []byte) []byte {
	h.KeyLen = uint32(len(key))
	h.ValueLen = uint32(len(value))

	header := encodeHeader(h)

	buf := make([]byte, 0, len(header)+len(key)+len(value))
	buf = append(buf, header...)
	buf = append(buf, key...)
	buf = append(buf, value...)

	return buf
}
