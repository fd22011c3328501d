package storage

import (
	"encoding/binary"
	"fmt"
)

// SerializeEntry encodes a single map entry for storage as a per-key file:
// a 4-byte little-endian key length, the key bytes, a 1-byte type tag, a
// 4-byte little-endian value length, and the value bytes. This is the
// adapter's own format; PUSM encodes and decodes entries only through
// SerializeEntry and DeserializeEntry, and the Backend stores the encoded
// bytes under the entry's address-derived path without interpreting them.
func SerializeEntry(key []byte, typeTag byte, value []byte) []byte {
	buf := make([]byte, 4+len(key)+1+4+len(value))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	copy(buf[4:4+len(key)], key)

	offset := 4 + len(key)
	buf[offset] = typeTag
	offset++

	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(value)))
	offset += 4
	copy(buf[offset:], value)

	return buf
}

// DeserializeEntry reverses SerializeEntry.
func DeserializeEntry(data []byte) (key []byte, typeTag byte, value []byte, err error) {
	if len(data) < 4 {
		return nil, 0, nil, fmt.Errorf("entry record too short: %d bytes", len(data))
	}

	keyLen := binary.LittleEndian.Uint32(data[0:4])
	offset := 4 + int(keyLen)

	if offset+1+4 > len(data) {
		return nil, 0, nil, fmt.Errorf("entry record truncated after key")
	}

	key = append([]byte(nil), data[4:offset]...)
	tag := data[offset]
	offset++

	valueLen := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	if offset+int(valueLen) > len(data) {
		return nil, 0, nil, fmt.Errorf("entry record truncated after value")
	}

	value = append([]byte(nil), data[offset:offset+int(valueLen)]...)

	return key, tag, value, nil
}
