package wal

// Replay parses data (the full contents of a WAL stream) into a sequence
// of records, starting at offset 0. It is tolerant of a torn tail: a
// record that fails to decode (insufficient bytes for the header, a bad
// magic, or a CRC mismatch when checkCRC is true) terminates parsing at
// that point without error; prior records are returned as-is, and
// truncated reports that the tail was discarded.
//
// checkCRC mirrors config.enable_checksums: when false, the CRC field is
// still present in every record but never verified here.
func Replay(data []byte, checkCRC bool) (records []Record, truncated bool) {
	offset := 0

	for {
		if offset == len(data) {
			return records, false
		}

		if offset+HeaderSize > len(data) {
			return records, true
		}

		h, err := decodeHeader(data[offset:offset+HeaderSize], checkCRC)
		if err != nil {
			return records, true
		}

		total := HeaderSize + int(h.KeyLen) + int(h.ValueLen)
		if offset+total > len(data) {
			return records, true
		}

		key := append([]byte(nil), data[offset+HeaderSize:offset+HeaderSize+int(h.KeyLen)]...)
		value := append([]byte(nil), data[offset+HeaderSize+int(h.KeyLen):offset+total]...)

		records = append(records, Record{Header: h, Key: key, Value: value})

		offset += total
	}
}
