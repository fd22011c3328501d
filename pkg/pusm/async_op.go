package pusm

import "github.com/ultrascale/usm/pkg/wal"

// asyncOp is a FIFO queue entry: an owned copy of the key and value bytes
// a mutation needs, so the worker never dereferences live map entries.
type asyncOp struct {
	opKind       wal.OpKind
	key          []byte
	value        []byte
	valueType    byte
	enqueuedAtNs int64
}
