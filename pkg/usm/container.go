package usm

import "time"

// container owns a heap-allocated value payload exclusively. Replacing the
// payload releases the old storage before adopting the new one; there is
// never a point where two containers (or a container and a caller) share
// the same backing array.
type container struct {
	typeTag        ValueType
	payload        []byte
	createdAt      int64
	lastAccessedAt int64
	accessCount    uint64
}

// newContainer copies src into newly allocated, container-owned storage.
func newContainer(src []byte, typeTag ValueType) *container {
	owned := make([]byte, len(src))
	copy(owned, src)

	now := time.Now().UnixNano()

	return &container{
		typeTag:        typeTag,
		payload:        owned,
		createdAt:      now,
		lastAccessedAt: now,
	}
}

// size returns the number of payload bytes currently owned.
func (c *container) size() int {
	return len(c.payload)
}

// replace releases the old payload and adopts a copy of newBytes, updating
// the type tag and access bookkeeping as if this were a read-then-write.
func (c *container) replace(newBytes []byte, newType ValueType) int {
	old := c.size()

	owned := make([]byte, len(newBytes))
	copy(owned, newBytes)

	c.payload = owned
	c.typeTag = newType
	c.accessCount++
	c.lastAccessedAt = time.Now().UnixNano()

	return c.size() - old
}

// read returns a fresh copy of the payload and bumps access bookkeeping.
// The caller owns the returned slice; mutating it never affects the
// container's storage.
func (c *container) read() ([]byte, ValueType) {
	out := make([]byte, len(c.payload))
	copy(out, c.payload)

	c.accessCount++
	c.lastAccessedAt = time.Now().UnixNano()

	return out, c.typeTag
}

// peek returns the type tag and size without mutating access bookkeeping.
func (c *container) peek() (ValueType, int) {
	return c.typeTag, len(c.payload)
}

// peekCopy returns a fresh copy of the payload and its type tag without
// mutating access bookkeeping, unlike read.
func (c *container) peekCopy() ([]byte, ValueType) {
	out := make([]byte, len(c.payload))
	copy(out, c.payload)

	return out, c.typeTag
}
