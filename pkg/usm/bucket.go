package usm

import "github.com/ultrascale/usm/pkg/digest"

// entry is a bucket-owned record: an owned key copy, the bucket address it
// was filed under, a value container, and intra-bucket links. Exactly one
// bucket owns an entry at any time.
type entry struct {
	key     []byte
	address digest.Address
	value   *container
	id      uint64

	prev *entry
	next *entry
}

// bucket owns a doubly-linked list of entries sharing a bucket address.
// head/tail give O(1) append; lastAccessNs supports LRU-style touch.
type bucket struct {
	address digest.Address

	first *entry
	last  *entry
	count int

	totalValueBytes int64
	lastAccessNs    int64
}

// append links e at the tail of the bucket's entry list.
func (b *bucket) append(e *entry) {
	e.prev = b.last
	e.next = nil

	if b.last != nil {
		b.last.next = e
	} else {
		b.first = e
	}

	b.last = e
	b.count++
	b.totalValueBytes += int64(e.value.size())
}

// unlink removes e from the bucket's entry list. e must belong to b.
func (b *bucket) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		b.first = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		b.last = e.prev
	}

	e.prev = nil
	e.next = nil

	b.count--
	b.totalValueBytes -= int64(e.value.size())
}

// find scans the bucket's list for an entry with a byte-equal key.
func (b *bucket) find(key []byte) *entry {
	for e := b.first; e != nil; e = e.next {
		if string(e.key) == string(key) {
			return e
		}
	}

	return nil
}
