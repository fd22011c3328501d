// Package usm implements the Ultra-Scale Map: a fixed-capacity, in-memory
// keyed container whose bucket addresses span a 256-bit space. Keys
// colliding on digest are chained inside a bucket and disambiguated by a
// byte-exact key comparison; the verification tag carried by a
// [digest.Address] is advisory and is never relied upon for correctness.
package usm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ultrascale/usm/pkg/digest"
)

// Map is the in-memory Ultra-Scale Map. A zero Map is not usable; construct
// one with [New].
type Map struct {
	mu sync.RWMutex

	id       uuid.UUID
	capacity int
	buckets  []*bucket

	entryIDSeq atomic.Uint64

	metrics Stats
}

// New allocates a Map per cfg. A zero cfg.InitialBucketCapacity falls back
// to [DefaultInitialBucketCapacity].
func New(cfg Config) *Map {
	capacity := cfg.InitialBucketCapacity
	if capacity <= 0 {
		capacity = DefaultInitialBucketCapacity
	}

	return &Map{
		id:       uuid.New(),
		capacity: capacity,
		buckets:  make([]*bucket, 0, capacity),
	}
}

// ID returns the Map's unique identifier, assigned once at construction.
func (m *Map) ID() uuid.UUID {
	return m.id
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("key is empty: %w", ErrInvalidKey)
	}

	if len(key) > MaxKeyLen {
		return fmt.Errorf("key length %d exceeds %d: %w", len(key), MaxKeyLen, ErrInvalidKey)
	}

	return nil
}

func validateValue(value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("value is empty: %w", ErrInvalidValue)
	}

	if len(value) > MaxValueSize {
		return fmt.Errorf("value length %d exceeds %d: %w", len(value), MaxValueSize, ErrInvalidValue)
	}

	return nil
}

// findBucket performs a linear scan of the live bucket slots comparing
// full 256-bit addresses. A secondary index keyed on the address would be
// an equally valid, externally indistinguishable implementation; this one
// matches the reference's externally observable behavior exactly.
func (m *Map) findBucket(addr digest.Address) *bucket {
	for _, b := range m.buckets {
		if b != nil && b.address.Equal(addr) {
			return b
		}
	}

	return nil
}

// recordLocked updates the running op counters. Callers must hold m.mu.
func (m *Map) recordLocked(ok bool) {
	m.metrics.TotalOps++

	if ok {
		m.metrics.SuccessfulOps++
	} else {
		m.metrics.FailedOps++
	}
}

// Put inserts or replaces the value stored under key.
//
// On replace, the entry's position within its bucket is preserved and
// bucket.totalValueBytes is adjusted by (new_size - old_size). On insert,
// the new entry is appended at the bucket's tail.
func (m *Map) Put(key []byte, value []byte, typeTag ValueType) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := validateValue(value); err != nil {
		return err
	}

	addr := digest.AddressOf(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.findBucket(addr)

	if b == nil {
		if len(m.buckets) >= m.capacity {
			m.recordLocked(false)
			return fmt.Errorf("bucket array full at capacity %d: %w", m.capacity, ErrCapacityExceeded)
		}

		b = &bucket{address: addr}
		m.buckets = append(m.buckets, b)
	}

	if existing := b.find(key); existing != nil {
		delta := existing.value.replace(value, typeTag)
		b.totalValueBytes += int64(delta)
		m.metrics.TotalBytes += int64(delta)
	} else {
		ownedKey := make([]byte, len(key))
		copy(ownedKey, key)

		e := &entry{
			key:     ownedKey,
			address: addr,
			value:   newContainer(value, typeTag),
			id:      m.entryIDSeq.Add(1),
		}

		b.append(e)
		m.metrics.TotalBytes += int64(e.value.size())
		m.metrics.EntryCount++
	}

	m.metrics.TotalPuts++
	m.metrics.BucketCount = len(m.buckets)
	m.recordLocked(true)

	return nil
}

// Get returns a caller-owned copy of the value stored under key, along
// with its type tag. It returns [ErrKeyNotFound] on miss.
func (m *Map) Get(key []byte) ([]byte, ValueType, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}

	addr := digest.AddressOf(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.TotalGets++

	b := m.findBucket(addr)
	if b == nil {
		m.recordLocked(false)
		return nil, 0, fmt.Errorf("key not found: %w", ErrKeyNotFound)
	}

	e := b.find(key)
	if e == nil {
		m.recordLocked(false)
		return nil, 0, fmt.Errorf("key not found: %w", ErrKeyNotFound)
	}

	value, typeTag := e.value.read()
	b.lastAccessNs = e.value.lastAccessedAt

	m.recordLocked(true)

	return value, typeTag, nil
}

// Contains reports whether key has a live entry, without affecting access
// statistics of that entry.
func (m *Map) Contains(key []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	addr := digest.AddressOf(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.findBucket(addr)
	if b == nil {
		return false, nil
	}

	return b.find(key) != nil, nil
}

// Remove deletes the entry stored under key, if any.
func (m *Map) Remove(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	addr := digest.AddressOf(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.findBucket(addr)
	if b == nil {
		m.recordLocked(false)
		return fmt.Errorf("key not found: %w", ErrKeyNotFound)
	}

	e := b.find(key)
	if e == nil {
		m.recordLocked(false)
		return fmt.Errorf("key not found: %w", ErrKeyNotFound)
	}

	m.metrics.TotalBytes -= int64(e.value.size())
	b.unlink(e)
	m.metrics.EntryCount--
	m.metrics.TotalRemoves++
	m.recordLocked(true)

	return nil
}

// Clear walks every bucket, releasing all entries, and resets metrics to
// zero.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets = m.buckets[:0]
	m.metrics = Stats{}
}

// Destroy clears the map and releases the bucket array. The Map must not
// be used after Destroy returns.
func (m *Map) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets = nil
}

// Len returns the number of live entries across all buckets.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics.EntryCount
}

// Stats returns a snapshot of the map's running metrics.
func (m *Map) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics
}

// Snapshot returns caller-owned copies of every live key, value, and type
// tag currently stored, in no particular order. Used by checkpointing to
// write the full current state through to a storage backend.
func (m *Map) Snapshot() (keys [][]byte, values [][]byte, types []ValueType) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.buckets {
		if b == nil {
			continue
		}

		for e := b.first; e != nil; e = e.next {
			key := make([]byte, len(e.key))
			copy(key, e.key)

			value, typeTag := e.value.peekCopy()

			keys = append(keys, key)
			values = append(values, value)
			types = append(types, typeTag)
		}
	}

	return keys, values, types
}
