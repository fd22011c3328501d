package usm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/digest"
)

// TestDigestCollisionChaining exercises the scenario where two distinct
// keys land in the same bucket. It bypasses digest.AddressOf by inserting
// directly at the bucket level, the white-box equivalent of injecting a
// colliding digest function.
func TestDigestCollisionChaining(t *testing.T) {
	m := New(DefaultConfig())

	addr := digest.AddressOf([]byte("shared"))
	b := &bucket{address: addr}
	m.buckets = append(m.buckets, b)

	b.append(&entry{key: []byte("x"), address: addr, value: newContainer([]byte{1}, OpaqueBlob), id: m.entryIDSeq.Add(1)})
	b.append(&entry{key: []byte("y"), address: addr, value: newContainer([]byte{2}, OpaqueBlob), id: m.entryIDSeq.Add(1)})

	require.Len(t, m.buckets, 1)
	require.Equal(t, 2, b.count)

	ex := b.find([]byte("x"))
	require.NotNil(t, ex)
	got, _ := ex.value.read()
	require.Equal(t, []byte{1}, got)

	ey := b.find([]byte("y"))
	require.NotNil(t, ey)
	got, _ = ey.value.read()
	require.Equal(t, []byte{2}, got)

	b.unlink(ex)
	require.Equal(t, 1, b.count)

	ey = b.find([]byte("y"))
	require.NotNil(t, ey)
	got, _ = ey.value.read()
	require.Equal(t, []byte{2}, got)
}
