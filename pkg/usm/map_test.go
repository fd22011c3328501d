package usm_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/usm"
)

func TestPutGetRemove_BasicRoundTrip(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	err := m.Put([]byte("alpha"), []byte{0x01, 0x02, 0x03}, usm.OpaqueBlob)
	require.NoError(t, err)

	value, typeTag, err := m.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, usm.OpaqueBlob, typeTag)

	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03}, value); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}

	contains, err := m.Contains([]byte("beta"))
	require.NoError(t, err)
	require.False(t, contains)

	require.NoError(t, m.Remove([]byte("alpha")))

	_, _, err = m.Get([]byte("alpha"))
	require.ErrorIs(t, err, usm.ErrKeyNotFound)
}

func TestPut_ReplacePreservesOrderAndUpdatesSize(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	require.NoError(t, m.Put([]byte("k"), []byte{0xAA}, usm.OpaqueBlob))
	require.NoError(t, m.Put([]byte("k"), []byte{0xBB, 0xBB}, usm.OpaqueBlob))

	value, _, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xBB, 0xBB}, value)
	require.Equal(t, 1, m.Len())
}

func TestPut_EmptyKeyIsInvalid(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	err := m.Put([]byte{}, []byte{0x01}, usm.OpaqueBlob)
	require.ErrorIs(t, err, usm.ErrInvalidKey)
}

func TestPut_KeyLengthBoundaries(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	atMax := make([]byte, usm.MaxKeyLen)
	require.NoError(t, m.Put(atMax, []byte{0x01}, usm.OpaqueBlob))

	overMax := make([]byte, usm.MaxKeyLen+1)
	err := m.Put(overMax, []byte{0x01}, usm.OpaqueBlob)
	require.ErrorIs(t, err, usm.ErrInvalidKey)
}

func TestPut_ValueLengthBoundaries(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	err := m.Put([]byte("k"), []byte{}, usm.OpaqueBlob)
	require.ErrorIs(t, err, usm.ErrInvalidValue)

	atMax := make([]byte, usm.MaxValueSize)
	require.NoError(t, m.Put([]byte("k2"), atMax, usm.OpaqueBlob))

	overMax := make([]byte, usm.MaxValueSize+1)
	err = m.Put([]byte("k3"), overMax, usm.OpaqueBlob)
	require.ErrorIs(t, err, usm.ErrInvalidValue)
}

func TestPut_CapacityExceededOnNewBucketButUpdateStillSucceeds(t *testing.T) {
	m := usm.New(usm.Config{InitialBucketCapacity: 1})

	require.NoError(t, m.Put([]byte("first"), []byte{0x01}, usm.OpaqueBlob))

	err := m.Put([]byte("second"), []byte{0x02}, usm.OpaqueBlob)
	require.ErrorIs(t, err, usm.ErrCapacityExceeded)

	// An update to the existing bucket must still succeed while full.
	require.NoError(t, m.Put([]byte("first"), []byte{0x03}, usm.OpaqueBlob))
}

func TestClear_ResetsSizeAndContains(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	require.NoError(t, m.Put([]byte("a"), []byte{0x01}, usm.OpaqueBlob))
	require.NoError(t, m.Put([]byte("b"), []byte{0x02}, usm.OpaqueBlob))

	m.Clear()

	require.Equal(t, 0, m.Len())

	contains, err := m.Contains([]byte("a"))
	require.NoError(t, err)
	require.False(t, contains)
}

func TestStats_TotalOpsEqualsSuccessfulPlusFailed(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	require.NoError(t, m.Put([]byte("a"), []byte{0x01}, usm.OpaqueBlob))

	err := m.Put([]byte{}, []byte{0x01}, usm.OpaqueBlob)
	require.Error(t, err)

	_, _, err = m.Get([]byte("missing"))
	require.Error(t, err)

	stats := m.Stats()
	require.Equal(t, stats.SuccessfulOps+stats.FailedOps, stats.TotalOps)
}

// True blake3 digest collisions are infeasible to construct, so "x" and "y"
// here land in separate buckets; this black-box test checks that
// independent keys remain independently addressable and removable.
// Chaining of two keys inside one bucket is covered by
// TestDigestCollisionChaining in map_internal_test.go.
func TestBucketChaining_IndependentKeysRemainIndependentlyAddressable(t *testing.T) {
	m := usm.New(usm.DefaultConfig())

	require.NoError(t, m.Put([]byte("x"), []byte{1}, usm.OpaqueBlob))
	require.NoError(t, m.Put([]byte("y"), []byte{2}, usm.OpaqueBlob))

	vx, _, err := m.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, vx)

	vy, _, err := m.Get([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, vy)

	require.NoError(t, m.Remove([]byte("x")))

	_, _, err = m.Get([]byte("x"))
	require.True(t, errors.Is(err, usm.ErrKeyNotFound))

	vy, _, err = m.Get([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, vy)
}
