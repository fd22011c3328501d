package digest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultrascale/usm/pkg/digest"
)

func TestOf_Deterministic(t *testing.T) {
	a := digest.Of([]byte("alpha"))
	b := digest.Of([]byte("alpha"))
	require.Equal(t, a, b)
}

func TestOf_DifferentKeysTypicallyDiffer(t *testing.T) {
	a := digest.Of([]byte("alpha"))
	b := digest.Of([]byte("beta"))
	require.NotEqual(t, a, b)
}

func TestAddressOf_Deterministic(t *testing.T) {
	a := digest.AddressOf([]byte("k"))
	b := digest.AddressOf([]byte("k"))
	require.True(t, a.Equal(b))
	require.Equal(t, a.VerificationTag, b.VerificationTag)
}

func TestAddress_EqualIgnoresTagMismatch(t *testing.T) {
	a := digest.AddressOf([]byte("x"))
	b := a
	b.VerificationTag = ^a.VerificationTag

	require.True(t, a.Equal(b))
}
