// Package digest computes the 256-bit key digest and bucket address used
// throughout the Ultra-Scale Map family.
//
// The digest function is deterministic and total: equal keys always yield
// equal digests, and the mapping has acceptable dispersion for typical
// inputs. Collisions are tolerated by callers (they degrade into bucket
// chains, not data loss) and are never treated as an error here.
package digest

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

// Size is the length in bytes of a Digest (256 bits).
const Size = 32

// Digest is a 256-bit deterministic summary of a key.
type Digest [Size]byte

// Of computes the digest of key. The caller must have already validated
// key's length; Of itself imposes no length constraint.
func Of(key []byte) Digest {
	var d Digest

	sum := blake3.Sum256(key)
	copy(d[:], sum[:])

	return d
}

// Address is a bucket address derived from a Digest: the digest itself,
// plus a 64-bit verification tag that is advisory only. Callers must not
// assume the tag detects all collisions.
type Address struct {
	Digest           Digest
	VerificationTag  uint64
	Generation       uint32
	CollisionCounter uint32
}

// AddressOf derives a bucket Address from key. The verification tag is the
// xxhash of the digest (a secondary projection with a different mixing
// function than the primary digest) XORed with the XOR-fold of the
// digest's four 64-bit lanes, so the tag is not a trivial function of the
// first 8 bytes of d.
func AddressOf(key []byte) Address {
	d := Of(key)

	var tag uint64

	secondary := xxhash.Sum64(d[:])
	tag ^= secondary

	for lane := 0; lane < Size; lane += 8 {
		tag ^= binary.LittleEndian.Uint64(d[lane : lane+8])
	}

	return Address{
		Digest:          d,
		VerificationTag: tag,
	}
}

// Equal reports whether two addresses refer to the same 256-bit bucket
// slot. Only the digest is compared; the verification tag is advisory and
// is not part of address identity.
func (a Address) Equal(other Address) bool {
	return a.Digest == other.Digest
}
