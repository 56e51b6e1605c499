package merkle

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func leaf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestRootDeterministic(t *testing.T) {
	leaves := []types.Hash{leaf(1), leaf(2), leaf(3)}
	r1 := Root(leaves)
	r2 := Root(leaves)
	if r1 != r2 {
		t.Fatal("Root is not deterministic")
	}
}

func TestProofRoundTrip(t *testing.T) {
	leaves := []types.Hash{leaf(1), leaf(2), leaf(3), leaf(4), leaf(5)}
	root := Root(leaves)
	for i := range leaves {
		p := BuildProof(leaves, i)
		if !VerifyProof(leaves[i], p, root) {
			t.Fatalf("proof failed to verify for leaf %d", i)
		}
	}
}

func TestEmptyRootIsStable(t *testing.T) {
	if Root(nil) != Root([]types.Hash{}) {
		t.Fatal("empty root should be stable across nil/empty slices")
	}
}
