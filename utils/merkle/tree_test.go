package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	h1 = common.HexToHash("71b1b2ad4db89eea341553b718f51f4f0aac03c6a596c4c0e1697f7b9d9da337")
	h2 = common.HexToHash("778b613574ae22c119efb252f2a56cb05b0d137f8494c0193f4e015c49f43453")
)

// TestRoot checks the root against known values and the tree's ordering
// rules.
func TestRoot(t *testing.T) {
	want := common.HexToHash("70d6549669561c65fdc687b87743b67e494e1f4be5d19a2955507220e57baaa6")

	tests := []struct {
		name   string
		leaves []common.Hash
	}{
		{"two leaves", []common.Hash{h1, h2}},
		{"order does not matter", []common.Hash{h2, h1}},
		{"duplicates are dropped", []common.Hash{h1, h2, h2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := New(tt.leaves)
			require.NoError(t, err)
			require.Equal(t, want, tree.Root())
		})
	}

	t.Run("single leaf is the root", func(t *testing.T) {
		tree, err := New([]common.Hash{h1})
		require.NoError(t, err)
		require.Equal(t, h1, tree.Root())
	})

	t.Run("no leaves", func(t *testing.T) {
		_, err := New(nil)
		require.ErrorIs(t, err, ErrNoLeaves)
	})
}

// TestProof verifies proofs for every leaf, including the promoted odd one.
func TestProof(t *testing.T) {
	require := require.New(t)

	var leaves []common.Hash
	for i := byte(0); i < 5; i++ {
		leaves = append(leaves, crypto.Keccak256Hash([]byte{i}))
	}
	tree, err := New(leaves)
	require.NoError(err)

	for _, leaf := range leaves {
		proof, ok := tree.Proof(leaf)
		require.True(ok)
		require.True(Verify(tree.Root(), leaf, proof))
	}

	_, ok := tree.Proof(h1)
	require.False(ok)

	proof, _ := tree.Proof(leaves[0])
	require.False(Verify(tree.Root(), h1, proof))
}
