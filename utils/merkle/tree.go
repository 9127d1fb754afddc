// Package merkle implements the keccak256 merkle tree that commits to a
// channel's balance leaves.
//
// Leaves are sorted and deduplicated before the tree is built. Every inner
// node hashes the concatenation of its two children in ascending byte order,
// so proofs need no left/right flags. An odd node at the end of a layer is
// promoted unchanged. A tree of a single leaf has that leaf as its root.
package merkle

import (
	"bytes"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoLeaves is returned when building a tree without leaves.
var ErrNoLeaves = errors.New("merkle tree needs at least one leaf")

// Tree keeps every layer so proofs can be produced.
type Tree struct {
	layers [][]common.Hash
}

// New builds a tree over leaves. The input slice is not modified.
func New(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	layer := make([]common.Hash, len(leaves))
	copy(layer, leaves)
	sort.Slice(layer, func(i, j int) bool {
		return bytes.Compare(layer[i][:], layer[j][:]) < 0
	})
	layer = dedup(layer)

	t := &Tree{layers: [][]common.Hash{layer}}
	for len(layer) > 1 {
		layer = nextLayer(layer)
		t.layers = append(t.layers, layer)
	}
	return t, nil
}

// Root returns the root hash.
func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Leaves returns the sorted, deduplicated leaves.
func (t *Tree) Leaves() []common.Hash {
	return t.layers[0]
}

// Proof returns the sibling path of leaf, or false if it is not in the tree.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, bool) {
	idx := -1
	for i, l := range t.layers[0] {
		if l == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, true
}

// Verify checks a proof produced by Proof against root.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	h := leaf
	for _, p := range proof {
		h = Combine(h, p)
	}
	return h == root
}

// Combine hashes two nodes in ascending byte order.
func Combine(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

func nextLayer(layer []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(layer)+1)/2)
	for i := 0; i < len(layer); i += 2 {
		if i+1 == len(layer) {
			next = append(next, layer[i])
			continue
		}
		next = append(next, Combine(layer[i], layer[i+1]))
	}
	return next
}

func dedup(sorted []common.Hash) []common.Hash {
	out := sorted[:1]
	for _, h := range sorted[1:] {
		if h != out[len(out)-1] {
			out = append(out, h)
		}
	}
	return out
}
