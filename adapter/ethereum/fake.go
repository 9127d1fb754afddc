package ethereum

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/crypto"
)

// FakeKey returns the deterministic key number n, for local setups and
// tests. Same n, same key.
func FakeKey(n uint64) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte("fake validator key"), bigendian.Uint64ToBytes(n))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(err)
	}
	return key
}
