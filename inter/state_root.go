package inter

import (
	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/utils/merkle"
)

var (
	earnerLeafArgs  = Arguments(AddressType, Uint256Type)
	spenderLeafArgs = Arguments(StringType, AddressType, Uint256Type)
	signableArgs    = Arguments(Bytes32Type, Bytes32Type)
)

// BalanceLeaf hashes one balance entry, with amount in token precision:
//
//	earner:  keccak256(abi.encode(address, uint256))
//	spender: keccak256(abi.encode("spender", address, uint256))
func BalanceLeaf(isSpender bool, addr common.Address, amount num.BigNum) (common.Hash, error) {
	var (
		encoded []byte
		err     error
	)
	if isSpender {
		encoded, err = spenderLeafArgs.Pack("spender", addr, amount.Int())
	} else {
		encoded, err = earnerLeafArgs.Pack(addr, amount.Int())
	}
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// SignableStateRoot binds a balance root to a channel:
// keccak256(abi.encode(bytes32 channelId, bytes32 balanceRoot)).
func SignableStateRoot(channel ChannelID, balanceRoot common.Hash) common.Hash {
	encoded, err := signableArgs.Pack([32]byte(channel), [32]byte(balanceRoot))
	if err != nil {
		// two fixed 32-byte words always encode
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// StateRoot is the hash validators sign for a set of balances. Amounts are
// converted to the token precision first so the root can be checked by the
// on-chain contract.
func StateRoot(channel ChannelID, b balances.Checked, tokenPrecision uint8) (common.Hash, error) {
	leaves := make([]common.Hash, 0, len(b.Earners())+len(b.Spenders()))
	for addr, amount := range b.Earners() {
		leaf, err := BalanceLeaf(false, addr, amount.ToPrecision(tokenPrecision))
		if err != nil {
			return common.Hash{}, err
		}
		leaves = append(leaves, leaf)
	}
	for addr, amount := range b.Spenders() {
		leaf, err := BalanceLeaf(true, addr, amount.ToPrecision(tokenPrecision))
		if err != nil {
			return common.Hash{}, err
		}
		leaves = append(leaves, leaf)
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		return common.Hash{}, err
	}
	return SignableStateRoot(channel, tree.Root()), nil
}

// HeartbeatStateRoot commits to a heartbeat timestamp: the millisecond
// timestamp is written big-endian at the tail of a 32-byte leaf, which is
// the single leaf of the tree.
func HeartbeatStateRoot(channel ChannelID, ts Timestamp) common.Hash {
	var leaf common.Hash
	copy(leaf[24:], bigendian.Uint64ToBytes(ts.Millis()))
	return SignableStateRoot(channel, leaf)
}
