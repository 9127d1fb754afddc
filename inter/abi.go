package inter

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI types shared by the hashing helpers of this package. Every hash that
// ends up signed or checked on-chain is keccak256 over a standard ABI
// encoding, so Solidity can reproduce it with abi.encode.
var (
	AddressType = mustType("address")
	Uint256Type = mustType("uint256")
	Bytes32Type = mustType("bytes32")
	StringType  = mustType("string")
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Arguments builds an abi.Arguments list of unnamed values.
func Arguments(types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	return args
}
