package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-adex-validator/inter"
)

const outpaceABIJSON = `[{"constant":true,"inputs":[{"name":"","type":"bytes32"},{"name":"","type":"address"}],"name":"deposits","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const erc20ABIJSON = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const identityABIJSON = `[{"constant":true,"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

var (
	outpaceABI  = mustParseABI(outpaceABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)
	identityABI = mustParseABI(identityABIJSON)
)

// ERC1271MagicValue is returned by isValidSignature for an authorized signer.
var ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// the channel tuple is static, so it encodes inline between outpace and
// depositor
var depositorArgs = inter.Arguments(
	inter.AddressType,
	inter.AddressType, inter.AddressType, inter.AddressType, inter.AddressType, inter.Bytes32Type,
	inter.AddressType,
)

// CounterfactualAddress is the CREATE2 address of the depositor contract the
// sweeper deploys for depositor on channel:
//
//	create2(sweeper, salt 0, code ++ abi.encode(outpace, channel, depositor))
func CounterfactualAddress(sweeper, outpace common.Address, channel inter.Channel, depositor common.Address, code []byte) (common.Address, error) {
	nonce, err := channel.Nonce.Bytes32()
	if err != nil {
		return common.Address{}, err
	}
	params, err := depositorArgs.Pack(
		outpace,
		channel.Leader.Address(), channel.Follower.Address(), channel.Guardian, channel.Token, nonce,
		depositor,
	)
	if err != nil {
		return common.Address{}, err
	}
	initCode := make([]byte, 0, len(code)+len(params))
	initCode = append(initCode, code...)
	initCode = append(initCode, params...)
	return crypto.CreateAddress2(sweeper, [32]byte{}, crypto.Keccak256(initCode)), nil
}
