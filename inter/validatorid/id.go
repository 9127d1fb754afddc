// Package validatorid provides the identity type of a channel validator.
// A validator is identified by the 20-byte Ethereum address of the key it
// signs with. The type exists so identities and plain earner/spender
// addresses are not mixed up, while converting between the two stays free.

package validatorid

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Length is the byte length of an ID.
const Length = common.AddressLength

// ID is a validator identity.
type ID common.Address

// FromAddress converts an address into an ID.
func FromAddress(addr common.Address) ID {
	return ID(addr)
}

// Address returns the identity as an address, e.g. to look it up in a
// balances map.
func (id ID) Address() common.Address {
	return common.Address(id)
}

// Empty reports whether the identity is the zero address.
func (id ID) Empty() bool {
	return id == ID{}
}

// String returns the EIP-55 checksummed hex form, prefixed with "0x".
func (id ID) String() string {
	return id.Address().Hex()
}

// Bytes returns a copy of the 20 raw bytes.
func (id ID) Bytes() []byte {
	return common.CopyBytes(id[:])
}

// FromString parses a hex string with or without the "0x" prefix.
// Checksums are not enforced.
func FromString(str string) (ID, error) {
	if str == "" {
		return ID{}, errors.New("empty validator id")
	}
	if !common.IsHexAddress(str) {
		return ID{}, errors.New("invalid validator id: " + str)
	}
	return ID(common.HexToAddress(str)), nil
}

// FromBytes copies exactly Length bytes into an ID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != Length {
		return ID{}, errors.New("validator id must be 20 bytes")
	}
	return ID(common.BytesToAddress(b)), nil
}

// MustFromString is FromString for constants and tests.
func MustFromString(str string) ID {
	id, err := FromString(str)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler, so IDs travel as hex in
// JSON values and map keys.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*id = res
	return nil
}
