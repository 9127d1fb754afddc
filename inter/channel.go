// Package inter defines the data exchanged by validators of a payment
// channel: the channel identity and its validator set, the accounting cursor,
// event aggregates, on-chain deposits and the signed validator messages.
//
// All types here are plain values. Anything that needs I/O (fetching,
// signing, propagating) lives in the adapter, sentry and worker packages.
package inter

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// ChannelID is the keccak256 identifier of a Channel.
type ChannelID = common.Hash

// Nonce is the unsigned 256-bit deposit nonce of a channel.
type Nonce struct {
	v num.BigNum
}

// NewNonce returns a nonce holding v.
func NewNonce(v uint64) Nonce {
	return Nonce{v: num.NewBigNum(v)}
}

// Bytes32 returns the nonce as a 32-byte big-endian word.
func (n Nonce) Bytes32() ([32]byte, error) {
	var out [32]byte
	i := n.v.Int()
	if i.BitLen() > 256 {
		return out, fmt.Errorf("nonce %s exceeds 256 bits", i)
	}
	i.FillBytes(out[:])
	return out, nil
}

// Int returns a copy of the nonce value.
func (n Nonce) Int() *big.Int { return n.v.Int() }

func (n Nonce) String() string { return n.v.String() }

// MarshalJSON encodes the nonce as a decimal string.
func (n Nonce) MarshalJSON() ([]byte, error) { return json.Marshal(n.v) }

// UnmarshalJSON decodes a decimal string of at most 256 bits.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	var v num.BigNum
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Int().BitLen() > 256 {
		return fmt.Errorf("nonce %s exceeds 256 bits", v)
	}
	n.v = v
	return nil
}

// Channel is the immutable identity of a payment channel.
type Channel struct {
	Leader   validatorid.ID `json:"leader"`
	Follower validatorid.ID `json:"follower"`
	Guardian common.Address `json:"guardian"`
	Token    common.Address `json:"token"`
	Nonce    Nonce          `json:"nonce"`
}

var channelArgs = Arguments(AddressType, AddressType, AddressType, AddressType, Bytes32Type)

// Encode returns abi.encode(leader, follower, guardian, token, nonce).
func (c Channel) Encode() ([]byte, error) {
	nonce, err := c.Nonce.Bytes32()
	if err != nil {
		return nil, err
	}
	return channelArgs.Pack(c.Leader.Address(), c.Follower.Address(), c.Guardian, c.Token, nonce)
}

// ID derives the channel identifier: keccak256 of the ABI encoded fields.
func (c Channel) ID() ChannelID {
	encoded, err := c.Encode()
	if err != nil {
		// NewNonce and UnmarshalJSON are the only ways to build a nonce and
		// both keep it within 256 bits
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// ValidatorDesc is one entry of a channel's validator set.
type ValidatorDesc struct {
	ID validatorid.ID `json:"id"`
	// FeeAddr receives the fees; ID is used when it is unset.
	FeeAddr *common.Address `json:"feeAddr,omitempty"`
	// URL is the announcement endpoint, e.g. https://tom.adex.network.
	URL string `json:"url"`
	// Fee in promilles of every payout, as a raw UnifiedNum.
	Fee num.UnifiedNum `json:"fee"`
}

// FeeAddress returns the address fees are credited to.
func (v ValidatorDesc) FeeAddress() common.Address {
	if v.FeeAddr != nil {
		return *v.FeeAddr
	}
	return v.ID.Address()
}

// ChannelSpec is a channel together with its validator set, as listed by
// the channel directory. Validators are ordered leader first.
type ChannelSpec struct {
	Channel    Channel         `json:"channel"`
	Validators []ValidatorDesc `json:"validators"`
}

// Find returns the descriptor of id, if it validates the channel.
func (s ChannelSpec) Find(id validatorid.ID) (ValidatorDesc, bool) {
	for _, v := range s.Validators {
		if v.ID == id {
			return v, true
		}
	}
	return ValidatorDesc{}, false
}

// TokenInfo describes a whitelisted deposit token.
type TokenInfo struct {
	Address   common.Address `json:"address"`
	Precision uint8          `json:"precision"`
	// MinTokenUnitsForDeposit is the smallest counterfactual (CREATE2)
	// balance that counts towards a deposit.
	MinTokenUnitsForDeposit num.BigNum `json:"minTokenUnitsForDeposit"`
}
