// Package adapter defines the signing capability of a validator as two
// interfaces. A Locked adapter can identify itself, verify signatures and
// read deposits. Only an Unlocked adapter can sign state roots and mint
// auth tokens, and the only way to obtain one is Unlockable.Unlock.
package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Session is an authenticated caller, as recovered from an auth token.
type Session struct {
	// Era is the token's minute since the unix epoch.
	Era     int64
	UID     common.Address
	ChainID uint64
}

// Locked is the capability set that needs no secret.
type Locked interface {
	// Whoami returns the identity the adapter signs as.
	Whoami() validatorid.ID
	// Verify reports whether signature over stateRoot was produced by signer.
	Verify(signer validatorid.ID, stateRoot common.Hash, signature string) (bool, error)
	// GetDeposit reads the on-chain deposit of depositor on the channel, in
	// the token's precision.
	GetDeposit(ctx context.Context, channel inter.Channel, token inter.TokenInfo, depositor common.Address) (inter.Deposit, error)
	// SessionFromToken authenticates an auth token addressed to us.
	SessionFromToken(ctx context.Context, token string) (Session, error)
}

// Unlocked can additionally sign.
type Unlocked interface {
	Locked
	// Sign returns the 0x-prefixed signature of stateRoot.
	Sign(stateRoot common.Hash) (string, error)
	// GetAuth mints an auth token for requests sent to intendedFor.
	GetAuth(intendedFor validatorid.ID) (string, error)
}

// Unlockable is a Locked adapter holding the secret needed to unlock it.
// Unlock returns a new value and leaves the receiver locked.
type Unlockable interface {
	Locked
	Unlock() (Unlocked, error)
}
