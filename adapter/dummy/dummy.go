// Package dummy is an adapter without cryptography, for local setups and
// tests. Signatures name the signer in clear text, auth tokens are fixed
// strings and deposits come from a table filled by the caller.
package dummy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/rony4d/go-adex-validator/adapter"
	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Well-known identities of a local leader/follower pair.
var (
	Leader   = validatorid.MustFromString("0x80690751969B234697e9059e04ed72195c3507fa")
	Follower = validatorid.MustFromString("0xf3f583AEC5f7C030722Fe992A5688557e1B86ef7")
	Guardian = validatorid.MustFromString("0xe061E1EB461EaBE512759aa18A201B20Fe90631D")
)

// DefaultAuthTokens maps the well-known identities to their tokens.
func DefaultAuthTokens() map[validatorid.ID]string {
	return map[validatorid.ID]string{
		Leader:   "AUTH_awesomeLeader",
		Follower: "AUTH_awesomeFollower",
		Guardian: "AUTH_awesomeGuardian",
	}
}

// ErrNoDeposit is returned by GetDeposit for a depositor missing from the table.
var ErrNoDeposit = errors.New("no deposit set")

const signaturePrefix = "Dummy adapter signature for "

type depositKey struct {
	channel   inter.ChannelID
	depositor common.Address
}

// Deposits is the injected deposit table. It is safe for concurrent use
// and is shared by adapters created from the same table.
type Deposits struct {
	mu      sync.RWMutex
	entries map[depositKey]inter.Deposit
}

// NewDeposits returns an empty table.
func NewDeposits() *Deposits {
	return &Deposits{entries: make(map[depositKey]inter.Deposit)}
}

// Set records the deposit of depositor on channel.
func (d *Deposits) Set(channel inter.ChannelID, depositor common.Address, deposit inter.Deposit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[depositKey{channel, depositor}] = deposit
}

func (d *Deposits) get(channel inter.ChannelID, depositor common.Address) (inter.Deposit, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	deposit, ok := d.entries[depositKey{channel, depositor}]
	return deposit, ok
}

// Options configure a dummy adapter.
type Options struct {
	Identity validatorid.ID
	// AuthTokens maps every known identity to its auth token.
	AuthTokens map[validatorid.ID]string
	Deposits   *Deposits
	ChainID    uint64
}

// Locked is a dummy adapter that cannot sign yet.
type Locked struct {
	opts Options
}

var (
	_ adapter.Unlockable = (*Locked)(nil)
	_ adapter.Unlocked   = (*Unlocked)(nil)
)

// New returns a locked dummy adapter. Missing tokens and deposits are
// replaced with the defaults.
func New(opts Options) *Locked {
	if opts.AuthTokens == nil {
		opts.AuthTokens = DefaultAuthTokens()
	}
	if opts.Deposits == nil {
		opts.Deposits = NewDeposits()
	}
	return &Locked{opts: opts}
}

// Whoami implements adapter.Locked.
func (l *Locked) Whoami() validatorid.ID { return l.opts.Identity }

// Unlock implements adapter.Unlockable. There is no secret to check.
func (l *Locked) Unlock() (adapter.Unlocked, error) {
	cp := *l
	return &Unlocked{Locked: &cp}, nil
}

// Verify implements adapter.Locked by reading the signer named at the end
// of the signature.
func (l *Locked) Verify(signer validatorid.ID, stateRoot common.Hash, signature string) (bool, error) {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false, nil
	}
	fields := strings.Split(signature, " ")
	named, err := validatorid.FromString(fields[len(fields)-1])
	if err != nil {
		return false, adapter.Wrap(adapter.KindVerify, err)
	}
	return named == signer, nil
}

// GetDeposit implements adapter.Locked from the deposit table.
func (l *Locked) GetDeposit(ctx context.Context, channel inter.Channel, token inter.TokenInfo, depositor common.Address) (inter.Deposit, error) {
	deposit, ok := l.opts.Deposits.get(channel.ID(), depositor)
	if !ok {
		return inter.Deposit{}, adapter.Wrap(adapter.KindAdapter, errors.Wrapf(ErrNoDeposit, "channel %s depositor %s", channel.ID().Hex(), depositor.Hex()))
	}
	return deposit, nil
}

// SessionFromToken implements adapter.Locked by reverse lookup in the
// token map.
func (l *Locked) SessionFromToken(ctx context.Context, token string) (adapter.Session, error) {
	for id, known := range l.opts.AuthTokens {
		if known == token {
			return adapter.Session{UID: id.Address(), ChainID: l.opts.ChainID}, nil
		}
	}
	return adapter.Session{}, adapter.Wrap(adapter.KindAuthentication, errors.New("no identity found for this token"))
}

// Unlocked is a dummy adapter that can sign.
type Unlocked struct {
	*Locked
}

// Sign implements adapter.Unlocked.
func (u *Unlocked) Sign(stateRoot common.Hash) (string, error) {
	return fmt.Sprintf("%s%s by %s", signaturePrefix, common.Bytes2Hex(stateRoot[:]), u.opts.Identity), nil
}

// GetAuth implements adapter.Unlocked. The token is our own, whoever it is
// intended for.
func (u *Unlocked) GetAuth(intendedFor validatorid.ID) (string, error) {
	token, ok := u.opts.AuthTokens[u.opts.Identity]
	if !ok {
		return "", adapter.Wrap(adapter.KindAuthentication, errors.Errorf("no auth token for %s", u.opts.Identity))
	}
	return token, nil
}
