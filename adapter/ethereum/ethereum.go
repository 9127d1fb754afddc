// Package ethereum implements the signing adapter with an Ethereum keystore
// key, and reads deposits from the Outpace contract over JSON-RPC.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/rony4d/go-adex-validator/adapter"
	"github.com/rony4d/go-adex-validator/adapter/ewt"
	"github.com/rony4d/go-adex-validator/config"
	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Options locate the keystore.
type Options struct {
	KeystoreFile string
	// KeystorePwd is usually taken from the KEYSTORE_PWD environment variable.
	KeystorePwd string
}

// Dial connects to the chain's JSON-RPC endpoint.
func Dial(ctx context.Context, chain config.Chain) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, chain.RPC)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", chain.RPC)
	}
	return client, nil
}

// Locked is the adapter before the keystore is decrypted.
type Locked struct {
	address  validatorid.ID
	keyJSON  []byte
	password string
	chain    config.Chain
	caller   bind.ContractCaller
}

var (
	_ adapter.Unlockable = (*Locked)(nil)
	_ adapter.Unlocked   = (*Unlocked)(nil)
)

// New reads the keystore file. The key is only decrypted by Unlock.
func New(opts Options, chain config.Chain, caller bind.ContractCaller) (*Locked, error) {
	keyJSON, err := os.ReadFile(opts.KeystoreFile)
	if err != nil {
		return nil, adapter.Wrap(adapter.KindAdapter, errors.Wrap(err, "read keystore"))
	}
	var head struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(keyJSON, &head); err != nil {
		return nil, adapter.Wrap(adapter.KindAdapter, errors.Wrap(err, "decode keystore"))
	}
	if head.Address == "" {
		return nil, adapter.Wrap(adapter.KindAdapter, errors.New("keystore has no address"))
	}
	address, err := validatorid.FromString(head.Address)
	if err != nil {
		return nil, adapter.Wrap(adapter.KindAdapter, errors.Wrap(err, "keystore address"))
	}
	return &Locked{
		address:  address,
		keyJSON:  keyJSON,
		password: opts.KeystorePwd,
		chain:    chain,
		caller:   caller,
	}, nil
}

// Whoami implements adapter.Locked.
func (l *Locked) Whoami() validatorid.ID { return l.address }

// Unlock decrypts the keystore into a new Unlocked adapter.
func (l *Locked) Unlock() (adapter.Unlocked, error) {
	key, err := keystore.DecryptKey(l.keyJSON, l.password)
	if err != nil {
		return nil, adapter.Wrap(adapter.KindWalletUnlock, err)
	}
	if key.Address != l.address.Address() {
		return nil, adapter.Wrap(adapter.KindWalletUnlock, errors.Errorf("keystore key is %s, not %s", key.Address.Hex(), l.address))
	}
	cp := *l
	return &Unlocked{Locked: &cp, key: key.PrivateKey}, nil
}

// Verify implements adapter.Locked. signature is 0x prefixed r||s||v.
func (l *Locked) Verify(signer validatorid.ID, stateRoot common.Hash, signature string) (bool, error) {
	if !strings.HasPrefix(signature, "0x") {
		return false, adapter.Wrap(adapter.KindVerify, adapter.ErrSignaturePrefix)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, adapter.Wrap(adapter.KindVerify, errors.Wrap(err, "decode signature"))
	}
	recovered, err := ewt.Recover(accounts.TextHash(stateRoot[:]), sig)
	if err != nil {
		return false, adapter.Wrap(adapter.KindVerify, err)
	}
	return recovered == signer.Address(), nil
}

// GetDeposit implements adapter.Locked. The counterfactual balance only
// counts once it exceeds the token's MinTokenUnitsForDeposit, and only when
// the chain configures a sweeper and the depositor code.
func (l *Locked) GetDeposit(ctx context.Context, channel inter.Channel, token inter.TokenInfo, depositor common.Address) (inter.Deposit, error) {
	opts := &bind.CallOpts{Context: ctx}

	onOutpace, err := l.callUint(opts, l.chain.Outpace, outpaceABI, "deposits", channel.ID(), depositor)
	if err != nil {
		return inter.Deposit{}, err
	}
	if l.chain.Sweeper == (common.Address{}) || len(l.chain.DepositorCode) == 0 {
		return inter.Deposit{Total: onOutpace, StillOnCreate2: num.NewBigNum(0)}, nil
	}

	counterfactual, err := CounterfactualAddress(l.chain.Sweeper, l.chain.Outpace, channel, depositor, l.chain.DepositorCode)
	if err != nil {
		return inter.Deposit{}, adapter.Wrap(adapter.KindAdapter, err)
	}
	onCreate2, err := l.callUint(opts, channel.Token, erc20ABI, "balanceOf", counterfactual)
	if err != nil {
		return inter.Deposit{}, err
	}

	if onCreate2.Cmp(token.MinTokenUnitsForDeposit) > 0 {
		return inter.Deposit{Total: onOutpace.Add(onCreate2), StillOnCreate2: onCreate2}, nil
	}
	return inter.Deposit{Total: onOutpace, StillOnCreate2: num.NewBigNum(0)}, nil
}

func (l *Locked) callUint(opts *bind.CallOpts, contract common.Address, parsed abi.ABI, method string, params ...interface{}) (num.BigNum, error) {
	var out []interface{}
	bound := bind.NewBoundContract(contract, parsed, l.caller, nil, nil)
	if err := bound.Call(opts, &out, method, params...); err != nil {
		return num.BigNum{}, adapter.Wrap(adapter.KindAdapter, errors.Wrapf(err, "call %s on %s", method, contract.Hex()))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return num.BigNum{}, adapter.Wrap(adapter.KindAdapter, errors.Errorf("%s returned %T", method, out[0]))
	}
	return num.BigNumFromInt(v)
}

// SessionFromToken implements adapter.Locked. A token naming an identity
// contract is only accepted when the contract authorizes the signer
// (ERC-1271).
func (l *Locked) SessionFromToken(ctx context.Context, token string) (adapter.Session, error) {
	verified, signer, err := ewt.Verify(token)
	if err != nil {
		return adapter.Session{}, adapter.Wrap(adapter.KindAuthentication, err)
	}
	payload := verified.Payload
	if payload.ID != l.address {
		return adapter.Session{}, adapter.Wrap(adapter.KindAuthentication, adapter.ErrNotIntendedForUs)
	}
	if payload.ChainID != l.chain.ChainID {
		return adapter.Session{}, adapter.Wrap(adapter.KindAuthentication, errors.Wrapf(adapter.ErrChainNotWhitelisted, "chain %d", payload.ChainID))
	}

	sess := adapter.Session{Era: payload.Era, UID: signer, ChainID: payload.ChainID}
	if payload.Identity == nil {
		return sess, nil
	}

	var out []interface{}
	bound := bind.NewBoundContract(*payload.Identity, identityABI, l.caller, nil, nil)
	err = bound.Call(&bind.CallOpts{Context: ctx}, &out, "isValidSignature", [32]byte(verified.MessageHash), verified.Signature)
	if err != nil {
		return adapter.Session{}, adapter.Wrap(adapter.KindAdapter, errors.Wrap(err, "isValidSignature"))
	}
	if status, ok := out[0].([4]byte); !ok || status != ERC1271MagicValue {
		return adapter.Session{}, adapter.Wrap(adapter.KindAuthorization, errors.New("insufficient privilege"))
	}
	sess.UID = *payload.Identity
	return sess, nil
}

// Unlocked holds the decrypted key.
type Unlocked struct {
	*Locked
	key *ecdsa.PrivateKey
}

// Sign implements adapter.Unlocked: a personal-message signature of the 32
// root bytes, v in {27, 28}.
func (u *Unlocked) Sign(stateRoot common.Hash) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(stateRoot[:]), u.key)
	if err != nil {
		return "", adapter.Wrap(adapter.KindAdapter, errors.Wrap(err, "sign state root"))
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// GetAuth implements adapter.Unlocked.
func (u *Unlocked) GetAuth(intendedFor validatorid.ID) (string, error) {
	token, err := ewt.Sign(u.key, ewt.Payload{
		ID:      intendedFor,
		Era:     ewt.EraOf(inter.Now()),
		Address: u.address.Address(),
		ChainID: u.chain.ChainID,
	})
	if err != nil {
		return "", adapter.Wrap(adapter.KindAdapter, err)
	}
	return token.String(), nil
}
