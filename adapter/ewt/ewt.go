// Package ewt implements Ethereum Web Tokens, the bearer tokens validators
// attach to requests sent to each other.
//
// A token is three base64url (unpadded) segments separated by dots: the
// fixed header {"typ":"JWT","alg":"ETH"}, the JSON payload, and the
// signature r||s||v||0x01. The signed message is keccak256 of
// "header.payload", hashed again as an Ethereum personal message.
package ewt

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// EthSignSuffix marks a plain Ethereum signature.
const EthSignSuffix byte = 0x01

// EraDuration is the length of one era in milliseconds.
const EraDuration = 60_000

var (
	// ErrInvalidToken is returned for anything that is not three segments.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidHeader is returned for a header other than the ETH one.
	ErrInvalidHeader = errors.New("invalid token header")
	// ErrInvalidSignature is returned when the signature cannot be decoded
	// or lacks the signing mode suffix.
	ErrInvalidSignature = errors.New("invalid token signature")
)

var encoding = base64.RawURLEncoding

// Header is the JOSE-like header.
type Header struct {
	Type string `json:"typ"`
	Alg  string `json:"alg"`
}

// EthHeader is the only accepted header.
var EthHeader = Header{Type: "JWT", Alg: "ETH"}

var ethHeaderEncoded = mustEncode(EthHeader)

// Payload is the signed content of a token.
type Payload struct {
	// ID is the validator the token is intended for.
	ID  validatorid.ID
	Era int64
	// Address is the signer.
	Address  common.Address
	Identity *common.Address
	ChainID  uint64
}

type payloadJSON struct {
	ID       validatorid.ID `json:"id"`
	Era      int64          `json:"era"`
	Address  string         `json:"address"`
	Identity string         `json:"identity,omitempty"`
	ChainID  uint64         `json:"chain_id"`
}

// MarshalJSON writes addresses checksummed, in field order id, era,
// address, identity, chain_id.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := payloadJSON{ID: p.ID, Era: p.Era, Address: p.Address.Hex(), ChainID: p.ChainID}
	if p.Identity != nil {
		out.Identity = p.Identity.Hex()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var in payloadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !common.IsHexAddress(in.Address) {
		return errors.Errorf("invalid payload address %q", in.Address)
	}
	*p = Payload{ID: in.ID, Era: in.Era, Address: common.HexToAddress(in.Address), ChainID: in.ChainID}
	if in.Identity != "" {
		if !common.IsHexAddress(in.Identity) {
			return errors.Errorf("invalid payload identity %q", in.Identity)
		}
		identity := common.HexToAddress(in.Identity)
		p.Identity = &identity
	}
	return nil
}

// EraOf returns the era a timestamp falls into.
func EraOf(ts inter.Timestamp) int64 {
	return int64(ts.Millis() / EraDuration)
}

// Token is a signed or verified EWT.
type Token struct {
	Header  Header
	Payload Payload
	// MessageHash is keccak256("header.payload"), before personal hashing.
	MessageHash common.Hash
	// Signature is r||s||v||mode.
	Signature []byte
	raw       string
}

// String returns the encoded token, ready for an Authorization header.
func (t Token) String() string { return t.raw }

// Sign mints a token for payload.
func Sign(key *ecdsa.PrivateKey, payload Payload) (Token, error) {
	payloadEncoded, err := encode(payload)
	if err != nil {
		return Token{}, errors.Wrap(err, "encode payload")
	}
	signed := ethHeaderEncoded + "." + payloadEncoded
	messageHash := crypto.Keccak256Hash([]byte(signed))

	sig, err := crypto.Sign(accounts.TextHash(messageHash[:]), key)
	if err != nil {
		return Token{}, errors.Wrap(err, "sign token")
	}
	sig[crypto.RecoveryIDOffset] += 27
	sig = append(sig, EthSignSuffix)

	return Token{
		Header:      EthHeader,
		Payload:     payload,
		MessageHash: messageHash,
		Signature:   sig,
		raw:         signed + "." + encoding.EncodeToString(sig),
	}, nil
}

// Verify decodes token and recovers its signer. It does not check who the
// token is intended for; that is up to the adapter.
func Verify(token string) (Token, common.Address, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(token) < 16 || len(parts) != 3 {
		return Token{}, common.Address{}, ErrInvalidToken
	}
	if parts[0] != ethHeaderEncoded {
		return Token{}, common.Address{}, ErrInvalidHeader
	}

	rawPayload, err := encoding.DecodeString(parts[1])
	if err != nil {
		return Token{}, common.Address{}, errors.Wrap(err, "decode payload")
	}
	var payload Payload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return Token{}, common.Address{}, errors.Wrap(err, "decode payload")
	}

	sig, err := encoding.DecodeString(parts[2])
	if err != nil || len(sig) != crypto.SignatureLength+1 || !bytes.HasSuffix(sig, []byte{EthSignSuffix}) {
		return Token{}, common.Address{}, ErrInvalidSignature
	}
	messageHash := crypto.Keccak256Hash([]byte(parts[0] + "." + parts[1]))
	signer, err := Recover(accounts.TextHash(messageHash[:]), sig[:crypto.SignatureLength])
	if err != nil {
		return Token{}, common.Address{}, err
	}

	return Token{
		Header:      EthHeader,
		Payload:     payload,
		MessageHash: messageHash,
		Signature:   sig,
		raw:         token,
	}, signer, nil
}

// Recover returns the address that produced the 65-byte signature sig with
// v in {27, 28} or {0, 1} over hash.
func Recover(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := common.CopyBytes(sig)
	if v := normalized[crypto.RecoveryIDOffset]; v >= 27 {
		normalized[crypto.RecoveryIDOffset] = v - 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(data), nil
}

func mustEncode(v interface{}) string {
	s, err := encode(v)
	if err != nil {
		panic(err)
	}
	return s
}
