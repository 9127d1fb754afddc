package adapter

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures.
type Kind uint8

const (
	KindAdapter Kind = iota
	KindWalletUnlock
	KindVerify
	KindAuthentication
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindWalletUnlock:
		return "wallet unlock"
	case KindVerify:
		return "verify"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	default:
		return "adapter"
	}
}

// Error is returned by every adapter implementation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// IsKind reports whether err is an adapter Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

var (
	// ErrNotIntendedForUs rejects an auth token minted for another validator.
	ErrNotIntendedForUs = errors.New("token not intended for us")
	// ErrChainNotWhitelisted rejects an auth token for an unknown chain.
	ErrChainNotWhitelisted = errors.New("chain not whitelisted")
	// ErrSignaturePrefix rejects signatures without the 0x prefix.
	ErrSignaturePrefix = errors.New("signature is not 0x prefixed")
)
