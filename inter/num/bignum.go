// Package num provides the monetary number types used by the validator.
//
// BigNum is an arbitrary-precision non-negative integer used for on-chain
// token amounts (which carry the token's own decimal precision). UnifiedNum
// is a 64-bit amount with a fixed precision of 8 decimals that every
// off-chain balance is expressed in. Conversion between the two is explicit
// and floors when the target precision is lower.
//
// None of the operations in this package wrap around or panic on overflow:
// every fallible operation returns an error.
package num

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigNum is a non-negative arbitrary-precision integer.
// The zero value is a valid 0.
type BigNum struct {
	i *big.Int
}

// NewBigNum returns a BigNum holding v.
func NewBigNum(v uint64) BigNum {
	return BigNum{i: new(big.Int).SetUint64(v)}
}

// BigNumFromInt copies a *big.Int. Negative values are rejected.
func BigNumFromInt(v *big.Int) (BigNum, error) {
	if v == nil {
		return BigNum{}, nil
	}
	if v.Sign() < 0 {
		return BigNum{}, &ArithmeticError{Op: "from", Reason: "negative value"}
	}
	return BigNum{i: new(big.Int).Set(v)}, nil
}

// BigNumFromString parses a base-10 string.
func BigNumFromString(s string) (BigNum, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigNum{}, fmt.Errorf("invalid BigNum %q", s)
	}
	return BigNumFromInt(v)
}

func (b BigNum) int() *big.Int {
	if b.i == nil {
		return new(big.Int)
	}
	return b.i
}

// Int returns a copy of the underlying integer.
func (b BigNum) Int() *big.Int {
	return new(big.Int).Set(b.int())
}

// Add returns b + o. Addition of non-negative integers cannot fail.
func (b BigNum) Add(o BigNum) BigNum {
	return BigNum{i: new(big.Int).Add(b.int(), o.int())}
}

// CheckedSub returns b - o, or an error when the result would be negative.
func (b BigNum) CheckedSub(o BigNum) (BigNum, error) {
	if b.Cmp(o) < 0 {
		return BigNum{}, &ArithmeticError{Op: "sub", Reason: "underflow"}
	}
	return BigNum{i: new(big.Int).Sub(b.int(), o.int())}, nil
}

// Mul returns b * o.
func (b BigNum) Mul(o BigNum) BigNum {
	return BigNum{i: new(big.Int).Mul(b.int(), o.int())}
}

// Div returns floor(b / o).
func (b BigNum) Div(o BigNum) (BigNum, error) {
	if o.IsZero() {
		return BigNum{}, &ArithmeticError{Op: "div", Reason: "division by zero"}
	}
	return BigNum{i: new(big.Int).Quo(b.int(), o.int())}, nil
}

// Pow10 returns 10^exp.
func Pow10(exp uint8) BigNum {
	return BigNum{i: new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)}
}

// Cmp compares b and o and returns -1, 0 or +1.
func (b BigNum) Cmp(o BigNum) int {
	return b.int().Cmp(o.int())
}

// IsZero reports whether b == 0.
func (b BigNum) IsZero() bool {
	return b.int().Sign() == 0
}

// Uint64 returns the value and whether it fits into 64 bits.
func (b BigNum) Uint64() (uint64, bool) {
	v := b.int()
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

func (b BigNum) String() string {
	return b.int().String()
}

// MarshalJSON encodes the number as a decimal string.
func (b BigNum) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a decimal string.
func (b *BigNum) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := BigNumFromString(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText encodes the number as decimal text, e.g. for TOML files.
func (b BigNum) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes decimal text.
func (b *BigNum) UnmarshalText(data []byte) error {
	v, err := BigNumFromString(string(data))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
