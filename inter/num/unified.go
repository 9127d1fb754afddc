package num

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const (
	// UnifiedPrecision is the number of decimals every UnifiedNum carries.
	UnifiedPrecision uint8 = 8

	// Multiplier is 10^UnifiedPrecision, i.e. the raw value of 1.0.
	Multiplier uint64 = 100_000_000
)

// ErrOverflow is returned when a rescaled amount does not fit into a UnifiedNum.
var ErrOverflow = errors.New("amount does not fit into UnifiedNum")

// ArithmeticError reports a failed checked operation.
type ArithmeticError struct {
	Op     string // add, sub, mul, div, sum
	Reason string // overflow, underflow, division by zero
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic %s: %s", e.Op, e.Reason)
}

// UnifiedNum is a non-negative amount with UnifiedPrecision decimals stored
// as its raw integer value: UnifiedNum(100_000_000) is 1.0.
type UnifiedNum uint64

// Zero is the additive identity.
const Zero UnifiedNum = 0

// One is 1.0 in unified precision.
const One = UnifiedNum(Multiplier)

// FromWhole returns whole * 10^8, failing when it overflows.
func FromWhole(whole uint64) (UnifiedNum, error) {
	hi, lo := bits.Mul64(whole, Multiplier)
	if hi != 0 {
		return 0, &ArithmeticError{Op: "mul", Reason: "overflow"}
	}
	return UnifiedNum(lo), nil
}

// Uint64 returns the raw value.
func (u UnifiedNum) Uint64() uint64 {
	return uint64(u)
}

// CheckedAdd returns u + o.
func (u UnifiedNum) CheckedAdd(o UnifiedNum) (UnifiedNum, error) {
	sum, carry := bits.Add64(uint64(u), uint64(o), 0)
	if carry != 0 {
		return 0, &ArithmeticError{Op: "add", Reason: "overflow"}
	}
	return UnifiedNum(sum), nil
}

// CheckedSub returns u - o.
func (u UnifiedNum) CheckedSub(o UnifiedNum) (UnifiedNum, error) {
	diff, borrow := bits.Sub64(uint64(u), uint64(o), 0)
	if borrow != 0 {
		return 0, &ArithmeticError{Op: "sub", Reason: "underflow"}
	}
	return UnifiedNum(diff), nil
}

// CheckedMul multiplies the raw values. The result is not rescaled: it is
// meant for amount * ratio computations followed by a CheckedDiv.
func (u UnifiedNum) CheckedMul(o UnifiedNum) (UnifiedNum, error) {
	hi, lo := bits.Mul64(uint64(u), uint64(o))
	if hi != 0 {
		return 0, &ArithmeticError{Op: "mul", Reason: "overflow"}
	}
	return UnifiedNum(lo), nil
}

// CheckedDiv returns floor(u / o) on the raw values.
func (u UnifiedNum) CheckedDiv(o UnifiedNum) (UnifiedNum, error) {
	if o == 0 {
		return 0, &ArithmeticError{Op: "div", Reason: "division by zero"}
	}
	return u / o, nil
}

// Min returns the smaller of u and o.
func (u UnifiedNum) Min(o UnifiedNum) UnifiedNum {
	if o < u {
		return o
	}
	return u
}

// Sum adds all values, failing on overflow.
func Sum(values ...UnifiedNum) (UnifiedNum, error) {
	var total UnifiedNum
	for _, v := range values {
		next, err := total.CheckedAdd(v)
		if err != nil {
			return 0, &ArithmeticError{Op: "sum", Reason: "overflow"}
		}
		total = next
	}
	return total, nil
}

// ToBigNum returns the raw value as a BigNum.
func (u UnifiedNum) ToBigNum() BigNum {
	return NewBigNum(uint64(u))
}

// ToPrecision rescales u to a token precision. A lower precision floors.
func (u UnifiedNum) ToPrecision(precision uint8) BigNum {
	inner := u.ToBigNum()
	switch {
	case precision == UnifiedPrecision:
		return inner
	case precision < UnifiedPrecision:
		// divisor is never zero
		res, _ := inner.Div(Pow10(UnifiedPrecision - precision))
		return res
	default:
		return inner.Mul(Pow10(precision - UnifiedPrecision))
	}
}

// FromPrecision rescales a token amount of the given precision into a
// UnifiedNum. A precision higher than UnifiedPrecision floors. ErrOverflow is
// returned when the result exceeds 64 bits.
func FromPrecision(amount BigNum, precision uint8) (UnifiedNum, error) {
	var scaled BigNum
	switch {
	case precision == UnifiedPrecision:
		scaled = amount
	case precision < UnifiedPrecision:
		scaled = amount.Mul(Pow10(UnifiedPrecision - precision))
	default:
		scaled, _ = amount.Div(Pow10(precision - UnifiedPrecision))
	}
	v, ok := scaled.Uint64()
	if !ok {
		return 0, ErrOverflow
	}
	return UnifiedNum(v), nil
}

// ToFloatString renders the amount with all 8 decimals, e.g. "1.50000000".
func (u UnifiedNum) ToFloatString() string {
	whole := uint64(u) / Multiplier
	frac := uint64(u) % Multiplier
	return fmt.Sprintf("%d.%0*d", whole, int(UnifiedPrecision), frac)
}

// String returns the raw integer value.
func (u UnifiedNum) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

// ParseUnified parses the raw integer representation produced by String.
func ParseUnified(s string) (UnifiedNum, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid UnifiedNum %q: %w", s, err)
	}
	return UnifiedNum(v), nil
}

// MarshalJSON encodes the raw value as a decimal string.
func (u UnifiedNum) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a decimal string.
func (u *UnifiedNum) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseUnified(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
