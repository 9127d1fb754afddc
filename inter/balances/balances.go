// Package balances holds per-address earner and spender totals of a channel.
//
// Two concrete types share the read-only Balances interface:
//
//   - Unchecked carries no guarantee. It is what merging and decoding
//     produce.
//   - Checked guarantees sum(earners) == sum(spenders). It can only be
//     obtained through Unchecked.Check, and it is the only type fee
//     application and state-root hashing accept.
//
// Spend exists on Checked only, and keeps the invariant by construction.
package balances

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter/num"
)

// Side names one half of the balances.
type Side string

const (
	Earner  Side = "earner"
	Spender Side = "spender"
)

// Map maps an address to a non-negative amount.
type Map map[common.Address]num.UnifiedNum

// Get returns the amount for addr, zero when absent.
func (m Map) Get(addr common.Address) num.UnifiedNum {
	return m[addr]
}

// Add increments addr by amount, creating the entry at zero when absent.
func (m Map) Add(addr common.Address, amount num.UnifiedNum) error {
	next, err := m[addr].CheckedAdd(amount)
	if err != nil {
		return err
	}
	m[addr] = next
	return nil
}

// Sum adds all amounts, failing on overflow.
func (m Map) Sum() (num.UnifiedNum, error) {
	var total num.UnifiedNum
	for _, v := range m {
		next, err := total.CheckedAdd(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Addresses returns the keys sorted by their bytes.
func (m Map) Addresses() []common.Address {
	out := make([]common.Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}

// Balances is the read-only view shared by Unchecked and Checked.
type Balances interface {
	Earners() Map
	Spenders() Map
	// Sum returns the totals of both sides.
	Sum() (earners, spenders num.UnifiedNum, err error)
}

// OverflowError reports which side overflowed.
type OverflowError struct {
	Side Side
	Err  error
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s overflow: %v", e.Side, e.Err)
}

func (e *OverflowError) Unwrap() error { return e.Err }

// MismatchError is returned by Check when the two sums differ.
type MismatchError struct {
	Earners  num.UnifiedNum
	Spenders num.UnifiedNum
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("payout mismatch: earned %s, spent %s", e.Earners, e.Spenders)
}

type sides struct {
	earners  Map
	spenders Map
}

func newSides() sides {
	return sides{earners: Map{}, spenders: Map{}}
}

func (s sides) Earners() Map  { return s.earners }
func (s sides) Spenders() Map { return s.spenders }

func (s sides) Sum() (num.UnifiedNum, num.UnifiedNum, error) {
	earned, err := s.earners.Sum()
	if err != nil {
		return 0, 0, &OverflowError{Side: Earner, Err: err}
	}
	spent, err := s.spenders.Sum()
	if err != nil {
		return 0, 0, &OverflowError{Side: Spender, Err: err}
	}
	return earned, spent, nil
}

func (s sides) clone() sides {
	return sides{earners: s.earners.Clone(), spenders: s.spenders.Clone()}
}

// Unchecked balances have no invariant.
type Unchecked struct {
	sides
}

// NewUnchecked returns empty balances.
func NewUnchecked() Unchecked {
	return Unchecked{sides: newSides()}
}

// FromMaps builds unchecked balances from copies of the given maps.
func FromMaps(earners, spenders Map) Unchecked {
	b := NewUnchecked()
	for k, v := range earners {
		b.earners[k] = v
	}
	for k, v := range spenders {
		b.spenders[k] = v
	}
	return b
}

// AddEarner credits an earner.
func (b Unchecked) AddEarner(addr common.Address, amount num.UnifiedNum) error {
	if err := b.earners.Add(addr, amount); err != nil {
		return &OverflowError{Side: Earner, Err: err}
	}
	return nil
}

// AddSpender debits a spender.
func (b Unchecked) AddSpender(addr common.Address, amount num.UnifiedNum) error {
	if err := b.spenders.Add(addr, amount); err != nil {
		return &OverflowError{Side: Spender, Err: err}
	}
	return nil
}

// Clone returns an independent copy.
func (b Unchecked) Clone() Unchecked {
	return Unchecked{sides: b.sides.clone()}
}

// Check verifies sum(earners) == sum(spenders) and returns a Checked copy.
func (b Unchecked) Check() (Checked, error) {
	if b.earners == nil || b.spenders == nil {
		b = FromMaps(b.earners, b.spenders)
	}
	earned, spent, err := b.Sum()
	if err != nil {
		return Checked{}, err
	}
	if earned != spent {
		return Checked{}, &MismatchError{Earners: earned, Spenders: spent}
	}
	return Checked{sides: b.sides.clone()}, nil
}

// Checked balances satisfy sum(earners) == sum(spenders).
type Checked struct {
	sides
}

// NewChecked returns empty balances, which trivially satisfy the invariant.
func NewChecked() Checked {
	return Checked{sides: newSides()}
}

// Spend moves amount from spender to earner by incrementing both sides.
// On overflow the balances are left untouched.
func (b Checked) Spend(spender, earner common.Address, amount num.UnifiedNum) error {
	spent, err := b.spenders.Get(spender).CheckedAdd(amount)
	if err != nil {
		return &OverflowError{Side: Spender, Err: err}
	}
	earned, err := b.earners.Get(earner).CheckedAdd(amount)
	if err != nil {
		return &OverflowError{Side: Earner, Err: err}
	}
	b.spenders[spender] = spent
	b.earners[earner] = earned
	return nil
}

// Erase drops the guarantee so the balances can be merged into again.
func (b Checked) Erase() Unchecked {
	return Unchecked{sides: b.sides.clone()}
}

// Clone returns an independent copy.
func (b Checked) Clone() Checked {
	return Checked{sides: b.sides.clone()}
}

type wire struct {
	Earners  Map `json:"earners"`
	Spenders Map `json:"spenders"`
}

func (s sides) wire() wire {
	w := wire{Earners: s.earners, Spenders: s.spenders}
	if w.Earners == nil {
		w.Earners = Map{}
	}
	if w.Spenders == nil {
		w.Spenders = Map{}
	}
	return w
}

// MarshalJSON implements json.Marshaler.
func (b Unchecked) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Unchecked) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = FromMaps(w.Earners, w.Spenders)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b Checked) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.wire())
}

// UnmarshalJSON decodes and re-validates the invariant.
func (b *Checked) UnmarshalJSON(data []byte) error {
	var u Unchecked
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	checked, err := u.Check()
	if err != nil {
		return err
	}
	*b = checked
	return nil
}
