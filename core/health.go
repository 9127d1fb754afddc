package core

import (
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// MaxHealth is the health of a leader whose balances fully cover ours.
const MaxHealth uint64 = 1000

// DefaultHealthThreshold is the promille below which a follower rejects.
const DefaultHealthThreshold uint64 = 950

// Health scores the leader's earners against ours in promilles of the
// deposit:
//
//	1000 - (sum(ours) - sum(min(ours[a], leader[a]))) * 1000 / deposit
//
// Only what the leader under-pays relative to us counts; paying some earner
// more is caught by the root comparison and the transition check instead.
// An empty deposit yields MaxHealth.
func Health(ours, leader balances.Map, deposit num.UnifiedNum) (uint64, error) {
	ourSum, err := ours.Sum()
	if err != nil {
		return 0, &balances.OverflowError{Side: balances.Earner, Err: err}
	}
	var covered num.UnifiedNum
	for addr, amount := range ours {
		next, err := covered.CheckedAdd(amount.Min(leader.Get(addr)))
		if err != nil {
			return 0, &balances.OverflowError{Side: balances.Earner, Err: err}
		}
		covered = next
	}
	if covered >= ourSum || deposit == 0 {
		return MaxHealth, nil
	}

	missing := (ourSum - covered).ToBigNum().Mul(num.NewBigNum(MaxHealth))
	penalty, err := missing.Div(deposit.ToBigNum())
	if err != nil {
		return 0, err
	}
	p, ok := penalty.Uint64()
	if !ok || p >= MaxHealth {
		return 0, nil
	}
	return MaxHealth - p, nil
}

// IsValidTransition reports whether next may follow prev: no balance on
// either side decreases and the earners stay within the deposit.
func IsValidTransition(prev, next balances.Checked, deposit num.UnifiedNum) bool {
	prevSum, _, err := prev.Sum()
	if err != nil {
		return false
	}
	nextSum, _, err := next.Sum()
	if err != nil {
		return false
	}
	if nextSum < prevSum || nextSum > deposit {
		return false
	}
	return neverDecreases(prev.Earners(), next.Earners()) &&
		neverDecreases(prev.Spenders(), next.Spenders())
}

func neverDecreases(prev, next balances.Map) bool {
	for addr, amount := range prev {
		if next.Get(addr) < amount {
			return false
		}
	}
	return true
}
