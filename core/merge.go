// Package core holds the pure accounting rules of a channel: folding event
// aggregates into balances, distributing validator fees and judging the
// leader's states from the follower's point of view. Nothing here performs
// I/O; every function is deterministic in its inputs.
package core

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// InvariantError is a violated accounting rule that can only come from a bug
// or corrupted state, e.g. balances that already exceed the deposit. It
// aborts the tick but never the worker.
type InvariantError struct {
	Rule string
}

func (e *InvariantError) Error() string {
	return "accounting invariant violated: " + e.Rule
}

// Deposits maps every spender of a channel to its total deposit, in unified
// precision.
type Deposits map[common.Address]num.UnifiedNum

// Total sums all deposits.
func (d Deposits) Total() (num.UnifiedNum, error) {
	return balances.Map(d).Sum()
}

// MergeResult is the outcome of MergeAggregates.
type MergeResult struct {
	Balances  balances.Unchecked
	Watermark inter.Timestamp
	// Merged counts the aggregates that were newer than the watermark.
	Merged int
	// Capped is the payout amount dropped because the deposit ran out,
	// saturating at the largest UnifiedNum.
	Capped num.UnifiedNum
}

// MergeAggregates folds aggregates newer than watermark into prev.
//
// Every payout credits its earner and debits the aggregate's spender by
// min(payout, remaining channel deposit, remaining spender deposit). Payouts
// past the deposit are truncated, never rejected, so the resulting balances
// never exceed the deposit. Aggregates are folded oldest first, event types
// in lexical order and earners in byte order.
//
// prev is not modified. The returned watermark is the newest merged
// aggregate's creation time, or watermark when nothing was merged.
func MergeAggregates(prev balances.Unchecked, watermark inter.Timestamp, deposits Deposits, aggregates []inter.EventAggregate) (MergeResult, error) {
	deposit, err := deposits.Total()
	if err != nil {
		return MergeResult{}, fmt.Errorf("deposit total: %w", err)
	}
	total, err := prev.Earners().Sum()
	if err != nil {
		return MergeResult{}, &balances.OverflowError{Side: balances.Earner, Err: err}
	}
	remaining, err := deposit.CheckedSub(total)
	if err != nil {
		return MergeResult{}, &InvariantError{Rule: fmt.Sprintf("balances total %s exceeds deposit %s", total, deposit)}
	}

	ordered := make([]inter.EventAggregate, 0, len(aggregates))
	for _, aggr := range aggregates {
		if aggr.Created.After(watermark) {
			ordered = append(ordered, aggr)
		}
	}
	inter.SortAggregates(ordered)

	res := MergeResult{Balances: prev.Clone(), Watermark: watermark, Merged: len(ordered)}
	for _, aggr := range ordered {
		spent := res.Balances.Spenders().Get(aggr.Spender)
		spenderLeft, err := deposits[aggr.Spender].CheckedSub(spent)
		if err != nil {
			return MergeResult{}, &InvariantError{Rule: fmt.Sprintf("spender %s spent %s over its deposit", aggr.Spender.Hex(), spent)}
		}

		for _, evType := range aggr.EventTypes() {
			payouts := balances.Map(aggr.Events[evType].EventPayouts)
			for _, earner := range payouts.Addresses() {
				payout := payouts[earner]
				toAdd := payout.Min(remaining).Min(spenderLeft)
				if capped, err := res.Capped.CheckedAdd(payout - toAdd); err == nil {
					res.Capped = capped
				} else {
					res.Capped = math.MaxUint64
				}
				if toAdd == 0 {
					continue
				}

				if err := res.Balances.AddEarner(earner, toAdd); err != nil {
					return MergeResult{}, err
				}
				if err := res.Balances.AddSpender(aggr.Spender, toAdd); err != nil {
					return MergeResult{}, err
				}
				// toAdd never exceeds either remaining amount
				remaining -= toAdd
				spenderLeft -= toAdd
			}
		}
		if aggr.Created.After(res.Watermark) {
			res.Watermark = aggr.Created
		}
	}
	return res, nil
}
