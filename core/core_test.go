package core

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

var (
	earnerA  = common.HexToAddress("0xE882ebF439207a70dDcCb39E13CA8506c9F45fD9")
	earnerB  = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	spender  = common.HexToAddress("0xDd589B43793934EF6Ad266067A0d1D4896b0dff0")
	spender2 = common.HexToAddress("0x0000000000000000000000000000000000005502")

	leaderID   = validatorid.MustFromString("0x80690751969B234697e9059e04ed72195c3507fa")
	followerID = validatorid.MustFromString("0xf3f583AEC5f7C030722Fe992A5688557e1B86ef7")
)

func aggregate(spender common.Address, created inter.Timestamp, payouts map[common.Address]num.UnifiedNum) inter.EventAggregate {
	return inter.EventAggregate{
		Spender: spender,
		Created: created,
		Events: map[string]inter.AggregateEvents{
			"IMPRESSION": {EventPayouts: payouts},
		},
	}
}

// TestMergeCapped covers the truncation of payouts at the deposit.
func TestMergeCapped(t *testing.T) {
	require := require.New(t)

	prev := balances.NewUnchecked()
	require.NoError(prev.AddEarner(earnerB, 9_900))
	require.NoError(prev.AddSpender(spender, 9_900))

	deposits := Deposits{spender: 10_000}
	aggrs := []inter.EventAggregate{
		aggregate(spender, 2000, map[common.Address]num.UnifiedNum{earnerA: 500}),
	}

	res, err := MergeAggregates(prev, 1000, deposits, aggrs)
	require.NoError(err)
	require.Equal(num.UnifiedNum(100), res.Balances.Earners().Get(earnerA))
	require.Equal(num.UnifiedNum(10_000), res.Balances.Spenders().Get(spender))
	require.Equal(num.UnifiedNum(400), res.Capped)
	require.Equal(inter.Timestamp(2000), res.Watermark)
	require.Equal(1, res.Merged)

	// the previous balances are untouched
	require.Equal(num.UnifiedNum(0), prev.Earners().Get(earnerA))

	// nothing remains for a later payout
	res2, err := MergeAggregates(res.Balances, res.Watermark, deposits, []inter.EventAggregate{
		aggregate(spender, 3000, map[common.Address]num.UnifiedNum{earnerB: 1}),
	})
	require.NoError(err)
	require.Equal(num.UnifiedNum(9_900), res2.Balances.Earners().Get(earnerB))

	checked, err := res2.Balances.Check()
	require.NoError(err)
	total, _, err := checked.Sum()
	require.NoError(err)
	require.Equal(num.UnifiedNum(10_000), total)
}

// TestMergeCappedSaturates: dropped payouts beyond the UnifiedNum range do
// not wrap around.
func TestMergeCappedSaturates(t *testing.T) {
	require := require.New(t)

	aggrs := []inter.EventAggregate{
		aggregate(spender, 2000, map[common.Address]num.UnifiedNum{earnerA: math.MaxUint64, earnerB: math.MaxUint64}),
	}
	res, err := MergeAggregates(balances.NewUnchecked(), 1000, Deposits{spender: 0}, aggrs)
	require.NoError(err)
	require.Equal(num.UnifiedNum(math.MaxUint64), res.Capped)
	require.Empty(res.Balances.Earners())
}

// TestMergeWatermark verifies that aggregates are applied once and in order.
func TestMergeWatermark(t *testing.T) {
	require := require.New(t)

	deposits := Deposits{spender: 1_000}
	aggrs := []inter.EventAggregate{
		aggregate(spender, 3000, map[common.Address]num.UnifiedNum{earnerA: 10}),
		aggregate(spender, 1000, map[common.Address]num.UnifiedNum{earnerA: 100}),
		aggregate(spender, 2000, map[common.Address]num.UnifiedNum{earnerB: 20}),
	}

	// Case 1: aggregates at or before the watermark are skipped
	res, err := MergeAggregates(balances.NewUnchecked(), 1000, deposits, aggrs)
	require.NoError(err)
	require.Equal(2, res.Merged)
	require.Equal(num.UnifiedNum(10), res.Balances.Earners().Get(earnerA))
	require.Equal(num.UnifiedNum(20), res.Balances.Earners().Get(earnerB))
	require.Equal(inter.Timestamp(3000), res.Watermark)

	// Case 2: nothing newer keeps the watermark
	res, err = MergeAggregates(res.Balances, res.Watermark, deposits, aggrs)
	require.NoError(err)
	require.Zero(res.Merged)
	require.Equal(inter.Timestamp(3000), res.Watermark)
	require.Equal(num.UnifiedNum(30), res.Balances.Spenders().Get(spender))
}

// TestMergeOrderIsDeterministic caps the same payouts identically whatever
// order they arrive in.
func TestMergeOrderIsDeterministic(t *testing.T) {
	require := require.New(t)

	deposits := Deposits{spender: 50}
	first := aggregate(spender, 1000, map[common.Address]num.UnifiedNum{earnerA: 40, earnerB: 40})
	second := aggregate(spender, 2000, map[common.Address]num.UnifiedNum{earnerA: 5})

	a, err := MergeAggregates(balances.NewUnchecked(), 0, deposits, []inter.EventAggregate{first, second})
	require.NoError(err)
	b, err := MergeAggregates(balances.NewUnchecked(), 0, deposits, []inter.EventAggregate{second, first})
	require.NoError(err)

	require.Equal(a.Balances.Earners(), b.Balances.Earners())
	// earnerB sorts first by address bytes
	require.Equal(num.UnifiedNum(40), a.Balances.Earners().Get(earnerB))
	require.Equal(num.UnifiedNum(10), a.Balances.Earners().Get(earnerA))
}

// TestMergePerSpender caps each spender at its own deposit.
func TestMergePerSpender(t *testing.T) {
	require := require.New(t)

	deposits := Deposits{spender: 100, spender2: 1_000}
	res, err := MergeAggregates(balances.NewUnchecked(), 0, deposits, []inter.EventAggregate{
		aggregate(spender, 1000, map[common.Address]num.UnifiedNum{earnerA: 300}),
		aggregate(spender2, 1001, map[common.Address]num.UnifiedNum{earnerA: 300}),
		aggregate(common.HexToAddress("0x01"), 1002, map[common.Address]num.UnifiedNum{earnerA: 300}),
	})
	require.NoError(err)
	require.Equal(num.UnifiedNum(100), res.Balances.Spenders().Get(spender))
	require.Equal(num.UnifiedNum(300), res.Balances.Spenders().Get(spender2))
	require.Equal(num.UnifiedNum(400), res.Balances.Earners().Get(earnerA))
}

// TestMergeInvariant rejects balances that already exceed the deposit.
func TestMergeInvariant(t *testing.T) {
	prev := balances.NewUnchecked()
	require.NoError(t, prev.AddEarner(earnerA, 200))
	require.NoError(t, prev.AddSpender(spender, 200))

	_, err := MergeAggregates(prev, 0, Deposits{spender: 100}, nil)
	var invariant *InvariantError
	require.True(t, errors.As(err, &invariant))
}

func feeValidators(leaderFee, followerFee num.UnifiedNum) []inter.ValidatorDesc {
	feeAddr := common.HexToAddress("0x000000000000000000000000000000000000fee1")
	return []inter.ValidatorDesc{
		{ID: leaderID, URL: "http://leader", Fee: leaderFee},
		{ID: followerID, URL: "http://follower", Fee: followerFee, FeeAddr: &feeAddr},
	}
}

// TestApplyFees checks the promille split and value conservation.
func TestApplyFees(t *testing.T) {
	require := require.New(t)

	pre := balances.NewChecked()
	require.NoError(pre.Spend(spender, earnerA, 100_000_000))

	validators := feeValidators(50, 50)
	fee, err := ValidatorFee(100_000_000, validators[0])
	require.NoError(err)
	require.Equal(num.UnifiedNum(5_000_000), fee)

	post, err := ApplyFees(pre, validators)
	require.NoError(err)
	require.Equal(num.UnifiedNum(90_000_000), post.Earners().Get(earnerA))
	require.Equal(num.UnifiedNum(5_000_000), post.Earners().Get(leaderID.Address()))
	require.Equal(num.UnifiedNum(5_000_000), post.Earners().Get(validators[1].FeeAddress()))
	require.Equal(pre.Spenders(), post.Spenders())

	preSum, _, err := pre.Sum()
	require.NoError(err)
	postSum, postSpent, err := post.Sum()
	require.NoError(err)
	require.Equal(preSum, postSum)
	require.Equal(postSum, postSpent)

	// pre is left as it was
	require.Equal(num.UnifiedNum(100_000_000), pre.Earners().Get(earnerA))
}

// TestApplyFeesFlooring credits each validator the floor of every payout.
func TestApplyFeesFlooring(t *testing.T) {
	require := require.New(t)

	pre := balances.NewChecked()
	require.NoError(pre.Spend(spender, earnerA, 999))
	require.NoError(pre.Spend(spender, earnerB, 19))

	post, err := ApplyFees(pre, feeValidators(50, 0))
	require.NoError(err)
	// floor(999*50/1000) + floor(19*50/1000) = 49 + 0
	require.Equal(num.UnifiedNum(49), post.Earners().Get(leaderID.Address()))
	require.Equal(num.UnifiedNum(950), post.Earners().Get(earnerA))
	require.Equal(num.UnifiedNum(19), post.Earners().Get(earnerB))
}

// TestApplyFeesErrors covers overflowing and excessive fees.
func TestApplyFeesErrors(t *testing.T) {
	require := require.New(t)

	pre := balances.NewChecked()
	require.NoError(pre.Spend(spender, earnerA, num.UnifiedNum(1<<62)))

	_, err := ApplyFees(pre, feeValidators(50, 50))
	var feeErr *FeeError
	require.True(errors.As(err, &feeErr))

	small := balances.NewChecked()
	require.NoError(small.Spend(spender, earnerA, 100))
	_, err = ApplyFees(small, feeValidators(600, 600))
	require.True(errors.As(err, &feeErr))
}

// TestHealth scores under-payment relative to the deposit.
func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		ours    balances.Map
		leader  balances.Map
		deposit num.UnifiedNum
		want    uint64
	}{
		{"identical", balances.Map{earnerA: 150}, balances.Map{earnerA: 150}, 10_000, 1000},
		{"leader pays more", balances.Map{earnerA: 150}, balances.Map{earnerA: 300}, 10_000, 1000},
		{"leader misses 1%", balances.Map{earnerA: 150}, balances.Map{earnerA: 50}, 10_000, 990},
		{"leader misses earner", balances.Map{earnerA: 100, earnerB: 600}, balances.Map{earnerA: 100}, 1_000, 400},
		{"leader empty", balances.Map{earnerA: 2_000}, balances.Map{}, 1_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Health(tt.ours, tt.leader, tt.deposit)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestIsValidTransition checks monotonicity and the deposit bound.
func TestIsValidTransition(t *testing.T) {
	require := require.New(t)

	prev := balances.NewChecked()
	require.NoError(prev.Spend(spender, earnerA, 100))

	next := prev.Clone()
	require.NoError(next.Spend(spender, earnerB, 50))
	require.True(IsValidTransition(prev, next, 1_000))
	require.True(IsValidTransition(prev, prev, 1_000))
	require.False(IsValidTransition(prev, next, 120))
	require.False(IsValidTransition(next, prev, 1_000))

	// same total but an earner decreased
	moved := balances.NewChecked()
	require.NoError(moved.Spend(spender, earnerB, 100))
	require.False(IsValidTransition(prev, moved, 1_000))
}

// TestExactApprovePipeline runs merge and fees twice from the same input and
// expects identical balances.
func TestExactApprovePipeline(t *testing.T) {
	require := require.New(t)

	deposits := Deposits{spender: 10_000}
	aggrs := []inter.EventAggregate{
		aggregate(spender, 1000, map[common.Address]num.UnifiedNum{earnerA: 100}),
		aggregate(spender, 2000, map[common.Address]num.UnifiedNum{earnerA: 50}),
	}
	run := func() balances.Checked {
		res, err := MergeAggregates(balances.NewUnchecked(), 0, deposits, aggrs)
		require.NoError(err)
		pre, err := res.Balances.Check()
		require.NoError(err)
		post, err := ApplyFees(pre, feeValidators(0, 0))
		require.NoError(err)
		return post
	}
	leader, follower := run(), run()
	require.Equal(balances.Map{earnerA: 150}, leader.Earners())
	require.Equal(leader.Earners(), follower.Earners())
	require.Equal(leader.Spenders(), follower.Spenders())
}
