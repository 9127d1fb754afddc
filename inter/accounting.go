package inter

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// AggregateEvents is one event-type bucket of an EventAggregate.
type AggregateEvents struct {
	// EventCounts counts events per earner.
	EventCounts map[common.Address]num.BigNum `json:"eventCounts,omitempty"`
	// EventPayouts is the amount owed to each earner.
	EventPayouts map[common.Address]num.UnifiedNum `json:"eventPayouts"`
}

// EventAggregate is a batch of ad-delivery events funded by one spender,
// produced by an external aggregator and consumed once by the merge.
type EventAggregate struct {
	ChannelID ChannelID                  `json:"channelId"`
	Spender   common.Address             `json:"spender"`
	Created   Timestamp                  `json:"created"`
	Events    map[string]AggregateEvents `json:"events"`
}

// EventTypes returns the bucket names sorted lexically.
func (a EventAggregate) EventTypes() []string {
	out := make([]string, 0, len(a.Events))
	for k := range a.Events {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SortAggregates orders aggregates by creation time, oldest first.
func SortAggregates(aggrs []EventAggregate) {
	sort.SliceStable(aggrs, func(i, j int) bool {
		return aggrs[i].Created < aggrs[j].Created
	})
}

// Accounting is a validator's tick cursor for one channel: the merge
// watermark with the pre-fee and post-fee balances at that watermark.
type Accounting struct {
	// LastEventAggregate is the watermark: aggregates created at or before it
	// are already folded into the balances.
	LastEventAggregate Timestamp          `json:"lastEvAggr"`
	BalancesBeforeFees balances.Unchecked `json:"balancesBeforeFees"`
	Balances           balances.Checked   `json:"balances"`
	// StateRoot and Signature are set when the accounting was signed.
	StateRoot common.Hash `json:"stateRoot"`
	Signature string      `json:"signature"`
}

// EmptyAccounting is the cursor of a channel that never ticked.
func EmptyAccounting() Accounting {
	return Accounting{
		BalancesBeforeFees: balances.NewUnchecked(),
		Balances:           balances.NewChecked(),
	}
}

// Deposit is the on-chain state of one depositor on a channel, in the token's
// own precision.
type Deposit struct {
	Total          num.BigNum `json:"total"`
	StillOnCreate2 num.BigNum `json:"stillOnCreate2"`
}

// Spendable pairs a spender with its deposit on a channel.
type Spendable struct {
	Spender common.Address `json:"spender"`
	Channel ChannelID      `json:"channel"`
	Deposit Deposit        `json:"deposit"`
}

// LastApproved is the most recent NewState the follower approved, with the
// approval itself. Either may be nil.
type LastApproved struct {
	NewState     *NewState     `json:"newState,omitempty"`
	ApproveState *ApproveState `json:"approveState,omitempty"`
}
