package worker

import (
	"fmt"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/role"
	"github.com/rony4d/go-adex-validator/sentry"
)

// LeaderStatus is how a leader tick ended.
type LeaderStatus uint8

const (
	// NoNewEventAggregate: nothing newer than the watermark.
	NoNewEventAggregate LeaderStatus = iota
	// EmptyBalances: the merged balances have no earner or no spender.
	EmptyBalances
	// Sent: a NewState was signed and propagated to at least one validator.
	Sent
)

func (s LeaderStatus) String() string {
	switch s {
	case NoNewEventAggregate:
		return "no_new_event_aggregate"
	case EmptyBalances:
		return "empty_balances"
	case Sent:
		return "sent"
	default:
		return "unknown"
	}
}

// LeaderResult is the outcome of a leader tick.
type LeaderResult struct {
	Status      LeaderStatus
	Accounting  *inter.Accounting
	NewState    *inter.NewState
	Propagation sentry.PropagationResult
}

// FollowerStatus is how a follower tick ended.
type FollowerStatus uint8

const (
	// NoNewState: the leader has not produced any state.
	NoNewState FollowerStatus = iota
	// AlreadyResponded: we approved or rejected the leader's latest root.
	AlreadyResponded
	// Approved: an ApproveState was propagated.
	Approved
	// Rejected: a RejectState was propagated.
	Rejected
)

func (s FollowerStatus) String() string {
	switch s {
	case NoNewState:
		return "no_new_state"
	case AlreadyResponded:
		return "already_responded"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FollowerResult is the outcome of a follower tick.
type FollowerResult struct {
	Status FollowerStatus
	// Health is only set when the leader's root differed from ours.
	Health      uint64
	Approve     *inter.ApproveState
	Reject      *inter.RejectState
	Propagation sentry.PropagationResult
}

// ChannelResult is the outcome of one channel in a round.
type ChannelResult struct {
	Channel   inter.ChannelID
	Role      role.Role
	Leader    *LeaderResult
	Follower  *FollowerResult
	Heartbeat *sentry.PropagationResult
	Err       error
}

// Outcome names the result for logs and metrics.
func (r ChannelResult) Outcome() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Leader != nil:
		return r.Leader.Status.String()
	case r.Follower != nil:
		return r.Follower.Status.String()
	default:
		return "none"
	}
}

// RoundReport collects the channel results of one round.
type RoundReport struct {
	Results []ChannelResult
}

// Failed returns the results with an error.
func (r RoundReport) Failed() []ChannelResult {
	var out []ChannelResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// ValidationError is a leader state the follower refuses to consider at
// all: it is not answered with a RejectState, the tick fails.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("leader state failed validation: %s", e.Reason)
}
