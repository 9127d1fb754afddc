package worker

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/core"
	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// FollowerTick answers the leader's latest state. The leader's balances
// must balance and stay within every spender's deposit, or the tick fails
// with a *ValidationError. Otherwise we recompute the balances from our own
// accounting and reply with an ApproveState or a RejectState.
func (w *Worker) FollowerTick(ctx context.Context, spec inter.ChannelSpec, token inter.TokenInfo) (FollowerResult, error) {
	id := spec.Channel.ID()
	whoami := w.adapter.Whoami()
	leader := spec.Channel.Leader
	log := w.log.WithField("channel", id.Hex())

	spenders, err := w.sentry.GetAllSpenders(ctx, id)
	if err != nil {
		return FollowerResult{}, err
	}
	deps, err := deposits(spenders, token)
	if err != nil {
		return FollowerResult{}, err
	}

	leaderAcc, err := w.sentry.GetLatestAccounting(ctx, id, leader)
	if err != nil {
		return FollowerResult{}, err
	}
	if leaderAcc == nil || leaderAcc.StateRoot == (common.Hash{}) {
		return FollowerResult{Status: NoNewState}, nil
	}

	answered, err := w.sentry.GetLatestMessage(ctx, id, whoami, inter.TypeApproveState, inter.TypeRejectState)
	if err != nil {
		return FollowerResult{}, err
	}
	switch m := answered.(type) {
	case inter.ApproveState:
		if m.StateRoot == leaderAcc.StateRoot {
			return FollowerResult{Status: AlreadyResponded}, nil
		}
	case inter.RejectState:
		if m.StateRoot == leaderAcc.StateRoot {
			return FollowerResult{Status: AlreadyResponded}, nil
		}
	}

	if err := validateLeaderBalances(leaderAcc.Balances, deps); err != nil {
		return FollowerResult{}, err
	}

	// our own view, persisted to our own sentry only
	ourPrev, err := w.sentry.GetLatestAccounting(ctx, id, whoami)
	if err != nil {
		return FollowerResult{}, err
	}
	ours, merged, err := w.nextAccounting(ctx, spec, ourPrev, deps)
	if err != nil {
		return FollowerResult{}, err
	}
	if merged.Merged > 0 {
		self, _ := spec.Find(whoami)
		persisted := w.propagator.Propagate(ctx, id, []inter.ValidatorDesc{self}, ours)
		if err := persisted.Err(); err != nil {
			return FollowerResult{}, fmt.Errorf("persist own accounting: %w", err)
		}
	}

	depositTotal, err := deps.Total()
	if err != nil {
		return FollowerResult{}, err
	}
	reject := func(reason string) inter.RejectState {
		b := leaderAcc.Balances
		return inter.RejectState{
			Reason:    reason,
			StateRoot: leaderAcc.StateRoot,
			Signature: leaderAcc.Signature,
			Balances:  &b,
			Timestamp: w.now(),
		}
	}

	var (
		res FollowerResult
		msg inter.Message
	)
	switch d, err := w.judge(ctx, spec, token, leaderAcc, ours, depositTotal); {
	case err != nil:
		return FollowerResult{}, err
	case d.reason != "":
		rs := reject(d.reason)
		res.Status, res.Reject, res.Health = Rejected, &rs, d.health
		msg = rs
	default:
		sig, err := w.adapter.Sign(leaderAcc.StateRoot)
		if err != nil {
			return FollowerResult{}, err
		}
		as := inter.ApproveState{StateRoot: leaderAcc.StateRoot, Signature: sig, IsHealthy: d.healthy}
		res.Status, res.Approve, res.Health = Approved, &as, d.health
		msg = as
	}

	res.Propagation = w.propagator.Propagate(ctx, id, spec.Validators, msg)
	w.metrics.observePropagation(res.Propagation)
	if res.Propagation.AllFailed() {
		return res, res.Propagation.Err()
	}
	log.WithField("outcome", res.Status.String()).WithField("health", res.Health).WithField("stateRoot", leaderAcc.StateRoot.Hex()).Info("Answered NewState")
	return res, nil
}

type decision struct {
	reason  string
	healthy bool
	health  uint64
}

// judge decides between approving and rejecting. The checks run cheapest
// first: signature, root, transition from the last approved state, health.
func (w *Worker) judge(ctx context.Context, spec inter.ChannelSpec, token inter.TokenInfo, leaderAcc *inter.Accounting, ours inter.Accounting, deposit num.UnifiedNum) (decision, error) {
	id := spec.Channel.ID()

	ok, err := w.adapter.Verify(spec.Channel.Leader, leaderAcc.StateRoot, leaderAcc.Signature)
	if err != nil || !ok {
		return decision{reason: inter.ReasonInvalidSignature}, nil
	}

	root, err := inter.StateRoot(id, leaderAcc.Balances, token.Precision)
	if err != nil {
		return decision{}, fmt.Errorf("leader state root: %w", err)
	}
	if root != leaderAcc.StateRoot {
		return decision{reason: inter.ReasonInvalidRootHash}, nil
	}

	lastApproved, err := w.sentry.GetLastApproved(ctx, id)
	if err != nil {
		return decision{}, err
	}
	if lastApproved != nil && lastApproved.NewState != nil &&
		!core.IsValidTransition(lastApproved.NewState.Balances, leaderAcc.Balances, deposit) {
		return decision{reason: inter.ReasonInvalidTransition}, nil
	}

	ourRoot, err := inter.StateRoot(id, ours.Balances, token.Precision)
	if err != nil {
		return decision{}, fmt.Errorf("own state root: %w", err)
	}
	if ourRoot == leaderAcc.StateRoot {
		return decision{healthy: true, health: core.MaxHealth}, nil
	}

	health, err := core.Health(ours.Balances.Earners(), leaderAcc.Balances.Earners(), deposit)
	if err != nil {
		return decision{}, err
	}
	if health < w.cfg.HealthThresholdPromilles {
		return decision{reason: inter.ReasonTooLowHealth, health: health}, nil
	}
	return decision{healthy: false, health: health}, nil
}

// validateLeaderBalances checks what a leader state must satisfy before we
// consider it: balanced sides and no spender above its deposit.
func validateLeaderBalances(b balances.Balances, deps core.Deposits) error {
	earners, spenders, err := b.Sum()
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if earners != spenders {
		return &ValidationError{Reason: fmt.Sprintf("earners %s != spenders %s", earners, spenders)}
	}
	for addr, spent := range b.Spenders() {
		if spent > deps[addr] {
			return &ValidationError{Reason: fmt.Sprintf("spender %s spent %s over its deposit %s", addr.Hex(), spent, deps[addr])}
		}
	}
	return nil
}
