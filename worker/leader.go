package worker

import (
	"context"
	"fmt"

	"github.com/rony4d/go-adex-validator/inter"
)

// LeaderTick produces the next state of a channel we lead: it folds the
// new event aggregates into our latest accounting, applies the fees, signs
// the state root and propagates Accounting and NewState to every
// validator, ourselves included.
//
// A propagation that reaches at least one validator is Sent; the failed
// deliveries are in the result. When none is reached the error is a
// *sentry.PropagationError and nothing was persisted.
func (w *Worker) LeaderTick(ctx context.Context, spec inter.ChannelSpec, token inter.TokenInfo) (LeaderResult, error) {
	id := spec.Channel.ID()
	whoami := w.adapter.Whoami()

	prev, err := w.sentry.GetLatestAccounting(ctx, id, whoami)
	if err != nil {
		return LeaderResult{}, err
	}
	spenders, err := w.sentry.GetAllSpenders(ctx, id)
	if err != nil {
		return LeaderResult{}, err
	}
	deps, err := deposits(spenders, token)
	if err != nil {
		return LeaderResult{}, err
	}

	next, merged, err := w.nextAccounting(ctx, spec, prev, deps)
	if err != nil {
		return LeaderResult{}, err
	}
	if merged.Merged == 0 {
		return LeaderResult{Status: NoNewEventAggregate}, nil
	}
	if len(next.Balances.Earners()) == 0 || len(next.Balances.Spenders()) == 0 {
		return LeaderResult{Status: EmptyBalances}, nil
	}

	root, err := inter.StateRoot(id, next.Balances, token.Precision)
	if err != nil {
		return LeaderResult{}, fmt.Errorf("state root: %w", err)
	}
	last, watermark, err := w.journal.Latest(id)
	if err != nil {
		return LeaderResult{}, err
	}
	if last != nil && !next.LastEventAggregate.After(watermark) {
		w.log.WithField("channel", id.Hex()).
			WithField("watermark", watermark.Millis()).
			WithField("signedAt", last.SignedAt).
			Info("Re-signing journaled state")
	}
	if err := w.journal.Record(id, next.LastEventAggregate, root); err != nil {
		return LeaderResult{}, err
	}
	sig, err := w.adapter.Sign(root)
	if err != nil {
		return LeaderResult{}, err
	}
	next.StateRoot, next.Signature = root, sig

	total, err := deps.Total()
	if err != nil {
		return LeaderResult{}, err
	}
	earned, _, err := next.Balances.Sum()
	if err != nil {
		return LeaderResult{}, err
	}
	newState := inter.NewState{
		StateRoot: root,
		Signature: sig,
		Balances:  next.Balances,
		Exhausted: earned == total,
	}

	res := LeaderResult{Status: Sent, Accounting: &next, NewState: &newState}
	res.Propagation = w.propagator.Propagate(ctx, id, spec.Validators, next, newState)
	w.metrics.observePropagation(res.Propagation)
	if res.Propagation.AllFailed() {
		return res, res.Propagation.Err()
	}

	w.log.WithField("channel", id.Hex()).
		WithField("watermark", next.LastEventAggregate.Millis()).
		WithField("stateRoot", root.Hex()).
		WithField("merged", merged.Merged).
		Info("NewState sent")
	return res, nil
}
