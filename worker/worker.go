// Package worker runs the validator: every round it lists the channels we
// validate and ticks each of them concurrently, as leader or follower,
// then sends a heartbeat when the last one is too old.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-adex-validator/adapter"
	"github.com/rony4d/go-adex-validator/config"
	"github.com/rony4d/go-adex-validator/core"
	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/inter/role"
	"github.com/rony4d/go-adex-validator/journal"
)

// Deps are the collaborators of a Worker.
type Deps struct {
	Adapter    adapter.Unlocked
	Sentry     Sentry
	Propagator Propagator
	// Journal defaults to an in-memory journal.
	Journal *journal.Journal
	// Metrics default to unregistered collectors.
	Metrics *Metrics
	Log     logrus.FieldLogger
}

// Worker ticks the channels of one validator identity.
type Worker struct {
	cfg        config.Config
	adapter    adapter.Unlocked
	sentry     Sentry
	propagator Propagator
	journal    *journal.Journal
	metrics    *Metrics
	log        logrus.FieldLogger

	now func() inter.Timestamp
}

// New returns a worker. cfg is copied.
func New(cfg config.Config, deps Deps) *Worker {
	if deps.Journal == nil {
		deps.Journal = journal.NewMemory()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Worker{
		cfg:        cfg.Copy(),
		adapter:    deps.Adapter,
		sentry:     deps.Sentry,
		propagator: deps.Propagator,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		log:        deps.Log.WithField("validator", deps.Adapter.Whoami().String()),
		now:        inter.Now,
	}
}

// Run loops rounds until ctx is cancelled, sleeping WaitTime between them.
// Rounds never overlap.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if _, err := w.RunRound(ctx); err != nil {
			w.log.WithError(err).Error("Round failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.WaitTime.Std()):
		}
	}
}

// RunRound lists the channels once and ticks all of them concurrently,
// each bounded by ValidatorTickTimeout. Channel failures are reported in
// the RoundReport; only a failed channel listing fails the round.
func (w *Worker) RunRound(ctx context.Context) (RoundReport, error) {
	listCtx, cancel := context.WithTimeout(ctx, w.cfg.ListTimeout.Std())
	specs, err := w.sentry.ListChannels(listCtx)
	cancel()
	if err != nil {
		return RoundReport{}, fmt.Errorf("list channels: %w", err)
	}

	report := RoundReport{Results: make([]ChannelResult, len(specs))}
	var wg sync.WaitGroup
	for i, spec := range specs {
		i, spec := i, spec
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickCtx, cancel := context.WithTimeout(ctx, w.cfg.ValidatorTickTimeout.Std())
			defer cancel()
			report.Results[i] = w.ChannelTick(tickCtx, spec)
		}()
	}
	wg.Wait()

	for _, res := range report.Failed() {
		w.logFailure(res)
	}
	w.metrics.Rounds.Inc()
	w.metrics.Channels.Set(float64(len(specs)))
	w.log.WithField("failed", len(report.Failed())).Infof("Processed %d channels", len(specs))
	if len(specs) >= w.cfg.MaxChannels {
		w.log.WithField("max", w.cfg.MaxChannels).Warn("Channel limit reached")
	}
	return report, nil
}

func (w *Worker) logFailure(res ChannelResult) {
	entry := w.log.WithField("channel", res.Channel.Hex()).WithField("role", res.Role.String()).WithError(res.Err)
	var invariant *core.InvariantError
	if errors.As(res.Err, &invariant) {
		w.metrics.InvariantViolations.Inc()
		entry.WithField("invariant", true).Error("Channel tick aborted")
		return
	}
	entry.Warn("Channel tick failed")
}

// ChannelTick resolves our role in spec, runs the leader or follower tick
// and then the heartbeat. A panic is returned as the result's error.
func (w *Worker) ChannelTick(ctx context.Context, spec inter.ChannelSpec) (res ChannelResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("channel tick panicked: %v", r)
		}
		w.metrics.Ticks.WithLabelValues(res.Role.String(), res.Outcome()).Inc()
		w.metrics.TickDuration.WithLabelValues(res.Role.String()).Observe(time.Since(start).Seconds())
	}()
	res.Channel = spec.Channel.ID()

	our, err := role.Of(spec, w.adapter.Whoami())
	if err != nil {
		res.Err = err
		return res
	}
	res.Role = our.Role
	if !w.cfg.AllowsChannel(spec) {
		res.Err = fmt.Errorf("channel %s has validators outside the whitelist", res.Channel.Hex())
		return res
	}
	token, ok := w.cfg.Chain.FindToken(spec.Channel.Token)
	if !ok {
		res.Err = fmt.Errorf("channel %s token %s is not whitelisted", res.Channel.Hex(), spec.Channel.Token.Hex())
		return res
	}

	log := w.log.WithField("channel", res.Channel.Hex()).WithField("role", our.Role.String())
	switch our.Role {
	case role.Leader:
		lr, err := w.LeaderTick(ctx, spec, token)
		res.Leader, res.Err = &lr, err
	case role.Follower:
		fr, err := w.FollowerTick(ctx, spec, token)
		res.Follower, res.Err = &fr, err
	}
	if res.Err != nil {
		return res
	}
	log.WithField("outcome", res.Outcome()).Debug("Channel tick done")

	hb, err := w.Heartbeat(ctx, spec)
	if err != nil {
		res.Err = fmt.Errorf("heartbeat: %w", err)
		return res
	}
	res.Heartbeat = hb
	return res
}

// deposits converts the spenders' on-chain deposits to unified precision.
func deposits(spenders map[common.Address]inter.Spendable, token inter.TokenInfo) (core.Deposits, error) {
	out := make(core.Deposits, len(spenders))
	for addr, s := range spenders {
		amount, err := num.FromPrecision(s.Deposit.Total, token.Precision)
		if err != nil {
			return nil, fmt.Errorf("deposit of %s: %w", addr.Hex(), err)
		}
		out[addr] = amount
	}
	return out, nil
}

// nextAccounting folds the aggregates newer than prev into prev and
// applies the fees. prev is returned unchanged when nothing was merged.
func (w *Worker) nextAccounting(ctx context.Context, spec inter.ChannelSpec, prev *inter.Accounting, deps core.Deposits) (inter.Accounting, core.MergeResult, error) {
	id := spec.Channel.ID()
	if prev == nil {
		empty := inter.EmptyAccounting()
		prev = &empty
	}

	aggrs, err := w.sentry.GetEventAggregates(ctx, id, prev.LastEventAggregate)
	if err != nil {
		return inter.Accounting{}, core.MergeResult{}, err
	}
	merged, err := core.MergeAggregates(prev.BalancesBeforeFees, prev.LastEventAggregate, deps, aggrs)
	if err != nil {
		return inter.Accounting{}, core.MergeResult{}, err
	}
	if merged.Capped > 0 {
		w.log.WithField("channel", id.Hex()).WithField("capped", merged.Capped.String()).Warn("Payouts capped by the deposit")
	}
	if merged.Merged == 0 {
		return *prev, merged, nil
	}

	checked, err := merged.Balances.Check()
	if err != nil {
		return inter.Accounting{}, core.MergeResult{}, err
	}
	withFees, err := core.ApplyFees(checked, spec.Validators)
	if err != nil {
		return inter.Accounting{}, core.MergeResult{}, err
	}
	return inter.Accounting{
		LastEventAggregate: merged.Watermark,
		BalancesBeforeFees: merged.Balances,
		Balances:           withFees,
	}, merged, nil
}
