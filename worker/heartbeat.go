package worker

import (
	"context"
	"time"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/sentry"
)

// Heartbeat sends a signed Heartbeat to every validator of spec when our
// latest one is older than HeartbeatTime or missing. It returns nil when no
// heartbeat was due.
func (w *Worker) Heartbeat(ctx context.Context, spec inter.ChannelSpec) (*sentry.PropagationResult, error) {
	id := spec.Channel.ID()
	now := w.now()

	latest, err := w.sentry.GetLatestMessage(ctx, id, w.adapter.Whoami(), inter.TypeHeartbeat)
	if err != nil {
		return nil, err
	}
	if hb, ok := latest.(inter.Heartbeat); ok && !now.Time().After(hb.Timestamp.Time().Add(w.cfg.HeartbeatTime.Std())) {
		return nil, nil
	}

	root := inter.HeartbeatStateRoot(id, now)
	sig, err := w.adapter.Sign(root)
	if err != nil {
		return nil, err
	}
	res := w.propagator.Propagate(ctx, id, spec.Validators, inter.Heartbeat{
		Signature: sig,
		StateRoot: root,
		Timestamp: now,
	})
	w.metrics.observePropagation(res)
	if res.AllFailed() {
		return &res, res.Err()
	}
	w.metrics.Heartbeats.Inc()
	w.log.WithField("channel", id.Hex()).WithField("age", heartbeatAge(latest, now)).Debug("Heartbeat sent")
	return &res, nil
}

func heartbeatAge(latest inter.Message, now inter.Timestamp) time.Duration {
	hb, ok := latest.(inter.Heartbeat)
	if !ok {
		return 0
	}
	return now.Time().Sub(hb.Timestamp.Time())
}
