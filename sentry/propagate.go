package sentry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Delivery is the outcome of sending messages to one validator.
type Delivery struct {
	Validator validatorid.ID
	URL       string
	Err       error
}

// PropagationResult lists one Delivery per recipient, in recipient order.
type PropagationResult struct {
	Deliveries []Delivery
}

// Succeeded returns the deliveries that were acknowledged.
func (r PropagationResult) Succeeded() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err == nil {
			out = append(out, d)
		}
	}
	return out
}

// Failed returns the deliveries that were not acknowledged.
func (r PropagationResult) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// AllFailed reports whether no recipient acknowledged. A result without
// recipients has not failed.
func (r PropagationResult) AllFailed() bool {
	return len(r.Deliveries) > 0 && len(r.Succeeded()) == 0
}

// Err is nil when every delivery succeeded, a *PropagationError otherwise.
func (r PropagationResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PropagationError{Failed: failed, Attempted: len(r.Deliveries)}
}

// PropagationError lists the failed deliveries of a propagation.
type PropagationError struct {
	Failed    []Delivery
	Attempted int
}

// Total reports whether every delivery failed.
func (e *PropagationError) Total() bool {
	return len(e.Failed) == e.Attempted
}

func (e *PropagationError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, d := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", d.Validator, d.Err)
	}
	return fmt.Sprintf("propagation failed for %d of %d validators: %s", len(e.Failed), e.Attempted, strings.Join(parts, "; "))
}

// Propagator posts validator messages to the sentries of a channel's
// validators.
type Propagator struct {
	auth    Authorizer
	http    *http.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewPropagator returns a Propagator whose every dispatch is bounded by
// timeout.
func NewPropagator(auth Authorizer, timeout time.Duration, log logrus.FieldLogger) *Propagator {
	return &Propagator{
		auth:    auth,
		http:    &http.Client{},
		timeout: timeout,
		log:     log,
	}
}

// Propagate sends msgs to every recipient concurrently. Dispatches are
// independent: one failing or timing out does not affect the others.
func (p *Propagator) Propagate(ctx context.Context, channel inter.ChannelID, recipients []inter.ValidatorDesc, msgs ...inter.Message) PropagationResult {
	res := PropagationResult{Deliveries: make([]Delivery, len(recipients))}
	body, err := json.Marshal(ValidatorMessagesRequest{Messages: inter.Wrap(msgs...)})

	var g errgroup.Group
	for i, v := range recipients {
		i, v := i, v
		u := strings.TrimRight(v.URL, "/") + apiPrefix + "/channel/" + channel.Hex() + "/validator-messages"
		res.Deliveries[i] = Delivery{Validator: v.ID, URL: u}
		if err != nil {
			res.Deliveries[i].Err = errors.Wrap(err, "encode messages")
			continue
		}
		g.Go(func() error {
			res.Deliveries[i].Err = p.send(ctx, v.ID, u, body)
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range res.Failed() {
		p.log.WithField("channel", channel.Hex()).WithField("validator", d.Validator.String()).WithError(d.Err).Warn("Message propagation failed")
	}
	return res
}

func (p *Propagator) send(ctx context.Context, to validatorid.ID, u string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.auth.GetAuth(to)
	if err != nil {
		return errors.Wrap(err, "auth token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var ack SuccessResponse
	if err := doJSON(p.http, req, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return errors.New("not acknowledged")
	}
	return nil
}
