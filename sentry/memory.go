package sentry

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// ErrUnreachable is the delivery error to a validator marked unreachable.
var ErrUnreachable = errors.New("validator unreachable")

// MemoryStore is a sentry held in memory and shared by every validator of
// a local setup. It serves the same reads as Client, and its Propagator
// delivers messages into the store.
type MemoryStore struct {
	mu          sync.RWMutex
	channels    []inter.ChannelSpec
	messages    map[inter.ChannelID][]ValidatorMessage
	aggregates  map[inter.ChannelID][]inter.EventAggregate
	spenders    map[inter.ChannelID]map[common.Address]inter.Spendable
	unreachable map[validatorid.ID]bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:    make(map[inter.ChannelID][]ValidatorMessage),
		aggregates:  make(map[inter.ChannelID][]inter.EventAggregate),
		spenders:    make(map[inter.ChannelID]map[common.Address]inter.Spendable),
		unreachable: make(map[validatorid.ID]bool),
	}
}

// AddChannel lists spec in the channel directory.
func (s *MemoryStore) AddChannel(spec inter.ChannelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, spec)
}

// AddEventAggregate stores an aggregate for its channel.
func (s *MemoryStore) AddEventAggregate(aggr inter.EventAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[aggr.ChannelID] = append(s.aggregates[aggr.ChannelID], aggr)
}

// SetSpendable records the deposit of a spender.
func (s *MemoryStore) SetSpendable(sp inter.Spendable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spenders[sp.Channel] == nil {
		s.spenders[sp.Channel] = make(map[common.Address]inter.Spendable)
	}
	s.spenders[sp.Channel][sp.Spender] = sp
}

// SetUnreachable makes deliveries to id fail.
func (s *MemoryStore) SetUnreachable(id validatorid.ID, unreachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable[id] = unreachable
}

// PostMessages stores msgs as sent by from.
func (s *MemoryStore) PostMessages(channel inter.ChannelID, from validatorid.ID, msgs ...inter.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := inter.Now()
	for _, m := range msgs {
		s.messages[channel] = append(s.messages[channel], ValidatorMessage{From: from, Received: now, Msg: inter.Envelope{Message: m}})
	}
}

// Messages returns every message stored for channel, oldest first.
func (s *MemoryStore) Messages(channel inter.ChannelID) []ValidatorMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ValidatorMessage(nil), s.messages[channel]...)
}

// ListChannels returns every channel added.
func (s *MemoryStore) ListChannels(ctx context.Context) ([]inter.ChannelSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inter.ChannelSpec(nil), s.channels...), nil
}

// GetLatestMessage returns the newest message of one of types from from.
func (s *MemoryStore) GetLatestMessage(ctx context.Context, channel inter.ChannelID, from validatorid.ID, types ...inter.MessageType) (inter.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest(channel, func(m ValidatorMessage) bool {
		if m.From != from {
			return false
		}
		for _, t := range types {
			if m.Msg.Type() == t {
				return true
			}
		}
		return false
	}), nil
}

func (s *MemoryStore) latest(channel inter.ChannelID, match func(ValidatorMessage) bool) inter.Message {
	msgs := s.messages[channel]
	for i := len(msgs) - 1; i >= 0; i-- {
		if match(msgs[i]) {
			return msgs[i].Msg.Message
		}
	}
	return nil
}

// GetLatestAccounting returns the newest Accounting of validator.
func (s *MemoryStore) GetLatestAccounting(ctx context.Context, channel inter.ChannelID, validator validatorid.ID) (*inter.Accounting, error) {
	msg, err := s.GetLatestMessage(ctx, channel, validator, inter.TypeAccounting)
	if err != nil || msg == nil {
		return nil, err
	}
	accounting := msg.(inter.Accounting)
	return &accounting, nil
}

// GetLastApproved pairs the newest ApproveState of a follower with the
// leader's NewState of the same root.
func (s *MemoryStore) GetLastApproved(ctx context.Context, channel inter.ChannelID) (*inter.LastApproved, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var leader validatorid.ID
	found := false
	for _, spec := range s.channels {
		if spec.Channel.ID() == channel {
			leader, found = spec.Channel.Leader, true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("channel %s not found", channel.Hex())
	}

	approve := s.latest(channel, func(m ValidatorMessage) bool {
		return m.From != leader && m.Msg.Type() == inter.TypeApproveState
	})
	if approve == nil {
		return nil, nil
	}
	approveState := approve.(inter.ApproveState)
	res := &inter.LastApproved{ApproveState: &approveState}

	if ns := s.latest(channel, func(m ValidatorMessage) bool {
		if m.From != leader || m.Msg.Type() != inter.TypeNewState {
			return false
		}
		return m.Msg.Message.(inter.NewState).StateRoot == approveState.StateRoot
	}); ns != nil {
		newState := ns.(inter.NewState)
		res.NewState = &newState
	}
	return res, nil
}

// GetEventAggregates returns the aggregates created after since, oldest
// first.
func (s *MemoryStore) GetEventAggregates(ctx context.Context, channel inter.ChannelID, since inter.Timestamp) ([]inter.EventAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inter.EventAggregate
	for _, a := range s.aggregates[channel] {
		if a.Created.After(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

// GetAllSpenders returns a copy of the spenders of channel.
func (s *MemoryStore) GetAllSpenders(ctx context.Context, channel inter.ChannelID) (map[common.Address]inter.Spendable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]inter.Spendable, len(s.spenders[channel]))
	for addr, sp := range s.spenders[channel] {
		out[addr] = sp
	}
	return out, nil
}

// Propagator returns a propagator that stores messages as sent by from.
func (s *MemoryStore) Propagator(from validatorid.ID) *MemoryPropagator {
	return &MemoryPropagator{store: s, from: from}
}

// MemoryPropagator delivers messages into a MemoryStore.
type MemoryPropagator struct {
	store *MemoryStore
	from  validatorid.ID
}

// Propagate fails the deliveries to unreachable validators. The messages
// are stored once if any delivery succeeds.
func (p *MemoryPropagator) Propagate(ctx context.Context, channel inter.ChannelID, recipients []inter.ValidatorDesc, msgs ...inter.Message) PropagationResult {
	res := PropagationResult{Deliveries: make([]Delivery, len(recipients))}
	p.store.mu.RLock()
	for i, v := range recipients {
		res.Deliveries[i] = Delivery{Validator: v.ID, URL: v.URL}
		if p.store.unreachable[v.ID] {
			res.Deliveries[i].Err = ErrUnreachable
		} else if err := ctx.Err(); err != nil {
			res.Deliveries[i].Err = err
		}
	}
	p.store.mu.RUnlock()

	if len(res.Succeeded()) > 0 && ctx.Err() == nil {
		p.store.PostMessages(channel, p.from, msgs...)
	}
	return res
}
