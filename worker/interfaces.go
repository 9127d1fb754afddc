package worker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
	"github.com/rony4d/go-adex-validator/sentry"
)

// ChannelDirectory lists the channels to validate.
type ChannelDirectory interface {
	ListChannels(ctx context.Context) ([]inter.ChannelSpec, error)
}

// AccountingStore reads stored validator messages. Missing values are
// returned as nil without error.
type AccountingStore interface {
	GetLatestAccounting(ctx context.Context, channel inter.ChannelID, validator validatorid.ID) (*inter.Accounting, error)
	GetLatestMessage(ctx context.Context, channel inter.ChannelID, from validatorid.ID, types ...inter.MessageType) (inter.Message, error)
	GetLastApproved(ctx context.Context, channel inter.ChannelID) (*inter.LastApproved, error)
}

// EventAggregateStore reads the event aggregates of a channel.
type EventAggregateStore interface {
	GetEventAggregates(ctx context.Context, channel inter.ChannelID, since inter.Timestamp) ([]inter.EventAggregate, error)
}

// SpenderStore reads the spenders of a channel with their deposits.
type SpenderStore interface {
	GetAllSpenders(ctx context.Context, channel inter.ChannelID) (map[common.Address]inter.Spendable, error)
}

// Sentry is everything a tick reads. sentry.Client and sentry.MemoryStore
// implement it.
type Sentry interface {
	ChannelDirectory
	AccountingStore
	EventAggregateStore
	SpenderStore
}

// Propagator sends messages to the validators of a channel.
type Propagator interface {
	Propagate(ctx context.Context, channel inter.ChannelID, recipients []inter.ValidatorDesc, msgs ...inter.Message) sentry.PropagationResult
}

var (
	_ Sentry     = (*sentry.Client)(nil)
	_ Sentry     = (*sentry.MemoryStore)(nil)
	_ Propagator = (*sentry.Propagator)(nil)
	_ Propagator = (*sentry.MemoryPropagator)(nil)
)
