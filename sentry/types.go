package sentry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// API version prefix of every route.
const apiPrefix = "/v5"

// ChannelListResponse is one page of GET /v5/channel/list.
type ChannelListResponse struct {
	Channels   []inter.ChannelSpec `json:"channels"`
	TotalPages uint64              `json:"totalPages"`
	Page       uint64              `json:"page"`
}

// ValidatorMessage is a stored message with its sender.
type ValidatorMessage struct {
	From     validatorid.ID  `json:"from"`
	Received inter.Timestamp `json:"received"`
	Msg      inter.Envelope  `json:"msg"`
}

// ValidatorMessagesResponse is returned by
// GET /v5/channel/:id/validator-messages/:from/:types.
type ValidatorMessagesResponse struct {
	ValidatorMessages []ValidatorMessage `json:"validatorMessages"`
}

// LastApprovedResponse is returned by GET /v5/channel/:id/last-approved.
type LastApprovedResponse struct {
	LastApproved *inter.LastApproved `json:"lastApproved"`
}

// EventAggregatesResponse is returned by GET /v5/channel/:id/events-aggregates.
type EventAggregatesResponse struct {
	Channel inter.ChannelID        `json:"channel"`
	Events  []inter.EventAggregate `json:"events"`
}

// SpendersResponse is one page of GET /v5/channel/:id/spender/all.
type SpendersResponse struct {
	Spenders   map[common.Address]inter.Spendable `json:"spenders"`
	TotalPages uint64                             `json:"totalPages"`
	Page       uint64                             `json:"page"`
}

// ValidatorMessagesRequest is the body of POST /v5/channel/:id/validator-messages.
type ValidatorMessagesRequest struct {
	Messages []inter.Envelope `json:"messages"`
}

// SuccessResponse acknowledges a POST.
type SuccessResponse struct {
	Success bool `json:"success"`
}
