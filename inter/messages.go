package inter

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter/balances"
)

// MessageType is the wire tag of a validator message.
type MessageType string

const (
	TypeNewState     MessageType = "NewState"
	TypeApproveState MessageType = "ApproveState"
	TypeRejectState  MessageType = "RejectState"
	TypeHeartbeat    MessageType = "Heartbeat"
	TypeAccounting   MessageType = "Accounting"
)

// Message is the closed set of validator messages. Only the five types of
// this package implement it; consumers switch over them exhaustively.
type Message interface {
	Type() MessageType
	isMessage()
}

// NewState is the leader's signed claim on the channel balances.
type NewState struct {
	StateRoot common.Hash      `json:"stateRoot"`
	Signature string           `json:"signature"`
	Balances  balances.Checked `json:"balances"`
	Exhausted bool             `json:"exhausted"`
}

// ApproveState is the follower's signature over the leader's state root.
type ApproveState struct {
	StateRoot common.Hash `json:"stateRoot"`
	Signature string      `json:"signature"`
	IsHealthy bool        `json:"isHealthy"`
	Exhausted bool        `json:"exhausted"`
}

// Reasons a follower rejects a leader state.
const (
	ReasonInvalidSignature  = "InvalidSignature"
	ReasonInvalidRootHash   = "InvalidRootHash"
	ReasonInvalidTransition = "InvalidTransition"
	ReasonTooLowHealth      = "TooLowHealth"
)

// RejectState refuses the leader state identified by StateRoot.
type RejectState struct {
	Reason    string            `json:"reason"`
	StateRoot common.Hash       `json:"stateRoot"`
	Signature string            `json:"signature"`
	Balances  *balances.Checked `json:"balances,omitempty"`
	Timestamp Timestamp         `json:"timestamp,omitempty"`
}

// Heartbeat signals liveness; StateRoot commits to Timestamp.
type Heartbeat struct {
	Signature string      `json:"signature"`
	StateRoot common.Hash `json:"stateRoot"`
	Timestamp Timestamp   `json:"timestamp"`
}

func (NewState) Type() MessageType     { return TypeNewState }
func (ApproveState) Type() MessageType { return TypeApproveState }
func (RejectState) Type() MessageType  { return TypeRejectState }
func (Heartbeat) Type() MessageType    { return TypeHeartbeat }
func (Accounting) Type() MessageType   { return TypeAccounting }

func (NewState) isMessage()     {}
func (ApproveState) isMessage() {}
func (RejectState) isMessage()  {}
func (Heartbeat) isMessage()    {}
func (Accounting) isMessage()   {}

// MarshalMessage encodes msg with its "type" tag merged into the object.
func MarshalMessage(msg Message) ([]byte, error) {
	var body interface{}
	switch m := msg.(type) {
	case NewState, ApproveState, RejectState, Heartbeat, Accounting:
		body = m
	case nil:
		return nil, fmt.Errorf("nil validator message")
	default:
		return nil, fmt.Errorf("unknown validator message %T", msg)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(msg.Type())
	fields["type"] = tag
	return json.Marshal(fields)
}

// UnmarshalMessage decodes a tagged message.
func UnmarshalMessage(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case TypeNewState:
		var m NewState
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeApproveState:
		var m ApproveState
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeRejectState:
		var m RejectState
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeHeartbeat:
		var m Heartbeat
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeAccounting:
		var m Accounting
		err := json.Unmarshal(data, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown validator message type %q", head.Type)
	}
}

// Envelope wraps a Message so slices of messages can be (de)serialized
// with encoding/json.
type Envelope struct {
	Message
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return MarshalMessage(e.Message)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	msg, err := UnmarshalMessage(data)
	if err != nil {
		return err
	}
	e.Message = msg
	return nil
}

// Wrap turns messages into envelopes.
func Wrap(msgs ...Message) []Envelope {
	out := make([]Envelope, len(msgs))
	for i, m := range msgs {
		out[i] = Envelope{Message: m}
	}
	return out
}
