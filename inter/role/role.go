// Package role defines which part a validator plays in a channel. The first
// entry of a channel's validator set is the leader, which produces new
// states; the second is the follower, which verifies and approves them.

package role

import (
	"fmt"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Role is the part a validator plays in one channel.
type Role uint8

const (
	// None means the identity does not validate the channel.
	None Role = iota
	// Leader produces Accounting and NewState messages.
	Leader
	// Follower approves or rejects the leader's states.
	Follower
)

func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	default:
		return "none"
	}
}

// ValidatorAndRole pairs a validator's descriptor with its role.
type ValidatorAndRole struct {
	Role      Role
	Validator inter.ValidatorDesc
}

// Of resolves the role of id in spec. The channel identity is authoritative:
// the descriptor is looked up in the validator set by identity.
func Of(spec inter.ChannelSpec, id validatorid.ID) (ValidatorAndRole, error) {
	var r Role
	switch id {
	case spec.Channel.Leader:
		r = Leader
	case spec.Channel.Follower:
		r = Follower
	default:
		return ValidatorAndRole{}, fmt.Errorf("%s is not a validator of channel %s", id, spec.Channel.ID().Hex())
	}
	desc, ok := spec.Find(id)
	if !ok {
		return ValidatorAndRole{}, fmt.Errorf("channel %s has no descriptor for %s %s", spec.Channel.ID().Hex(), r, id)
	}
	return ValidatorAndRole{Role: r, Validator: desc}, nil
}
