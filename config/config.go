// Package config defines the tunables of the validator worker.
//
// A Config is always derived from one of the presets (Production or
// Development), optionally overlaid by a TOML file and finally by command
// line flags. It is passed explicitly to the scheduler and the ticks; there
// is no process-wide configuration state.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Duration is a time.Duration written as "500ms" or "1m" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Chain describes the chain the channels are deposited on.
type Chain struct {
	ChainID uint64
	// RPC is the JSON-RPC endpoint used for deposit reads.
	RPC     string
	Outpace common.Address
	// Sweeper deploys the counterfactual depositor contracts.
	Sweeper common.Address
	// DepositorCode is the creation bytecode of the depositor contract, the
	// CREATE2 init code prefix.
	DepositorCode hexutil.Bytes
	// Tokens is the deposit token whitelist.
	Tokens []inter.TokenInfo
}

// FindToken returns the whitelisted token at addr.
func (c Chain) FindToken(addr common.Address) (inter.TokenInfo, bool) {
	for _, t := range c.Tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return inter.TokenInfo{}, false
}

// Config holds every tunable of the worker.
type Config struct {
	// Name is the preset the config was derived from.
	Name string

	// MaxChannels is the channel count per round that triggers a warning.
	MaxChannels int
	// WaitTime is the pause between two rounds.
	WaitTime Duration
	// HeartbeatTime is the minimum interval between two heartbeats.
	HeartbeatTime Duration
	// HealthThresholdPromilles is the lowest health a follower still approves.
	HealthThresholdPromilles uint64

	PropagationTimeout   Duration
	FetchTimeout         Duration
	ListTimeout          Duration
	ValidatorTickTimeout Duration

	// ChannelsPageSize is the page size requested from the channel list.
	ChannelsPageSize int
	// ValidatorsWhitelist, when not empty, restricts the channels we tick to
	// those whose validators are all listed.
	ValidatorsWhitelist []validatorid.ID

	Chain Chain
}

// Copy returns a deep copy.
func (c Config) Copy() Config {
	cp := c
	cp.ValidatorsWhitelist = append([]validatorid.ID(nil), c.ValidatorsWhitelist...)
	cp.Chain.DepositorCode = common.CopyBytes(c.Chain.DepositorCode)
	cp.Chain.Tokens = append([]inter.TokenInfo(nil), c.Chain.Tokens...)
	return cp
}

// String returns the config as JSON, for logs.
func (c Config) String() string {
	b, _ := json.Marshal(&c)
	return string(b)
}

// Validate checks the values a worker cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxChannels <= 0:
		return fmt.Errorf("MaxChannels must be positive, got %d", c.MaxChannels)
	case c.HealthThresholdPromilles > 1000:
		return fmt.Errorf("HealthThresholdPromilles must be at most 1000, got %d", c.HealthThresholdPromilles)
	case c.ValidatorTickTimeout <= 0:
		return fmt.Errorf("ValidatorTickTimeout must be positive, got %s", c.ValidatorTickTimeout)
	case c.PropagationTimeout <= 0 || c.FetchTimeout <= 0 || c.ListTimeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	case c.ChannelsPageSize <= 0:
		return fmt.Errorf("ChannelsPageSize must be positive, got %d", c.ChannelsPageSize)
	}
	seen := make(map[common.Address]bool, len(c.Chain.Tokens))
	for _, t := range c.Chain.Tokens {
		if seen[t.Address] {
			return fmt.Errorf("token %s whitelisted twice", t.Address.Hex())
		}
		if t.Precision > 77 {
			return fmt.Errorf("token %s precision %d does not fit uint256", t.Address.Hex(), t.Precision)
		}
		seen[t.Address] = true
	}
	return nil
}

// AllowsChannel reports whether every validator of spec is whitelisted.
func (c Config) AllowsChannel(spec inter.ChannelSpec) bool {
	if len(c.ValidatorsWhitelist) == 0 {
		return true
	}
	for _, v := range spec.Validators {
		allowed := false
		for _, w := range c.ValidatorsWhitelist {
			if v.ID == w {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}
