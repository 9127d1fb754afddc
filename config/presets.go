package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// Preset names accepted by ByName.
const (
	ProductionName  = "production"
	DevelopmentName = "development"
)

// Development returns the config for local setups: short waits so channels
// tick quickly, and a Ganache chain with a mocked 18 decimals token.
//
// Use cases:
//   - running a leader and a follower next to a local sentry
//   - integration tests with the dummy adapter
func Development() Config {
	return Config{
		Name:                     DevelopmentName,
		MaxChannels:              512,
		WaitTime:                 Duration(500 * time.Millisecond),
		HeartbeatTime:            Duration(30 * time.Second),
		HealthThresholdPromilles: 950,
		PropagationTimeout:       Duration(2 * time.Second),
		FetchTimeout:             Duration(5 * time.Second),
		ListTimeout:              Duration(5 * time.Second),
		ValidatorTickTimeout:     Duration(8 * time.Second),
		ChannelsPageSize:         200,
		Chain: Chain{
			ChainID: 1337,
			RPC:     "http://localhost:8545",
			Outpace: common.HexToAddress("0xAbc27d46a458E2e49DaBfEf45ca74dEDBAc3DD06"),
			Tokens: []inter.TokenInfo{{
				Address:                 common.HexToAddress("0x2BCaf6968aEC8A3b5126FBfAb5Fd419da6E8AD8E"),
				Precision:               18,
				MinTokenUnitsForDeposit: num.NewBigNum(1_000_000),
			}},
		},
	}
}

// Production returns the config of a mainnet validator. Rounds are spaced
// further apart and the follower tolerates less divergence.
func Production() Config {
	cfg := Development()
	cfg.Name = ProductionName
	cfg.WaitTime = Duration(40 * time.Second)
	cfg.HeartbeatTime = Duration(60 * time.Second)
	cfg.HealthThresholdPromilles = 970
	cfg.PropagationTimeout = Duration(3 * time.Second)
	cfg.FetchTimeout = Duration(10 * time.Second)
	cfg.ListTimeout = Duration(10 * time.Second)
	cfg.ValidatorTickTimeout = Duration(10 * time.Second)
	cfg.Chain = Chain{
		ChainID: 1,
		RPC:     "https://mainnet.infura.io/",
		Outpace: common.HexToAddress("0x26CBc2eAAe377f6Ac4b73a982CD1125eF4CEC96f"),
		Tokens: []inter.TokenInfo{{
			// DAI
			Address:                 common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			Precision:               18,
			MinTokenUnitsForDeposit: num.NewBigNum(10_000_000_000_000_000),
		}, {
			// USDC
			Address:                 common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			Precision:               6,
			MinTokenUnitsForDeposit: num.NewBigNum(10_000),
		}},
	}
	return cfg
}

// ByName looks up a preset by its name, as selected with --env.
func ByName(name string) (Config, error) {
	switch name {
	case ProductionName:
		return Production(), nil
	case DevelopmentName, "":
		return Development(), nil
	default:
		return Config{}, fmt.Errorf("unknown preset: %q (valid: %s, %s)", name, ProductionName, DevelopmentName)
	}
}
