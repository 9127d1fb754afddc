package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// TestPresets verifies the values each preset is expected to carry.
func TestPresets(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wait      time.Duration
		threshold uint64
		chainID   uint64
	}{
		{DevelopmentName, Development(), 500 * time.Millisecond, 950, 1337},
		{ProductionName, Production(), 40 * time.Second, 970, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Name != tt.name {
				t.Errorf("Name = %q, want %q", tt.cfg.Name, tt.name)
			}
			if tt.cfg.WaitTime.Std() != tt.wait {
				t.Errorf("WaitTime = %v, want %v", tt.cfg.WaitTime, tt.wait)
			}
			if tt.cfg.HealthThresholdPromilles != tt.threshold {
				t.Errorf("HealthThresholdPromilles = %d, want %d", tt.cfg.HealthThresholdPromilles, tt.threshold)
			}
			if tt.cfg.Chain.ChainID != tt.chainID {
				t.Errorf("ChainID = %d, want %d", tt.cfg.Chain.ChainID, tt.chainID)
			}
			if err := tt.cfg.Validate(); err != nil {
				t.Errorf("preset does not validate: %v", err)
			}
		})
	}
}

// TestByName verifies preset lookup, including the empty default.
func TestByName(t *testing.T) {
	for _, name := range []string{ProductionName, DevelopmentName} {
		cfg, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if cfg.Name != name {
			t.Errorf("ByName(%q).Name = %q", name, cfg.Name)
		}
	}

	cfg, err := ByName("")
	if err != nil || cfg.Name != DevelopmentName {
		t.Errorf("ByName(\"\") = %q, %v; want development", cfg.Name, err)
	}

	if _, err := ByName("staging"); err == nil || !strings.Contains(err.Error(), "unknown preset") {
		t.Errorf("ByName(staging) error = %v", err)
	}
}

// TestCopy verifies that Copy does not share slices with the original.
func TestCopy(t *testing.T) {
	orig := Production()
	orig.ValidatorsWhitelist = []validatorid.ID{validatorid.MustFromString("0x80690751969B234697e9059e04ed72195c3507fa")}
	orig.Chain.DepositorCode = []byte{0x60, 0x80}

	cp := orig.Copy()
	cp.ValidatorsWhitelist[0] = validatorid.ID{}
	cp.Chain.DepositorCode[0] = 0
	cp.Chain.Tokens[0].Precision = 1

	if orig.ValidatorsWhitelist[0].Empty() {
		t.Error("ValidatorsWhitelist shared with the copy")
	}
	if orig.Chain.DepositorCode[0] != 0x60 {
		t.Error("DepositorCode shared with the copy")
	}
	if orig.Chain.Tokens[0].Precision != 18 {
		t.Error("Tokens shared with the copy")
	}
}

// TestValidate covers the rejected values.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no channels", func(c *Config) { c.MaxChannels = 0 }},
		{"threshold above 1000", func(c *Config) { c.HealthThresholdPromilles = 1001 }},
		{"no tick timeout", func(c *Config) { c.ValidatorTickTimeout = 0 }},
		{"no propagation timeout", func(c *Config) { c.PropagationTimeout = 0 }},
		{"no page size", func(c *Config) { c.ChannelsPageSize = 0 }},
		{"duplicate token", func(c *Config) { c.Chain.Tokens = append(c.Chain.Tokens, c.Chain.Tokens[0]) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Development()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

// TestAllowsChannel verifies the validators whitelist.
func TestAllowsChannel(t *testing.T) {
	leader := validatorid.MustFromString("0x80690751969B234697e9059e04ed72195c3507fa")
	follower := validatorid.MustFromString("0xf3f583AEC5f7C030722Fe992A5688557e1B86ef7")
	spec := inter.ChannelSpec{Validators: []inter.ValidatorDesc{{ID: leader}, {ID: follower}}}

	cfg := Development()
	if !cfg.AllowsChannel(spec) {
		t.Error("empty whitelist must allow every channel")
	}
	cfg.ValidatorsWhitelist = []validatorid.ID{leader}
	if cfg.AllowsChannel(spec) {
		t.Error("channel with a non-whitelisted follower allowed")
	}
	cfg.ValidatorsWhitelist = append(cfg.ValidatorsWhitelist, follower)
	if !cfg.AllowsChannel(spec) {
		t.Error("fully whitelisted channel rejected")
	}
}

// TestLoadFile overlays a TOML file on a preset and round-trips Dump.
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validator.toml")
	data := `
MaxChannels = 64
WaitTime = "2s"
ValidatorsWhitelist = ["0x80690751969B234697e9059e04ed72195c3507fa"]

[Chain]
ChainID = 5
Outpace = "0x26CBc2eAAe377f6Ac4b73a982CD1125eF4CEC96f"

[[Chain.Tokens]]
Address = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
Precision = 18
MinTokenUnitsForDeposit = "10000000000000000"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Development()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.MaxChannels != 64 || cfg.WaitTime.Std() != 2*time.Second {
		t.Errorf("overlay not applied: MaxChannels=%d WaitTime=%v", cfg.MaxChannels, cfg.WaitTime)
	}
	if cfg.HealthThresholdPromilles != 950 {
		t.Errorf("absent key overwritten: HealthThresholdPromilles=%d", cfg.HealthThresholdPromilles)
	}
	if cfg.Chain.ChainID != 5 || len(cfg.Chain.Tokens) != 1 {
		t.Fatalf("chain not loaded: %+v", cfg.Chain)
	}
	token, ok := cfg.Chain.FindToken(common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"))
	if !ok || token.MinTokenUnitsForDeposit.String() != "10000000000000000" {
		t.Errorf("token = %+v, %v", token, ok)
	}

	dumped, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := os.WriteFile(path, dumped, 0o600); err != nil {
		t.Fatal(err)
	}
	var reloaded Config
	if err := LoadFile(path, &reloaded); err != nil {
		t.Fatalf("reload dumped config: %v", err)
	}
	if reloaded.String() != cfg.String() {
		t.Errorf("dump round trip changed the config:\n%s\n%s", reloaded, cfg)
	}
}

// TestLoadFileUnknownField reports the file name and the field.
func TestLoadFileUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("NoSuchField = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Development()
	err := LoadFile(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "NoSuchField") {
		t.Errorf("LoadFile error = %v, want unknown field", err)
	}
}
