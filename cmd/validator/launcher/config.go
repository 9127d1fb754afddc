package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-adex-validator/config"
	"github.com/rony4d/go-adex-validator/logger"
)

// Adapters selectable with --adapter.
const (
	AdapterEthereum = "ethereum"
	AdapterDummy    = "dummy"
)

// Config aggregates everything the launcher needs.
type Config struct {
	Worker config.Config
	Log    logger.Config
	Node   NodeConfig
}

// NodeConfig holds the process settings that are not worker tunables.
type NodeConfig struct {
	// DataDir holds the signing journal; empty keeps it in memory.
	DataDir string
	CacheMB int

	// SentryURL is our sentry; empty runs the dummy adapter against an
	// in-memory sentry.
	SentryURL string

	Adapter       string
	KeystoreFile  string
	KeystorePwd   string
	DummyIdentity string

	MetricsAddr string
	SingleTick  bool
}

// MakeAllConfigs starts from the --env preset, overlays the --config file,
// then the command line flags.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	worker, err := config.ByName(ctx.GlobalString("env"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Worker: worker,
		Log:    logger.DefaultConfig(),
		Node:   defaultNodeConfig(),
	}

	if file := ctx.GlobalString("config"); file != "" {
		if err := config.LoadFile(file, &cfg.Worker); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	if cfg.Node.DataDir != "" {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (c Config) check() error {
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	switch c.Node.Adapter {
	case AdapterEthereum:
		if c.Node.KeystoreFile == "" {
			return fmt.Errorf("--keystoreFile is required with the %s adapter", AdapterEthereum)
		}
		if c.Node.SentryURL == "" {
			return fmt.Errorf("--sentryUrl is required with the %s adapter", AdapterEthereum)
		}
	case AdapterDummy:
		if c.Node.DummyIdentity == "" {
			return fmt.Errorf("--dummyIdentity is required with the %s adapter", AdapterDummy)
		}
	default:
		return fmt.Errorf("unknown adapter %q (valid: %s, %s)", c.Node.Adapter, AdapterEthereum, AdapterDummy)
	}
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("cache") {
		cfg.Node.CacheMB = ctx.GlobalInt("cache")
	}
	if ctx.GlobalIsSet("sentryUrl") {
		cfg.Node.SentryURL = strings.TrimRight(ctx.GlobalString("sentryUrl"), "/")
	}
	if ctx.GlobalIsSet("rpc") {
		cfg.Worker.Chain.RPC = ctx.GlobalString("rpc")
	}
	if ctx.GlobalIsSet("adapter") {
		cfg.Node.Adapter = ctx.GlobalString("adapter")
	}
	if ctx.GlobalIsSet("keystoreFile") {
		cfg.Node.KeystoreFile = resolvePath(ctx.GlobalString("keystoreFile"))
	}
	if ctx.GlobalIsSet("dummyIdentity") {
		cfg.Node.DummyIdentity = ctx.GlobalString("dummyIdentity")
	}
	if ctx.GlobalIsSet("singleTick") {
		cfg.Node.SingleTick = ctx.GlobalBool("singleTick")
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Node.MetricsAddr = ctx.GlobalString("metrics.addr")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Log.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Log.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Log.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Log.SentryDSN = ctx.GlobalString("sentry.dsn")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
