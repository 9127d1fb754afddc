package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-adex-validator/config"
	"github.com/rony4d/go-adex-validator/flags"
	"github.com/rony4d/go-adex-validator/logger"
)

var app = newApp()

func newApp() *cli.App {
	app := flags.NewApp("the validator worker of AdEx payment channels")
	app.Flags = flags.Merge(
		flags.CommonFlags(),
		flags.ValidatorFlags(),
		flags.NetworkFlags(),
	)
	app.Action = runWorker
	app.Commands = []cli.Command{{
		Name:   "dumpconfig",
		Usage:  "Show the effective configuration as TOML",
		Action: dumpConfig,
	}}
	return app
}

// Launch parses args and runs the worker until it is interrupted, or for a
// single round with --singleTick.
func Launch(args []string) error {
	return app.Run(args)
}

func runWorker(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(sigCtx, cfg, log)
	if err != nil {
		return err
	}
	defer n.Close()
	n.StartMetrics()

	log.WithField("preset", cfg.Worker.Name).
		WithField("validator", n.Whoami().String()).
		WithField("adapter", cfg.Node.Adapter).
		Info("Validator worker started")

	if cfg.Node.SingleTick {
		report, err := n.worker.RunRound(sigCtx)
		if err != nil {
			return err
		}
		if failed := len(report.Failed()); failed > 0 {
			log.WithField("failed", failed).Warn("Single tick finished with failed channels")
		}
		return nil
	}

	err = n.worker.Run(sigCtx)
	if errors.Is(err, context.Canceled) {
		log.Info("Validator worker stopped")
		return nil
	}
	return err
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	out, err := config.Dump(cfg.Worker)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(ctx.App.Writer, string(out))
	return err
}
