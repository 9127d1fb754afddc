package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the process-wide flags: presets, config file, data
// directory, logging and metrics.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "env",
			Usage:  "Config preset (development|production)",
			EnvVar: "ENV",
			Value:  "development",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML config file overlaid on the preset",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the signing journal (in memory when empty)",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the journal database",
			Value: 16,
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:   "sentry.dsn",
			Usage:  "Report errors to this Sentry DSN",
			EnvVar: "SENTRY_DSN",
		},
		cli.StringFlag{
			Name:  "metrics.addr",
			Usage: "Serve Prometheus metrics on this address (disabled when empty)",
		},
	}
}
