package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags cover the endpoints the worker talks to.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "sentryUrl",
			Usage: "Base URL of our sentry; the dummy adapter runs against an in-memory sentry when empty",
		},
		cli.StringFlag{
			Name:  "rpc",
			Usage: "Ethereum JSON-RPC endpoint, overrides the preset",
		},
	}
}
