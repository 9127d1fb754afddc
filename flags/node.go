package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// ValidatorFlags select the identity the worker signs as.
func ValidatorFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "adapter",
			Usage: "Signing adapter (ethereum|dummy)",
			Value: "ethereum",
		},
		cli.StringFlag{
			Name:  "keystoreFile",
			Usage: "Keystore file of the validator key (ethereum adapter); the password is read from KEYSTORE_PWD",
		},
		cli.StringFlag{
			Name:  "dummyIdentity",
			Usage: "Validator address to act as (dummy adapter)",
		},
		cli.BoolFlag{
			Name:  "singleTick",
			Usage: "Run one round and exit",
		},
	}
}
