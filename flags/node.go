package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance.
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name used in logs",
		},
		cli.StringFlag{
			Name:  "validator.pubkey",
			Usage: "Validator public key in hex (type byte followed by raw key)",
		},
		cli.StringFlag{
			Name:  "model",
			Usage: "Path to a canonical JSON scoring model to activate at startup",
		},
		cli.StringFlag{
			Name:  "datadir.chaindata",
			Usage: "Override path to the chaindata DB (defaults to <datadir>/chaindata)",
		},
	}
}
