package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags selects the network preset and the fakenet shape.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Network preset to run (main|test|fake)",
			Value: "fake",
		},
		cli.IntFlag{
			Name:  "fakenet.validators",
			Usage: "Number of deterministic validators in fakenet mode",
			Value: 4,
		},
		cli.IntFlag{
			Name:  "fakenet.rounds",
			Usage: "Number of rounds to run before exiting (0 = run until interrupted)",
			Value: 0,
		},
		cli.Uint64Flag{
			Name:  "fakenet.fee",
			Usage: "Fee in micro units attached to every fakenet block",
			Value: 0,
		},
	}
}
