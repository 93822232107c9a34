package flags

import (
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

// NewApp assembles the CLI application skeleton shared by every command.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dlc"
	app.Usage = "Deterministic Learning Consensus node"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	return app
}
