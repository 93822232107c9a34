package main

import (
	"fmt"
	"os"

	"github.com/dlc-foundation/go-dlc/cmd/dlc/launcher"
)

func main() {
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
