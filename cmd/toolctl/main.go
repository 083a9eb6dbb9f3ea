package main

import (
	"context"
	"errors"
	"os"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
