// Command gosyncauth runs one authentication shard.
//
// A shard whose configuration names a main server address is a secondary: it
// polls the primary for remote configuration and leaves the cleanup passes
// to the primary.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "gosyncauth",
		Usage:     "authentication and session shard",
		Version:   fmt.Sprintf("%s (commit %s)", version, commit),
		ArgsUsage: "[dry]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"GOSYNCAUTH_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "dry",
				Usage: "load configuration, open stores, then exit",
			},
		},
		Action: func(c *cli.Context) error {
			dry := c.Bool("dry") || c.Args().First() == "dry"
			return run(c.Context, c.String("config"), dry)
		},
	}
}
