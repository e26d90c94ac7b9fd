package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// set via ldflags
	version = "dev"
	commit  = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "syncctl",
		Usage: "offline sync operator tool",
		Description: `Sign offline transactions with a festival key and inspect sync batches
on a running server.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			signCommand(),
			{
				Name:  "batch",
				Usage: "Sync batch commands (HTTP API)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server",
						Aliases: []string{"s"},
						Value:   "http://localhost:8080",
						Usage:   "HTTP server URL",
						EnvVars: []string{"SYNCCTL_SERVER"},
					},
					&cli.StringFlag{
						Name:    "token",
						Aliases: []string{"t"},
						Usage:   "bearer token (dev-<deviceId> works against a dev server)",
						EnvVars: []string{"SYNCCTL_TOKEN"},
					},
				},
				Subcommands: []*cli.Command{
					batchSubmitCommand(),
					batchGetCommand(),
					batchPendingCommand(),
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
