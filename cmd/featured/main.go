// Package main provides the entry point for the featured-placement service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "featured",
		Usage:   "Featured job placement billing and entitlement service",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the HTTP server and the state-change dispatcher",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServer(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "down",
						Value: false,
						Usage: "Roll back every migration instead of applying them",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runMigrate(cmd.Bool("down"))
				},
			},
			{
				Name:  "reindex",
				Usage: "Rebuild the search index from every active job",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runReindex(ctx)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
