package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sponsorlab/gasless/client"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check whether the service is up",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "Request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			cl := client.NewClient(c.String("server-url"), nil, nil)
			if err := cl.Health(ctx); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print CLI version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("gasless %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
