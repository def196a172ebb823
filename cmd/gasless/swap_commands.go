package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/sponsorlab/gasless/client"
	"github.com/urfave/cli/v2"
)

func swapCommands() *cli.Command {
	return &cli.Command{
		Name:  "swap",
		Usage: "HTTP client commands for the swap-build API",
		Subcommands: []*cli.Command{
			buildCommand(),
			feePayerCommand(),
		},
	}
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build a sponsored swap transaction",
		ArgsUsage: "USER_ADDRESS SOURCE_MINT AMOUNT",
		Description: `Ask the service to build an unsigned fee-payer-sponsored transaction
that swaps AMOUNT base units of SOURCE_MINT into the native token.

Example:
  gasless swap build DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v 1000000`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "HTTP server URL (overrides --server-url)",
				EnvVars: []string{"GASLESS_SERVER_URL"},
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to the JSON response (e.g. '.fees.network_fee')",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   60 * time.Second,
				Usage:   "Request timeout",
			},
			&cli.Int64Flag{
				Name:  "throttle-window-ms",
				Usage: "Override the server's per-(user, mint) throttle window; negative disables it",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("usage: gasless swap build USER_ADDRESS SOURCE_MINT AMOUNT")
			}

			var amount int64
			if _, err := fmt.Sscanf(c.Args().Get(2), "%d", &amount); err != nil {
				return fmt.Errorf("amount %q is not an integer", c.Args().Get(2))
			}

			serverURL := c.String("server")
			if serverURL == "" {
				serverURL = c.String("server-url")
			}

			httpClient := &http.Client{Timeout: c.Duration("timeout")}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError, // Only errors to stderr
			}))
			cl := client.NewClient(serverURL, httpClient, logger)

			resp, err := cl.BuildSwap(context.Background(), client.BuildSwapRequest{
				UserAddress:      c.Args().Get(0),
				SourceMint:       c.Args().Get(1),
				Amount:           amount,
				ThrottleWindowMs: c.Int64("throttle-window-ms"),
			})
			if err != nil {
				return fmt.Errorf("failed to build swap: %w", err)
			}

			if filter := c.String("filter"); filter != "" {
				return printFiltered(resp, filter)
			}

			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal response: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func feePayerCommand() *cli.Command {
	return &cli.Command{
		Name:  "fee-payer",
		Usage: "Print the service's fee-payer public key",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "HTTP server URL (overrides --server-url)",
				EnvVars: []string{"GASLESS_SERVER_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server")
			if serverURL == "" {
				serverURL = c.String("server-url")
			}

			cl := client.NewClient(serverURL, nil, nil)
			feePayer, err := cl.FeePayer(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch fee payer: %w", err)
			}
			fmt.Println(feePayer)
			return nil
		},
	}
}

// printFiltered round-trips v through JSON and prints each value the jq
// expression produces.
func printFiltered(v interface{}, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	iter := code.Run(doc)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := out.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal filter output: %w", err)
		}
		fmt.Println(string(data))
	}
	return nil
}
