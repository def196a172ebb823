package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sponsorlab/gasless/service/cache"
	"github.com/urfave/cli/v2"
)

// cacheCommands inspects the shared Postgres cache store. These operate on
// the database directly, so they only work for deployments with DATABASE_URL
// set; single-node deployments using the in-memory store have nothing to
// inspect from outside the process.
func cacheCommands() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the shared cache store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Postgres connection string for the cache store",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
		},
		Subcommands: []*cli.Command{
			cacheGetCommand(),
			cacheGenesisCommand(),
			cacheRateGuardCommand(),
		},
	}
}

func cacheGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the raw value stored under a cache key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one argument: KEY")
			}
			return withCacheStore(c, func(ctx context.Context, store *cache.PostgresStore) error {
				value, found, err := store.Get(ctx, c.Args().Get(0))
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key not found: %s", c.Args().Get(0))
				}
				fmt.Println(string(value))
				return nil
			})
		},
	}
}

func cacheGenesisCommand() *cli.Command {
	return &cli.Command{
		Name:      "genesis",
		Usage:     "Print the memoized genesis hash for an RPC endpoint",
		ArgsUsage: "ENDPOINT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one argument: ENDPOINT")
			}
			return withCacheStore(c, func(ctx context.Context, store *cache.PostgresStore) error {
				value, found, err := store.Get(ctx, cache.GenesisKey(c.Args().Get(0)))
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no genesis hash memoized for endpoint %s", c.Args().Get(0))
				}
				fmt.Println(string(value))
				return nil
			})
		},
	}
}

func cacheRateGuardCommand() *cli.Command {
	return &cli.Command{
		Name:      "rate-guard",
		Usage:     "Show when a (user, mint) pair last completed a build",
		ArgsUsage: "USER_ADDRESS SOURCE_MINT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected exactly two arguments: USER_ADDRESS SOURCE_MINT")
			}
			user, mint := c.Args().Get(0), c.Args().Get(1)
			return withCacheStore(c, func(ctx context.Context, store *cache.PostgresStore) error {
				value, found, err := store.Get(ctx, cache.RateGuardKey(user, mint))
				if err != nil {
					return err
				}
				if !found {
					fmt.Println("no rate-guard entry (pair has never built, or entry was never armed)")
					return nil
				}
				milli, err := strconv.ParseInt(string(value), 10, 64)
				if err != nil {
					return fmt.Errorf("unparseable rate-guard value %q: %w", string(value), err)
				}
				last := time.UnixMilli(milli)
				fmt.Printf("last build: %s (%s ago)\n",
					last.UTC().Format(time.RFC3339), time.Since(last).Round(time.Millisecond))
				return nil
			})
		},
	}
}

// withCacheStore connects to the cache database for the duration of fn.
func withCacheStore(c *cli.Context, fn func(context.Context, *cache.PostgresStore) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, c.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cache.NewPostgresStore(pool))
}
