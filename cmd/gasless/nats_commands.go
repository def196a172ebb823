package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/sponsorlab/gasless/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to build events for a wallet.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to swap build events for a wallet",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to real-time build events published to NATS JetStream.

This command connects to NATS and streams build events for the specified wallet address.
Events are published to the subject: swaps.{wallet_address}

Example:
  gasless nats subscribe DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "gasless-cli",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			natsURL := c.String("nats-url")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			return streamBuildEvents(address, natsURL, durable, consumerName, jsonOutput)
		},
	}
}

// streamBuildEvents connects to NATS and streams swap build events.
func streamBuildEvents(address, natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := fmt.Sprintf("swaps.%s", address)

	if !jsonOutput {
		fmt.Printf("Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for build events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)

	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.SwapBuildEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				fmt.Printf("Build #%d\n", count)
				fmt.Printf("  User:          %s\n", event.UserAddress)
				fmt.Printf("  Source Mint:   %s\n", event.SourceMint)
				fmt.Printf("  Amount:        %d\n", event.Amount)
				fmt.Printf("  Out Amount:    %s lamports\n", event.OutAmount)
				fmt.Printf("  Network Fee:   %d lamports\n", event.NetworkFee)
				fmt.Printf("  Rent Float:    %d lamports\n", event.RentFloat)
				fmt.Printf("  Platform Fee:  %d lamports\n", event.PlatformFee)
				if event.BurnFee > 0 {
					fmt.Printf("  Burn Fee:      %d\n", event.BurnFee)
				}
				if event.TransferFee > 0 {
					fmt.Printf("  Transfer Fee:  %d\n", event.TransferFee)
				}
				fmt.Printf("  Built At:      %s\n\n", event.BuiltAt.Format(time.RFC3339))
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d build event(s)\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}
