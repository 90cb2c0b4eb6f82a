package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	messenger "github.com/TheAlpha16/messenger-go"
)

func main() {
	var address, channel string

	cmd := &cobra.Command{
		Use:   "quick_start",
		Short: "Send a ping between two providers over valkey pub/sub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), address, channel)
		},
	}
	cmd.Flags().StringVar(&address, "address", "localhost:6379", "valkey server address")
	cmd.Flags().StringVar(&channel, "channel", "messenger-demo", "channel name prefix")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, address, channel string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client, err := messenger.NewValkeyClient(address)
	if err != nil {
		return fmt.Errorf("failed to connect to valkey: %w", err)
	}
	defer client.Close()

	hostInbox, workerInbox := channel+".host", channel+".worker"

	// Each side publishes to the other's inbox
	hostTarget := messenger.NewValkeyTarget(client, hostInbox, workerInbox, messenger.WithLogger(logger))
	defer hostTarget.Close()
	workerTarget := messenger.NewValkeyTarget(client, workerInbox, hostInbox, messenger.WithLogger(logger))
	defer workerTarget.Close()

	host := messenger.NewMessagePortMessage(messenger.WithTarget(hostTarget))
	worker := messenger.NewMessagePortMessage(messenger.WithTarget(workerTarget))

	sub, err := worker.Messages(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	// Give the subscription a moment to register with the server
	time.Sleep(500 * time.Millisecond)

	if err := host.Send(ctx, map[string]any{"type": "ping", "id": 1}); err != nil {
		return fmt.Errorf("failed to send ping: %w", err)
	}

	select {
	case payload, ok := <-sub.C():
		if !ok {
			return sub.Err()
		}
		logger.Info("worker received", "payload", payload)
	case <-time.After(3 * time.Second):
		return fmt.Errorf("no message received")
	}

	return nil
}
