package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vidhub/apiserver/config"
	"github.com/vidhub/apiserver/internal/events"
	"github.com/vidhub/apiserver/internal/logging"
	"github.com/vidhub/apiserver/internal/mq"
	"go.uber.org/zap"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect auth events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print auth events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open mq: %w", err)
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer func() { _ = queue.Close() }()

		logger.Info("tailing auth events", zap.String("channel", cfg.MQ.Channel))
		err = events.Consume(ctx, queue, cfg.MQ.Channel, logger, func(_ context.Context, e events.Event) error {
			logger.Info("auth event",
				zap.String("type", e.Type),
				zap.String("user_id", e.UserID),
				zap.Time("at", e.At),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
