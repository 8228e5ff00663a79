package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/logging"
	"github.com/iliyamo/slot-booking/internal/queue"
)

func newConsumeCmd() *cobra.Command {
	var path string

	c := &cobra.Command{
		Use:   "consume",
		Short: "Append booking.confirmed events to a log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			consumer := &queue.Consumer{URL: cfg.AMQPURL, Sink: &queue.FileSink{Path: path}, Log: log}
			log.WithField("path", path).Info("consuming " + queue.BookingConfirmedQueue)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	c.Flags().StringVar(&path, "log-path", queue.DefaultLogPath, "file the events are appended to")
	return c
}
