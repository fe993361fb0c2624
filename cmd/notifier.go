/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cosmetica/apiserver/config"
	"github.com/cosmetica/apiserver/internal/mailer"
	"github.com/cosmetica/apiserver/internal/notify"
	"github.com/cosmetica/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// notifierCmd runs the email notification worker.
var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Starts the email notification worker",
	Long: `Consumes account notification events from the queue and delivers
them over SMTP. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		sender, err := mailer.New(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("configure mailer: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := server.NewQueue(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer func() {
			_ = queue.Close()
		}()

		worker := notify.NewWorker(queue, cfg.MQ.NotificationsQueue, sender, logger)
		logger.Info("notifier worker started", zap.String("queue", cfg.MQ.NotificationsQueue))

		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}
