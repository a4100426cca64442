package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/swvincent/acronis-summary/config"
	"github.com/swvincent/acronis-summary/mailbox"
	"github.com/swvincent/acronis-summary/report"
	"github.com/swvincent/acronis-summary/runner"
	"github.com/swvincent/acronis-summary/send"
	"github.com/swvincent/acronis-summary/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "acronsum",
		Short: "Summarize Acronis backup log emails into one daily report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting acronsum", "mailServer", cfg.MailServer, "to", cfg.ToEmail)

			return run(cfg, logger)
		},
	}

	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	collector := stats.NewCollector()

	session, err := mailbox.Dial(mailbox.Options{
		Host:     cfg.MailServer,
		Port:     cfg.POP3Port,
		Username: cfg.MailboxUser,
		Password: cfg.MailboxPassword,
	})
	if err != nil {
		return fmt.Errorf("mailbox.Dial: %w", err)
	}

	reader, err := mailbox.NewReader(session, collector, logger)
	if err != nil {
		return fmt.Errorf("mailbox.NewReader: %w", err)
	}

	smtpAddr := net.JoinHostPort(cfg.MailServer, strconv.Itoa(cfg.SMTPPort))
	sender := send.NewSender(smtpAddr, send.DefaultRetryPolicy(), logger).WithCollector(collector)

	r, err := runner.New(runner.Options{
		Mailbox:   reader,
		Renderer:  &report.Renderer{},
		Sender:    sender,
		Collector: collector,
		Logger:    logger,
		From:      cfg.FromEmail,
		To:        cfg.ToEmail,
	})
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	runErr := r.Run()

	summary := collector.Snapshot()
	logger.Info("run finished", summary.LogAttrs()...)
	if cfg.LogLevel == "info" && cfg.LogDir == "" {
		summary.PrettyPrint()
	}

	return runErr
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("acronsum-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
