package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config captures everything one run needs. Mail settings come from an
// env file (or the process environment); operational knobs are flags.
type Config struct {
	MailServer      string
	SMTPPort        int
	POP3Port        int
	FromEmail       string
	ToEmail         string
	MailboxUser     string
	MailboxPassword string
	LogLevel        string
	LogDir          string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "acronsum.env", "Path to the env file with mail settings")
	flags.Int("smtp-port", 25, "Outbound mail server port")
	flags.Int("pop3-port", 995, "Mailbox server port (POP3 over TLS)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (default: stdout only)")
}

// Load reads the env file named by --config (when it exists), merges
// the process environment on top, and validates the result. Any
// missing or malformed value is a fatal startup error; the run must
// abort before touching the mailbox.
func Load(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	smtpPort, err := flags.GetInt("smtp-port")
	if err != nil {
		return Config{}, err
	}
	pop3Port, err := flags.GetInt("pop3-port")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(path); err != nil {
		// A missing file is fine when the environment already carries
		// the settings; anything else is a config error.
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		MailServer:      os.Getenv("MAIL_SERVER"),
		SMTPPort:        smtpPort,
		POP3Port:        pop3Port,
		FromEmail:       os.Getenv("FROM_EMAIL"),
		ToEmail:         os.Getenv("TO_EMAIL"),
		MailboxUser:     os.Getenv("MAILBOX_USER"),
		MailboxPassword: os.Getenv("MAILBOX_PASSWORD"),
		LogLevel:        logLevel,
		LogDir:          logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.MailServer == "" {
		return fmt.Errorf("MAIL_SERVER is required")
	}
	if cfg.FromEmail == "" {
		return fmt.Errorf("FROM_EMAIL is required")
	}
	if cfg.ToEmail == "" {
		return fmt.Errorf("TO_EMAIL is required")
	}
	if cfg.MailboxUser == "" {
		return fmt.Errorf("MAILBOX_USER is required")
	}
	if cfg.MailboxPassword == "" {
		return fmt.Errorf("MAILBOX_PASSWORD is required")
	}
	if _, err := mail.ParseAddress(cfg.FromEmail); err != nil {
		return fmt.Errorf("FROM_EMAIL %q is not a valid address: %w", cfg.FromEmail, err)
	}
	if _, err := mail.ParseAddress(cfg.ToEmail); err != nil {
		return fmt.Errorf("TO_EMAIL %q is not a valid address: %w", cfg.ToEmail, err)
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return fmt.Errorf("--smtp-port must be between 1 and 65535")
	}
	if cfg.POP3Port <= 0 || cfg.POP3Port > 65535 {
		return fmt.Errorf("--pop3-port must be between 1 and 65535")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
