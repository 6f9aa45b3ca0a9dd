package inspect

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/config"
	"github.com/urfave/cli/v3"
)

// Flags returns the global flags shared by every archive command.
func Flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Connection ────────────────────────────────────────────
		&cli.StringFlag{
			Name:     "config",
			Category: "Connection:",
			Sources:  cli.EnvVars("CHAT_ARCHIVE_CONFIG"),
			Usage:    "YAML or JSON config file (chat agent config.json keys are accepted)",
		},
		&cli.StringFlag{
			Name:        "mongo-url",
			Category:    "Connection:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_MONGO_URL", "MONGODB_URI"),
			Destination: &cfg.MongoURL,
			Value:       cfg.MongoURL,
			Usage:       "MongoDB connection URI",
		},
		&cli.StringFlag{
			Name:        "db",
			Category:    "Connection:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_DB"),
			Destination: &cfg.Database,
			Value:       cfg.Database,
			Usage:       "Database holding the checkpoints",
		},
		&cli.StringFlag{
			Name:        "collection",
			Category:    "Connection:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_COLLECTION"),
			Destination: &cfg.Collection,
			Value:       cfg.Collection,
			Usage:       "Checkpoint collection name",
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Category:    "Connection:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_TIMEOUT"),
			Destination: &cfg.Timeout,
			Value:       cfg.Timeout,
			Usage:       "Deadline for a single command, connection included (0 = none)",
		},

		// ── Documents ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "thread-field",
			Category:    "Documents:",
			Destination: &cfg.ThreadField,
			Value:       cfg.ThreadField,
			Usage:       "Field holding the thread identifier",
		},
		&cli.StringFlag{
			Name:        "checkpoint-field",
			Category:    "Documents:",
			Destination: &cfg.CheckpointField,
			Value:       cfg.CheckpointField,
			Usage:       "Field holding the checkpoint payload",
		},

		// ── Output ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "limit",
			Category:    "Output:",
			Destination: &cfg.Limit,
			Value:       cfg.Limit,
			Usage:       "Maximum number of documents to print (0 = all)",
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Category:    "Output:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_OUTPUT"),
			Destination: &cfg.Output,
			Value:       cfg.Output,
			Usage:       "Output format (json|yaml|table)",
		},
		&cli.StringFlag{
			Name:        "jq",
			Category:    "Output:",
			Destination: &cfg.JQ,
			Usage:       "jq expression applied to the result before printing",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Output:",
			Sources:     cli.EnvVars("CHAT_ARCHIVE_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
	}
}

// Before finalises cfg once flags are parsed: it overlays the config file,
// validates, applies the log level and stores cfg in the context.
func Before(cfg *config.Config) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if err := applyConfigFile(cmd, cfg); err != nil {
			return ctx, err
		}
		if err := cfg.Validate(); err != nil {
			return ctx, err
		}
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return ctx, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		log.SetLevel(level)
		return config.WithContext(ctx, cfg), nil
	}
}

// applyConfigFile loads --config into cfg. Flags and environment variables
// that were set explicitly take precedence over the file.
func applyConfigFile(cmd *cli.Command, cfg *config.Config) error {
	path := cmd.String("config")
	if path == "" {
		return nil
	}
	explicit := *cfg
	if err := config.LoadFile(path, cfg); err != nil {
		return err
	}
	log.Debug("Loaded config file", "path", path)

	keep := map[string]func(){
		"mongo-url":        func() { cfg.MongoURL = explicit.MongoURL },
		"db":               func() { cfg.Database = explicit.Database },
		"collection":       func() { cfg.Collection = explicit.Collection },
		"timeout":          func() { cfg.Timeout = explicit.Timeout },
		"thread-field":     func() { cfg.ThreadField = explicit.ThreadField },
		"checkpoint-field": func() { cfg.CheckpointField = explicit.CheckpointField },
		"limit":            func() { cfg.Limit = explicit.Limit },
	}
	for name, restore := range keep {
		if cmd.IsSet(name) {
			restore()
		}
	}
	return nil
}
