package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Output formats understood by the render package.
const (
	OutputJSON  = "json"
	OutputYAML  = "yaml"
	OutputTable = "table"
)

// Config holds all configuration for the chat archive inspector.
type Config struct {
	// MongoDB connection URI.
	MongoURL string

	// Database and collection holding the checkpoint documents.
	Database   string
	Collection string

	// Document fields used for grouping and for the checkpoint payload.
	// These are plain field names; the "$" prefix is added when the
	// aggregation pipeline is built.
	ThreadField     string
	CheckpointField string

	// Limit caps the number of documents printed. 0 means no cap.
	Limit int

	// Timeout bounds a single command, connection included.
	Timeout time.Duration

	// Output is one of OutputJSON, OutputYAML or OutputTable.
	Output string

	// JQ is an optional gojq filter applied before output encoding.
	JQ string

	LogLevel string
}

// DefaultConfig returns a Config matching the chat agent's defaults.
func DefaultConfig() Config {
	return Config{
		MongoURL:        "mongodb://localhost:27017",
		Database:        "chat_checkpoints_db",
		Collection:      "chat_checkpoints",
		ThreadField:     "thread_id",
		CheckpointField: "checkpoint",
		Timeout:         30 * time.Second,
		Output:          OutputJSON,
		LogLevel:        "info",
	}
}

// WritesCollection returns the name of the pending-writes collection the
// checkpointer keeps next to the checkpoint collection.
func (c *Config) WritesCollection() string {
	return c.Collection + "_writes"
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MongoURL) == "" {
		return fmt.Errorf("mongo url is required")
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database name is required")
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("collection name is required")
	}
	if err := ValidateFieldName(c.ThreadField); err != nil {
		return fmt.Errorf("thread field: %w", err)
	}
	if err := ValidateFieldName(c.CheckpointField); err != nil {
		return fmt.Errorf("checkpoint field: %w", err)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch c.Output {
	case OutputJSON, OutputYAML, OutputTable:
	default:
		return fmt.Errorf("unknown output format %q (json|yaml|table)", c.Output)
	}
	return nil
}

// ValidateFieldName checks that name can be referenced as "$"+name in an
// aggregation expression. The server rejects field path segments that
// start with '$' (e.g. "checkpoint.$binary.base64").
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name is empty")
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return fmt.Errorf("field path %q has an empty segment", name)
		}
		if strings.HasPrefix(part, "$") {
			return fmt.Errorf("field path %q: field names may not start with '$'", name)
		}
	}
	return nil
}
