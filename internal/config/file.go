package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the chat agent's config.json keys. JSON is a subset of
// YAML, so the same decoder reads both.
type fileConfig struct {
	ConnectionString *string `yaml:"mongodb_connection_string"`
	DatabaseName     *string `yaml:"mongodb_chat_history_db_name"`
	CollectionName   *string `yaml:"mongodb_chat_history_collection_name"`
	ThreadField      *string `yaml:"thread_field"`
	CheckpointField  *string `yaml:"checkpoint_field"`
	Limit            *int    `yaml:"limit"`
	Timeout          *string `yaml:"timeout"`
}

// LoadFile overlays the settings found in path onto cfg. Keys absent from
// the file leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	applyString(fc.ConnectionString, &cfg.MongoURL)
	applyString(fc.DatabaseName, &cfg.Database)
	applyString(fc.CollectionName, &cfg.Collection)
	applyString(fc.ThreadField, &cfg.ThreadField)
	applyString(fc.CheckpointField, &cfg.CheckpointField)
	if fc.Limit != nil {
		cfg.Limit = *fc.Limit
	}
	if fc.Timeout != nil {
		d, err := parseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("parsing config: invalid timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}

func applyString(src *string, dest *string) {
	if src == nil {
		return
	}
	if v := strings.TrimSpace(*src); v != "" {
		*dest = v
	}
}

// parseDuration accepts Go durations ("30s") and bare seconds ("30").
func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("duration must not be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("unsupported format %q", raw)
}
