// Package config loads the YAML configuration shared by every command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/qa-handoff/internal/adapters/asana"
	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/identity"
	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/storage/graph"
	"github.com/alekspetrov/qa-handoff/internal/storage/objstore"
	"github.com/alekspetrov/qa-handoff/internal/trigger"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Storage backend names.
const (
	BackendGraph = "graph"
	BackendS3    = "s3"
	BackendNone  = "none"
)

// Config represents the main configuration
type Config struct {
	Version  string           `yaml:"version"`
	Logging  *logging.Config  `yaml:"logging"`
	Asana    *asana.Config    `yaml:"asana"`
	Identity *identity.Config `yaml:"identity"`
	Storage  *StorageConfig   `yaml:"storage"`
	Handoff  *handoff.Config  `yaml:"handoff"`
	Trigger  *trigger.Config  `yaml:"trigger"`
	Journal  *JournalConfig   `yaml:"journal"`
	Metrics  *MetricsConfig   `yaml:"metrics"`
}

// StorageConfig selects and configures the folder backend
type StorageConfig struct {
	Backend string          `yaml:"backend"` // graph, s3, none
	Graph   *GraphConfig    `yaml:"graph"`
	S3      objstore.Config `yaml:"s3"`
}

// GraphConfig holds Microsoft Graph settings
type GraphConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// JournalConfig holds run journal settings
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version:  "1.0",
		Logging:  logging.DefaultConfig(),
		Asana:    asana.DefaultConfig(),
		Identity: &identity.Config{Authority: identity.DefaultAuthority},
		Storage: &StorageConfig{
			Backend: BackendGraph,
			Graph:   &GraphConfig{BaseURL: graph.BaseURL},
		},
		Handoff: handoff.DefaultConfig(),
		Trigger: trigger.DefaultConfig(),
		Journal: &JournalConfig{
			Path: filepath.Join(homeDir, ".qa-handoff", "journal.db"),
		},
		Metrics: &MetricsConfig{
			Enabled:   true,
			Namespace: "qa_handoff",
		},
	}
}

// Load loads configuration from a file. A .env file next to the config (or
// in the working directory) is loaded first; it never overrides variables
// already set in the environment.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Journal != nil {
		config.Journal.Path = expandPath(config.Journal.Path)
	}
	if config.Logging != nil && config.Logging.Output != "" {
		config.Logging.Output = expandPath(config.Logging.Output)
	}

	return config, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".qa-handoff", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks what every command needs: tracker access, gate settings,
// patterns and the storage backend.
func (c *Config) Validate() error {
	if c.Asana == nil || c.Asana.AccessToken == "" {
		return invalid("asana.access_token is required")
	}
	if c.Asana.WorkspaceID == "" {
		return invalid("asana.workspace_id is required")
	}

	h := c.Handoff
	if h == nil || h.Gate == nil {
		return invalid("handoff.gate is required")
	}
	if strings.TrimSpace(h.Gate.RequiredStatus) == "" {
		return invalid("handoff.gate.required_status is required")
	}
	if strings.TrimSpace(h.Gate.CheckboxField) == "" {
		return invalid("handoff.gate.checkbox_field is required")
	}
	if h.Gate.RecheckDelay < 0 {
		return invalid("handoff.gate.recheck_delay must not be negative")
	}
	if h.PreviewPattern != "" {
		if _, err := regexp.Compile(h.PreviewPattern); err != nil {
			return invalid("handoff.preview_pattern: %v", err)
		}
	}
	if h.Artifacts != nil && h.Artifacts.ImagePattern != "" {
		if _, err := regexp.Compile(h.Artifacts.ImagePattern); err != nil {
			return invalid("handoff.artifacts.image_pattern: %v", err)
		}
	}
	if h.Comment != nil {
		switch h.Comment.Mode {
		case "", comment.ModeDraft, comment.ModeFinal:
		default:
			return invalid("handoff.comment.mode %q must be draft or final", h.Comment.Mode)
		}
	}

	if c.Storage == nil {
		return invalid("storage is required")
	}
	switch c.Storage.Backend {
	case BackendGraph, BackendNone, "":
	case BackendS3:
		if c.Storage.S3.Endpoint == "" {
			return invalid("storage.s3.endpoint is required for the s3 backend")
		}
	default:
		return invalid("unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}

// ValidateServe additionally checks the trigger server settings.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Trigger == nil || c.Trigger.Secret == "" {
		return invalid("trigger.secret is required to serve")
	}
	if c.Trigger.Listen == "" {
		return invalid("trigger.listen is required to serve")
	}
	gh := c.Trigger.GitHub
	if gh == nil || gh.Token == "" || gh.Owner == "" || gh.Repo == "" || gh.Workflow == "" {
		return invalid("trigger.github token, owner, repo and workflow are required to serve")
	}
	return nil
}
