// Package config defines the cooagent application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level cooagent configuration.
type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	OpenAI   OpenAIConfig   `json:"openai" yaml:"openai"`
	Notion   NotionConfig   `json:"notion" yaml:"notion"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// TelegramConfig controls the bot transport and the operator allowlist.
type TelegramConfig struct {
	BotToken        string `json:"bot_token" yaml:"bot_token"`
	AllowedUserID   int64  `json:"allowed_user_id,omitempty" yaml:"allowed_user_id"`
	AllowedUsername string `json:"allowed_username,omitempty" yaml:"allowed_username"`
}

// OpenAIConfig controls the language-model collaborator.
type OpenAIConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	Model      string `json:"model" yaml:"model"`
	EmbedModel string `json:"embed_model" yaml:"embed_model"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url"`
}

// NotionConfig controls the workspace gateway.
type NotionConfig struct {
	Token        string `json:"token" yaml:"token"`
	ParentPageID string `json:"parent_page_id" yaml:"parent_page_id"`

	// Optional preseeded ids. When all three are set the gateway skips
	// search-or-create on first use.
	WorkspacePageID string `json:"workspace_page_id,omitempty" yaml:"workspace_page_id"`
	TasksDBID       string `json:"tasks_db_id,omitempty" yaml:"tasks_db_id"`
	ProjectsDBID    string `json:"projects_db_id,omitempty" yaml:"projects_db_id"`

	// AccessPhrase gates workspace reads and mutations behind /unlock.
	// A value starting with "$2" is treated as a bcrypt hash, anything
	// else as the plain phrase. Empty disables the unlock gate.
	AccessPhrase string `json:"access_phrase,omitempty" yaml:"access_phrase"`
}

// MemoryConfig controls the conversational memory store.
type MemoryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	DBPath      string `json:"db_path" yaml:"db_path"`
	RecentTurns int    `json:"recent_turns" yaml:"recent_turns"`
	SemanticK   int    `json:"semantic_k" yaml:"semantic_k"`
}

// ServerConfig controls the local status HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., "127.0.0.1:9091"; empty disables
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:      "gpt-4o",
			EmbedModel: "text-embedding-3-small",
		},
		Memory: MemoryConfig{
			Enabled:     true,
			DBPath:      "./cooagent.db",
			RecentTurns: 12,
			SemanticK:   8,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:9091",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates required fields. An empty path skips the file and runs
// env-only, matching container deployments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and operator identity from the environment.
func (c *Config) applyEnv() {
	overlay(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overlay(&c.Telegram.AllowedUsername, "TELEGRAM_ALLOWED_USERNAME")
	overlay(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	overlay(&c.OpenAI.Model, "OPENAI_MODEL")
	overlay(&c.Notion.Token, "NOTION_TOKEN")
	overlay(&c.Notion.AccessPhrase, "NOTION_ACCESS_PHRASE")
	overlayID(&c.Notion.ParentPageID, "NOTION_PARENT_PAGE_ID")
	overlayID(&c.Notion.WorkspacePageID, "NOTION_WORKSPACE_PAGE_ID")
	overlayID(&c.Notion.TasksDBID, "NOTION_TASKS_DB_ID")
	overlayID(&c.Notion.ProjectsDBID, "NOTION_PROJECTS_DB_ID")

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_ALLOWED_USER_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.AllowedUserID = id
		}
	}
}

// Validate checks that required collaborator credentials are present
// and clamps nonsense numeric settings back to defaults.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram bot_token is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: openai api_key is required")
	}
	if c.Notion.Token == "" {
		return fmt.Errorf("config: notion token is required")
	}
	if c.Notion.ParentPageID == "" {
		return fmt.Errorf("config: notion parent_page_id is required")
	}
	if c.Memory.RecentTurns <= 0 {
		c.Memory.RecentTurns = 12
	}
	if c.Memory.SemanticK <= 0 {
		c.Memory.SemanticK = 8
	}
	return nil
}

func overlay(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// overlayID is overlay with Notion id normalization (dashes stripped).
func overlayID(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = strings.ReplaceAll(v, "-", "")
	}
}
