package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("NOTION_TOKEN", "ntn-token")
	t.Setenv("NOTION_PARENT_PAGE_ID", "abc123")
}

func TestLoadEnvOnly(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "tg-token" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("default model = %q", cfg.OpenAI.Model)
	}
	if cfg.Memory.RecentTurns != 12 || cfg.Memory.SemanticK != 8 {
		t.Errorf("memory defaults = %+v", cfg.Memory)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
telegram:
  bot_token: from-file
openai:
  api_key: file-key
  model: gpt-4o-mini
notion:
  token: file-notion
  parent_page_id: filepage
`)
	setRequiredEnv(t)
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "tg-token" {
		t.Errorf("env must win over file, got %q", cfg.Telegram.BotToken)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
}

func TestNotionIDsNormalized(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NOTION_PARENT_PAGE_ID", "1234-5678-abcd")
	t.Setenv("NOTION_TASKS_DB_ID", "aa-bb-cc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notion.ParentPageID != "12345678abcd" {
		t.Errorf("parent id = %q, dashes must be stripped", cfg.Notion.ParentPageID)
	}
	if cfg.Notion.TasksDBID != "aabbcc" {
		t.Errorf("tasks db id = %q", cfg.Notion.TasksDBID)
	}
}

func TestAllowedUserIDParsed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TELEGRAM_ALLOWED_USER_ID", "123456789")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.AllowedUserID != 123456789 {
		t.Errorf("allowed user id = %d", cfg.Telegram.AllowedUserID)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		skip string // env var left unset
		want string
	}{
		{"missing bot token", "TELEGRAM_BOT_TOKEN", "bot_token"},
		{"missing api key", "OPENAI_API_KEY", "api_key"},
		{"missing notion token", "NOTION_TOKEN", "notion token"},
		{"missing parent page", "NOTION_PARENT_PAGE_ID", "parent_page_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skip, "")

			_, err := Load("")
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateClampsNonsenseNumbers(t *testing.T) {
	path := writeConfigFile(t, `
memory:
  enabled: true
  recent_turns: -3
  semantic_k: 0
`)
	setRequiredEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.RecentTurns != 12 || cfg.Memory.SemanticK != 8 {
		t.Errorf("memory = %+v, want clamped defaults", cfg.Memory)
	}
}

func TestLoadMissingFile(t *testing.T) {
	setRequiredEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing config file")
	}
}
