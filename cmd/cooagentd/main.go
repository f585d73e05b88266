// Command cooagentd runs the personal COO assistant bridge: it polls
// Telegram for operator messages, plans workspace changes with OpenAI,
// and applies approved changes to Notion.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/focuslock/cooagent/bot"
	"github.com/focuslock/cooagent/config"
	"github.com/focuslock/cooagent/internal/version"
	"github.com/focuslock/cooagent/memory"
	"github.com/focuslock/cooagent/planner"
	"github.com/focuslock/cooagent/provider"
	"github.com/focuslock/cooagent/server"
	"github.com/focuslock/cooagent/telegram"
	"github.com/focuslock/cooagent/workspace"
)

var configPath = flag.String("config", "", "path to YAML config file (optional, env vars also apply)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting cooagentd",
		"version", version.Version,
		"commit", version.Commit,
	)

	openai := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.Model,
		EmbedModel: cfg.OpenAI.EmbedModel,
		BaseURL:    cfg.OpenAI.BaseURL,
	})

	var mem bot.Memory
	if cfg.Memory.Enabled {
		store, err := memory.Open(cfg.Memory.DBPath, openai, cfg.Memory.RecentTurns, cfg.Memory.SemanticK)
		if err != nil {
			log.Fatalf("Failed to open memory store: %v", err)
		}
		defer store.Close()
		mem = store
	} else {
		logger.Info("memory store disabled")
	}

	gateway := workspace.New(
		workspace.NewClient(cfg.Notion.Token),
		cfg.Notion.ParentPageID,
		workspace.IDs{
			WorkspacePageID: cfg.Notion.WorkspacePageID,
			TasksDBID:       cfg.Notion.TasksDBID,
			ProjectsDBID:    cfg.Notion.ProjectsDBID,
		},
	)

	b := bot.New(bot.Config{
		Settings:    cfg,
		Telegram:    telegram.NewClient(cfg.Telegram.BotToken),
		Workspace:   gateway,
		Planner:     planner.NewOpenAI(openai),
		Memory:      mem,
		Transcriber: openai,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var statusSrv *server.Server
	if cfg.Server.Addr != "" {
		statusSrv = server.New(cfg.Server.Addr, b, version.Version, logger)
		statusSrv.Start()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped", "error", err)
	}

	if statusSrv != nil {
		if err := statusSrv.Shutdown(context.Background()); err != nil {
			logger.Error("status server shutdown error", "error", err)
		}
	}
	logger.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
