// Package bot implements the proposal/confirmation controller: it turns
// operator messages into planner calls, stages proposed workspace
// changes, and applies them only after an explicit approve decision.
package bot

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/focuslock/cooagent/action"
	"github.com/focuslock/cooagent/config"
	"github.com/focuslock/cooagent/memory"
	"github.com/focuslock/cooagent/planner"
	"github.com/focuslock/cooagent/provider"
	"github.com/focuslock/cooagent/telegram"
	"github.com/focuslock/cooagent/workspace"
)

const pollTimeout = 50 * time.Second

// Workspace is the gateway surface the controller drives.
type Workspace interface {
	EnsureWorkspace(ctx context.Context) (workspace.IDs, error)
	AddTask(ctx context.Context, text, project, priority string) (string, error)
	AddProject(ctx context.Context, name, status, kpi string) (string, error)
	FocusSnapshot(ctx context.Context) (string, error)
	ExecuteAction(ctx context.Context, a action.Action) (string, error)
}

// Planner produces replies and plans from operator input.
type Planner interface {
	Reply(ctx context.Context, userText, contextBlock string) string
	MakePlan(ctx context.Context, userText, contextBlock string, mutationsAllowed bool) planner.Plan
}

// Memory is the optional conversational memory collaborator.
type Memory interface {
	RememberTurn(ctx context.Context, userID int64, role, content string) error
	RememberFact(ctx context.Context, userID int64, text string) error
	GetContext(ctx context.Context, userID int64, query string) memory.Context
}

// Sender delivers outbound text to the messaging channel.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Downloader fetches attachment bytes from the messaging channel.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Config wires the bot's collaborators.
type Config struct {
	Settings *config.Config

	Telegram    *telegram.Client // used by Run for long polling
	Sender      Sender
	Downloader  Downloader
	Workspace   Workspace
	Planner     Planner
	Memory      Memory // nil disables memory
	Transcriber provider.Transcriber

	Logger *slog.Logger
}

// Bot is the controller instance.
type Bot struct {
	cfg       Config
	settings  *config.Config
	logger    *slog.Logger
	proposals *ProposalStore

	mu       sync.Mutex
	unlocked map[int64]struct{}
}

// New creates a Bot. When Sender/Downloader are unset they default to
// the Telegram client.
func New(cfg Config) *Bot {
	if cfg.Sender == nil && cfg.Telegram != nil {
		cfg.Sender = cfg.Telegram
	}
	if cfg.Downloader == nil && cfg.Telegram != nil {
		cfg.Downloader = cfg.Telegram
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bot{
		cfg:       cfg,
		settings:  cfg.Settings,
		logger:    cfg.Logger,
		proposals: NewProposalStore(),
		unlocked:  make(map[int64]struct{}),
	}
}

// Proposals exposes the pending-proposal store (status endpoint).
func (b *Bot) Proposals() *ProposalStore { return b.proposals }

// UnlockedCount returns how many operators have passed /unlock.
func (b *Bot) UnlockedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unlocked)
}

// Run long-polls for updates until the context is canceled. Each update
// is handled in its own goroutine; overlapping inputs from the same
// operator keep last-write-wins proposal semantics.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.cfg.Telegram.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			go b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate routes one inbound update through the guard chain and
// into commands or the proposal pipeline.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.guardUser(ctx, chatID, msg.From) {
		return
	}

	switch {
	case msg.Voice != nil:
		b.handleVoice(ctx, chatID, userID, msg.Voice)
	case strings.HasPrefix(msg.Text, "/"):
		cmd, args := splitCommand(msg.Text)
		b.handleCommand(ctx, chatID, msg.From, cmd, args)
	default:
		b.handleText(ctx, chatID, userID, strings.TrimSpace(msg.Text))
	}
}

// guardUser enforces the operator allowlist. When an allowed id or
// username is configured, at least one must match; otherwise every
// input is rejected with a fixed denial and goes no further.
func (b *Bot) guardUser(ctx context.Context, chatID int64, from *telegram.User) bool {
	tg := b.settings.Telegram
	var checks []bool
	if tg.AllowedUserID != 0 {
		checks = append(checks, from.ID == tg.AllowedUserID)
	}
	if tg.AllowedUsername != "" {
		checks = append(checks, strings.EqualFold(from.Username, tg.AllowedUsername))
	}
	if len(checks) == 0 {
		return true
	}
	for _, ok := range checks {
		if ok {
			return true
		}
	}
	b.logger.Warn("blocked user", "user_id", from.ID, "username", from.Username)
	b.send(ctx, chatID, "Access denied.")
	return false
}

// workspaceAllowed reports whether the operator may read or mutate the
// workspace: always when no access phrase is configured, otherwise only
// after /unlock.
func (b *Bot) workspaceAllowed(userID int64) bool {
	if b.settings.Notion.AccessPhrase == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.unlocked[userID]
	return ok
}

// unlock grants the operator workspace access for the process lifetime.
func (b *Bot) unlock(userID int64) {
	b.mu.Lock()
	b.unlocked[userID] = struct{}{}
	b.mu.Unlock()
}

// phraseMatches compares a submitted phrase against the configured one.
// A configured value starting with "$2" is treated as a bcrypt hash.
func (b *Bot) phraseMatches(phrase string) bool {
	configured := b.settings.Notion.AccessPhrase
	if phrase == "" || configured == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(phrase)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(phrase)) == 1
}

// send delivers clamped text, logging delivery failures.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.cfg.Sender.SendMessage(ctx, chatID, telegram.Clamp(text)); err != nil {
		b.logger.Error("send failed", "chat_id", chatID, "error", err)
	}
}

// splitCommand splits "/cmd@bot arg..." into the bare command and its
// argument string.
func splitCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	cmd = text
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		cmd, args = text[:i], strings.TrimSpace(text[i+1:])
	}
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), args
}
