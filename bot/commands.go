package bot

import (
	"context"
	"fmt"

	"github.com/focuslock/cooagent/telegram"
)

const helpText = `I run your FOCUS LOCK system.
ID: /myid
0) /unlock <access phrase> - open workspace access
1) /setup - prepare the Notion workspace
2) /newtask <text> - add a task
3) /newproject <name> - add a project
4) /focus - current snapshot of projects and tasks
5) Voice or text - I reply as your COO and may propose workspace changes
6) /approve - apply the proposed changes
7) /reject - discard the proposed changes`

// handleCommand dispatches the operator command surface.
func (b *Bot) handleCommand(ctx context.Context, chatID int64, from *telegram.User, cmd, args string) {
	switch cmd {
	case "/start":
		b.send(ctx, chatID, fmt.Sprintf(
			"COO agent online.\nYour user_id: %d\nYour username: @%s\nCommands: /myid, /setup, /focus, /newtask <text>, /newproject <name>, /approve, /reject.",
			from.ID, from.Username))

	case "/help":
		b.send(ctx, chatID, helpText)

	case "/myid":
		b.send(ctx, chatID, fmt.Sprintf(
			"Your TELEGRAM_ALLOWED_USER_ID: %d\nYour TELEGRAM_ALLOWED_USERNAME: @%s",
			from.ID, from.Username))

	case "/unlock":
		b.cmdUnlock(ctx, chatID, from.ID, args)

	case "/setup":
		if !b.guardWorkspace(ctx, chatID, from.ID) {
			return
		}
		ids, err := b.cfg.Workspace.EnsureWorkspace(ctx)
		if err != nil {
			b.logger.Error("setup failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace setup failed: %v", err))
			return
		}
		b.send(ctx, chatID, fmt.Sprintf(
			"Done. Notion workspace is ready.\nWORKSPACE_PAGE_ID=%s\nTASKS_DB_ID=%s\nPROJECTS_DB_ID=%s",
			ids.WorkspacePageID, ids.TasksDBID, ids.ProjectsDBID))

	case "/focus":
		if !b.guardWorkspace(ctx, chatID, from.ID) {
			return
		}
		snapshot, err := b.cfg.Workspace.FocusSnapshot(ctx)
		if err != nil {
			b.logger.Error("focus snapshot failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace error: %v", err))
			return
		}
		b.send(ctx, chatID, snapshot)

	case "/newtask":
		if !b.guardWorkspace(ctx, chatID, from.ID) {
			return
		}
		if args == "" {
			b.send(ctx, chatID, "Usage: /newtask <task text>")
			return
		}
		id, err := b.cfg.Workspace.AddTask(ctx, args, "", "")
		if err != nil {
			b.logger.Error("newtask failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace error: %v", err))
			return
		}
		b.send(ctx, chatID, "Task added to Notion. ID: "+id)

	case "/newproject":
		if !b.guardWorkspace(ctx, chatID, from.ID) {
			return
		}
		if args == "" {
			b.send(ctx, chatID, "Usage: /newproject <project name>")
			return
		}
		id, err := b.cfg.Workspace.AddProject(ctx, args, "", "")
		if err != nil {
			b.logger.Error("newproject failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace error: %v", err))
			return
		}
		b.send(ctx, chatID, "Project added to Notion. ID: "+id)

	case "/approve":
		if !b.guardWorkspace(ctx, chatID, from.ID) {
			return
		}
		b.approve(ctx, chatID, from.ID)

	case "/reject":
		b.reject(ctx, chatID, from.ID)

	default:
		b.send(ctx, chatID, "Unknown command. See /help.")
	}
}

// cmdUnlock handles the access-phrase challenge. With no phrase
// configured, unlock always succeeds.
func (b *Bot) cmdUnlock(ctx context.Context, chatID, userID int64, phrase string) {
	if b.settings.Notion.AccessPhrase == "" {
		b.unlock(userID)
		b.send(ctx, chatID, "Workspace access open (no access phrase configured).")
		return
	}
	if b.phraseMatches(phrase) {
		b.unlock(userID)
		b.send(ctx, chatID, "Workspace access open.")
		return
	}
	b.send(ctx, chatID, "Wrong phrase.")
}

// guardWorkspace enforces the unlock gate on workspace-touching
// commands, prompting for /unlock when needed.
func (b *Bot) guardWorkspace(ctx context.Context, chatID, userID int64) bool {
	if b.workspaceAllowed(userID) {
		return true
	}
	b.send(ctx, chatID, "First run /unlock <access phrase>.")
	return false
}
