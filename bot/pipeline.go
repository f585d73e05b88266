package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/focuslock/cooagent/memory"
	"github.com/focuslock/cooagent/telegram"
)

// lockedSnapshot replaces the workspace snapshot in the planner context
// when the operator has not passed /unlock.
const lockedSnapshot = "Workspace unavailable: operator has not completed /unlock."

// maxOutcomeLines caps the approve report shown to the operator.
const maxOutcomeLines = 12

// handleText routes plain text: a "task:" prefix is a direct capture
// shortcut, everything else enters the proposal pipeline.
func (b *Bot) handleText(ctx context.Context, chatID, userID int64, text string) {
	if text == "" {
		return
	}

	if rest, ok := cutPrefixFold(text, "task:"); ok && rest != "" {
		if !b.guardWorkspace(ctx, chatID, userID) {
			return
		}
		id, err := b.cfg.Workspace.AddTask(ctx, rest, "", "")
		if err != nil {
			b.logger.Error("task capture failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace error: %v", err))
			return
		}
		b.send(ctx, chatID, "Saved the task to Notion. ID: "+id)
		return
	}

	b.processUserInput(ctx, chatID, userID, text)
}

// handleVoice transcribes a voice note and feeds the transcript through
// the same pipeline as text.
func (b *Bot) handleVoice(ctx context.Context, chatID, userID int64, voice *telegram.Voice) {
	b.send(ctx, chatID, "Got the voice note. Transcribing...")

	audio, err := b.cfg.Downloader.DownloadFile(ctx, voice.FileID)
	if err != nil {
		b.logger.Error("voice download failed", "error", err)
		b.send(ctx, chatID, "Could not fetch the voice note. Try again.")
		return
	}

	transcript := ""
	if b.cfg.Transcriber != nil {
		transcript, err = b.cfg.Transcriber.Transcribe(ctx, audio, "voice.ogg")
		if err != nil {
			b.logger.Error("transcription failed", "error", err)
		}
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		b.send(ctx, chatID, "Could not transcribe the voice note. Try again.")
		return
	}

	preview := transcript
	if len(preview) > 800 {
		preview = preview[:800]
	}
	b.send(ctx, chatID, "Transcribed: "+preview)
	b.processUserInput(ctx, chatID, userID, transcript)
}

// processUserInput is the core of the state machine: assemble context,
// ask the planner, stage a proposal when actions come back, and always
// answer the operator.
func (b *Bot) processUserInput(ctx context.Context, chatID, userID int64, text string) {
	mutationsAllowed := b.workspaceAllowed(userID)

	snapshot := lockedSnapshot
	if mutationsAllowed {
		s, err := b.cfg.Workspace.FocusSnapshot(ctx)
		if err != nil {
			// A failed workspace read is surfaced, not guessed around.
			b.logger.Error("snapshot failed", "error", err)
			b.send(ctx, chatID, fmt.Sprintf("Workspace error: %v", err))
			return
		}
		snapshot = s
	}

	contextBlock := snapshot
	if b.cfg.Memory != nil {
		if mem := b.memoryBlock(ctx, userID, text); mem != "" {
			contextBlock = snapshot + "\n\n" + mem
		}
	}

	plan := b.cfg.Planner.MakePlan(ctx, text, contextBlock, mutationsAllowed)
	reply := strings.TrimSpace(plan.Reply)
	if reply == "" {
		reply = "Could not produce a reply."
	}

	b.rememberExchange(ctx, userID, text, reply)

	if len(plan.Actions) == 0 {
		b.send(ctx, chatID, reply)
		return
	}

	b.proposals.Stage(userID, plan.Actions, reply)

	var preview []string
	for i, a := range plan.Actions {
		preview = append(preview, a.Describe(i+1))
	}
	b.send(ctx, chatID, fmt.Sprintf(
		"%s\n\nProposed Notion changes (awaiting confirmation):\n%s\n\nConfirm with /approve or discard with /reject",
		reply, strings.Join(preview, "\n")))
}

// approve applies the staged proposal action by action. One failing
// action never aborts its siblings; the proposal is cleared once
// application has been attempted, whatever the outcomes.
func (b *Bot) approve(ctx context.Context, chatID, userID int64) {
	proposal, ok := b.proposals.Take(userID)
	if !ok {
		b.send(ctx, chatID, "No proposed changes to apply.")
		return
	}

	var outcomes []string
	for _, a := range proposal.Actions {
		result, err := b.cfg.Workspace.ExecuteAction(ctx, a)
		if err != nil {
			b.logger.Error("action failed on approve", "kind", a.Kind, "error", err)
			outcomes = append(outcomes, fmt.Sprintf("Notion change failed: %v", err))
			continue
		}
		outcomes = append(outcomes, result)
	}

	if len(outcomes) == 0 {
		b.send(ctx, chatID, "No changes applied.")
		return
	}
	if len(outcomes) > maxOutcomeLines {
		outcomes = outcomes[:maxOutcomeLines]
	}
	b.send(ctx, chatID, "Applied Notion changes:\n- "+strings.Join(outcomes, "\n- "))
}

// reject discards the staged proposal if there is one.
func (b *Bot) reject(ctx context.Context, chatID, userID int64) {
	if b.proposals.Clear(userID) {
		b.send(ctx, chatID, "Ok, the Notion changes were rejected.")
		return
	}
	b.send(ctx, chatID, "No active plan to reject.")
}

// memoryBlock assembles recent-turn and semantic context; any memory
// trouble yields an empty block rather than an error.
func (b *Bot) memoryBlock(ctx context.Context, userID int64, query string) string {
	return memory.FormatContext(b.cfg.Memory.GetContext(ctx, userID, query))
}

// rememberExchange records both sides of the exchange and promotes
// substantial operator input to long-term memory. Best effort.
func (b *Bot) rememberExchange(ctx context.Context, userID int64, userText, reply string) {
	if b.cfg.Memory == nil {
		return
	}
	if err := b.cfg.Memory.RememberTurn(ctx, userID, "user", userText); err != nil {
		b.logger.Warn("remember user turn failed", "error", err)
	}
	if err := b.cfg.Memory.RememberTurn(ctx, userID, "assistant", reply); err != nil {
		b.logger.Warn("remember assistant turn failed", "error", err)
	}
	if err := b.cfg.Memory.RememberFact(ctx, userID, userText); err != nil {
		b.logger.Warn("remember fact failed", "error", err)
	}
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding on the prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
