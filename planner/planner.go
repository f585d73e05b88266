// Package planner turns operator input into either a plain reply or a
// {reply, actions} plan, using an ordered list of candidate models.
package planner

import (
	"context"
	"log"
	"strings"

	"github.com/focuslock/cooagent/action"
	"github.com/focuslock/cooagent/provider"
)

// replyFallback is owed to the operator when every model call fails.
const replyFallback = "Could not produce a reply."

const systemPrompt = `You are a pragmatic chief operating officer for a solo founder.
You keep the founder focused: short, direct answers, one priority at a time.
You can see the current state of the founder's workspace (projects and tasks) in the context below.
Never claim a workspace change has already been made; changes you suggest are proposals awaiting the founder's approval.`

const planInstructions = `In addition to your reply, you may propose workspace changes.
Respond with a single JSON object and nothing else, with exactly these keys:
  "reply": string, your answer to the founder;
  "actions": array of proposed changes, empty if none.
Each action must be one of:
  {"type":"add_task","title":string,"project":string,"priority":"High"|"Medium"|"Low"}
  {"type":"add_project","name":string,"status":"Main"|"Support"|"Experiment"|"Paused"|"Done","kpi":string}
  {"type":"update_task_status","title":string,"status":"Todo"|"Doing"|"Done"|"Paused"}
  {"type":"update_project_status","name":string,"status":"Main"|"Support"|"Experiment"|"Paused"|"Done"}
Propose actions only when the founder clearly wants a change. Actions are proposals: they are applied only after explicit approval, so never state they are done.`

// fallbackModels are tried, in order, after the configured primary.
var fallbackModels = []string{"gpt-4o", "gpt-4o-mini"}

// Planner calls the model collaborator with an ordered candidate list.
type Planner struct {
	candidates []provider.Provider
}

// New creates a Planner over the given candidates, tried in order.
func New(candidates ...provider.Provider) *Planner {
	return &Planner{candidates: candidates}
}

// NewOpenAI builds the candidate list from an OpenAI provider: the
// configured model first, then the fixed fallbacks, de-duplicated.
func NewOpenAI(p *provider.OpenAIProvider) *Planner {
	seen := map[string]bool{p.Model(): true}
	candidates := []provider.Provider{p}
	for _, m := range fallbackModels {
		if seen[m] {
			continue
		}
		seen[m] = true
		candidates = append(candidates, p.WithModel(m))
	}
	return New(candidates...)
}

// Plan is the planner's structured output.
type Plan struct {
	Reply   string
	Actions []action.Action
}

// Reply produces a plain conversational answer. Failures are swallowed:
// a reply is always owed to the operator, so exhausting every candidate
// yields a fixed fallback string instead of an error.
func (p *Planner) Reply(ctx context.Context, userText, contextBlock string) string {
	resp, err := p.chat(ctx, p.messages(userText, contextBlock, false, false))
	if err != nil {
		log.Printf("planner: reply failed on all candidates: %v", err)
		return replyFallback
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return replyFallback
	}
	return out
}

// MakePlan asks the model for a {reply, actions} object. Parse failures
// degrade to a plain reply with no actions. When mutationsAllowed is
// false the action list is forced empty regardless of model output: the
// model's own instruction-following is not trusted as the sole gate.
func (p *Planner) MakePlan(ctx context.Context, userText, contextBlock string, mutationsAllowed bool) Plan {
	resp, err := p.chat(ctx, p.messages(userText, contextBlock, true, mutationsAllowed))
	if err != nil {
		log.Printf("planner: plan failed on all candidates: %v", err)
		return Plan{Reply: replyFallback}
	}

	reply, rawActions, ok := parsePlanOutput(resp.Content)
	if !ok {
		// Malformed plan output: degrade to conversation.
		return Plan{Reply: p.Reply(ctx, userText, contextBlock)}
	}
	if reply == "" {
		reply = replyFallback
	}

	plan := Plan{Reply: reply}
	if mutationsAllowed {
		plan.Actions = action.SanitizeAll(rawActions)
	}
	return plan
}

// chat walks the candidate list until one call succeeds. Both request
// validation and transport failures fall through to the next candidate;
// the last error is returned once the list is exhausted.
func (p *Planner) chat(ctx context.Context, msgs []provider.Message) (*provider.Response, error) {
	var lastErr error
	for _, c := range p.candidates {
		resp, err := c.Chat(ctx, msgs)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if provider.IsRequestInvalid(err) {
			log.Printf("planner: candidate rejected request, trying next: %v", err)
		} else {
			log.Printf("planner: candidate call failed, trying next: %v", err)
		}
	}
	return nil, lastErr
}

func (p *Planner) messages(userText, contextBlock string, planning, mutationsAllowed bool) []provider.Message {
	msgs := []provider.Message{{Role: provider.RoleSystem, Content: systemPrompt}}
	if planning {
		gate := "Workspace changes are currently locked: propose no actions."
		if mutationsAllowed {
			gate = "Workspace changes are currently permitted."
		}
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: planInstructions + "\n" + gate})
	}
	if contextBlock != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: "Context:\n" + contextBlock})
	}
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: userText})
	return msgs
}
