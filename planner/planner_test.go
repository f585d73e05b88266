package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/focuslock/cooagent/action"
	"github.com/focuslock/cooagent/provider"
	"github.com/focuslock/cooagent/provider/mock"
)

const planJSON = `{"reply":"On it.","actions":[{"type":"add_task","title":"Redesign onboarding","priority":"High"}]}`

func TestMakePlanParsesActions(t *testing.T) {
	p := New(mock.New(planJSON))

	plan := p.MakePlan(context.Background(), "add a task", "ctx", true)
	if plan.Reply != "On it." {
		t.Errorf("Reply = %q, want %q", plan.Reply, "On it.")
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(plan.Actions))
	}
	a := plan.Actions[0]
	if a.Kind != action.KindAddTask || a.Title != "Redesign onboarding" || a.Priority != action.PriorityHigh {
		t.Errorf("unexpected action: %+v", a)
	}
}

func TestMakePlanStripsCodeFence(t *testing.T) {
	p := New(mock.New("```json\n" + planJSON + "\n```"))

	plan := p.MakePlan(context.Background(), "add a task", "", true)
	if len(plan.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(plan.Actions))
	}
}

func TestMakePlanMutationsLockedForcesEmptyActions(t *testing.T) {
	raw := `{"reply":"Done planning.","actions":[{"type":"add_task","title":"a"},{"type":"add_task","title":"b"},{"type":"add_task","title":"c"}]}`
	p := New(mock.New(raw))

	plan := p.MakePlan(context.Background(), "do things", "", false)
	if len(plan.Actions) != 0 {
		t.Errorf("len(Actions) = %d, want 0 when mutations are locked", len(plan.Actions))
	}
	if plan.Reply != "Done planning." {
		t.Errorf("Reply = %q", plan.Reply)
	}
}

func TestMakePlanNonJSONDegradesToPlainReply(t *testing.T) {
	// First call returns junk, the retry inside the degrade path gets prose.
	m := mock.New("definitely { not json", "A plain answer.")
	p := New(m)

	plan := p.MakePlan(context.Background(), "hello", "", true)
	if plan.Reply != "A plain answer." {
		t.Errorf("Reply = %q, want plain-reply fallback output", plan.Reply)
	}
	if len(plan.Actions) != 0 {
		t.Errorf("len(Actions) = %d, want 0", len(plan.Actions))
	}
	if len(m.Calls) != 2 {
		t.Errorf("provider calls = %d, want 2 (plan + degraded reply)", len(m.Calls))
	}
}

func TestReplyFallsBackWhenAllCandidatesFail(t *testing.T) {
	failing := mock.NewFailing(&provider.APIError{StatusCode: 400, Body: "bad model"})
	alsoFailing := mock.NewFailing(&provider.APIError{StatusCode: 500, Body: "boom"})
	p := New(failing, alsoFailing)

	got := p.Reply(context.Background(), "hi", "")
	if got != replyFallback {
		t.Errorf("Reply = %q, want fixed fallback %q", got, replyFallback)
	}
}

func TestChatFallsThroughToNextCandidate(t *testing.T) {
	bad := mock.NewFailing(&provider.APIError{StatusCode: 404, Body: "model not found"})
	good := mock.New("hello from fallback")
	p := New(bad, good)

	got := p.Reply(context.Background(), "hi", "")
	if got != "hello from fallback" {
		t.Errorf("Reply = %q, want fallback candidate output", got)
	}
}

func TestNewOpenAIDeduplicatesCandidates(t *testing.T) {
	base := provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: "k", Model: "gpt-4o"})
	p := NewOpenAI(base)
	if len(p.candidates) != 2 {
		t.Errorf("candidates = %d, want 2 (primary equals first fallback)", len(p.candidates))
	}

	base = provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: "k", Model: "o3-mini"})
	p = NewOpenAI(base)
	if len(p.candidates) != 3 {
		t.Errorf("candidates = %d, want 3", len(p.candidates))
	}
}

func TestPlanningPromptMentionsGate(t *testing.T) {
	m := mock.New(planJSON)
	p := New(m)

	p.MakePlan(context.Background(), "x", "", false)
	joined := flatten(m.Calls[0])
	if !strings.Contains(joined, "locked") {
		t.Errorf("locked-gate instruction missing from prompt: %q", joined)
	}

	m2 := mock.New(planJSON)
	New(m2).MakePlan(context.Background(), "x", "", true)
	if !strings.Contains(flatten(m2.Calls[0]), "permitted") {
		t.Error("permitted-gate instruction missing from prompt")
	}
}

func flatten(msgs []provider.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
