package planner

import "testing"

func TestParsePlanOutput(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantReply   string
		wantActions int
		wantOK      bool
	}{
		{
			name:      "direct object",
			in:        `{"reply":"hi","actions":[]}`,
			wantReply: "hi", wantActions: 0, wantOK: true,
		},
		{
			name:      "fenced with language tag",
			in:        "```json\n{\"reply\":\"hi\",\"actions\":[{\"type\":\"add_task\"}]}\n```",
			wantReply: "hi", wantActions: 1, wantOK: true,
		},
		{
			name:      "fenced without language tag",
			in:        "```\n{\"reply\":\"hi\"}\n```",
			wantReply: "hi", wantActions: 0, wantOK: true,
		},
		{
			name:   "prose",
			in:     "Sure, I'll add that task for you.",
			wantOK: false,
		},
		{
			name:   "JSON but not an object",
			in:     `["reply","actions"]`,
			wantOK: false,
		},
		{
			name:   "null",
			in:     `null`,
			wantOK: false,
		},
		{
			name:      "wrong-typed keys tolerated",
			in:        `{"reply":7,"actions":"nope"}`,
			wantReply: "", wantActions: 0, wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, actions, ok := parsePlanOutput(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if reply != tt.wantReply {
				t.Errorf("reply = %q, want %q", reply, tt.wantReply)
			}
			if len(actions) != tt.wantActions {
				t.Errorf("len(actions) = %d, want %d", len(actions), tt.wantActions)
			}
		})
	}
}
