package planner

import (
	"encoding/json"
	"strings"
)

// parsePlanOutput parses model output as a {reply, actions} JSON object.
// First a direct parse is tried; on failure a wrapping code fence is
// stripped and the parse retried. ok is false when no object could be
// recovered, which callers treat as "degrade to plain reply".
func parsePlanOutput(output string) (reply string, actions []any, ok bool) {
	obj, ok := parseObject(output)
	if !ok {
		obj, ok = parseObject(stripCodeFence(output))
	}
	if !ok {
		return "", nil, false
	}

	if r, isStr := obj["reply"].(string); isStr {
		reply = strings.TrimSpace(r)
	}
	if a, isList := obj["actions"].([]any); isList {
		actions = a
	}
	return reply, actions, true
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

// stripCodeFence removes a wrapping ``` block, with or without a
// language tag, returning the inner text.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop a language tag such as "json" on the fence line.
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
