// Package action defines the closed set of workspace mutations the
// assistant may propose, and the sanitizer that coerces model output
// into that set.
package action

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind identifies one of the permitted action shapes.
type Kind string

const (
	KindAddTask             Kind = "add_task"
	KindAddProject          Kind = "add_project"
	KindUpdateTaskStatus    Kind = "update_task_status"
	KindUpdateProjectStatus Kind = "update_project_status"

	// KindUnknown marks a payload whose type did not match any known
	// shape. It is carried through so the controller can report it;
	// applying it is a no-op.
	KindUnknown Kind = "unknown"
)

// Task status values in the workspace.
const (
	TaskTodo   = "Todo"
	TaskDoing  = "Doing"
	TaskDone   = "Done"
	TaskPaused = "Paused"
)

// Project status values in the workspace.
const (
	ProjectMain       = "Main"
	ProjectSupport    = "Support"
	ProjectExperiment = "Experiment"
	ProjectPaused     = "Paused"
	ProjectDone       = "Done"
)

// Priority values for tasks.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

var (
	taskStatuses    = []string{TaskTodo, TaskDoing, TaskDone, TaskPaused}
	projectStatuses = []string{ProjectMain, ProjectSupport, ProjectExperiment, ProjectPaused, ProjectDone}
	priorities      = []string{PriorityHigh, PriorityMedium, PriorityLow}
)

// Action is a single sanitized workspace mutation. Which fields are
// meaningful depends on Kind; unused fields are empty.
type Action struct {
	Kind     Kind   `json:"type"`
	Title    string `json:"title,omitempty"`    // add_task, update_task_status
	Name     string `json:"name,omitempty"`     // add_project, update_project_status
	Project  string `json:"project,omitempty"`  // add_task
	Priority string `json:"priority,omitempty"` // add_task
	Status   string `json:"status,omitempty"`   // add_project, update_*_status
	KPI      string `json:"kpi,omitempty"`      // add_project

	// Raw preserves the original payload for unknown kinds.
	Raw map[string]any `json:"-"`
}

// Sanitize coerces an untyped payload from the model into a safe Action.
// It never fails: out-of-enum fields are clamped to defaults, missing
// strings become empty, and unrecognized types are preserved as
// KindUnknown for reporting.
func Sanitize(raw map[string]any) Action {
	kind := Kind(str(raw, "type"))
	switch kind {
	case KindAddTask:
		return Action{
			Kind:     kind,
			Title:    str(raw, "title"),
			Project:  str(raw, "project"),
			Priority: clampEnum(str(raw, "priority"), priorities, PriorityMedium),
		}
	case KindAddProject:
		return Action{
			Kind:   kind,
			Name:   str(raw, "name"),
			Status: clampEnum(str(raw, "status"), projectStatuses, ProjectExperiment),
			KPI:    str(raw, "kpi"),
		}
	case KindUpdateTaskStatus:
		return Action{
			Kind:   kind,
			Title:  str(raw, "title"),
			Status: clampEnum(str(raw, "status"), taskStatuses, TaskTodo),
		}
	case KindUpdateProjectStatus:
		return Action{
			Kind:   kind,
			Name:   str(raw, "name"),
			Status: clampEnum(str(raw, "status"), projectStatuses, ProjectExperiment),
		}
	default:
		return Action{Kind: KindUnknown, Raw: raw}
	}
}

// SanitizeAll sanitizes a slice of untyped payloads, skipping entries
// that are not objects.
func SanitizeAll(raws []any) []Action {
	var out []Action
	for _, r := range raws {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Sanitize(obj))
	}
	return out
}

// Describe renders a single numbered preview line for the proposal
// message shown to the operator.
func (a Action) Describe(i int) string {
	switch a.Kind {
	case KindAddTask:
		project := a.Project
		if project == "" {
			project = "General"
		}
		return fmt.Sprintf("%d. add_task: %s | project=%s | priority=%s", i, a.Title, project, a.Priority)
	case KindAddProject:
		return fmt.Sprintf("%d. add_project: %s | status=%s", i, a.Name, a.Status)
	case KindUpdateTaskStatus:
		return fmt.Sprintf("%d. update_task_status: %s -> %s", i, a.Title, a.Status)
	case KindUpdateProjectStatus:
		return fmt.Sprintf("%d. update_project_status: %s -> %s", i, a.Name, a.Status)
	default:
		payload, _ := json.Marshal(a.Raw)
		return fmt.Sprintf("%d. unknown_action: %s", i, payload)
	}
}

var titleCaser = cases.Title(language.English)

// clampEnum matches v against allowed values case-insensitively and
// returns the canonical spelling, or def when nothing matches.
func clampEnum(v string, allowed []string, def string) string {
	v = titleCaser.String(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return def
}

// str extracts a trimmed string field from an untyped payload.
func str(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
