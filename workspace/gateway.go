package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/focuslock/cooagent/action"
)

// Fixed container titles in Notion.
const (
	workspaceTitle  = "COO Workspace"
	tasksDBTitle    = "COO Tasks"
	projectsDBTitle = "COO Projects"
)

// Field limits imposed by the Notion API.
const (
	maxTitleLen = 2000
	maxTextLen  = 1000
)

// Snapshot and lookup page sizes.
const (
	snapshotProjects = 10
	snapshotTasks    = 12
	lookupRows       = 50
	searchRows       = 20
)

// IDs identifies the three structural anchors of the workspace.
type IDs struct {
	WorkspacePageID string
	TasksDBID       string
	ProjectsDBID    string
}

// Gateway performs workspace operations against Notion. Resolved ids
// are cached for the lifetime of the instance. The cache mutex only
// protects the field itself: two concurrent first calls can still both
// run the search-or-create sequence and leave duplicate containers
// behind, which is accepted for a single-operator deployment.
type Gateway struct {
	client       *Client
	parentPageID string

	mu     sync.Mutex
	cached *IDs
}

// New creates a Gateway. preseeded may carry ids from config; it is
// used only when all three ids are present.
func New(client *Client, parentPageID string, preseeded IDs) *Gateway {
	g := &Gateway{client: client, parentPageID: parentPageID}
	if preseeded.WorkspacePageID != "" && preseeded.TasksDBID != "" && preseeded.ProjectsDBID != "" {
		g.cached = &preseeded
	}
	return g
}

// EnsureWorkspace returns the workspace ids, resolving or creating the
// root page and both databases on first use. Idempotent across calls.
func (g *Gateway) EnsureWorkspace(ctx context.Context) (IDs, error) {
	g.mu.Lock()
	if g.cached != nil {
		ids := *g.cached
		g.mu.Unlock()
		return ids, nil
	}
	g.mu.Unlock()

	pageID, err := g.findPageByTitle(ctx, workspaceTitle)
	if err != nil {
		return IDs{}, err
	}
	if pageID == "" {
		pageID, err = g.createWorkspacePage(ctx)
		if err != nil {
			return IDs{}, err
		}
	}

	projectsID, err := g.findDatabaseByTitle(ctx, projectsDBTitle)
	if err != nil {
		return IDs{}, err
	}
	if projectsID == "" {
		projectsID, err = g.client.CreateDatabase(ctx, pageID, projectsDBTitle, map[string]any{
			"Name": map[string]any{"title": map[string]any{}},
			"Status": map[string]any{"select": map[string]any{
				"options": selectOptions(action.ProjectMain, action.ProjectSupport, action.ProjectExperiment, action.ProjectPaused, action.ProjectDone),
			}},
			"KPI":   map[string]any{"rich_text": map[string]any{}},
			"Notes": map[string]any{"rich_text": map[string]any{}},
		})
		if err != nil {
			return IDs{}, fmt.Errorf("create projects database: %w", err)
		}
	}

	tasksID, err := g.findDatabaseByTitle(ctx, tasksDBTitle)
	if err != nil {
		return IDs{}, err
	}
	if tasksID == "" {
		tasksID, err = g.client.CreateDatabase(ctx, pageID, tasksDBTitle, map[string]any{
			"Name": map[string]any{"title": map[string]any{}},
			"Status": map[string]any{"select": map[string]any{
				"options": selectOptions(action.TaskTodo, action.TaskDoing, action.TaskDone, action.TaskPaused),
			}},
			"Priority": map[string]any{"select": map[string]any{
				"options": selectOptions(action.PriorityHigh, action.PriorityMedium, action.PriorityLow),
			}},
			"Project": map[string]any{"rich_text": map[string]any{}},
			"Energy": map[string]any{"select": map[string]any{
				"options": selectOptions("High", "Normal", "Low"),
			}},
		})
		if err != nil {
			return IDs{}, fmt.Errorf("create tasks database: %w", err)
		}
	}

	ids := IDs{WorkspacePageID: pageID, TasksDBID: tasksID, ProjectsDBID: projectsID}
	g.mu.Lock()
	g.cached = &ids
	g.mu.Unlock()
	return ids, nil
}

// createWorkspacePage creates the root page under the configured parent,
// falling back to the account top level when the parent id is invalid or
// inaccessible. The fallback keeps a misconfigured parent from bricking
// first-run setup.
func (g *Gateway) createWorkspacePage(ctx context.Context) (string, error) {
	parent := map[string]any{"type": "page_id", "page_id": g.parentPageID}
	props := map[string]Property{"title": Title(workspaceTitle)}

	id, err := g.client.CreatePage(ctx, parent, props)
	if err == nil {
		return id, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == 404 || apiErr.StatusCode == 400) {
		id, err = g.client.CreatePage(ctx, map[string]any{"type": "workspace", "workspace": true}, props)
		if err != nil {
			return "", fmt.Errorf("create workspace page at top level: %w", err)
		}
		return id, nil
	}
	return "", fmt.Errorf("create workspace page: %w", err)
}

// AddTask creates a task row with Status=Todo and returns its page id.
func (g *Gateway) AddTask(ctx context.Context, text, project, priority string) (string, error) {
	ids, err := g.EnsureWorkspace(ctx)
	if err != nil {
		return "", err
	}
	if project == "" {
		project = "General"
	}
	if priority == "" {
		priority = action.PriorityMedium
	}
	id, err := g.client.CreatePage(ctx, map[string]any{"database_id": ids.TasksDBID}, map[string]Property{
		"Name":     Title(clip(text, maxTitleLen)),
		"Status":   Select(action.TaskTodo),
		"Priority": Select(priority),
		"Project":  Text(clip(project, maxTextLen)),
		"Energy":   Select("Normal"),
	})
	if err != nil {
		return "", fmt.Errorf("add task: %w", err)
	}
	return id, nil
}

// AddProject creates a project row and returns its page id.
func (g *Gateway) AddProject(ctx context.Context, name, status, kpi string) (string, error) {
	ids, err := g.EnsureWorkspace(ctx)
	if err != nil {
		return "", err
	}
	if status == "" {
		status = action.ProjectExperiment
	}
	id, err := g.client.CreatePage(ctx, map[string]any{"database_id": ids.ProjectsDBID}, map[string]Property{
		"Name":   Title(clip(name, maxTitleLen)),
		"Status": Select(status),
		"KPI":    Text(clip(kpi, maxTextLen)),
	})
	if err != nil {
		return "", fmt.Errorf("add project: %w", err)
	}
	return id, nil
}

// FocusSnapshot renders a digest of non-done projects and tasks for use
// as model context and for the /focus command.
func (g *Gateway) FocusSnapshot(ctx context.Context) (string, error) {
	ids, err := g.EnsureWorkspace(ctx)
	if err != nil {
		return "", err
	}

	notDone := map[string]any{
		"property": "Status",
		"select":   map[string]any{"does_not_equal": "Done"},
	}

	projects, err := g.client.QueryDatabase(ctx, ids.ProjectsDBID, notDone, snapshotProjects)
	if err != nil {
		return "", fmt.Errorf("snapshot projects: %w", err)
	}
	tasks, err := g.client.QueryDatabase(ctx, ids.TasksDBID, notDone, snapshotTasks)
	if err != nil {
		return "", fmt.Errorf("snapshot tasks: %w", err)
	}

	var projectLines []string
	for _, p := range projects {
		name := rowName(p)
		status := SelectName(p.Properties["Status"], "Unknown")
		projectLines = append(projectLines, fmt.Sprintf("- %s [%s]", name, status))
	}
	var taskLines []string
	for _, t := range tasks {
		name := rowName(t)
		status := SelectName(t.Properties["Status"], "?")
		prio := SelectName(t.Properties["Priority"], "?")
		taskLines = append(taskLines, fmt.Sprintf("- %s (%s, %s)", name, status, prio))
	}

	projectsText := "- no active projects"
	if len(projectLines) > 0 {
		projectsText = strings.Join(projectLines, "\n")
	}
	tasksText := "- no active tasks"
	if len(taskLines) > 0 {
		tasksText = strings.Join(taskLines, "\n")
	}

	return fmt.Sprintf("Current workspace state:\nProjects:\n%s\n\nTasks:\n%s", projectsText, tasksText), nil
}

// ExecuteAction applies one sanitized action and returns a
// human-readable outcome line. A missing target is an outcome, not an
// error; only service failures propagate.
func (g *Gateway) ExecuteAction(ctx context.Context, a action.Action) (string, error) {
	switch a.Kind {
	case action.KindAddTask:
		id, err := g.AddTask(ctx, a.Title, a.Project, a.Priority)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Task added: %s (id %s)", a.Title, id), nil

	case action.KindAddProject:
		id, err := g.AddProject(ctx, a.Name, a.Status, a.KPI)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Project added: %s (id %s)", a.Name, id), nil

	case action.KindUpdateTaskStatus:
		ids, err := g.EnsureWorkspace(ctx)
		if err != nil {
			return "", err
		}
		pageID, name, err := g.lookupByName(ctx, ids.TasksDBID, a.Title)
		if err != nil {
			return "", err
		}
		if pageID == "" {
			return fmt.Sprintf("Task not found: %s", a.Title), nil
		}
		if err := g.client.UpdatePage(ctx, pageID, map[string]Property{"Status": Select(a.Status)}); err != nil {
			return "", fmt.Errorf("update task status: %w", err)
		}
		return fmt.Sprintf("Task %s -> %s", name, a.Status), nil

	case action.KindUpdateProjectStatus:
		ids, err := g.EnsureWorkspace(ctx)
		if err != nil {
			return "", err
		}
		pageID, name, err := g.lookupByName(ctx, ids.ProjectsDBID, a.Name)
		if err != nil {
			return "", err
		}
		if pageID == "" {
			return fmt.Sprintf("Project not found: %s", a.Name), nil
		}
		if err := g.client.UpdatePage(ctx, pageID, map[string]Property{"Status": Select(a.Status)}); err != nil {
			return "", fmt.Errorf("update project status: %w", err)
		}
		return fmt.Sprintf("Project %s -> %s", name, a.Status), nil

	default:
		return fmt.Sprintf("Skipped unknown action: %v", a.Raw), nil
	}
}

// lookupByName scans up to lookupRows rows of a database for a name.
// The first pass requires an exact normalized match; only when that
// finds nothing does a second pass accept a substring match. Ambiguous
// names resolve to the first row in iteration order.
func (g *Gateway) lookupByName(ctx context.Context, databaseID, target string) (pageID, name string, err error) {
	rows, err := g.client.QueryDatabase(ctx, databaseID, nil, lookupRows)
	if err != nil {
		return "", "", fmt.Errorf("lookup %q: %w", target, err)
	}

	want := normalizeName(target)
	for _, row := range rows {
		if normalizeName(rowName(row)) == want {
			return row.ID, rowName(row), nil
		}
	}
	for _, row := range rows {
		if strings.Contains(normalizeName(rowName(row)), want) {
			return row.ID, rowName(row), nil
		}
	}
	return "", "", nil
}

// findPageByTitle searches pages for an exact title match.
func (g *Gateway) findPageByTitle(ctx context.Context, title string) (string, error) {
	results, err := g.client.Search(ctx, title, "page", searchRows)
	if err != nil {
		return "", fmt.Errorf("search page %q: %w", title, err)
	}
	for _, r := range results {
		if PlainTitle(r.Properties["title"]) == title {
			return r.ID, nil
		}
	}
	return "", nil
}

// findDatabaseByTitle searches databases for an exact title match.
func (g *Gateway) findDatabaseByTitle(ctx context.Context, title string) (string, error) {
	results, err := g.client.Search(ctx, title, "database", searchRows)
	if err != nil {
		return "", fmt.Errorf("search database %q: %w", title, err)
	}
	for _, r := range results {
		var full string
		for _, rt := range r.Title {
			full += rt.PlainText
		}
		if full == title {
			return r.ID, nil
		}
	}
	return "", nil
}

// rowName extracts the Name title of a database row.
func rowName(p Page) string {
	name := PlainTitle(p.Properties["Name"])
	if name == "" {
		return "Untitled"
	}
	return name
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func selectOptions(names ...string) []map[string]string {
	opts := make([]map[string]string, len(names))
	for i, n := range names {
		opts[i] = map[string]string{"name": n}
	}
	return opts
}
