// Package workspace talks to the Notion API: it maintains the root
// page and the Tasks/Projects databases, and applies approved actions
// against them.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultBaseURL   = "https://api.notion.com"
	notionAPIVersion = "2022-06-28"
)

// Client is a minimal Notion REST API client covering the operations
// the gateway needs: create page, create database, query, update, search.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Notion client authenticated with the given token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	StatusCode int
	Code       string // Notion error code, e.g. "object_not_found", "validation_error"
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// RichText is one fragment of Notion rich text.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

// TextContent is the writable part of a rich text fragment.
type TextContent struct {
	Content string `json:"content"`
}

// SelectOption is a single-select value.
type SelectOption struct {
	Name string `json:"name"`
}

// Property is a page property in the subset of types the workspace uses.
type Property struct {
	Title    []RichText    `json:"title,omitempty"`
	RichText []RichText    `json:"rich_text,omitempty"`
	Select   *SelectOption `json:"select,omitempty"`
}

// Page is a Notion page (a row, when it lives in a database).
type Page struct {
	ID         string              `json:"id"`
	Object     string              `json:"object"`
	Title      []RichText          `json:"title,omitempty"` // set on database objects
	Properties map[string]Property `json:"properties,omitempty"`
}

// PlainTitle flattens a title property into a plain string.
func PlainTitle(p Property) string {
	var out string
	for _, rt := range p.Title {
		if rt.PlainText != "" {
			out += rt.PlainText
		} else if rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}

// SelectName returns the select value name or def when unset.
func SelectName(p Property, def string) string {
	if p.Select == nil || p.Select.Name == "" {
		return def
	}
	return p.Select.Name
}

// Title builds a title property value.
func Title(content string) Property {
	return Property{Title: []RichText{{Type: "text", Text: &TextContent{Content: content}}}}
}

// Text builds a rich_text property value.
func Text(content string) Property {
	return Property{RichText: []RichText{{Type: "text", Text: &TextContent{Content: content}}}}
}

// Select builds a select property value.
func Select(name string) Property {
	return Property{Select: &SelectOption{Name: name}}
}

// CreatePage creates a page under the given parent and returns its id.
// Parent is either {"type":"page_id","page_id":...},
// {"database_id":...} or {"type":"workspace","workspace":true}.
func (c *Client) CreatePage(ctx context.Context, parent map[string]any, properties map[string]Property) (string, error) {
	reqBody := map[string]any{
		"parent":     parent,
		"properties": properties,
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", reqBody, &page); err != nil {
		return "", err
	}
	return page.ID, nil
}

// CreateDatabase creates a database under a page and returns its id.
// properties is the column schema in the API's own shape, e.g.
// {"Name": {"title": {}}, "Status": {"select": {"options": [...]}}}.
func (c *Client) CreateDatabase(ctx context.Context, parentPageID, title string, properties map[string]any) (string, error) {
	reqBody := map[string]any{
		"parent":     map[string]any{"type": "page_id", "page_id": parentPageID},
		"title":      []RichText{{Type: "text", Text: &TextContent{Content: title}}},
		"properties": properties,
	}
	var db Page
	if err := c.do(ctx, http.MethodPost, "/v1/databases", reqBody, &db); err != nil {
		return "", err
	}
	return db.ID, nil
}

// QueryDatabase returns up to pageSize rows matching the filter.
// A nil filter returns rows unfiltered.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any, pageSize int) ([]Page, error) {
	reqBody := map[string]any{"page_size": pageSize}
	if filter != nil {
		reqBody["filter"] = filter
	}
	var result struct {
		Results []Page `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+databaseID+"/query", reqBody, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// UpdatePage patches the given properties on a page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]Property) error {
	reqBody := map[string]any{"properties": properties}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, reqBody, nil)
}

// Search runs a title search filtered to "page" or "database" objects.
func (c *Client) Search(ctx context.Context, query, objectType string, pageSize int) ([]Page, error) {
	reqBody := map[string]any{
		"query":     query,
		"filter":    map[string]any{"property": "object", "value": objectType},
		"page_size": pageSize,
	}
	var result struct {
		Results []Page `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/search", reqBody, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// do issues an authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("notion: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("notion: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("notion: unmarshal response: %w", err)
		}
	}
	return nil
}
