package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// do sends body as JSON (when non-nil) and decodes the response into v
// (when non-nil).
func (c *Client) do(method, path string, body, v any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) get(path string, v any) error { return c.do(http.MethodGet, path, nil, v) }

func (c *Client) post(path string, body, v any) error { return c.do(http.MethodPost, path, body, v) }

type taskRow struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	StartTime   string `json:"start_time"`
	IsImportant bool   `json:"is_important"`
	ListName    string `json:"list_name"`
}

type listRow struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Icon           string `json:"icon"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
}

type chatReply struct {
	Response string `json:"response"`
	Source   string `json:"source"`
}

type authReply struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func (c *Client) Login(username, password string) (*authReply, error) {
	var resp authReply
	err := c.post("/api/auth/login", map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Chat(message string) (*chatReply, error) {
	var resp chatReply
	if err := c.post("/api/ai/chat", map[string]string{"message": message}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Tasks(listID int64, hideCompleted bool) ([]taskRow, error) {
	q := url.Values{}
	if listID > 0 {
		q.Set("list_id", fmt.Sprint(listID))
	}
	if hideCompleted {
		q.Set("show_completed", "false")
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []taskRow
	return tasks, c.get(path, &tasks)
}

func (c *Client) Search(query string) ([]taskRow, error) {
	var resp struct {
		Results []taskRow `json:"results"`
	}
	if err := c.get("/api/search?q="+url.QueryEscape(query), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) Lists() ([]listRow, error) {
	var lists []listRow
	return lists, c.get("/api/lists", &lists)
}

// tokenPath is where login stores the session token.
func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "taskpilot", "token"), nil
}

func saveToken(token string) (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(token), 0o600)
}

func loadToken() string {
	path, err := tokenPath()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
