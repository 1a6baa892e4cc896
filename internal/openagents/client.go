// Package openagents is a minimal client for the OpenAgents project service.
// The service speaks a JSON-RPC 2.0 tool-call protocol over a single HTTP
// endpoint; tool results come back as free-form text, so structured fields
// are recovered defensively (see parse.go).
package openagents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/smartchef/smartchef/internal/recipemd"
)

const (
	defaultBaseURL = "http://localhost:8700"

	pollInterval   = 2 * time.Second
	defaultTimeout = 120 * time.Second
)

var (
	// ErrNoProjectID means the start_project response text did not contain a
	// recognizable project identifier in any known shape.
	ErrNoProjectID = errors.New("could not extract project id from response")

	// ErrGenerationFailed means the upstream project reached an explicit
	// failed or stopped status.
	ErrGenerationFailed = errors.New("recipe generation failed")

	// ErrGenerationTimeout means the poll deadline elapsed with no terminal
	// status and no content observed.
	ErrGenerationTimeout = errors.New("recipe generation timed out")
)

// Project is the polled view of one upstream unit of work.
type Project struct {
	ID       string
	Status   string
	Messages []string
}

// Client talks to one OpenAgents instance.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// PollInterval overrides the fixed 2s wait between status polls.
	// Intended for tests; zero means the default.
	PollInterval time.Duration

	requestID atomic.Int64
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) rpcCall(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openagents: status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openagents: decoding response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("openagents: %s", decoded.Error.Message)
	}
	return decoded.Result, nil
}

// callTool invokes one tool and returns the text of its first content block.
func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := c.rpcCall(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return "", fmt.Errorf("openagents: parsing tool result: %w", err)
	}
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			return tc.Text, nil
		}
	}
	return "", nil
}

// CheckHealth reports whether the service answers a harmless tool call.
// It never returns an error.
func (c *Client) CheckHealth(ctx context.Context) bool {
	_, err := c.callTool(ctx, "list_project_templates", map[string]any{})
	return err == nil
}

// CreateRecipeProject starts a recipe project and returns its id. The
// response is unstructured text; id extraction is best-effort across three
// observed shapes and fails with ErrNoProjectID when none match.
func (c *Client) CreateRecipeProject(ctx context.Context, dish string, tier recipemd.Tier, location string) (string, error) {
	_ = location // carried for future templates; current ones price by goal only

	templateID := "budget_recipe"
	if tier == recipemd.TierLuxury {
		templateID = "luxury_recipe"
	}

	text, err := c.callTool(ctx, "start_project", map[string]any{
		"template_id": templateID,
		"goal":        dish,
		"name":        fmt.Sprintf("%s %s", tier, dish),
	})
	if err != nil {
		return "", err
	}

	id := extractProjectID(text)
	if id == "" {
		slog.Warn("start_project response had no parseable id", "response", text)
		return "", ErrNoProjectID
	}
	return id, nil
}

// GetProject fetches the current status and message texts of a project.
// Parse failures degrade to status "unknown" with no messages.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	text, err := c.callTool(ctx, "get_project", map[string]any{
		"project_id": projectID,
	})
	if err != nil {
		return Project{}, err
	}

	status, messages := parseProjectText(text)
	return Project{ID: projectID, Status: status, Messages: messages}, nil
}

// GetProjectResult polls the project every PollInterval until it completes,
// fails, or the timeout elapses. It accumulates incremental message texts
// and keeps the most recent as the best result so far. Transient poll errors
// are logged and skipped; only failed/stopped status or the deadline ends
// the loop early.
func (c *Client) GetProjectResult(ctx context.Context, projectID string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = pollInterval
	}

	deadline := time.Now().Add(timeout)
	lastContent := ""
	lastMessageCount := 0

	slog.Info("waiting for project to complete", "project_id", projectID)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		project, err := c.GetProject(ctx, projectID)
		if err != nil {
			slog.Warn("project status check failed", "project_id", projectID, "error", err)
			continue
		}

		if len(project.Messages) > lastMessageCount {
			for _, msg := range project.Messages[lastMessageCount:] {
				if msg != "" {
					lastContent = msg
				}
			}
			lastMessageCount = len(project.Messages)
		}

		switch project.Status {
		case "completed":
			slog.Info("project completed", "project_id", projectID, "content_len", len(lastContent))
			if lastContent == "" {
				return "Recipe completed but no content received.", nil
			}
			return lastContent, nil
		case "failed", "stopped":
			slog.Warn("project terminated without result", "project_id", projectID, "status", project.Status)
			return "", ErrGenerationFailed
		}
	}

	if lastContent != "" {
		slog.Warn("project poll timed out, returning partial content", "project_id", projectID)
		return lastContent, nil
	}
	return "", ErrGenerationTimeout
}
