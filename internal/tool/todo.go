package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tark/pkg/types"
)

// TodoItem is one step in a session's working plan.
type TodoItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // "pending" | "in_progress" | "completed"
}

// TodoTool reads and replaces a session's todo list, kept in memory
// per session for the lifetime of the registry. The list is not
// persisted: it is lost when the registry is discarded.
type TodoTool struct {
	workDir string
	mu      sync.Mutex
	bySession map[string][]TodoItem
}

func NewTodoTool(workDir string) *TodoTool {
	return &TodoTool{workDir: workDir, bySession: make(map[string][]TodoItem)}
}

func (t *TodoTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name: "todo",
		Description: `Reads or replaces the session's todo list.

Usage:
- action "read" returns the current list
- action "write" replaces it with the provided items`,
		Parameters: jsonSchema(`{
			"action": {"type": "string", "enum": ["read", "write"]},
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string"},
						"text": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
					}
				}
			}
		}`, "action"),
	}
}

func (t *TodoTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	action, _ := args["action"].(string)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch action {
	case "read":
		data, _ := json.Marshal(t.bySession[callCtx.SessionID])
		return &Result{Output: string(data)}, nil

	case "write":
		raw, err := json.Marshal(args["items"])
		if err != nil {
			return &Result{Output: err.Error(), IsError: true}, nil
		}
		var items []TodoItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return &Result{Output: err.Error(), IsError: true}, nil
		}
		t.bySession[callCtx.SessionID] = items
		return &Result{Output: fmt.Sprintf("saved %d todo items", len(items))}, nil

	default:
		return nil, fmt.Errorf("action must be \"read\" or \"write\"")
	}
}
