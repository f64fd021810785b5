package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"tark/internal/tool"
)

func TestToolWrapper_ImplementsInterface(t *testing.T) {
	mcpTool := Tool{
		Name:        "test_server_test_tool",
		Description: "A test tool",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"input":{"type":"string"}}}`),
	}

	wrapper := NewToolWrapper(mcpTool, nil)

	var _ tool.Tool = wrapper

	def := wrapper.Definition()
	assert.Equal(t, "test_server_test_tool", def.Name)
	assert.Equal(t, "A test tool", def.Description)
	assert.NotNil(t, def.Parameters)
}

func TestToolWrapper_Definition(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"numbers":{"type":"array","description":"Numbers to add"}}}`)
	wrapper := NewToolWrapper(Tool{
		Name:        "calculator_sum",
		Description: "Calculates the sum of an array of numbers",
		InputSchema: schema,
	}, nil)

	def := wrapper.Definition()
	assert.Equal(t, "calculator_sum", def.Name)
	assert.Contains(t, def.Description, "sum")
	assert.JSONEq(t, string(schema), string(def.Parameters))
}

func TestRegisterTools_NilClient(t *testing.T) {
	registry := tool.NewRegistry("")
	RegisterTools(nil, registry)
	assert.Empty(t, registry.Definitions())
}

func TestRegisterTools_NilRegistry(t *testing.T) {
	client := NewClient()
	defer client.Close()
	RegisterTools(client, nil)
}

func TestRegisterTools_NoServers(t *testing.T) {
	client := NewClient()
	defer client.Close()
	registry := tool.NewRegistry("")

	RegisterTools(client, registry)

	assert.Empty(t, registry.Definitions())
}
