package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tark/pkg/types"
)

func testContext() *Context {
	ch := make(chan struct{})
	return &Context{SessionID: "sess-1", CallID: "call-1", AbortCh: ch}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	w := NewWriteTool(dir)
	res, err := w.Execute(context.Background(), testContext(), types.JSONValue{"filePath": path, "content": "hello\nworld\n"})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("write reported error: %s", res.Output)
	}

	r := NewReadTool(dir)
	readRes, err := r.Execute(context.Background(), testContext(), types.JSONValue{"filePath": path})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if readRes.Output == "" {
		t.Fatal("expected non-empty read output")
	}
}

func TestEditReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	if err := os.WriteFile(path, []byte("package main\nfunc foo() {}\n"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	e := NewEditTool(dir)
	res, err := e.Execute(context.Background(), testContext(), types.JSONValue{
		"filePath": path, "oldString": "func foo() {}", "newString": "func bar() {}",
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("edit reported error: %s", res.Output)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "package main\nfunc bar() {}\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestEditRejectsAmbiguousMatchWithoutReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("a\na\na\n"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	e := NewEditTool(dir)
	res, err := e.Execute(context.Background(), testContext(), types.JSONValue{
		"filePath": path, "oldString": "a", "newString": "b",
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error for an ambiguous match")
	}
}

func TestTodoReadWriteRoundTrip(t *testing.T) {
	tool := NewTodoTool(t.TempDir())
	ctx := testContext()

	_, err := tool.Execute(context.Background(), ctx, types.JSONValue{
		"action": "write",
		"items": []any{
			map[string]any{"id": "1", "text": "do the thing", "status": "pending"},
		},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, err := tool.Execute(context.Background(), ctx, types.JSONValue{"action": "read"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if res.Output == "[]" || res.Output == "" {
		t.Fatalf("expected saved todo items, got %q", res.Output)
	}
}

func TestRegistryDefinitionsIncludeCoreTools(t *testing.T) {
	r := DefaultRegistry(t.TempDir())
	defs := r.Definitions()
	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"bash", "read", "write", "edit", "grep", "glob", "list", "todo"} {
		if !names[want] {
			t.Errorf("expected registry to include tool %q", want)
		}
	}
}
