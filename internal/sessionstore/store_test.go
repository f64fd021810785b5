package sessionstore

import (
	"context"
	"testing"

	"tark/pkg/types"
)

func TestStore_CreateGetList(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp/project-a", "anthropic", "claude")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected non-empty session id")
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Directory != sess.Directory {
		t.Fatalf("got directory %q, want %q", got.Directory, sess.Directory)
	}

	list, err := s.List(ctx, "/tmp/project-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
}

func TestStore_AddMessageAndDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp/project-b", "openai", "gpt-4o")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg := &types.Message{ID: "m1", Role: types.RoleUser, Text: "hello"}
	if err := s.AddMessage(ctx, sess.ID, msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_ArchiveOldMessages(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp/project-c", "anthropic", "claude")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := &types.Message{ID: string(rune('a' + i)), Role: types.RoleUser, Text: "msg"}
		if err := s.AddMessage(ctx, sess.ID, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	ref, err := s.ArchiveOldMessages(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("ArchiveOldMessages failed: %v", err)
	}
	if ref == nil {
		t.Fatal("expected an archive chunk ref")
	}
	if ref.Count != 3 {
		t.Fatalf("expected 3 archived messages, got %d", ref.Count)
	}

	live, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 live messages remaining, got %d", len(live))
	}

	full, err := s.FullHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("FullHistory failed: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("expected 5 total messages across chunk + live, got %d", len(full))
	}

	// Archiving again with the same keepRecent is a no-op.
	ref2, err := s.ArchiveOldMessages(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("ArchiveOldMessages (second call) failed: %v", err)
	}
	if ref2 != nil {
		t.Fatalf("expected nil ref when nothing left to archive, got %+v", ref2)
	}
}
