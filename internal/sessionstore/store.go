// Package sessionstore persists sessions and their messages as
// atomically-written JSON files, keyed by project directory, and
// archives old turns into sequential chunk files rather than
// summarizing them away.
package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"tark/internal/storage"
	"tark/pkg/types"
)

// Store is the Session Store: CRUD over sessions and their live
// message history, backed by tark's atomic file storage layer.
type Store struct {
	fs *storage.Storage

	mu     sync.Mutex
	active map[string]chan struct{} // sessionID -> abort signal
}

// New creates a Store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		fs:     storage.New(basePath),
		active: make(map[string]chan struct{}),
	}
}

// ProjectID derives the stable project key a session's storage path is
// namespaced under from its working directory.
func ProjectID(directory string) string {
	sum := sha256.Sum256([]byte(directory))
	return hex.EncodeToString(sum[:])[:16]
}

// Create starts a new, empty session rooted at directory.
func (s *Store) Create(ctx context.Context, directory, provider, model string) (*types.Session, error) {
	sess := &types.Session{
		ID:        ulid.Make().String(),
		Provider:  provider,
		Model:     model,
		Mode:      "default",
		Directory: directory,
	}
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Put persists sess, including its full message list.
func (s *Store) Put(ctx context.Context, sess *types.Session) error {
	projectID := ProjectID(sess.Directory)
	return s.fs.Put(ctx, []string{"session", projectID, sess.ID}, sess)
}

// Get loads a session by ID, searching every project namespace since
// callers identify sessions by ID alone.
func (s *Store) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	projects, err := s.fs.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	for _, projectID := range projects {
		var sess types.Session
		if err := s.fs.Get(ctx, []string{"session", projectID, sessionID}, &sess); err == nil {
			return &sess, nil
		}
	}
	return nil, storage.ErrNotFound
}

// List returns every session under directory, or every known session
// if directory is empty.
func (s *Store) List(ctx context.Context, directory string) ([]*types.Session, error) {
	var sessions []*types.Session
	scan := func(projectID string) error {
		return s.fs.Scan(ctx, []string{"session", projectID}, func(_ string, data json.RawMessage) error {
			var sess types.Session
			if err := json.Unmarshal(data, &sess); err != nil {
				return err
			}
			sessions = append(sessions, &sess)
			return nil
		})
	}

	if directory != "" {
		return sessions, scan(ProjectID(directory))
	}
	projects, err := s.fs.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	for _, projectID := range projects {
		if err := scan(projectID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Delete removes a session and its archive chunks.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	projectID := ProjectID(sess.Directory)
	if err := s.fs.Delete(ctx, []string{"session", projectID, sessionID}); err != nil {
		return err
	}
	for _, chunk := range sess.ArchiveChunks {
		_ = s.fs.Delete(ctx, []string{"archive", sessionID, chunk.Filename})
	}
	return nil
}

// Abort signals any goroutine waiting on sessionID's abort channel
// (the agent loop's interrupt probe) and clears it.
func (s *Store) Abort(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.active[sessionID]; ok {
		close(ch)
		delete(s.active, sessionID)
	}
}

// AbortChannel returns (creating if absent) the abort signal channel
// for sessionID, for the agent loop's interrupt probe to select on.
func (s *Store) AbortChannel(sessionID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.active[sessionID]
	if !ok {
		ch = make(chan struct{})
		s.active[sessionID] = ch
	}
	return ch
}

// AddMessage appends msg to a session's live history and persists it.
func (s *Store) AddMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	msg.SessionID = sessionID
	sess.Messages = append(sess.Messages, msg)
	return s.Put(ctx, sess)
}

// GetMessages returns a session's live (non-archived) message history.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Messages, nil
}

// ErrNotFound is re-exported so callers don't need to import
// internal/storage directly to check for it.
var ErrNotFound = storage.ErrNotFound

func (s *Store) String() string {
	return fmt.Sprintf("sessionstore(%p)", s)
}
