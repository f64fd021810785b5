package sessionstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"tark/pkg/types"
)

// ArchiveOldMessages moves every message beyond the most recent
// keepRecent out of a session's live history into a numbered archive
// chunk file, marking them ContextTransient so a subsequent
// ToLLMMessages build excludes them. Unlike a summarization compactor,
// this never rewrites or condenses message content: the original
// messages are preserved verbatim, just moved off the hot path.
func (s *Store) ArchiveOldMessages(ctx context.Context, sessionID string, keepRecent int) (*types.ArchiveChunkRef, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if keepRecent < 0 {
		keepRecent = 0
	}
	if len(sess.Messages) <= keepRecent {
		return nil, nil
	}

	cut := len(sess.Messages) - keepRecent
	toArchive := sess.Messages[:cut]
	remaining := sess.Messages[cut:]
	for _, m := range toArchive {
		m.ContextTransient = true
	}

	sequence := len(sess.ArchiveChunks)
	chunk := &types.ArchiveChunk{
		SessionID: sessionID,
		Sequence:  sequence,
		Messages:  toArchive,
	}
	filename := fmt.Sprintf("chunk-%04d", sequence)
	if err := s.fs.Put(ctx, []string{"archive", sessionID, filename}, chunk); err != nil {
		return nil, fmt.Errorf("archive chunk: %w", err)
	}

	ref := types.ArchiveChunkRef{
		Sequence: sequence,
		Filename: filename,
		Count:    len(toArchive),
	}
	sess.ArchiveChunks = append(sess.ArchiveChunks, ref)
	sess.Messages = remaining

	if err := s.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session after archive: %w", err)
	}

	log.Info().Str("session_id", sessionID).Int("sequence", sequence).Int("count", ref.Count).Msg("archived messages")
	return &ref, nil
}

// GetArchiveChunk loads one previously archived chunk by sequence,
// for tooling that needs to inspect or export full history.
func (s *Store) GetArchiveChunk(ctx context.Context, sessionID string, sequence int) (*types.ArchiveChunk, error) {
	var chunk types.ArchiveChunk
	filename := fmt.Sprintf("chunk-%04d", sequence)
	if err := s.fs.Get(ctx, []string{"archive", sessionID, filename}, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// FullHistory reconstructs a session's complete message history,
// archived chunks followed by the live tail, in original order.
func (s *Store) FullHistory(ctx context.Context, sessionID string) ([]*types.Message, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var all []*types.Message
	for _, ref := range sess.ArchiveChunks {
		chunk, err := s.GetArchiveChunk(ctx, sessionID, ref.Sequence)
		if err != nil {
			return nil, fmt.Errorf("load archive chunk %d: %w", ref.Sequence, err)
		}
		all = append(all, chunk.Messages...)
	}
	all = append(all, sess.Messages...)
	return all, nil
}
