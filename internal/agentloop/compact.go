package agentloop

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"tark/internal/conversation"
	"tark/internal/tokenizer"
)

// maybeCompact archives older messages once the live history's
// estimated token count crosses compactionTokenThreshold, reloading
// mgr from the trimmed session afterward so the next provider call
// sees the shorter history.
func (l *Loop) maybeCompact(ctx context.Context, mgr *conversation.Manager, sessionID string, counter *tokenizer.Counter) error {
	estimated := counter.CountMessages(mgr.ToLLMMessages())
	if estimated < compactionTokenThreshold {
		return nil
	}

	ref, err := l.sessions.ArchiveOldMessages(ctx, sessionID, compactionKeepRecent)
	if err != nil {
		return fmt.Errorf("archive old messages: %w", err)
	}
	if ref == nil {
		// Already at or below compactionKeepRecent live messages;
		// nothing left to archive even though the estimate is high
		// (a handful of very large messages, not many small ones).
		return nil
	}

	sess, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload session after archival: %w", err)
	}
	mgr.RestoreFromSession(sess)

	log.Info().Str("session_id", sessionID).Int("archived", ref.Count).Int("estimated_tokens", estimated).
		Msg("auto-compacted session history")
	return nil
}
