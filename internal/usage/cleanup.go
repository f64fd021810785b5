package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"tark/pkg/types"
)

// CleanupOutcome extends types.CleanupResult with the session ids left
// with zero remaining usage rows, so a caller holding the session
// store can delete those sessions too.
type CleanupOutcome struct {
	types.CleanupResult
	OrphanedSessionIDs []string
}

// Cleanup deletes usage rows matching req, VACUUMs the database, and
// reports bytes freed plus which sessions now have no usage rows left
// (the caller, which owns the session store, decides whether to
// delete those sessions).
func (s *Store) Cleanup(ctx context.Context, req types.CleanupRequest) (CleanupOutcome, error) {
	before := fileSize(s.dbPath)

	affectedSessions, err := s.selectAffectedSessions(ctx, req)
	if err != nil {
		return CleanupOutcome{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CleanupOutcome{}, fmt.Errorf("cleanup begin: %w", err)
	}
	defer tx.Rollback()

	var rowsDeleted int64
	switch {
	case req.DeleteAll:
		result, err := tx.ExecContext(ctx, `DELETE FROM requests`)
		if err != nil {
			return CleanupOutcome{}, fmt.Errorf("cleanup delete all: %w", err)
		}
		rowsDeleted, _ = result.RowsAffected()

	case len(req.SessionIDs) > 0:
		placeholders := make([]string, len(req.SessionIDs))
		args := make([]any, len(req.SessionIDs))
		for i, id := range req.SessionIDs {
			placeholders[i] = "?"
			args[i] = id
		}
		q := fmt.Sprintf(`DELETE FROM requests WHERE session_id IN (%s)`, strings.Join(placeholders, ","))
		result, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return CleanupOutcome{}, fmt.Errorf("cleanup delete sessions: %w", err)
		}
		rowsDeleted, _ = result.RowsAffected()

	case req.OlderThanDays > 0:
		cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays).Unix()
		result, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE timestamp < ?`, cutoff)
		if err != nil {
			return CleanupOutcome{}, fmt.Errorf("cleanup delete older than: %w", err)
		}
		rowsDeleted, _ = result.RowsAffected()
	}

	orphans, err := remainingOrphans(ctx, tx, affectedSessions)
	if err != nil {
		return CleanupOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return CleanupOutcome{}, fmt.Errorf("cleanup commit: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return CleanupOutcome{}, fmt.Errorf("cleanup vacuum: %w", err)
	}

	after := fileSize(s.dbPath)
	bytesFreed := before - after
	if bytesFreed < 0 {
		bytesFreed = 0
	}

	return CleanupOutcome{
		CleanupResult: types.CleanupResult{
			RowsDeleted:     rowsDeleted,
			SessionsDeleted: int64(len(orphans)),
			BytesFreed:      bytesFreed,
		},
		OrphanedSessionIDs: orphans,
	}, nil
}

// selectAffectedSessions returns the distinct session ids a cleanup
// request touches, queried before the delete so "now orphaned" can be
// checked against the post-delete state.
func (s *Store) selectAffectedSessions(ctx context.Context, req types.CleanupRequest) ([]string, error) {
	if len(req.SessionIDs) > 0 {
		return req.SessionIDs, nil
	}

	var rows *sql.Rows
	var err error
	switch {
	case req.DeleteAll:
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM requests`)
	case req.OlderThanDays > 0:
		cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays).Unix()
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM requests WHERE timestamp < ?`, cutoff)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cleanup affected sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func remainingOrphans(ctx context.Context, tx *sql.Tx, candidates []string) ([]string, error) {
	var orphans []string
	for _, id := range candidates {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE session_id = ?`, id).Scan(&count); err != nil {
			return nil, fmt.Errorf("cleanup orphan check: %w", err)
		}
		if count == 0 {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
