package usage

import (
	"context"
	"fmt"

	"tark/pkg/types"
)

// Summary aggregates every recorded request.
func (s *Store) Summary(ctx context.Context) (types.UsageSummary, error) {
	const q = `SELECT
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cost_usd), 0),
		COUNT(*)
		FROM requests`
	var out types.UsageSummary
	err := s.db.QueryRowContext(ctx, q).Scan(&out.TotalInputTokens, &out.TotalOutputTokens, &out.TotalCostUSD, &out.RequestCount)
	if err != nil {
		return out, fmt.Errorf("usage summary: %w", err)
	}
	return out, nil
}

// ByModel aggregates usage grouped by model.
func (s *Store) ByModel(ctx context.Context) ([]types.ModelUsageSummary, error) {
	const q = `SELECT model,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cost_usd), 0),
		COUNT(*)
		FROM requests GROUP BY model ORDER BY model`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("usage by model: %w", err)
	}
	defer rows.Close()

	var out []types.ModelUsageSummary
	for rows.Next() {
		var row types.ModelUsageSummary
		if err := rows.Scan(&row.Model, &row.TotalInputTokens, &row.TotalOutputTokens, &row.TotalCostUSD, &row.RequestCount); err != nil {
			return nil, fmt.Errorf("usage by model scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ByMode aggregates usage grouped by session mode.
func (s *Store) ByMode(ctx context.Context) ([]types.ModeUsageSummary, error) {
	const q = `SELECT mode,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cost_usd), 0),
		COUNT(*)
		FROM requests GROUP BY mode ORDER BY mode`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("usage by mode: %w", err)
	}
	defer rows.Close()

	var out []types.ModeUsageSummary
	for rows.Next() {
		var row types.ModeUsageSummary
		if err := rows.Scan(&row.Mode, &row.TotalInputTokens, &row.TotalOutputTokens, &row.TotalCostUSD, &row.RequestCount); err != nil {
			return nil, fmt.Errorf("usage by mode scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BySession aggregates usage grouped by session id.
func (s *Store) BySession(ctx context.Context) ([]types.SessionUsageSummary, error) {
	const q = `SELECT session_id,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cost_usd), 0),
		COUNT(*)
		FROM requests GROUP BY session_id ORDER BY session_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("usage by session: %w", err)
	}
	defer rows.Close()

	var out []types.SessionUsageSummary
	for rows.Next() {
		var row types.SessionUsageSummary
		if err := rows.Scan(&row.SessionID, &row.TotalInputTokens, &row.TotalOutputTokens, &row.TotalCostUSD, &row.RequestCount); err != nil {
			return nil, fmt.Errorf("usage by session scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// StorageStats reports the usage database's on-disk footprint.
type StorageStats struct {
	DatabaseBytes int64 `json:"databaseBytes"`
	RequestCount  int   `json:"requestCount"`
}

// Storage reports the usage database's size and row count.
func (s *Store) Storage(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&stats.RequestCount); err != nil {
		return stats, fmt.Errorf("usage storage row count: %w", err)
	}
	stats.DatabaseBytes = fileSize(s.dbPath)
	return stats, nil
}
