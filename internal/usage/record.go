package usage

import (
	"context"
	"fmt"

	"tark/pkg/types"
)

// RecordRequest persists one accounted LLM request, pricing it via
// the store's PricingSource.
func (s *Store) RecordRequest(ctx context.Context, sessionID, provider, model, mode, requestType string, timestamp int64, inputTokens, outputTokens int) (*types.UsageRecord, error) {
	cost, estimated := s.pricing.CostUSD(ctx, model, inputTokens, outputTokens)

	const stmt = `INSERT INTO requests
		(session_id, timestamp, provider, model, mode, input_tokens, output_tokens, cost_usd, request_type, estimated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt, sessionID, timestamp, provider, model, mode, inputTokens, outputTokens, cost, requestType, boolToInt(estimated))
	if err != nil {
		return nil, fmt.Errorf("record usage request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("record usage request id: %w", err)
	}

	return &types.UsageRecord{
		ID:           id,
		SessionID:    sessionID,
		Timestamp:    timestamp,
		Provider:     provider,
		Model:        model,
		Mode:         mode,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		RequestType:  requestType,
		Estimated:    estimated,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
