package types

// UsageRecord is one accounted LLM request, the row shape persisted
// to the usage database.
type UsageRecord struct {
	ID           int64   `json:"id"`
	SessionID    string  `json:"sessionId"`
	Timestamp    int64   `json:"timestamp"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Mode         string  `json:"mode"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
	RequestType  string  `json:"requestType"` // "chat", "title", "compaction", ...
	Estimated    bool    `json:"estimated"`   // true when CostUSD came from a pricing-map miss
}

// ModelPricing is the per-million-token price for one model, USD.
type ModelPricing struct {
	InputPerMillion  float64 `json:"inputPerMillion"`
	OutputPerMillion float64 `json:"outputPerMillion"`
}

// UsageSummary aggregates records over a query window.
type UsageSummary struct {
	TotalInputTokens  int     `json:"totalInputTokens"`
	TotalOutputTokens int     `json:"totalOutputTokens"`
	TotalCostUSD      float64 `json:"totalCostUsd"`
	RequestCount      int     `json:"requestCount"`
}

// ModelUsageSummary is UsageSummary broken out per model.
type ModelUsageSummary struct {
	Model string `json:"model"`
	UsageSummary
}

// ModeUsageSummary is UsageSummary broken out per session mode.
type ModeUsageSummary struct {
	Mode string `json:"mode"`
	UsageSummary
}

// SessionUsageSummary is UsageSummary broken out per session.
type SessionUsageSummary struct {
	SessionID string `json:"sessionId"`
	UsageSummary
}

// CleanupResult reports the effect of a usage-database cleanup pass.
// SessionsDeleted counts the sessions left with no usage rows; the
// cleanup pass deletes usage rows only, not session records.
type CleanupResult struct {
	RowsDeleted     int64 `json:"rowsDeleted"`
	SessionsDeleted int64 `json:"sessionsDeleted"`
	BytesFreed      int64 `json:"bytesFreed"`
}

// CleanupRequest selects which rows a cleanup pass removes. Exactly
// one of its fields should be set; DeleteAll takes precedence over
// SessionIDs, which takes precedence over OlderThanDays.
type CleanupRequest struct {
	OlderThanDays int      `json:"olderThanDays,omitempty"`
	SessionIDs    []string `json:"sessionIds,omitempty"`
	DeleteAll     bool     `json:"deleteAll,omitempty"`
}
