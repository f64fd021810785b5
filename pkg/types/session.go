package types

// Session is the stable, persisted identity of one conversation.
type Session struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Mode      string `json:"mode"`
	Directory string `json:"directory"`

	Messages []*Message `json:"messages"`
	Usage    UsageTotals `json:"usage"`

	// ArchiveChunks references chunks written by the archival
	// facility, in sequence order. The chunk bodies themselves live
	// under the session's archive directory, not inline here.
	ArchiveChunks []ArchiveChunkRef `json:"archiveChunks,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// UsageTotals aggregates token and cost accounting for a session.
type UsageTotals struct {
	InputTokens  int                 `json:"inputTokens"`
	OutputTokens int                 `json:"outputTokens"`
	TotalCost    float64             `json:"totalCost"`
	ByModel      map[string]ModelUsage `json:"byModel,omitempty"`
}

// ModelUsage is the per-model slice of a session's usage totals.
type ModelUsage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// DisplayName returns the session name, deriving one from the first
// user message when no name has been set yet.
func (s *Session) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return deriveTitle(m.Text)
		}
	}
	return "Untitled session"
}

// deriveTitle truncates text to a short title at a word boundary.
func deriveTitle(text string) string {
	const maxLen = 60
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if idx := lastSpace(cut); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func lastSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return -1
}

// ArchiveChunkRef is the metadata a Session keeps about an archived
// chunk; the chunk's messages live in the chunk file itself.
type ArchiveChunkRef struct {
	Sequence  int    `json:"sequence"`
	Filename  string `json:"filename"`
	CreatedAt int64  `json:"createdAt"`
	Count     int    `json:"count"`
}

// ArchiveChunk is a contiguous prefix of messages removed from the
// live session and persisted separately.
type ArchiveChunk struct {
	SessionID string     `json:"sessionId"`
	Sequence  int        `json:"sequence"`
	CreatedAt int64      `json:"createdAt"`
	Messages  []*Message `json:"messages"`
}
