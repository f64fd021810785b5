// Package tokenizer counts tokens for the models the provider layer
// talks to, falling back to a character-ratio estimate for model
// families without a public BPE table.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"tark/pkg/types"
)

// charsPerTokenEstimate is the fallback ratio used for model families
// tiktoken has no encoding for (Anthropic, Gemini, Ollama-hosted
// models). It is deliberately conservative; callers that need exact
// counts should rely on provider-reported usage instead.
const charsPerTokenEstimate = 4

var (
	cacheMu  sync.RWMutex
	encCache = make(map[string]*tiktoken.Tiktoken)
)

// Counter counts tokens for one model.
type Counter struct {
	model    string
	encoding *tiktoken.Tiktoken // nil when falling back to the estimator
}

// ForModel returns a Counter for model, using a BPE encoding when
// tiktoken recognizes the model family and the character estimator
// otherwise.
func ForModel(model string) *Counter {
	encodingName := encodingForModel(model)
	if encodingName == "" {
		return &Counter{model: model}
	}

	cacheMu.RLock()
	enc, ok := encCache[encodingName]
	cacheMu.RUnlock()
	if ok {
		return &Counter{model: model, encoding: enc}
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		log.Warn().Str("model", model).Str("encoding", encodingName).Err(err).Msg("tokenizer falling back to estimator")
		return &Counter{model: model}
	}

	cacheMu.Lock()
	encCache[encodingName] = enc
	cacheMu.Unlock()
	return &Counter{model: model, encoding: enc}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c.encoding == nil {
		return estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// IsExact reports whether Count uses a real BPE encoding rather than
// the character-ratio fallback.
func (c *Counter) IsExact() bool {
	return c.encoding != nil
}

// CountMessages approximates the request-level token cost of a
// message list, including OpenAI's per-message role/delimiter
// overhead. For providers with their own wire-level accounting this
// is only ever an estimate used for local budget checks.
func (c *Counter) CountMessages(messages []*types.Message) int {
	const perMessageOverhead = 3
	total := 3 // reply priming
	for _, msg := range messages {
		total += perMessageOverhead
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Text)
		if msg.Thinking != "" {
			total += c.Count(msg.Thinking)
		}
	}
	return total
}

func estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerTokenEstimate
	if n == 0 {
		n = 1
	}
	return n
}

// encodingForModel maps a model name to a tiktoken encoding, or ""
// when the family has no public BPE table and must use the
// character-ratio estimator.
func encodingForModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return "o200k_base"
	case strings.HasPrefix(lower, "gpt-4"), strings.HasPrefix(lower, "gpt-3.5"), strings.HasPrefix(lower, "text-embedding"):
		return "cl100k_base"
	case strings.Contains(lower, "claude"):
		return "" // Anthropic publishes no public BPE table; estimate.
	case strings.Contains(lower, "gemini"):
		return "" // Gemini tokenizer is not tiktoken-compatible; estimate.
	default:
		return ""
	}
}
