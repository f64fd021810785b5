package provider

import "strings"

// thinkTagParser extracts <think>...</think> (or <thinking>) regions
// from a plain text delta stream for providers with no native
// reasoning channel (Ollama-hosted open-weight models, most
// OpenAI-compatible endpoints). It is a push-based scanner so it can
// sit directly in an adapter's text-delta path: each Push call
// returns the text and thinking fragments extracted from that chunk,
// correctly splitting a tag that arrives split across two network
// reads.
type thinkTagParser struct {
	buf       strings.Builder
	inThink   bool
	tagName   string // "think" or "thinking", once seen
}

type thinkFragment struct {
	Text     string
	Thinking string
}

func newThinkTagParser() *thinkTagParser {
	return &thinkTagParser{}
}

// Push feeds a text chunk and returns the (text, thinking) split.
func (p *thinkTagParser) Push(chunk string) thinkFragment {
	p.buf.WriteString(chunk)
	raw := p.buf.String()
	p.buf.Reset()

	var frag thinkFragment
	for {
		if !p.inThink {
			openIdx, tag := findOpenTag(raw)
			if openIdx < 0 {
				// No open tag in what we have. The tail might be a
				// partial "<thi" prefix of an upcoming tag; hold back
				// up to the longest possible partial match.
				safe, hold := splitSafeSuffix(raw, "<thinking>")
				frag.Text += safe
				p.buf.WriteString(hold)
				return frag
			}
			frag.Text += raw[:openIdx]
			raw = raw[openIdx+len("<"+tag+">"):]
			p.inThink = true
			p.tagName = tag
			continue
		}

		closeTag := "</" + p.tagName + ">"
		closeIdx := strings.Index(raw, closeTag)
		if closeIdx < 0 {
			safe, hold := splitSafeSuffix(raw, closeTag)
			frag.Thinking += safe
			p.buf.WriteString(hold)
			return frag
		}
		frag.Thinking += raw[:closeIdx]
		raw = raw[closeIdx+len(closeTag):]
		p.inThink = false
	}
}

func findOpenTag(s string) (int, string) {
	for _, tag := range []string{"think", "thinking"} {
		if idx := strings.Index(s, "<"+tag+">"); idx >= 0 {
			return idx, tag
		}
	}
	return -1, ""
}

// splitSafeSuffix returns (text safe to emit now, suffix to hold
// back) when s might end in a partial prefix of marker.
func splitSafeSuffix(s, marker string) (string, string) {
	maxHold := len(marker) - 1
	if maxHold > len(s) {
		maxHold = len(s)
	}
	for n := maxHold; n > 0; n-- {
		tail := s[len(s)-n:]
		if strings.HasPrefix(marker, tail) {
			return s[:len(s)-n], tail
		}
	}
	return s, ""
}
