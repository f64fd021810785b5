package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// doomLoopThreshold is the number of identical consecutive tool calls
// before a session is flagged as looping.
const doomLoopThreshold = 3

// doomLoopHistoryLimit bounds the per-session history retained.
const doomLoopHistoryLimit = 10

// DoomLoopDetector flags a session that repeats the same tool call
// with the same arguments threshold times in a row, a signal that the
// agent loop is stuck rather than making progress.
type DoomLoopDetector struct {
	mu      sync.Mutex
	history map[string][]string
}

func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{history: make(map[string][]string)}
}

// Check records one call and reports whether it completes a doom loop.
func (d *DoomLoopDetector) Check(sessionID, toolName string, args any) bool {
	hash := hashCall(toolName, args)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]
	isLoop := false
	if len(history) >= doomLoopThreshold-1 {
		allSame := true
		start := len(history) - (doomLoopThreshold - 1)
		for i := start; i < len(history); i++ {
			if history[i] != hash {
				allSame = false
				break
			}
		}
		isLoop = allSame
	}

	history = append(history, hash)
	if len(history) > doomLoopHistoryLimit {
		history = history[len(history)-doomLoopHistoryLimit:]
	}
	d.history[sessionID] = history
	return isLoop
}

// Reset clears a session's history, e.g. once the user breaks the
// loop by responding to it.
func (d *DoomLoopDetector) Reset(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(toolName string, args any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "args": args})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
