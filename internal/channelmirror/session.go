package channelmirror

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// DeriveSessionID maps a (plugin, conversation) pair to a stable tark
// session id, so repeated webhooks for the same conversation always
// resume the same session instead of forking a new one.
func DeriveSessionID(pluginID, conversationID string) string {
	sum := sha256.Sum256([]byte(pluginID + ":" + conversationID))
	return fmt.Sprintf("channel_%s_%s", pluginID, base64.URLEncoding.EncodeToString(sum[:]))
}
