// Package channelmirror bridges inbound Channel-plugin webhooks (Slack,
// Telegram, or any other messaging surface a plugin models) into the
// Agent Loop, and sends the loop's reply back out through the same
// plugin's send entry point.
//
// Session identity is deterministic: the same (plugin, conversation)
// pair always maps to the same tark session id, so a restart or a
// second webhook for an in-flight conversation resumes history rather
// than forking it. Inbound messages for one session that arrive within
// the debounce window are joined into a single turn. Each turn's reply
// goes out as one final Send call; partial replies are not streamed to
// the plugin.
package channelmirror
