package agentloop

import (
	"context"
	"fmt"
	"time"

	"tark/internal/conversation"
	"tark/internal/provider"
	"tark/pkg/types"
)

// consumeStream drains one provider stream into mgr, returning the
// finish reason ("stop", "tool_use", "length", ...) once the stream
// closes, or an error if the provider reported one mid-stream.
func (l *Loop) consumeStream(ctx context.Context, mgr *conversation.Manager, stream *provider.CompletionStream, sessionID, providerID, modelID string) (string, error) {
	var finishReason string
	var usage *types.TokenUsage

	for ev := range stream.Events {
		switch ev.Kind {
		case provider.EventTextDelta:
			if mgr.State() != conversation.RecvText {
				if err := mgr.StartStreaming(); err != nil {
					return "", err
				}
			}
			if err := mgr.AppendStreamingContent(ev.Text); err != nil {
				return "", err
			}

		case provider.EventThinkingDelta:
			if mgr.State() != conversation.RecvThink {
				if err := mgr.StartStreamingThinking(); err != nil {
					return "", err
				}
			}
			if err := mgr.AppendStreamingThinking(ev.Text); err != nil {
				return "", err
			}

		case provider.EventToolCallStart, provider.EventToolCallDelta:
			// Argument accumulation happens inside the provider
			// adapter's own tracker; the loop only acts once a call
			// is reported complete.

		case provider.EventToolCallComplete:
			if ev.ToolCall == nil {
				continue
			}
			if mgr.State() != conversation.RecvText {
				if err := mgr.StartStreaming(); err != nil {
					return "", err
				}
			}
			part := types.ToolUsePart{
				ID:               ev.ToolCall.ID,
				Name:             ev.ToolCall.Name,
				Input:            ev.ToolCall.Arguments,
				ThoughtSignature: ev.ToolCall.ThoughtSignature,
			}
			if err := mgr.BeginToolCall(part); err != nil {
				return "", err
			}

		case provider.EventDone:
			finishReason = ev.FinishReason
			usage = ev.Usage

		case provider.EventError:
			return "", ev.Err
		}
	}

	if usage != nil && l.usage != nil {
		if _, err := l.usage.RecordRequest(ctx, sessionID, providerID, modelID, "default", "chat", time.Now().Unix(), usage.Input, usage.Output); err != nil {
			return finishReason, fmt.Errorf("record usage: %w", err)
		}
	}

	if finishReason == "" {
		return "", fmt.Errorf("stream closed without a finish reason")
	}
	return finishReason, nil
}
