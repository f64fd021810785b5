// Package agentloop drives one session's turn: it builds a completion
// request from accumulated history, streams the response through the
// provider normalizer into the conversation manager's state machine,
// dispatches any tool calls the model emits (gated by the policy
// engine), and repeats until the model stops or an iteration/approval
// boundary is hit.
package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"tark/internal/conversation"
	"tark/internal/metrics"
	"tark/internal/policy"
	"tark/internal/provider"
	"tark/internal/sessionstore"
	"tark/internal/tokenizer"
	"tark/internal/tool"
	"tark/internal/usage"
	"tark/pkg/types"
)

const (
	// MaxSteps bounds how many model-call/tool-call rounds one turn
	// may take before the loop gives up and surfaces an error.
	MaxSteps = 50

	// MaxRetries bounds exponential-backoff retries of a single
	// provider call within one step.
	MaxRetries = 3

	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute

	// compactionTokenThreshold triggers auto-archival of older
	// messages once estimated context usage crosses it.
	compactionTokenThreshold = 150_000

	// compactionKeepRecent is how many of the most recent messages
	// auto-compaction leaves live after archiving the rest.
	compactionKeepRecent = 20
)

// ApprovalWaiter is asked to resolve a pending approval decision
// interactively (e.g. over the editor transport or a channel plugin).
// It blocks until the user responds or ctx is cancelled.
type ApprovalWaiter func(ctx context.Context, sessionID string, decision *types.ApprovalDecision, toolName, command string) (approved bool, savePattern *types.ApprovalPattern, err error)

// Loop is the Agent Loop: one instance is shared across sessions; all
// per-session state lives in the conversation.Manager and
// sessionstore.Store it's given.
type Loop struct {
	providers *provider.Registry
	policy    *policy.Engine
	sessions  *sessionstore.Store
	usage     *usage.Store
	tools     *tool.Registry

	approve ApprovalWaiter
}

// New builds a Loop wired to its collaborating components. approve
// may be nil, in which case any tool call the policy engine flags as
// needing approval is denied outright.
func New(providers *provider.Registry, pol *policy.Engine, sessions *sessionstore.Store, usageStore *usage.Store, tools *tool.Registry, approve ApprovalWaiter) *Loop {
	return &Loop{providers: providers, policy: pol, sessions: sessions, usage: usageStore, tools: tools, approve: approve}
}

// Turn runs one user message through to completion: zero or more
// model/tool rounds, ending in a final assistant message, a
// max-steps error, or a cancellation.
func (l *Loop) Turn(ctx context.Context, mgr *conversation.Manager, sessionID, providerID, modelID string, think types.ThinkSettings) (*types.Message, error) {
	sess, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	prov, err := l.providers.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	abortCh := l.sessions.AbortChannel(sessionID)
	counter := tokenizer.ForModel(modelID)

	retryBackoff := newRetryBackoff(ctx)

	for step := 0; ; step++ {
		select {
		case <-abortCh:
			mgr.Fail()
			return nil, context.Canceled
		default:
		}

		if step >= MaxSteps {
			mgr.Fail()
			metrics.AgentLoopSteps.WithLabelValues("exceeded_max_steps").Inc()
			return nil, fmt.Errorf("agent loop exceeded %d steps", MaxSteps)
		}

		if err := l.maybeCompact(ctx, mgr, sessionID, counter); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("auto-compaction failed, continuing with full history")
		}

		req := provider.CompletionRequest{
			Model:           modelID,
			System:          systemPrompt(sess),
			Messages:        mgr.ToLLMMessages(),
			Tools:           l.tools.Definitions(),
			Think:           think,
			MaxOutputTokens: 8192,
		}

		if err := mgr.StartStreaming(); err != nil {
			return nil, fmt.Errorf("start streaming: %w", err)
		}

		stream, err := prov.Stream(ctx, req)
		if err != nil {
			if waitErr := backoffWait(ctx, retryBackoff, err); waitErr != nil {
				mgr.Fail()
				return nil, waitErr
			}
			mgr.ClearStreaming()
			continue
		}

		finishReason, streamErr := l.consumeStream(ctx, mgr, stream, sessionID, providerID, modelID)
		if streamErr != nil {
			if waitErr := backoffWait(ctx, retryBackoff, streamErr); waitErr != nil {
				mgr.Fail()
				return nil, waitErr
			}
			mgr.ClearStreaming()
			continue
		}
		retryBackoff.Reset()

		switch finishReason {
		case "tool_use":
			msg, err := mgr.FinalizeStreaming()
			if err != nil {
				return nil, fmt.Errorf("finalize streaming turn: %w", err)
			}
			if err := l.sessions.AddMessage(ctx, sessionID, msg); err != nil {
				return nil, fmt.Errorf("persist assistant turn: %w", err)
			}
			if err := l.runToolCalls(ctx, mgr, sessionID, msg); err != nil {
				metrics.AgentLoopSteps.WithLabelValues("tool_error").Inc()
				return nil, err
			}
			metrics.AgentLoopSteps.WithLabelValues("tool_use").Inc()
			continue

		default: // "stop", "length", or any other terminal reason
			msg, err := mgr.FinalizeStreaming()
			if err != nil {
				return nil, fmt.Errorf("finalize streaming turn: %w", err)
			}
			if err := l.sessions.AddMessage(ctx, sessionID, msg); err != nil {
				return nil, fmt.Errorf("persist assistant turn: %w", err)
			}
			metrics.AgentLoopSteps.WithLabelValues(finishReason).Inc()
			return msg, nil
		}
	}
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// backoffWait classifies err, sleeps the next backoff interval if the
// error is retryable and retries remain, and returns nil to signal
// "retry"; it returns a non-nil error when the caller should give up.
func backoffWait(ctx context.Context, b backoff.BackOff, err error) error {
	var provErr *provider.Error
	if pe, ok := err.(*provider.Error); ok {
		provErr = pe
	}
	if provErr != nil && !provErr.Retryable() {
		return err
	}

	next := b.NextBackOff()
	if next == backoff.Stop {
		return err
	}

	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func systemPrompt(sess *types.Session) string {
	return fmt.Sprintf("You are an interactive coding assistant working in %s.", sess.Directory)
}
