package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/metrics"
)

const maxResultSummaryLen = 512

// Result pairs the audit record with the raw payload of a successful call.
// The record exists for every invocation; the payload only on success.
type Result struct {
	Record  conversation.ToolInvocationRecord
	Payload json.RawMessage
}

// Dispatcher handles the full lifecycle of a tool call:
// authorize -> validate input -> run under timeout -> retry per policy.
// It holds no domain state beyond the registry and the backoff settings.
type Dispatcher struct {
	registry  *Registry
	retryBase time.Duration
	retryCap  time.Duration
}

func NewDispatcher(registry *Registry, retryBase, retryCap time.Duration) *Dispatcher {
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	if retryCap <= 0 {
		retryCap = 30 * time.Second
	}
	return &Dispatcher{
		registry:  registry,
		retryBase: retryBase,
		retryCap:  retryCap,
	}
}

// Execute dispatches one tool call on behalf of callerRole. It always
// returns exactly one invocation record, whatever the outcome — denied and
// failed paths are audit entries, not errors. The conversation never aborts
// because a tool misbehaved.
func (d *Dispatcher) Execute(ctx context.Context, toolName string, params map[string]any, callerRole string) Result {
	rec := conversation.ToolInvocationRecord{
		ToolName:    toolName,
		RequestedBy: callerRole,
		Parameters:  params,
		StartedAt:   time.Now(),
	}

	t, ok := d.registry.Get(toolName)
	if !ok {
		return d.finish(rec, conversation.ToolOutcomeFailed, "tool not registered", nil)
	}
	def := t.Definition()

	// Authorization precedes everything. A denial makes no external call
	// but still leaves an audit record.
	if !def.Authorized(callerRole) {
		slog.Warn("Tool dispatch denied", "tool", def.Name, "caller_role", callerRole)
		return d.finish(rec, conversation.ToolOutcomeDenied,
			fmt.Sprintf("role %s not authorized for %s", callerRole, def.Name), nil)
	}

	input, err := json.Marshal(params)
	if err != nil {
		return d.finish(rec, conversation.ToolOutcomeFailed, "parameters not serializable", nil)
	}
	if err := ValidateInput(def.Parameters, input); err != nil {
		return d.finish(rec, conversation.ToolOutcomeFailed, fmt.Sprintf("invalid parameters: %v", err), nil)
	}

	attempts := 1
	if def.Idempotency == SafeToRetry {
		attempts = def.MaxRetries + 1
	}

	traceID := logger.GetTraceID(ctx)
	var (
		payload json.RawMessage
		outcome conversation.ToolOutcome
		summary string
	)

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := d.backoff(ctx, attempt); err != nil {
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, def.Timeout)
		start := time.Now()
		payload, err = t.Execute(callCtx, input)
		duration := time.Since(start)
		cancel()

		if err == nil {
			outcome = conversation.ToolOutcomeSuccess
			summary = truncate(string(payload), maxResultSummaryLen)
			slog.Info("Tool execution success", "tool", def.Name, "attempt", attempt, "duration", duration, "trace_id", traceID)
			break
		}

		if errors.Is(err, context.DeadlineExceeded) {
			outcome = conversation.ToolOutcomeTimedOut
			summary = fmt.Sprintf("timed out after %s", def.Timeout)
		} else {
			outcome = conversation.ToolOutcomeFailed
			summary = truncate(err.Error(), maxResultSummaryLen)
		}
		slog.Warn("Tool execution attempt failed", "tool", def.Name, "attempt", attempt, "outcome", outcome, "error", err, "trace_id", traceID)

		if ctx.Err() != nil {
			break
		}
	}

	return d.finish(rec, outcome, summary, payload)
}

func (d *Dispatcher) finish(rec conversation.ToolInvocationRecord, outcome conversation.ToolOutcome, summary string, payload json.RawMessage) Result {
	now := time.Now()
	rec.CompletedAt = &now
	rec.Outcome = outcome
	rec.ResultSummary = summary

	metrics.ToolInvocations.WithLabelValues(rec.ToolName, string(outcome)).Inc()

	if outcome != conversation.ToolOutcomeSuccess {
		payload = nil
	}
	return Result{Record: rec, Payload: payload}
}

// backoff sleeps base * 2^(attempt-1), capped, honoring cancellation.
func (d *Dispatcher) backoff(ctx context.Context, attempt int) error {
	delay := d.retryBase << (attempt - 1)
	if delay > d.retryCap {
		delay = d.retryCap
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
