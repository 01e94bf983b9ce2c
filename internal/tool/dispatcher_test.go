package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// fakeTool counts calls and plays back a scripted sequence of errors before
// succeeding. A nil script means success on the first attempt.
type fakeTool struct {
	def    Definition
	script []error
	calls  int
	block  time.Duration
}

func (f *fakeTool) Definition() Definition { return f.def }

func (f *fakeTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	f.calls++
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.block):
		}
	}
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func testDefinition(name string, roles []string, retries int, idem Idempotency) Definition {
	return Definition{
		Name:        name,
		Description: "test tool",
		Parameters: map[string]interface{}{
			"type":     "object",
			"required": []string{"customer_id"},
			"properties": map[string]interface{}{
				"customer_id": map[string]interface{}{"type": "string"},
			},
		},
		Roles:       roles,
		Timeout:     200 * time.Millisecond,
		MaxRetries:  retries,
		Idempotency: idem,
	}
}

func newTestDispatcher(t *testing.T, tools ...Tool) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	for _, tl := range tools {
		require.NoError(t, reg.Register(tl))
	}
	return NewDispatcher(reg, time.Millisecond, 10*time.Millisecond)
}

func TestDispatcherDeniesUnauthorizedRole(t *testing.T) {
	ft := &fakeTool{def: testDefinition("process_payment", []string{"billing", "supervisor"}, 0, MustNotRetry)}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "process_payment", map[string]any{"customer_id": "c-1"}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeDenied, res.Record.Outcome)
	assert.Equal(t, "tier1", res.Record.RequestedBy)
	assert.Nil(t, res.Payload)
	// Denial happens before dispatch: the external system is never touched.
	assert.Equal(t, 0, ft.calls)
	require.NotNil(t, res.Record.CompletedAt)
}

func TestDispatcherSuccessRecordsAudit(t *testing.T) {
	ft := &fakeTool{def: testDefinition("search_knowledge_base", []string{"tier1"}, 2, SafeToRetry)}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "search_knowledge_base", map[string]any{"customer_id": "c-1"}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeSuccess, res.Record.Outcome)
	assert.JSONEq(t, `{"ok":true}`, string(res.Payload))
	assert.Equal(t, 1, ft.calls)
	assert.NotEmpty(t, res.Record.ResultSummary)
}

func TestDispatcherRetriesSafeTool(t *testing.T) {
	boom := errors.New("upstream 503")
	ft := &fakeTool{
		def:    testDefinition("create_ticket", []string{"tier1"}, 3, SafeToRetry),
		script: []error{boom, boom, nil},
	}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "create_ticket", map[string]any{"customer_id": "c-1"}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeSuccess, res.Record.Outcome)
	assert.Equal(t, 3, ft.calls)
}

func TestDispatcherNeverRetriesMustNotRetry(t *testing.T) {
	ft := &fakeTool{
		def:    testDefinition("process_payment", []string{"billing"}, 3, MustNotRetry),
		script: []error{errors.New("gateway error")},
	}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "process_payment", map[string]any{"customer_id": "c-1"}, "billing")

	assert.Equal(t, conversation.ToolOutcomeFailed, res.Record.Outcome)
	assert.Equal(t, 1, ft.calls)
	assert.Nil(t, res.Payload)
}

func TestDispatcherTimeoutOutcome(t *testing.T) {
	ft := &fakeTool{
		def:   testDefinition("run_diagnostic_test", []string{"tier2"}, 0, SafeToRetry),
		block: time.Second,
	}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "run_diagnostic_test", map[string]any{"customer_id": "c-1"}, "tier2")

	assert.Equal(t, conversation.ToolOutcomeTimedOut, res.Record.Outcome)
	assert.Contains(t, res.Record.ResultSummary, "timed out")
}

func TestDispatcherRetriesExhaustedKeepsLastOutcome(t *testing.T) {
	boom := errors.New("still down")
	ft := &fakeTool{
		def:    testDefinition("create_ticket", []string{"tier1"}, 1, SafeToRetry),
		script: []error{boom, boom},
	}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "create_ticket", map[string]any{"customer_id": "c-1"}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeFailed, res.Record.Outcome)
	assert.Equal(t, 2, ft.calls)
	assert.Contains(t, res.Record.ResultSummary, "still down")
}

func TestDispatcherUnknownToolFails(t *testing.T) {
	d := newTestDispatcher(t)

	res := d.Execute(context.Background(), "no_such_tool", map[string]any{}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeFailed, res.Record.Outcome)
	assert.Contains(t, res.Record.ResultSummary, "not registered")
}

func TestDispatcherRejectsInvalidParameters(t *testing.T) {
	ft := &fakeTool{def: testDefinition("create_ticket", []string{"tier1"}, 0, SafeToRetry)}
	d := newTestDispatcher(t, ft)

	res := d.Execute(context.Background(), "create_ticket", map[string]any{"wrong_field": 1}, "tier1")

	assert.Equal(t, conversation.ToolOutcomeFailed, res.Record.Outcome)
	assert.Equal(t, 0, ft.calls)
	assert.Contains(t, res.Record.ResultSummary, "invalid parameters")
}

func TestRegistryRejectsUnknownRole(t *testing.T) {
	reg := NewRegistry()
	ft := &fakeTool{def: testDefinition("create_ticket", []string{"janitor"}, 0, SafeToRetry)}

	err := reg.Register(ft)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeTool{def: testDefinition("create_ticket", []string{"tier1"}, 0, SafeToRetry)}))

	err := reg.Register(&fakeTool{def: testDefinition("create_ticket", []string{"tier2"}, 0, SafeToRetry)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}
