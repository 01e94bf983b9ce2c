package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/classifier"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/engine"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/tool"
)

type fixedClassifier struct {
	result classifier.Result
}

func (f fixedClassifier) Classify(_ context.Context, _ string) (classifier.Result, error) {
	return f.result, nil
}

type echoTool struct{ name string }

func (e echoTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        e.name,
		Description: "test",
		Parameters:  map[string]interface{}{"type": "object"},
		Roles:       []string{"tier1", "tier2", "tier3", "billing", "sales", "supervisor"},
		Timeout:     time.Second,
		Idempotency: tool.SafeToRetry,
	}
}

func (e echoTool) Execute(_ context.Context, in json.RawMessage) (json.RawMessage, error) {
	return in, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Tiered) {
	t.Helper()

	durable, err := store.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	shared, err := store.OpenBadger("", true)
	require.NoError(t, err)
	tiered := store.NewTiered(durable, shared)
	t.Cleanup(func() { _ = tiered.Close() })

	policy, err := engine.NewPolicy(config.RoutingConfig{
		ConfidenceThreshold:  0.85,
		EscalationAttemptCap: 3,
		LevelPenaltyFactor:   0.15,
		AttemptPenaltyFactor: 0.1,
		SentimentPenalty:     0.2,
		SLAWindow:            "30m",
		TieBreak:             []string{"clarification", "tier1", "supervisor"},
		IntentWeights: map[string]map[string]float64{
			"general": {"tier1": 0.6},
		},
	})
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(echoTool{name: "search_knowledge_base"}))

	eng := engine.New(engine.Options{
		Store:      tiered,
		Dispatcher: tool.NewDispatcher(reg, time.Millisecond, time.Millisecond),
		Classifier: fixedClassifier{result: classifier.Result{
			Intent: "general", Confidence: 0.9, Sentiment: conversation.SentimentNeutral,
		}},
		Policy:      policy,
		IdleTimeout: 30 * time.Minute,
	})

	mux := http.NewServeMux()
	NewServer(eng, tiered).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, tiered
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestConversationLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, created := postJSON(t, srv.URL+"/v1/conversations", `{"customer_id":"c-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["conversation_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "new", created["status"])

	resp, turn := postJSON(t, fmt.Sprintf("%s/v1/conversations/%s/messages", srv.URL, id),
		`{"customer_id":"c-1","message":"What are your business hours?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tier1", turn["handler_type"])
	assert.Equal(t, "in_progress", turn["status"])
	assert.Equal(t, false, turn["escalated"])
	assert.NotEmpty(t, turn["response_text"])

	getResp, err := http.Get(fmt.Sprintf("%s/v1/conversations/%s", srv.URL, id))
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var state conversation.State
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&state))
	assert.Equal(t, id, state.ConversationID)
	assert.Len(t, state.History, 2)
	assert.Equal(t, int64(2), state.Version)
}

func TestPostMessageUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/v1/conversations/01JMISSING/messages",
		`{"message":"hello"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, payload := postJSON(t, srv.URL+"/v1/conversations/01JSOME/messages", `{"message":""}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, payload["error"])
}

func TestTurnOnClosedConversationConflicts(t *testing.T) {
	srv, tiered := newTestServer(t)

	_, created := postJSON(t, srv.URL+"/v1/conversations", `{"customer_id":"c-1"}`)
	id := created["conversation_id"].(string)

	state, err := tiered.Load(context.Background(), id)
	require.NoError(t, err)
	state.Status = conversation.StatusClosed
	_, err = tiered.Save(context.Background(), state, state.Version)
	require.NoError(t, err)

	resp, _ := postJSON(t, fmt.Sprintf("%s/v1/conversations/%s/messages", srv.URL, id),
		`{"message":"anyone there?"}`)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
