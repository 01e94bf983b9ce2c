package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewHTTP(config.ProfileConfig{BaseURL: srv.URL, Timeout: "1s"})
	require.NoError(t, err)
	return p
}

func TestFetchParsesSnapshot(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/c-42", r.URL.Path)
		w.Write([]byte(`{"customer_id":"c-42","tier":"platinum","account_status":"active"}`))
	})

	snap, err := p.Fetch(context.Background(), "c-42")

	require.NoError(t, err)
	assert.Equal(t, conversation.TierPlatinum, snap.Tier)
	assert.Equal(t, "active", snap.AccountStatus)
	assert.WithinDuration(t, time.Now(), snap.FetchedAt, time.Minute)
}

func TestFetchUnknownTierDegradesToBronze(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"customer_id":"c-1","tier":"diamond"}`))
	})

	snap, err := p.Fetch(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, conversation.TierBronze, snap.Tier)
}

func TestFetchNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := p.Fetch(context.Background(), "c-missing")

	require.Error(t, err)
	assert.True(t, rderrors.IsCategory(err, rderrors.ErrNotFound))
}

func TestRefreshKeepsSnapshotOnFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	stale := &conversation.CustomerSnapshot{
		CustomerID: "c-1",
		Tier:       conversation.TierGold,
		FetchedAt:  time.Now().Add(-time.Hour),
	}
	state := &conversation.State{Customer: stale}

	Refresh(context.Background(), p, state, "c-1", 15*time.Minute)

	// Stale beats absent; the old snapshot survives the outage.
	assert.Equal(t, stale, state.Customer)
	assert.Equal(t, conversation.TierGold, state.CustomerTierOrDefault())
}

func TestRefreshSkipsFreshSnapshot(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"tier":"silver"}`))
	})

	state := &conversation.State{Customer: &conversation.CustomerSnapshot{
		CustomerID: "c-1",
		Tier:       conversation.TierGold,
		FetchedAt:  time.Now(),
	}}

	Refresh(context.Background(), p, state, "c-1", 15*time.Minute)

	assert.Equal(t, 0, calls)
	assert.Equal(t, conversation.TierGold, state.Customer.Tier)
}

func TestRefreshPopulatesMissingSnapshot(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tier":"silver","account_status":"active"}`))
	})

	state := &conversation.State{}

	Refresh(context.Background(), p, state, "c-9", 15*time.Minute)

	require.NotNil(t, state.Customer)
	assert.Equal(t, conversation.TierSilver, state.Customer.Tier)
}
