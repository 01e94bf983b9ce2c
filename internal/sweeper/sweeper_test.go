package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/store"
)

func newTestSweeper(t *testing.T) (*Sweeper, *store.Tiered) {
	t.Helper()

	durable, err := store.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	shared, err := store.OpenBadger("", true)
	require.NoError(t, err)

	st := store.NewTiered(durable, shared)
	t.Cleanup(func() { _ = st.Close() })

	s, err := New(st,
		config.SweeperConfig{Schedule: "@every 1h"},
		config.StoreConfig{IdleTimeout: "30m"})
	require.NoError(t, err)
	return s, st
}

func seed(t *testing.T, st *store.Tiered, lastActivity time.Time, status conversation.Status) string {
	t.Helper()
	state := conversation.New(lastActivity, 30*time.Minute)
	state.Status = status
	state.LastActivity = lastActivity
	_, err := st.Save(context.Background(), state, 0)
	require.NoError(t, err)
	return state.ConversationID
}

func TestSweepClosesIdleConversations(t *testing.T) {
	s, st := newTestSweeper(t)
	ctx := context.Background()

	idle := seed(t, st, time.Now().Add(-2*time.Hour), conversation.StatusInProgress)
	active := seed(t, st, time.Now(), conversation.StatusInProgress)

	s.Sweep(ctx)

	closed, err := st.Load(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusClosed, closed.Status)
	// The durable record survives reclamation.
	assert.Equal(t, int64(2), closed.Version)

	untouched, err := st.Load(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusInProgress, untouched.Status)
	assert.Equal(t, int64(1), untouched.Version)
}

func TestSweepSkipsRefreshedConversation(t *testing.T) {
	s, st := newTestSweeper(t)
	ctx := context.Background()

	id := seed(t, st, time.Now().Add(-2*time.Hour), conversation.StatusInProgress)

	// An active turn lands before the sweep and refreshes the idle clock.
	racing, err := st.Load(ctx, id)
	require.NoError(t, err)
	racing.Touch(time.Now(), 30*time.Minute)
	_, err = st.Save(ctx, racing, racing.Version)
	require.NoError(t, err)

	s.Sweep(ctx)

	state, err := st.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusInProgress, state.Status)
	assert.Equal(t, int64(2), state.Version)
}

func TestSweepSkipsClosed(t *testing.T) {
	s, st := newTestSweeper(t)
	ctx := context.Background()

	seed(t, st, time.Now().Add(-2*time.Hour), conversation.StatusClosed)

	s.Sweep(ctx)
	// No panic, no version churn: closed conversations are only evicted.
}
