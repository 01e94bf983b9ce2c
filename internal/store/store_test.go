package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Tiered {
	t.Helper()

	durable, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	shared, err := OpenBadger("", true)
	require.NoError(t, err)

	st := NewTiered(durable, shared)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSave_VersionIncrementsStrictly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	state := conversation.New(time.Now(), 30*time.Minute)

	v1, err := st.Save(ctx, state, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	state.AppendTurn(conversation.Turn{Timestamp: time.Now(), Speaker: conversation.SpeakerCustomer, Text: "hello"})
	v2, err := st.Save(ctx, state, v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	loaded, err := st.Load(ctx, state.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "hello", loaded.History[0].Text)
}

func TestSave_StaleVersionConflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	state := conversation.New(time.Now(), 30*time.Minute)
	_, err := st.Save(ctx, state, 0)
	require.NoError(t, err)
	_, err = st.Save(ctx, state, 1)
	require.NoError(t, err)

	// Writer still holding version 1 must lose.
	stale := *state
	_, err = st.Save(ctx, &stale, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rderrors.ErrVersionConflict))

	// The losing write must not have applied.
	loaded, err := st.Load(ctx, state.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestSave_ConcurrentSameVersion_ExactlyOneWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := conversation.New(time.Now(), 30*time.Minute)
	_, err := st.Save(ctx, base, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copied := *base
			_, results[i] = st.Save(ctx, &copied, 1)
		}(i)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, rderrors.ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)

	loaded, err := st.Load(ctx, base.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestSave_DuplicateCreateConflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	state := conversation.New(time.Now(), 30*time.Minute)
	_, err := st.Save(ctx, state, 0)
	require.NoError(t, err)

	dup := *state
	_, err = st.Save(ctx, &dup, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rderrors.ErrVersionConflict))
}

func TestSave_ConflictEvictsStaleCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	// Two store instances over the same durable file, each with its own
	// fast tiers.
	openInstance := func() *Tiered {
		durable, err := OpenSQLite(path)
		require.NoError(t, err)
		shared, err := OpenBadger("", true)
		require.NoError(t, err)
		st := NewTiered(durable, shared)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}
	a := openInstance()
	b := openInstance()

	state := conversation.New(time.Now(), 30*time.Minute)
	_, err := a.Save(ctx, state, 0)
	require.NoError(t, err)

	// Warm a's caches with version 1.
	_, err = a.Load(ctx, state.ConversationID)
	require.NoError(t, err)

	// b advances the conversation to version 2 behind a's back.
	winner := *state
	_, err = b.Save(ctx, &winner, 1)
	require.NoError(t, err)

	// a's save at the stale version must lose and drop its cached copy.
	stale := *state
	_, err = a.Save(ctx, &stale, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rderrors.ErrVersionConflict))

	// The reload after the conflict must read the winner from the durable
	// tier, not version 1 from a's caches.
	loaded, err := a.Load(ctx, state.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestLoad_UnknownConversation(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Load(context.Background(), "01JUNKNOWN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rderrors.ErrNotFound))
}

func TestLoad_ReadThroughAfterEviction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	state := conversation.New(time.Now(), 30*time.Minute)
	_, err := st.Save(ctx, state, 0)
	require.NoError(t, err)

	// Drop the fast tiers; the durable record must still serve the read.
	st.Evict(state.ConversationID)

	loaded, err := st.Load(ctx, state.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, state.ConversationID, loaded.ConversationID)

	// And the read-through must have repopulated the shared tier.
	raw, err := st.shared.Get(state.ConversationID)
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestListIdleBefore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	idle := conversation.New(now.Add(-2*time.Hour), 30*time.Minute)
	_, err := st.Save(ctx, idle, 0)
	require.NoError(t, err)

	active := conversation.New(now, 30*time.Minute)
	_, err = st.Save(ctx, active, 0)
	require.NoError(t, err)

	closed := conversation.New(now.Add(-2*time.Hour), 30*time.Minute)
	closed.Status = conversation.StatusClosed
	_, err = st.Save(ctx, closed, 0)
	require.NoError(t, err)

	ids, err := st.ListIdleBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{idle.ConversationID}, ids)
}

func TestArchive_RetainsDurableRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	state := conversation.New(time.Now().Add(-2*time.Hour), 30*time.Minute)
	_, err := st.Save(ctx, state, 0)
	require.NoError(t, err)

	require.NoError(t, st.Archive(ctx, state.ConversationID))

	// Archived conversations leave the sweep window...
	ids, err := st.ListIdleBefore(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)

	// ...but the durable record is still readable.
	loaded, err := st.Load(ctx, state.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, state.ConversationID, loaded.ConversationID)

	err = st.Archive(ctx, "01JMISSING")
	assert.True(t, errors.Is(err, rderrors.ErrNotFound))
}
