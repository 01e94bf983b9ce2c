// Package store persists conversation state across three tiers: an
// in-process cache, a shared BadgerDB cache, and a durable SQLite record.
// Reads fall through the tiers and repopulate them; writes go through to
// SQLite first and only then refresh the caches. SQLite is authoritative:
// losing a cache tier costs latency, never data.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

// Store is the persistence contract for conversation state. Save enforces
// optimistic concurrency: it fails with ErrVersionConflict when the durable
// version no longer matches expectedVersion, and the caller must reload.
type Store interface {
	Load(ctx context.Context, conversationID string) (*conversation.State, error)
	Save(ctx context.Context, state *conversation.State, expectedVersion int64) (int64, error)
	Archive(ctx context.Context, conversationID string) error
	ListIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}

// Tiered is the production Store. All mutation flows through the durable
// tier; cache tiers hold JSON copies and may be dropped at any time.
type Tiered struct {
	durable *SQLiteStore
	shared  *BadgerCache // may be nil

	mu    sync.RWMutex
	local map[string][]byte
}

func NewTiered(durable *SQLiteStore, shared *BadgerCache) *Tiered {
	return &Tiered{
		durable: durable,
		shared:  shared,
		local:   make(map[string][]byte),
	}
}

func (t *Tiered) Load(ctx context.Context, conversationID string) (*conversation.State, error) {
	t.mu.RLock()
	raw, ok := t.local[conversationID]
	t.mu.RUnlock()
	if ok {
		return decodeState(raw)
	}

	if t.shared != nil {
		raw, err := t.shared.Get(conversationID)
		if err == nil && raw != nil {
			t.putLocal(conversationID, raw)
			return decodeState(raw)
		}
		if err != nil {
			slog.Warn("Shared cache read failed", "conversation_id", conversationID, "error", err)
		}
	}

	raw, err := t.durable.LoadRaw(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	t.populateCaches(conversationID, raw)
	return decodeState(raw)
}

// Save writes through: durable first, caches only after durable success. The
// returned version is expectedVersion+1 and is already set on the state.
func (t *Tiered) Save(ctx context.Context, state *conversation.State, expectedVersion int64) (int64, error) {
	newVersion := expectedVersion + 1
	state.Version = newVersion

	raw, err := json.Marshal(state)
	if err != nil {
		return 0, rderrors.Wrap(err, "encode state")
	}

	if err := t.durable.SaveRaw(ctx, state, raw, expectedVersion); err != nil {
		state.Version = expectedVersion
		if rderrors.IsCategory(err, rderrors.ErrVersionConflict) {
			// A concurrent writer advanced the durable version, so whatever
			// the fast tiers hold is stale. Drop it so the caller's reload
			// reads the winning copy instead of re-conflicting.
			t.Evict(state.ConversationID)
		}
		return 0, err
	}

	t.populateCaches(state.ConversationID, raw)
	return newVersion, nil
}

func (t *Tiered) Archive(ctx context.Context, conversationID string) error {
	if err := t.durable.Archive(ctx, conversationID); err != nil {
		return err
	}
	t.Evict(conversationID)
	return nil
}

func (t *Tiered) ListIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return t.durable.ListIdleBefore(ctx, cutoff)
}

// Evict drops a conversation from the fast tiers. The durable record remains.
func (t *Tiered) Evict(conversationID string) {
	t.mu.Lock()
	delete(t.local, conversationID)
	t.mu.Unlock()

	if t.shared != nil {
		if err := t.shared.Delete(conversationID); err != nil {
			slog.Warn("Shared cache evict failed", "conversation_id", conversationID, "error", err)
		}
	}
}

func (t *Tiered) Close() error {
	if t.shared != nil {
		if err := t.shared.Close(); err != nil {
			slog.Warn("Shared cache close failed", "error", err)
		}
	}
	return t.durable.Close()
}

func (t *Tiered) putLocal(conversationID string, raw []byte) {
	t.mu.Lock()
	t.local[conversationID] = raw
	t.mu.Unlock()
}

// populateCaches refreshes the fast tiers. Failures are non-fatal: the
// durable store already holds the truth.
func (t *Tiered) populateCaches(conversationID string, raw []byte) {
	t.putLocal(conversationID, raw)
	if t.shared != nil {
		if err := t.shared.Set(conversationID, raw); err != nil {
			slog.Warn("Shared cache write failed", "conversation_id", conversationID, "error", err)
		}
	}
}

func decodeState(raw []byte) (*conversation.State, error) {
	var st conversation.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, rderrors.Wrap(err, "decode state")
	}
	return &st, nil
}
