package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	version         INTEGER NOT NULL,
	status          TEXT NOT NULL,
	last_activity   INTEGER NOT NULL,
	archived        INTEGER NOT NULL DEFAULT 0,
	state           BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_idle
	ON conversations(last_activity) WHERE archived = 0;
`

// SQLiteStore is the durable, authoritative tier. One row per conversation;
// the version column is checked inside the save transaction, which is the
// whole optimistic-concurrency mechanism.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadRaw(ctx context.Context, conversationID string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversations WHERE conversation_id = ?`, conversationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, rderrors.NotFound(fmt.Sprintf("conversation %s", conversationID))
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return raw, nil
}

// SaveRaw writes a new version inside a transaction keyed on
// (conversation_id, expectedVersion). expectedVersion 0 means insert.
func (s *SQLiteStore) SaveRaw(ctx context.Context, state *conversation.State, raw []byte, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	newVersion := expectedVersion + 1
	lastActivity := state.LastActivity.Unix()

	if expectedVersion == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, version, status, last_activity, state)
			 VALUES (?, ?, ?, ?, ?)`,
			state.ConversationID, newVersion, string(state.Status), lastActivity, raw)
		if err != nil {
			// A concurrent creator already inserted version 1.
			return rderrors.Conflict(fmt.Sprintf("conversation %s already exists", state.ConversationID))
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations
			 SET version = ?, status = ?, last_activity = ?, state = ?
			 WHERE conversation_id = ? AND version = ?`,
			newVersion, string(state.Status), lastActivity, raw,
			state.ConversationID, expectedVersion)
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return rderrors.Conflict(fmt.Sprintf("conversation %s expected version %d", state.ConversationID, expectedVersion))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// Archive marks the durable record archived. Records are never deleted here;
// a retention job decides when archived rows go away.
func (s *SQLiteStore) Archive(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET archived = 1 WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return rderrors.NotFound(fmt.Sprintf("conversation %s", conversationID))
	}
	return nil
}

// ListIdleBefore returns non-archived, non-closed conversations whose last
// activity predates the cutoff. Used by the idle sweeper.
func (s *SQLiteStore) ListIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id FROM conversations
		 WHERE archived = 0 AND status != ? AND last_activity < ?
		 ORDER BY last_activity`,
		string(conversation.StatusClosed), cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("list idle conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
