package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eternisai/chat-relay/internal/conversation"
)

// SessionStore persists session state as JSON rows. Provider credentials are never
// written to the database: they are kept in process memory next to the row and are
// lost on restart.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time

	mu    sync.RWMutex
	creds map[string]conversation.Credentials
}

func NewSessionStore(db *Database) *SessionStore {
	return &SessionStore{
		db:    db.DB,
		now:   time.Now,
		creds: make(map[string]conversation.Credentials),
	}
}

func (s *SessionStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&data)

	state := conversation.NewState()
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	default:
		if err := json.Unmarshal([]byte(data), state); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		if state.Chats == nil {
			state.Chats = make(map[string]conversation.Conversation)
		}
	}

	s.mu.RLock()
	state.SetCredentials(s.creds[id])
	s.mu.RUnlock()
	state.MarkClean()

	return state, nil
}

func (s *SessionStore) Save(ctx context.Context, id string, state *conversation.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		id, string(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	creds := state.Credentials()
	s.mu.Lock()
	if creds == (conversation.Credentials{}) {
		delete(s.creds, id)
	} else {
		s.creds[id] = creds
	}
	s.mu.Unlock()

	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.mu.Lock()
	delete(s.creds, id)
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM sessions WHERE updated_at < $1 RETURNING id`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan swept session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.creds, id)
	}
	s.mu.Unlock()

	return len(ids), nil
}
