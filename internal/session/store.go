package session

import (
	"context"
	"time"

	"github.com/eternisai/chat-relay/internal/conversation"
)

// Store persists session state keyed by session id.
// Load returns a fresh empty state for unknown ids. Implementations hand out
// and keep copies, so callers own the state they receive.
type Store interface {
	Load(ctx context.Context, id string) (*conversation.State, error)
	Save(ctx context.Context, id string, state *conversation.State) error
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions not saved since cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
