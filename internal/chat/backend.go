package chat

import "context"

// Backend is the raw per-user persistence capability behind the Store.
// Implementations hold the full conversation as one value per user; the
// Store reads, mutates in memory and writes the whole list back.
type Backend interface {
	Get(ctx context.Context, userID string) ([]Message, error)
	Set(ctx context.Context, userID string, history []Message) error
	Delete(ctx context.Context, userID string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
