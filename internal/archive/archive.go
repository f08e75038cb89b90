// Package archive keeps an append-only copy of every relayed message in
// PostgreSQL. Unlike the context window it is never trimmed or expired;
// it exists for analytics and is entirely optional.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one archived message row.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive writes chat messages to PostgreSQL.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects and prepares the schema. An empty databaseURL disables the
// archive and returns (nil, nil); callers treat a nil *Archive as off.
func New(ctx context.Context, databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Archive{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_user_created ON chat_messages (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Record appends one message. The caller decides whether a failure matters;
// the serving path logs and moves on.
func (a *Archive) Record(ctx context.Context, userID, role, content string) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, role, content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

// History returns up to limit most recent entries, oldest first.
func (a *Archive) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM chat_messages WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Users lists every distinct user id present in the archive.
func (a *Archive) Users(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, `SELECT DISTINCT user_id FROM chat_messages`)
	if err != nil {
		return nil, fmt.Errorf("query archive users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan archive user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive users: %w", err)
	}
	return users, nil
}

// Purge removes every archived row for one user.
func (a *Archive) Purge(ctx context.Context, userID string) error {
	if _, err := a.pool.Exec(ctx, `DELETE FROM chat_messages WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("purge archive: %w", err)
	}
	return nil
}

func (a *Archive) Close() error {
	a.pool.Close()
	return nil
}
