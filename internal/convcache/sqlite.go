// ABOUTME: SQLite-backed local cache of conversation listings using modernc.org/sqlite.
// ABOUTME: Lets the sidebar render instantly before the gateway answers.

package convcache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/parley/internal/api"
)

// Cache is the local conversation-list cache. It mirrors id/title/updated-at
// from reconciled and listed conversations; the gateway remains the source of
// truth and the cache is only ever read for the initial sidebar paint.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the cache at the given path. The schema is created
// automatically and parent directories are created if needed.
func Open(path string) (*Cache, error) {
	logger := slog.Default().With("component", "convcache")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &Cache{db: db, logger: logger}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("conversation cache opened", "path", path)
	return c, nil
}

func (c *Cache) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated
		ON conversations(updated_at DESC);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Upsert records or refreshes one conversation row.
func (c *Cache) Upsert(ctx context.Context, conv api.ConversationSummary) error {
	updatedAt := conv.UpdatedAt
	if updatedAt == "" {
		updatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`, conv.ID, conv.Title, updatedAt)
	if err != nil {
		return fmt.Errorf("upserting conversation %s: %w", conv.ID, err)
	}
	return nil
}

// UpsertPage records every row of a fetched listing page.
func (c *Cache) UpsertPage(ctx context.Context, page *api.ConversationPage) error {
	for _, conv := range page.Conversations {
		if err := c.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	return nil
}

// List returns cached conversations newest-first.
func (c *Cache) List(ctx context.Context, limit, offset int) ([]api.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []api.ConversationSummary
	for rows.Next() {
		var conv api.ConversationSummary
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Delete removes a conversation row. Deleting an unknown id is a no-op.
func (c *Cache) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
