// Package memory persists conversational memory: a short ring of recent
// dialogue turns per operator, and long-term facts retrievable by hybrid
// full-text + embedding search.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/focuslock/cooagent/provider"
)

const (
	maxTurnLen = 2000
	maxFactLen = 2000

	// Facts shorter than this carry no retrievable signal and are dropped.
	minFactLen = 20
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	content    TEXT NOT NULL,
	embedding  BLOB,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
`

// The FTS mirror is populated explicitly in RememberFact to avoid
// trigger compatibility issues.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
	id UNINDEXED,
	user_id UNINDEXED,
	content
);
`

// Store is the sqlite-backed memory store. A nil embedder disables
// semantic ranking; retrieval then falls back to full-text only.
type Store struct {
	db          *sql.DB
	embedder    provider.Embedder
	recentTurns int
	semanticK   int
}

// Open opens (or creates) the memory database at dbPath and ensures the
// schema exists. The caller is responsible for calling Close.
func Open(dbPath string, embedder provider.Embedder, recentTurns, semanticK int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memory schema: %w", err)
	}
	if _, err := db.Exec(ftsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create facts fts table: %w", err)
	}
	if recentTurns <= 0 {
		recentTurns = 12
	}
	if semanticK <= 0 {
		semanticK = 8
	}
	return &Store{db: db, embedder: embedder, recentTurns: recentTurns, semanticK: semanticK}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// RememberTurn records one dialogue turn for the operator. Empty
// content is ignored; overlong content is clipped.
func (s *Store) RememberTurn(ctx context.Context, userID int64, role, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) > maxTurnLen {
		content = content[:maxTurnLen]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(user_id, role, content) VALUES(?, ?, ?)`,
		userID, role, content,
	)
	if err != nil {
		return fmt.Errorf("remember turn: %w", err)
	}
	return nil
}

// RememberFact stores a long-term fact with an optional embedding.
// Fragments below the minimum length are silently dropped.
func (s *Store) RememberFact(ctx context.Context, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if len(text) < minFactLen {
		return nil
	}
	if len(text) > maxFactLen {
		text = text[:maxFactLen]
	}

	var embBlob []byte
	if s.embedder != nil {
		if emb, err := s.embedder.Embed(ctx, text); err == nil {
			embBlob = float32SliceToBytes(emb)
		} else {
			log.Printf("memory: embedding failed, storing fact without vector: %v", err)
		}
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO facts(id, user_id, content, embedding) VALUES(?, ?, ?, ?)`,
		id, userID, text, embBlob,
	); err != nil {
		return fmt.Errorf("remember fact: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO facts_fts(id, user_id, content) VALUES(?, ?, ?)`,
		id, userID, text,
	); err != nil {
		return fmt.Errorf("remember fact fts: %w", err)
	}
	return nil
}

// Context is what the assembler injects into the planner prompt.
type Context struct {
	Recent   []string // oldest-first "role: content" lines
	Semantic []string // retrieved facts, best match first
}

// GetContext returns recent turns and semantically relevant facts for
// the operator. Retrieval is best-effort: a failing source contributes
// nothing rather than failing the caller.
func (s *Store) GetContext(ctx context.Context, userID int64, query string) Context {
	var out Context

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, s.recentTurns,
	)
	if err != nil {
		log.Printf("memory: recent turns query failed: %v", err)
	} else {
		var recent []string
		for rows.Next() {
			var role, content string
			if rows.Scan(&role, &content) == nil {
				recent = append(recent, role+": "+content)
			}
		}
		_ = rows.Close()
		// Reverse into oldest-first order.
		for i := len(recent) - 1; i >= 0; i-- {
			out.Recent = append(out.Recent, recent[i])
		}
	}

	if strings.TrimSpace(query) != "" {
		facts, err := s.searchFacts(ctx, userID, query)
		if err != nil {
			log.Printf("memory: fact search failed: %v", err)
		} else {
			out.Semantic = facts
		}
	}
	return out
}

// FormatContext renders the context as at most two labeled blocks.
// Both sources empty yields an empty string.
func FormatContext(c Context) string {
	var blocks []string
	if len(c.Recent) > 0 {
		blocks = append(blocks, "Recent dialogue:\n- "+strings.Join(c.Recent, "\n- "))
	}
	if len(c.Semantic) > 0 {
		blocks = append(blocks, "Relevant long-term memory:\n- "+strings.Join(c.Semantic, "\n- "))
	}
	return strings.Join(blocks, "\n\n")
}
