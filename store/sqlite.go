// Package store implements the durable structured store on SQLite: the
// route decision log and the non-vector half of long-term memory entries.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/ChallaYogeswar/agentforge/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the SQLite-backed structured store. It implements
// memory.LongTermStore and the router's decision log.
type SQLite struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens and initializes the store at dbPath. Transient open failures
// are retried with bounded exponential backoff before surfacing
// core.ErrMemoryStoreUnavailable.
func Open(ctx context.Context, dbPath string, logger *log.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ping := func() error { return db.PingContext(ctx) }
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", core.ErrMemoryStoreUnavailable, err)
	}

	if logger == nil {
		logger = log.Default()
	}
	s := &SQLite{db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("sqlite store ready", "path", dbPath)
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run schema stmt: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertDecision persists one route decision. Inserts are idempotent on
// request_id so a retried request never duplicates its audit record.
func (s *SQLite) InsertDecision(ctx context.Context, d core.RouteDecision) error {
	const q = `INSERT OR IGNORE INTO route_decisions (
		request_id, session_id, handler_id, confidence, method, created_at
	) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		d.RequestID,
		d.SessionID,
		d.HandlerID,
		d.Confidence,
		string(d.Method),
		d.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert route decision: %w", err)
	}
	return nil
}

// LastHandlerForSession returns the handler of the most recent decision in
// the session, or "" when the session has none. The router's continuity
// tie-break reads this.
func (s *SQLite) LastHandlerForSession(ctx context.Context, sessionID string) (string, error) {
	const q = `SELECT handler_id FROM route_decisions
WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`
	var handlerID string
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&handlerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last handler for session: %w", err)
	}
	return handlerID, nil
}

// RecentDecisions returns the newest decisions for a session, newest first.
func (s *SQLite) RecentDecisions(ctx context.Context, sessionID string, limit int) ([]core.RouteDecision, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT request_id, session_id, handler_id, confidence, method, created_at
FROM route_decisions WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list route decisions: %w", err)
	}
	defer rows.Close()

	out := make([]core.RouteDecision, 0, limit)
	for rows.Next() {
		var (
			d         core.RouteDecision
			method    string
			createdAt string
		)
		if err := rows.Scan(&d.RequestID, &d.SessionID, &d.HandlerID, &d.Confidence, &method, &createdAt); err != nil {
			return nil, fmt.Errorf("scan route decision: %w", err)
		}
		d.Method = core.RouteMethod(method)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			d.Timestamp = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertEntry stores the non-vector fields of a long-term entry.
func (s *SQLite) InsertEntry(ctx context.Context, entry core.LongTermEntry) error {
	tags, err := json.Marshal(orEmptyTags(entry.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(orEmptyMeta(entry.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `INSERT INTO long_term_entries (
		id, owner_id, handler_id, text, tags_json, metadata_json, created_at, last_retrieved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		entry.ID,
		entry.OwnerID,
		entry.HandlerID,
		entry.Text,
		string(tags),
		string(meta),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		entry.LastRetrievedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert long-term entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a long-term entry row. Deleting a missing row is not
// an error; compensation paths may race with eviction.
func (s *SQLite) DeleteEntry(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM long_term_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete long-term entry: %w", err)
	}
	return nil
}

// GetEntries resolves ids to full records. Missing ids are skipped.
func (s *SQLite) GetEntries(ctx context.Context, ids []string) ([]core.LongTermEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `SELECT id, owner_id, handler_id, text, tags_json, metadata_json, created_at, last_retrieved_at
FROM long_term_entries WHERE id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get long-term entries: %w", err)
	}
	defer rows.Close()

	out := make([]core.LongTermEntry, 0, len(ids))
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListEntriesByOwner returns an owner's entries, newest first.
func (s *SQLite) ListEntriesByOwner(ctx context.Context, ownerID string, limit int) ([]core.LongTermEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, owner_id, handler_id, text, tags_json, metadata_json, created_at, last_retrieved_at
FROM long_term_entries WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list long-term entries: %w", err)
	}
	defer rows.Close()

	var out []core.LongTermEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// CountByOwner counts an owner's long-term entries.
func (s *SQLite) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM long_term_entries WHERE owner_id = ?`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count long-term entries: %w", err)
	}
	return n, nil
}

// EvictionCandidates returns up to n entries for ownerID ordered
// least-recently-retrieved first, ties broken by oldest created_at.
func (s *SQLite) EvictionCandidates(ctx context.Context, ownerID string, n int) ([]core.LongTermEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `SELECT id, owner_id, handler_id, text, tags_json, metadata_json, created_at, last_retrieved_at
FROM long_term_entries WHERE owner_id = ?
ORDER BY last_retrieved_at ASC, created_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("eviction candidates: %w", err)
	}
	defer rows.Close()

	out := make([]core.LongTermEntry, 0, n)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MarkRetrieved bumps last_retrieved_at for the given entries.
func (s *SQLite) MarkRetrieved(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `UPDATE long_term_entries SET last_retrieved_at = ? WHERE id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("mark retrieved: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (core.LongTermEntry, error) {
	var (
		entry       core.LongTermEntry
		tagsJSON    string
		metaJSON    string
		createdAt   string
		retrievedAt string
	)
	err := sc.Scan(
		&entry.ID,
		&entry.OwnerID,
		&entry.HandlerID,
		&entry.Text,
		&tagsJSON,
		&metaJSON,
		&createdAt,
		&retrievedAt,
	)
	if err != nil {
		return entry, fmt.Errorf("scan long-term entry: %w", err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
		entry.Tags = nil
	}
	if err := json.Unmarshal([]byte(metaJSON), &entry.Metadata); err != nil {
		entry.Metadata = nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, retrievedAt); err == nil {
		entry.LastRetrievedAt = ts
	}
	return entry, nil
}

func orEmptyTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func orEmptyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
