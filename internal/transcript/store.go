// ABOUTME: SQLite-backed local transcript cache using modernc.org/sqlite.
// ABOUTME: Persists the session log as it grows so conversations survive the process.

package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-client/internal/msglog"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcript_entries (
	session_key TEXT NOT NULL,
	entry_id    TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	tool_id     TEXT,
	tool_name   TEXT,
	tool_input  TEXT,
	PRIMARY KEY (session_key, entry_id)
);
CREATE INDEX IF NOT EXISTS idx_transcript_session_ts
	ON transcript_entries (session_key, timestamp);
`

// Store persists log entries to a local SQLite database. Writes are
// upserts keyed by (session_key, entry_id), mirroring the in-memory log's
// upsert-by-id semantics so streamed updates overwrite in place.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens a transcript database at path. Pass nil logger for
// default.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing transcript schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "transcript"),
	}, nil
}

// Save upserts one entry for a session.
func (s *Store) Save(ctx context.Context, sessionKey string, entry msglog.Entry) error {
	query := `
		INSERT INTO transcript_entries (
			session_key, entry_id, role, content, timestamp, kind,
			tool_id, tool_name, tool_input
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key, entry_id) DO UPDATE SET
			content = excluded.content,
			kind = excluded.kind,
			tool_id = excluded.tool_id,
			tool_name = excluded.tool_name,
			tool_input = excluded.tool_input
	`

	_, err := s.db.ExecContext(ctx, query,
		sessionKey,
		entry.ID,
		entry.Role,
		entry.Content,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		string(entry.Kind),
		entry.ToolID,
		entry.ToolName,
		entry.ToolInput,
	)
	if err != nil {
		return fmt.Errorf("saving transcript entry: %w", err)
	}

	s.logger.Debug("saved transcript entry",
		"session_key", sessionKey,
		"entry_id", entry.ID,
		"kind", entry.Kind,
	)
	return nil
}

// List returns a session's transcript in timestamp order.
func (s *Store) List(ctx context.Context, sessionKey string) ([]msglog.Entry, error) {
	query := `
		SELECT entry_id, role, content, timestamp, kind, tool_id, tool_name, tool_input
		FROM transcript_entries
		WHERE session_key = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("listing transcript: %w", err)
	}
	defer rows.Close()

	var entries []msglog.Entry
	for rows.Next() {
		var e msglog.Entry
		var ts, kind string
		var toolID, toolName, toolInput sql.NullString
		if err := rows.Scan(&e.ID, &e.Role, &e.Content, &ts, &kind, &toolID, &toolName, &toolInput); err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing transcript timestamp %q: %w", ts, err)
		}
		e.Kind = msglog.Kind(kind)
		e.ToolID = toolID.String
		e.ToolName = toolName.String
		e.ToolInput = toolInput.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a session's transcript.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcript_entries WHERE session_key = ?`, sessionKey)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
