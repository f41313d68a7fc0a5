// Package sqliteadapter is a store.PersistenceAdapter backed by
// modernc.org/sqlite: WAL mode, a busy timeout, and a retry wrapper
// around writes that can hit SQLITE_BUSY under concurrent sessions.
// Sessions, players, and tokens are each stored as one JSON blob per
// row, alongside the real columns needed for lookups and ordering.
package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/shared"
	"github.com/farkleio/tablecore/internal/store"
)

// Adapter implements store.PersistenceAdapter over a local SQLite file.
type Adapter struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at dbPath.
func Open(dbPath string) (*Adapter, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &Adapter{db: db}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return a, nil
}

func (a *Adapter) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS players (
		uid TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		room_code TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_room_code ON sessions(room_code);
	CREATE TABLE IF NOT EXISTS auth_tokens (
		token_hash TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS game_logs (
		id TEXT PRIMARY KEY,
		player_id TEXT,
		timestamp INTEGER NOT NULL,
		payload_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_game_logs_player_ts ON game_logs(player_id, timestamp DESC);
	`
	_, err := a.db.Exec(query)
	return err
}

// Close closes the underlying database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Load reads every row back into a store.Snapshot.
func (a *Adapter) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{}

	if err := a.loadRows(ctx, "SELECT payload_json FROM players", func(raw string) error {
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		snap.Players = append(snap.Players, &p)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}

	if err := a.loadRows(ctx, "SELECT payload_json FROM sessions", func(raw string) error {
		var s domain.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return err
		}
		snap.Sessions = append(snap.Sessions, &s)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	if err := a.loadRows(ctx, "SELECT payload_json FROM auth_tokens", func(raw string) error {
		var tok domain.AuthToken
		if err := json.Unmarshal([]byte(raw), &tok); err != nil {
			return err
		}
		snap.Tokens = append(snap.Tokens, &tok)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load auth tokens: %w", err)
	}

	if err := a.loadRows(ctx, "SELECT payload_json FROM game_logs ORDER BY timestamp", func(raw string) error {
		var entry domain.GameLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return err
		}
		snap.Logs = append(snap.Logs, entry)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load game logs: %w", err)
	}

	return snap, nil
}

func (a *Adapter) loadRows(ctx context.Context, query string, onRow func(string) error) error {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		if err := onRow(raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Save persists the snapshot, replacing prior rows. A commit that fails
// with SQLITE_BUSY contention is retried through withBusyRetry, which
// re-runs Save; errors from the individual statements are returned as-is.
func (a *Adapter) Save(ctx context.Context, snap *store.Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"players", "sessions", "auth_tokens", "game_logs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	now := time.Now().Unix()
	for _, p := range snap.Players {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal player %s: %w", p.UID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (uid, payload_json, updated_at) VALUES (?, ?, ?)`,
			p.UID, string(raw), now); err != nil {
			return fmt.Errorf("insert player %s: %w", p.UID, err)
		}
	}
	for _, s := range snap.Sessions {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", s.SessionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (session_id, room_code, payload_json, updated_at) VALUES (?, ?, ?, ?)`,
			s.SessionID, s.RoomCode, string(raw), now); err != nil {
			return fmt.Errorf("insert session %s: %w", s.SessionID, err)
		}
	}
	for _, t := range snap.Tokens {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO auth_tokens (token_hash, payload_json) VALUES (?, ?)`,
			t.TokenHash, string(raw)); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
	}
	for _, entry := range snap.Logs {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal log %s: %w", entry.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_logs (id, player_id, timestamp, payload_json) VALUES (?, ?, ?, ?)`,
			entry.ID, entry.PlayerID, entry.Timestamp.Unix(), string(raw)); err != nil {
			return fmt.Errorf("insert log %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return withBusyRetry(ctx, err, func() error {
			return a.Save(ctx, snap)
		})
	}
	return nil
}

// withBusyRetry re-runs retryFn once after a short delay when err is a
// SQLITE_BUSY/"database is locked" conflict.
func withBusyRetry(ctx context.Context, err error, retryFn func() error) error {
	if !shared.IsSQLiteConflictError(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}
	return retryFn()
}
