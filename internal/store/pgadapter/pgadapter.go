// Package pgadapter is a store.PersistenceAdapter backed by PostgreSQL,
// grounded in the udisondev-la2go internal/db package: a pgxpool.Pool
// opened against a DSN, goose migrations embedded via migrations.FS and
// run through the database/sql + pgx/v5/stdlib driver before the pool
// takes over, one method per concern. It realizes the eight-table
// reference layout (players, player_profiles, multiplayer_sessions,
// multiplayer_session_members, auth_access_tokens, auth_refresh_tokens,
// game_logs, room_bans); nested structures (Participant, TurnState,
// ChatConductState, BanRecord set) are kept as a JSONB payload column
// next to the few columns queries actually filter or join on, the same
// "narrow relational shell around an opaque payload" shape sqliteadapter
// uses.
package pgadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/store/pgadapter/migrations"
)

// Adapter implements store.PersistenceAdapter over a PostgreSQL pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// Open runs pending goose migrations then opens a pgxpool against dsn.
func Open(ctx context.Context, dsn string) (*Adapter, error) {
	if err := runMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Adapter{pool: pool}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (a *Adapter) Close() {
	a.pool.Close()
}

// Load reads the full relational layout back into a store.Snapshot.
func (a *Adapter) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{}

	playerRows, err := a.pool.Query(ctx, `SELECT payload FROM players`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	for playerRows.Next() {
		var raw []byte
		if err := playerRows.Scan(&raw); err != nil {
			playerRows.Close()
			return nil, fmt.Errorf("scan player: %w", err)
		}
		var p domain.Player
		if err := json.Unmarshal(raw, &p); err != nil {
			playerRows.Close()
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		snap.Players = append(snap.Players, &p)
	}
	playerRows.Close()
	if err := playerRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}

	sessionRows, err := a.pool.Query(ctx, `SELECT payload FROM multiplayer_sessions`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	for sessionRows.Next() {
		var raw []byte
		if err := sessionRows.Scan(&raw); err != nil {
			sessionRows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var s domain.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			sessionRows.Close()
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		snap.Sessions = append(snap.Sessions, &s)
	}
	sessionRows.Close()
	if err := sessionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, table := range []string{"auth_access_tokens", "auth_refresh_tokens"} {
		rows, err := a.pool.Query(ctx, fmt.Sprintf(
			`SELECT token_hash, player_uid, session_id, issued_at, expires_at, revoked_at FROM %s`, table))
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		kind := domain.TokenKindAccess
		if table == "auth_refresh_tokens" {
			kind = domain.TokenKindRefresh
		}
		for rows.Next() {
			tok := domain.AuthToken{Kind: kind}
			var sessionID sql.NullString
			if err := rows.Scan(&tok.TokenHash, &tok.PlayerID, &sessionID, &tok.IssuedAt, &tok.ExpiresAt, &tok.RevokedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", table, err)
			}
			tok.SessionID = sessionID.String
			snap.Tokens = append(snap.Tokens, &tok)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate %s: %w", table, err)
		}
	}

	logRows, err := a.pool.Query(ctx,
		`SELECT id, player_uid, session_id, log_type, payload, occurred_at FROM game_logs ORDER BY occurred_at`)
	if err != nil {
		return nil, fmt.Errorf("query game_logs: %w", err)
	}
	for logRows.Next() {
		var entry domain.GameLog
		var rawPayload []byte
		var playerUID, sessionID sql.NullString
		if err := logRows.Scan(&entry.ID, &playerUID, &sessionID, &entry.Type, &rawPayload, &entry.Timestamp); err != nil {
			logRows.Close()
			return nil, fmt.Errorf("scan game_log: %w", err)
		}
		entry.PlayerID = playerUID.String
		entry.SessionID = sessionID.String
		if len(rawPayload) > 0 {
			if err := json.Unmarshal(rawPayload, &entry.Payload); err != nil {
				logRows.Close()
				return nil, fmt.Errorf("unmarshal game_log payload: %w", err)
			}
		}
		snap.Logs = append(snap.Logs, entry)
	}
	logRows.Close()
	if err := logRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game_logs: %w", err)
	}

	return snap, nil
}

// Save replaces every row across the eight tables inside one transaction.
func (a *Adapter) Save(ctx context.Context, snap *store.Snapshot) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{
		"room_bans", "game_logs", "auth_refresh_tokens", "auth_access_tokens",
		"multiplayer_session_members", "multiplayer_sessions", "player_profiles", "players",
	} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Players {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal player %s: %w", p.UID, err)
		}
		adminRole := "none"
		if p.AdminRole != nil {
			adminRole = string(*p.AdminRole)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO players (uid, display_name, admin_role, payload, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, now(), now())`,
			p.UID, p.DisplayName, adminRole, raw); err != nil {
			return fmt.Errorf("insert player %s: %w", p.UID, err)
		}
	}

	for _, s := range snap.Sessions {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", s.SessionID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO multiplayer_sessions (session_id, room_code, kind, owner_uid, payload, created_at, expires_at, updated_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
			s.SessionID, s.RoomCode, string(s.RoomKind), s.OwnerPlayerID, raw, s.CreatedAt, s.ExpiresAt, s.LastActivityAt); err != nil {
			return fmt.Errorf("insert session %s: %w", s.SessionID, err)
		}

		seatIndex := 0
		for playerID, participant := range s.Participants {
			memberRaw, err := json.Marshal(participant)
			if err != nil {
				return fmt.Errorf("marshal participant %s/%s: %w", s.SessionID, playerID, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO multiplayer_session_members (session_id, player_uid, seat_index, payload, joined_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				s.SessionID, playerID, seatIndex, memberRaw, participant.JoinedAt); err != nil {
				return fmt.Errorf("insert member %s/%s: %w", s.SessionID, playerID, err)
			}
			seatIndex++
		}

		for targetID, ban := range s.RoomBans {
			if _, err := tx.Exec(ctx,
				`INSERT INTO room_bans (session_id, player_uid, banned_at, reason) VALUES ($1, $2, $3, $4)`,
				s.SessionID, targetID, ban.CreatedAt, ban.Reason); err != nil {
				return fmt.Errorf("insert ban %s/%s: %w", s.SessionID, targetID, err)
			}
		}
	}

	for _, t := range snap.Tokens {
		table := "auth_access_tokens"
		if t.Kind == domain.TokenKindRefresh {
			table = "auth_refresh_tokens"
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (token_hash, player_uid, session_id, issued_at, expires_at, revoked_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`, table),
			t.TokenHash, t.PlayerID, t.SessionID, t.IssuedAt, t.ExpiresAt, t.RevokedAt); err != nil {
			return fmt.Errorf("insert token into %s: %w", table, err)
		}
	}

	for _, entry := range snap.Logs {
		payloadRaw, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("marshal log %s payload: %w", entry.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO game_logs (id, player_uid, session_id, log_type, payload, occurred_at)
			 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)`,
			entry.ID, entry.PlayerID, entry.SessionID, string(entry.Type), payloadRaw, entry.Timestamp); err != nil {
			return fmt.Errorf("insert log %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
