// Package authtoken issues and verifies the bearer tokens the session
// and socket layers hand out: crypto/rand bytes hashed for storage,
// not a JWT library, with github.com/google/uuid for the token value
// itself.
package authtoken

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/store"
)

// AccessTokenTTL and RefreshTokenTTL are the default lifetimes for
// issued tokens.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Bundle is the raw (never-persisted) token pair handed back to clients.
type Bundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Issue mints a fresh access+refresh token pair for (sessionID, playerID)
// and stores their hashes in world.
func Issue(world *store.World, sessionID, playerID string, now time.Time) Bundle {
	rawAccess := uuid.NewString()
	rawRefresh := uuid.NewString()
	accessExpires := now.Add(AccessTokenTTL)
	refreshExpires := now.Add(RefreshTokenTTL)

	world.PutToken(&domain.AuthToken{
		TokenHash: hash(rawAccess),
		PlayerID:  playerID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: accessExpires,
		Kind:      domain.TokenKindAccess,
	})
	world.PutToken(&domain.AuthToken{
		TokenHash: hash(rawRefresh),
		PlayerID:  playerID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: refreshExpires,
		Kind:      domain.TokenKindRefresh,
	})

	return Bundle{AccessToken: rawAccess, RefreshToken: rawRefresh, ExpiresAt: accessExpires}
}

func hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify looks up rawToken and checks it against sessionID/playerID,
// without any rehydrate retry — callers in sessionctl/socket layer that
// retry are responsible for re-invoking Verify after a rehydrate.
func Verify(world *store.World, rawToken, sessionID, playerID string, now time.Time) (*domain.AuthToken, error) {
	if rawToken == "" {
		return nil, apperr.ErrTokenNotFound
	}
	tok := world.GetToken(hash(rawToken))
	if tok == nil {
		return nil, apperr.ErrTokenNotFound
	}
	if !tok.IsValid(now, sessionID, playerID) {
		return nil, apperr.ErrSessionTokenMismatch
	}
	return tok, nil
}
