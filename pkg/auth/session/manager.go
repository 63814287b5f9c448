package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	redisclient "github.com/angelmondragon/componentry-backend/pkg/redis"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errMissingAccessID     = errors.New("access id is required")
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// session is stored as JSON under the access id. Only a digest of the
// refresh token is kept, so a Redis dump cannot be replayed.
type session struct {
	UserID uuid.UUID `json:"user_id"`
	Digest string    `json:"digest"`
}

// Manager issues refresh tokens keyed by the access token's jti and rotates
// them exactly once.
type Manager struct {
	store sessionStore
	ttl   time.Duration
}

func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case ttl <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case ttl <= accessTTL:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: client, ttl: ttl}, nil
}

// NewAccessID produces the identifier used as the JWT jti and the session key.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	if blank(accessID) {
		return "", errMissingAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	return m.open(ctx, accessID, userID)
}

// Rotate trades a refresh token for a new access id and refresh token. The
// old session is claimed with a compare-and-delete, so two concurrent
// rotations of the same token cannot both succeed.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (userID uuid.UUID, accessID, token string, err error) {
	if blank(oldAccessID) || blank(provided) {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}
	key := m.store.AccessSessionKey(oldAccessID)
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, redislib.Nil) {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("load session: %w", err)
	}

	var current session
	if json.Unmarshal([]byte(raw), &current) != nil || current.UserID == uuid.Nil {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(current.Digest), []byte(digest(provided))) != 1 {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}

	claimed, err := m.store.DelIfValue(ctx, key, raw)
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}

	accessID = NewAccessID()
	token, err = m.open(ctx, accessID, current.UserID)
	if err != nil {
		return uuid.Nil, "", "", err
	}
	return current.UserID, accessID, token, nil
}

// Revoke ends the session tied to accessID.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if blank(accessID) {
		return errMissingAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

// HasSession reports whether accessID still has a live session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if blank(accessID) {
		return false, errMissingAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redislib.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) open(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	raw, err := json.Marshal(session{UserID: userID, Digest: digest(token)})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(raw), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
