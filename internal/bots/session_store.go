package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/steam"
)

// ErrSessionNotFound means there is no usable stored session: missing,
// expired or corrupt. The caller is expected to perform a fresh login.
var ErrSessionNotFound = errors.New("bot session not found")

// SessionStore persists bot sessions in Redis so a restart does not force a
// re-login for every bot (logins are heavily rate-limited upstream).
type SessionStore struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewSessionStore(rdb *redis.Client, log *zap.Logger) *SessionStore {
	return &SessionStore{rdb: rdb, log: log}
}

func sessionKey(handle string) string {
	return fmt.Sprintf("bot_session:%s", handle)
}

// Save overwrites any previous session; the key TTL matches the session
// expiry so Redis drops dead sessions on its own.
func (s *SessionStore) Save(ctx context.Context, handle string, session *steam.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refusing to store already-expired session for %s", handle)
	}
	return s.rdb.Set(ctx, sessionKey(handle), data, ttl).Err()
}

func (s *SessionStore) Load(ctx context.Context, handle string) (*steam.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	session, err := decodeSession(data, time.Now())
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.log.Warn("corrupt stored session, dropping", zap.String("bot", handle), zap.Error(err))
			_ = s.rdb.Del(ctx, sessionKey(handle)).Err()
		}
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// decodeSession parses a stored session and rejects anything expired; both
// outcomes mean the caller must log in fresh.
func decodeSession(data []byte, now time.Time) (*steam.Session, error) {
	var session steam.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if !session.ExpiresAt.After(now) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *SessionStore) Invalidate(ctx context.Context, handle string) error {
	return s.rdb.Del(ctx, sessionKey(handle)).Err()
}
