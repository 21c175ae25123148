// Package redis хранит сессии покупателей в Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const keyPrefix = "commerce:session:"

// DefaultSessionTTL применяется к сессиям без ExpiresAt.
const DefaultSessionTTL = 14 * 24 * time.Hour

// SessionRepository кладёт сессию одним JSON-значением с TTL до ExpiresAt.
type SessionRepository struct {
	rdb goredis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

func NewSessionRepository(rdb goredis.UniversalClient, defaultTTL time.Duration) *SessionRepository {
	if defaultTTL <= 0 {
		defaultTTL = DefaultSessionTTL
	}
	return &SessionRepository{rdb: rdb, ttl: defaultTTL, now: time.Now}
}

type sessionValue struct {
	Token             string    `json:"token"`
	AccountID         string    `json:"account_id,omitempty"`
	CartOrderIDs      []string  `json:"cart_order_ids,omitempty"`
	CompletedOrderIDs []string  `json:"completed_order_ids,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at,omitempty"`
}

func (r *SessionRepository) Get(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	raw, err := r.rdb.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var v sessionValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return domain.Session{
		Token:             v.Token,
		AccountID:         v.AccountID,
		CartOrderIDs:      v.CartOrderIDs,
		CompletedOrderIDs: v.CompletedOrderIDs,
		CreatedAt:         v.CreatedAt,
		ExpiresAt:         v.ExpiresAt,
	}, nil
}

func (r *SessionRepository) Save(ctx context.Context, session domain.Session) error {
	if session.Token == "" {
		return errors.New("session token is required")
	}
	ttl := r.ttl
	if !session.ExpiresAt.IsZero() {
		ttl = session.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.Delete(ctx, session.Token)
		}
	}

	raw, err := json.Marshal(sessionValue{
		Token:             session.Token,
		AccountID:         session.AccountID,
		CartOrderIDs:      session.CartOrderIDs,
		CompletedOrderIDs: session.CompletedOrderIDs,
		CreatedAt:         session.CreatedAt,
		ExpiresAt:         session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+session.Token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Ping используется health-проверкой готовности.
func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
