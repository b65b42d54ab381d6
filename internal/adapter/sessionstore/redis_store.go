// Package sessionstore keeps live interview sessions in Redis as JSON documents
// with a sliding TTL.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

const keyPrefix = "interview:session:"

// RedisStore implements domain.SessionStore.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore builds a store. A ttl <= 0 keeps sessions until deleted.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

var _ domain.SessionStore = (*RedisStore)(nil)

func key(id string) string { return keyPrefix + id }

// Save writes the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, sess domain.InterviewSession) error {
	ctx, span := otel.Tracer("sessionstore").Start(ctx, "sessions.Save")
	defer span.End()
	span.SetAttributes(attribute.String("interview.session_id", sess.ID), attribute.String("interview.state", string(sess.State)))

	if sess.ID == "" {
		return fmt.Errorf("op=sessions.Save: %w: session id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("op=sessions.Save: %w: %v", domain.ErrInternal, err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key(sess.ID), b, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=sessions.Save: %w", err)
	}
	return nil
}

// Get loads a session; a missing or expired key is ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.InterviewSession, error) {
	ctx, span := otel.Tracer("sessionstore").Start(ctx, "sessions.Get")
	defer span.End()
	span.SetAttributes(attribute.String("interview.session_id", id))

	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.InterviewSession{}, fmt.Errorf("op=sessions.Get: %w: session %s", domain.ErrNotFound, id)
	}
	if err != nil {
		span.RecordError(err)
		return domain.InterviewSession{}, fmt.Errorf("op=sessions.Get: %w", err)
	}
	var sess domain.InterviewSession
	if err := json.Unmarshal(b, &sess); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=sessions.Get: %w: corrupt session %s: %v", domain.ErrInternal, id, err)
	}
	return sess, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
