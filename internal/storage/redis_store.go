package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

// Compile-time check to ensure RedisStore implements SessionStore
var _ SessionStore = (*RedisStore)(nil)

// RedisStore - зеркало сессий в Redis с TTL на ключ. Используется, когда
// снимки должны переживать процесс сервера или читаться другим процессом
// презентационного слоя.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore создает Redis-зеркало.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionStore"),
	}
}

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("ip_session:%s", id)
}

// Push сохраняет снимок сессии с обновлением TTL.
func (s *RedisStore) Push(ctx context.Context, snapshot *models.PipelineSession) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(snapshot.ID), payload, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to store session snapshot in redis",
			zap.String("sessionID", snapshot.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to store session snapshot in redis: %w", err)
	}
	return nil
}

// Get возвращает последний снимок сессии.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.PipelineSession, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session snapshot from redis: %w", err)
	}
	var sess models.PipelineSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &sess, nil
}

// Delete убирает снимок сессии.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session snapshot from redis: %w", err)
	}
	return nil
}
