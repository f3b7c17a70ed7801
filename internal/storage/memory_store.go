package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

const (
	// DefaultSessionTTL - время жизни снимка после последнего обновления.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultMaxEntries - потолок числа хранимых сессий.
	DefaultMaxEntries = 1000

	janitorInterval = time.Minute
)

// Compile-time check to ensure MemoryStore implements SessionStore
var _ SessionStore = (*MemoryStore)(nil)

// memoryEntry - один снимок с временем истечения.
type memoryEntry struct {
	snapshot  *models.PipelineSession
	expiresAt time.Time
}

// MemoryStore - ограниченное TTL-зеркало сессий в памяти. Кэширование
// производных данных живет здесь, на стороне Result Sink: сам оркестратор
// остается детерминированным и ничего не кэширует.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]memoryEntry
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewMemoryStore создает хранилище и запускает фонового уборщика
// истекших снимков. Неположительные параметры заменяются значениями
// по умолчанию.
func NewMemoryStore(ttl time.Duration, maxEntries int, logger *zap.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &MemoryStore{
		entries:    make(map[uuid.UUID]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger.Named("MemorySessionStore"),
		stopCh:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Push сохраняет снимок, замещая предыдущий целиком.
func (s *MemoryStore) Push(_ context.Context, snapshot *models.PipelineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[snapshot.ID]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[snapshot.ID] = memoryEntry{
		snapshot:  snapshot.Clone(),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Get возвращает последний снимок сессии.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.PipelineSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return entry.snapshot.Clone(), nil
}

// Delete убирает снимок сессии.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Close останавливает фонового уборщика.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// evictOldestLocked выталкивает снимок с самым ранним истечением.
// Вызывается под s.mu.
func (s *MemoryStore) evictOldestLocked() {
	var oldestID uuid.UUID
	var oldestAt time.Time
	first := true
	for id, entry := range s.entries {
		if first || entry.expiresAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.expiresAt
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestID)
		s.logger.Debug("Evicted oldest session snapshot", zap.String("sessionID", oldestID.String()))
	}
}

// janitor периодически убирает истекшие снимки.
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
