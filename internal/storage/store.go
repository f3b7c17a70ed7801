package storage

import (
	"context"

	"github.com/google/uuid"

	"ip-studio-server/internal/models"
)

// SessionStore - зеркало сессий для презентационного слоя. Оркестратор
// толкает сюда снимки через интерфейс Result Sink; читатели получают
// последний целиком записанный снимок.
type SessionStore interface {
	// Push реализует pipeline.ResultSink: снимок замещает предыдущий
	// целиком.
	Push(ctx context.Context, snapshot *models.PipelineSession) error
	// Get возвращает последний снимок сессии.
	Get(ctx context.Context, id uuid.UUID) (*models.PipelineSession, error)
	// Delete убирает снимок сессии.
	Delete(ctx context.Context, id uuid.UUID) error
}
