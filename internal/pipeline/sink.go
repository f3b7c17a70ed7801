package pipeline

import (
	"context"
	"errors"

	"ip-studio-server/internal/models"
)

// MultiSink рассылает снимок нескольким синкам. Ошибки отдельных синков
// собираются и возвращаются одной ошибкой; остальные синки при этом все
// равно получают снимок.
type MultiSink []ResultSink

var _ ResultSink = (MultiSink)(nil)

// Push отправляет снимок каждому синку.
func (m MultiSink) Push(ctx context.Context, snapshot *models.PipelineSession) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Push(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
