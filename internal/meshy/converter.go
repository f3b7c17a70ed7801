package meshy

import (
	"context"

	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

// Converter связывает создание задачи и поллер в одну операцию
// "изображение -> 3D модель" для оркестратора. Single-flight по сессии
// гарантирует оркестратор: пока Converter работает, вторая задача для
// той же сессии не стартует.
type Converter struct {
	client *Client
	poller *Poller
	logger *zap.Logger
}

// NewConverter создает конвертер.
func NewConverter(client *Client, poller *Poller, logger *zap.Logger) *Converter {
	return &Converter{
		client: client,
		poller: poller,
		logger: logger.Named("ModelConverter"),
	}
}

// ConvertImageToModel создает задачу конвертации и дожидается результата.
func (c *Converter) ConvertImageToModel(ctx context.Context, sourceImageURL string) (*models.ModelArtifact, error) {
	job, err := c.client.CreateJob(ctx, sourceImageURL)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Conversion job started",
		zap.String("jobID", job.JobID),
		zap.String("baseLocation", job.ResultBaseLocation))
	return c.poller.WaitForResult(ctx, job)
}
