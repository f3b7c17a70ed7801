package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
	"ip-studio-server/internal/pipeline"
)

const (
	// ExchangeStageEvents - имя fanout exchange для событий стадий.
	ExchangeStageEvents = "ip_stage_events"
)

// StageEventPayload - событие перехода: полный снимок сессии, как его
// видит презентационный слой.
type StageEventPayload struct {
	SessionID string                  `json:"sessionId"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Session   *models.PipelineSession `json:"session"`
}

// StageEventPublisher - Result Sink, зеркалирующий каждый переход стадии
// в RabbitMQ для презентационного слоя.
type StageEventPublisher struct {
	conn   *amqp091.Connection
	ch     *amqp091.Channel
	logger *zap.Logger
}

var _ pipeline.ResultSink = (*StageEventPublisher)(nil)

// NewStageEventPublisher создает издателя событий стадий.
// Предполагается, что соединение уже установлено и переподключениями
// управляет внешний код.
func NewStageEventPublisher(conn *amqp091.Connection, logger *zap.Logger) (*StageEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Объявляем durable fanout exchange; повторное объявление безвредно.
	err = ch.ExchangeDeclare(
		ExchangeStageEvents, // name
		"fanout",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", ExchangeStageEvents, err)
	}

	log := logger.Named("StageEventPublisher")
	log.Info("Stage event exchange declared", zap.String("exchange", ExchangeStageEvents))
	return &StageEventPublisher{conn: conn, ch: ch, logger: log}, nil
}

// Push публикует снимок сессии как событие перехода стадии.
func (p *StageEventPublisher) Push(ctx context.Context, snapshot *models.PipelineSession) error {
	body, err := json.Marshal(StageEventPayload{
		SessionID: snapshot.ID.String(),
		UpdatedAt: snapshot.UpdatedAt,
		Session:   snapshot,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stage event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		ExchangeStageEvents, // exchange
		"",                  // routing key (не используется для fanout)
		false,               // mandatory
		false,               // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish stage event",
			zap.String("sessionID", snapshot.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to publish stage event: %w", err)
	}

	p.logger.Debug("Stage event published", zap.String("sessionID", snapshot.ID.String()))
	return nil
}

// Close закрывает канал издателя. Соединением владеет вызывающий.
func (p *StageEventPublisher) Close() error {
	return p.ch.Close()
}
