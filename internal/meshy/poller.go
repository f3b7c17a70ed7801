package meshy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

const (
	// DefaultPollInterval - интервал между проверками статуса задачи.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxWait - клиентский потолок ожидания терминального статуса.
	DefaultMaxWait = 5 * time.Minute
)

// artifactFormatPreference - порядок предпочтения форматов при извлечении
// URL артефакта из успешного результата.
var artifactFormatPreference = []string{"glb", "obj", "fbx", "usdz"}

// StatusChecker выполняет одну проверку статуса задачи конвертации.
type StatusChecker interface {
	JobStatus(ctx context.Context, job *models.AsyncJob) (*TaskStatus, error)
}

// Poller ведет асинхронную задачу конвертации от создания до терминального
// состояния: Created -> Polling -> {Succeeded | Failed | TimedOut}.
// Таймаут - клиентская граница по настенным часам: внешняя задача может
// продолжать выполняться, но стадия после таймаута считается проваленной
// и не воскрешается.
type Poller struct {
	checker  StatusChecker
	interval time.Duration
	maxWait  time.Duration
	logger   *zap.Logger
}

// NewPoller создает поллер. Неположительные интервалы заменяются на
// значения по умолчанию (5 секунд / 5 минут).
func NewPoller(checker StatusChecker, interval, maxWait time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Poller{
		checker:  checker,
		interval: interval,
		maxWait:  maxWait,
		logger:   logger.Named("JobPoller"),
	}
}

// PollOnce выполняет одну проверку статуса и отражает ее в полях задачи.
func (p *Poller) PollOnce(ctx context.Context, job *models.AsyncJob) (*TaskStatus, error) {
	status, err := p.checker.JobStatus(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("%w: status check failed: %v", models.ErrExternalJob, err)
	}
	job.Status = status.Status
	job.ProgressPercent = status.Progress
	return status, nil
}

// WaitForResult опрашивает задачу с фиксированным интервалом до
// терминального статуса, таймаута или отмены контекста владельцем сессии.
// При отмене опрос просто прекращается; отменить задачу на внешнем
// сервисе поллер не пытается.
func (p *Poller) WaitForResult(ctx context.Context, job *models.AsyncJob) (*models.ModelArtifact, error) {
	log := p.logger.With(zap.String("jobID", job.JobID))
	log.Info("Waiting for conversion job",
		zap.Duration("interval", p.interval),
		zap.Duration("maxWait", p.maxWait))

	deadline := time.NewTimer(p.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.PollOnce(ctx, job)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case models.JobSucceeded:
			artifact, err := ExtractArtifact(status)
			if err != nil {
				conversionJobsTotal.With(prometheus.Labels{"outcome": "no_artifact"}).Inc()
				return nil, err
			}
			conversionJobsTotal.With(prometheus.Labels{"outcome": "succeeded"}).Inc()
			log.Info("Conversion job succeeded",
				zap.String("url", artifact.URL),
				zap.String("format", artifact.Format))
			return artifact, nil

		case models.JobFailed, models.JobCanceled:
			outcome := "failed"
			if status.Status == models.JobCanceled {
				outcome = "canceled"
			}
			conversionJobsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
			msg := status.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			log.Warn("Conversion job reached failed terminal state",
				zap.String("status", string(status.Status)),
				zap.String("message", msg))
			return nil, fmt.Errorf("%w: %s: %s", models.ErrExternalJob, strings.ToLower(string(status.Status)), msg)
		}

		log.Debug("Conversion job still running",
			zap.String("status", string(status.Status)),
			zap.Int("progress", status.Progress))

		select {
		case <-ctx.Done():
			log.Info("Conversion wait canceled by owner")
			return nil, ctx.Err()
		case <-deadline.C:
			conversionJobsTotal.With(prometheus.Labels{"outcome": "timeout"}).Inc()
			log.Warn("Conversion job timed out on client side")
			return nil, fmt.Errorf("%w: job %s not terminal after %s", models.ErrJobTimeout, job.JobID, p.maxWait)
		case <-ticker.C:
		}
	}
}

// ExtractArtifact извлекает URL модели из успешного результата: сначала по
// порядку предпочтения именованных форматов, затем fallback-сканированием
// всего payload на любую строку, похожую на URL.
func ExtractArtifact(status *TaskStatus) (*models.ModelArtifact, error) {
	for _, format := range artifactFormatPreference {
		if url := status.ModelURLs[format]; url != "" {
			return &models.ModelArtifact{URL: url, Format: formatOf(url)}, nil
		}
	}
	if url := scanForURL(status.Raw); url != "" {
		return &models.ModelArtifact{URL: url, Format: formatOf(url)}, nil
	}
	return nil, fmt.Errorf("%w: job %s", models.ErrNoArtifactURL, status.ID)
}

// scanForURL рекурсивно обходит payload результата и возвращает первую
// строку, похожую на URL.
func scanForURL(raw json.RawMessage) string {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return findURL(payload)
}

func findURL(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
			return val
		}
	case map[string]interface{}:
		for _, nested := range val {
			if url := findURL(nested); url != "" {
				return url
			}
		}
	case []interface{}:
		for _, nested := range val {
			if url := findURL(nested); url != "" {
				return url
			}
		}
	}
	return ""
}
