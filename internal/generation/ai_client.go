package generation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ip_studio_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"kind", "model", "status"}, // kind: chat|image
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ip_studio_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "model"},
	)
)

// ChatImageClient - низкоуровневый клиент генеративного API: текстовые
// completion-вызовы и генерация изображений.
type ChatImageClient interface {
	// ChatCompletion выполняет один chat-completion вызов и возвращает
	// текст ответа.
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
	// GenerateImage генерирует одно изображение по промпту и возвращает
	// его URL.
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// openAIClient реализует ChatImageClient с использованием go-openai.
type openAIClient struct {
	client     *openaigo.Client
	chatModel  string
	imageModel string
	logger     *zap.Logger
}

var _ ChatImageClient = (*openAIClient)(nil)

// NewOpenAIClient создает клиент OpenAI-совместимого API. Пустой baseURL
// означает стандартный адрес OpenAI.
func NewOpenAIClient(apiKey, baseURL, chatModel, imageModel string, timeout time.Duration, logger *zap.Logger) ChatImageClient {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIClient{
		client:     openaigo.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		imageModel: imageModel,
		logger:     logger.Named("OpenAIClient"),
	}
}

// ChatCompletion выполняет один запрос к chat API.
func (c *openAIClient) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openaigo.ChatMessageRoleUser, Content: userPrompt},
	}

	startTime := time.Now()
	c.logger.Debug("Sending chat request to AI",
		zap.String("model", c.chatModel),
		zap.Int("systemPromptBytes", len(systemPrompt)),
		zap.Int("userPromptBytes", len(userPrompt)))

	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: temperature,
	})
	duration := time.Since(startTime)
	aiRequestDuration.With(prometheus.Labels{"kind": "chat", "model": c.chatModel}).Observe(duration.Seconds())

	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"kind": "chat", "model": c.chatModel, "status": "error"}).Inc()
		c.logger.Warn("AI chat request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("ai chat request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"kind": "chat", "model": c.chatModel, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("ai chat request returned empty response")
	}

	aiRequestsTotal.With(prometheus.Labels{"kind": "chat", "model": c.chatModel, "status": "success"}).Inc()
	c.logger.Debug("AI chat response received",
		zap.Duration("duration", duration),
		zap.Int("responseChars", len(resp.Choices[0].Message.Content)))
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage выполняет один запрос к image API и возвращает URL.
func (c *openAIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()
	c.logger.Debug("Sending image request to AI",
		zap.String("model", c.imageModel),
		zap.Int("promptBytes", len(prompt)))

	resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
		Model:   c.imageModel,
		Prompt:  prompt,
		N:       1,
		Size:    openaigo.CreateImageSize1024x1024,
		Quality: openaigo.CreateImageQualityStandard,
	})
	duration := time.Since(startTime)
	aiRequestDuration.With(prometheus.Labels{"kind": "image", "model": c.imageModel}).Observe(duration.Seconds())

	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"kind": "image", "model": c.imageModel, "status": "error"}).Inc()
		c.logger.Warn("AI image request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("ai image request failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		aiRequestsTotal.With(prometheus.Labels{"kind": "image", "model": c.imageModel, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("ai image request returned no image url")
	}

	aiRequestsTotal.With(prometheus.Labels{"kind": "image", "model": c.imageModel, "status": "success"}).Inc()
	return resp.Data[0].URL, nil
}
