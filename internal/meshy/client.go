package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

// DefaultBaseLocations - кандидаты базовых адресов API конвертации.
// Сервис публикует один и тот же API под несколькими версионированными
// путями; создание задачи пробует их по порядку и принимает первый,
// который не отвечает "not found".
var DefaultBaseLocations = []string{
	"https://api.meshy.ai/openapi/v1",
	"https://api.meshy.ai/v2",
}

// createTaskRequest - тело запроса создания задачи image-to-3D.
// Параметры подобраны под toy-style модели.
type createTaskRequest struct {
	ImageURL      string `json:"image_url"`
	AIModel       string `json:"ai_model"`
	Topology      string `json:"topology"`
	ShouldTexture bool   `json:"should_texture"`
	ShouldRemesh  bool   `json:"should_remesh"`
	Moderation    bool   `json:"moderation"`
}

// createTaskResponse - ответ создания задачи: идентификатор в поле result.
type createTaskResponse struct {
	Result string `json:"result"`
}

// TaskStatus - распарсенный статус задачи конвертации.
// Raw сохраняет полный payload для fallback-сканирования URL артефакта.
type TaskStatus struct {
	ID           string
	Status       models.JobStatus
	Progress     int
	ModelURLs    map[string]string
	ErrorMessage string
	Raw          json.RawMessage
}

// taskStatusResponse - проводной формат статуса. model_url в старых
// версиях API - строка, в новых - объект с форматами; model_urls -
// актуальный вариант.
type taskStatusResponse struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Progress  int               `json:"progress"`
	ModelURLs map[string]string `json:"model_urls"`
	ModelURL  json.RawMessage   `json:"model_url"`
	TaskError *struct {
		Message string `json:"message"`
	} `json:"task_error"`
}

// Client - HTTP клиент сервиса конвертации изображения в 3D.
type Client struct {
	httpClient    *http.Client
	apiKey        string
	baseLocations []string
	logger        *zap.Logger
}

// NewClient создает клиент. Пустой список baseLocations заменяется на
// DefaultBaseLocations.
func NewClient(apiKey string, baseLocations []string, timeout time.Duration, logger *zap.Logger) *Client {
	if len(baseLocations) == 0 {
		baseLocations = DefaultBaseLocations
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		apiKey:        apiKey,
		baseLocations: append([]string(nil), baseLocations...),
		logger:        logger.Named("MeshyClient"),
	}
}

// CreateJob создает задачу конвертации. Кандидаты базовых адресов
// пробуются по порядку; "not found" и сетевые ошибки переводят к
// следующему кандидату, по исчерпании возвращается одна агрегированная
// ошибка со всеми причинами.
func (c *Client) CreateJob(ctx context.Context, sourceImageURL string) (*models.AsyncJob, error) {
	body, err := json.Marshal(createTaskRequest{
		ImageURL:      sourceImageURL,
		AIModel:       "latest",
		Topology:      "triangle",
		ShouldTexture: true,
		ShouldRemesh:  true,
		Moderation:    false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create task request: %w", err)
	}

	var attempts []string
	for _, base := range c.baseLocations {
		taskID, err := c.createAt(ctx, base, body)
		if err == nil {
			c.logger.Info("Conversion job created",
				zap.String("jobID", taskID),
				zap.String("baseLocation", base))
			return &models.AsyncJob{
				JobID:              taskID,
				ResultBaseLocation: base,
				Status:             models.JobPending,
				CreatedAt:          time.Now().UTC(),
			}, nil
		}
		c.logger.Warn("Conversion job creation attempt failed",
			zap.String("baseLocation", base),
			zap.Error(err))
		attempts = append(attempts, fmt.Sprintf("%s: %v", base, err))
	}
	return nil, fmt.Errorf("%w: %s", models.ErrJobNotCreatable, strings.Join(attempts, "; "))
}

// createAt выполняет один POST создания задачи на конкретном базовом адресе.
func (c *Client) createAt(ctx context.Context, base string, body []byte) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/image-to-3d", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "error"}).Inc()
		return "", err
	}
	defer resp.Body.Close()
	conversionRequestDuration.With(prometheus.Labels{"operation": "create"}).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "error"}).Inc()
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "not_found"}).Inc()
		return "", fmt.Errorf("endpoint not found (HTTP 404)")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "error"}).Inc()
		return "", fmt.Errorf("conversion API error (HTTP %d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed createTaskResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "error"}).Inc()
		return "", fmt.Errorf("failed to decode create task response: %w", err)
	}
	if parsed.Result == "" {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "error"}).Inc()
		return "", fmt.Errorf("create task response has no task id")
	}
	conversionRequestsTotal.With(prometheus.Labels{"operation": "create", "status": "success"}).Inc()
	return parsed.Result, nil
}

// JobStatus выполняет одну проверку статуса задачи на базовом адресе,
// принятом при создании.
func (c *Client) JobStatus(ctx context.Context, job *models.AsyncJob) (*TaskStatus, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/image-to-3d/%s", job.ResultBaseLocation, job.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "status", "status": "error"}).Inc()
		return nil, err
	}
	defer resp.Body.Close()
	conversionRequestDuration.With(prometheus.Labels{"operation": "status"}).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "status", "status": "error"}).Inc()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "status", "status": "error"}).Inc()
		return nil, fmt.Errorf("conversion API error (HTTP %d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed taskStatusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		conversionRequestsTotal.With(prometheus.Labels{"operation": "status", "status": "error"}).Inc()
		return nil, fmt.Errorf("failed to decode task status response: %w", err)
	}
	conversionRequestsTotal.With(prometheus.Labels{"operation": "status", "status": "success"}).Inc()

	status := &TaskStatus{
		ID:        parsed.ID,
		Status:    mapJobStatus(parsed.Status),
		Progress:  parsed.Progress,
		ModelURLs: parsed.ModelURLs,
		Raw:       json.RawMessage(respBody),
	}
	if parsed.TaskError != nil {
		status.ErrorMessage = parsed.TaskError.Message
	}
	// model_url из старых версий API сворачиваем в общую карту форматов.
	if len(status.ModelURLs) == 0 && len(parsed.ModelURL) > 0 {
		status.ModelURLs = parseLegacyModelURL(parsed.ModelURL)
	}
	return status, nil
}

// mapJobStatus переводит словарь сервиса в статусы AsyncJob. Неизвестные
// значения трактуются как PENDING: задача еще не в терминальном состоянии.
func mapJobStatus(s string) models.JobStatus {
	switch models.JobStatus(strings.ToUpper(s)) {
	case models.JobPending, models.JobInProgress, models.JobSucceeded, models.JobFailed, models.JobCanceled:
		return models.JobStatus(strings.ToUpper(s))
	}
	return models.JobPending
}

// parseLegacyModelURL разбирает поле model_url: строка или объект
// {glb, obj, fbx, usdz}.
func parseLegacyModelURL(raw json.RawMessage) map[string]string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		return map[string]string{formatOf(asString): asString}
	}
	var asObject map[string]string
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject
	}
	return nil
}

// formatOf выводит тег формата из URL модели: glb или obj.
func formatOf(url string) string {
	if strings.Contains(url, ".glb") {
		return "glb"
	}
	return "obj"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
