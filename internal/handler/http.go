package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ip-studio-server/internal/meshy"
	"ip-studio-server/internal/models"
	"ip-studio-server/internal/pipeline"
)

// JobCreator создает задачу конвертации изображения в 3D.
type JobCreator interface {
	CreateJob(ctx context.Context, sourceImageURL string) (*models.AsyncJob, error)
}

// JobPoller опрашивает задачу конвертации: разово или до терминального
// статуса.
type JobPoller interface {
	PollOnce(ctx context.Context, job *models.AsyncJob) (*meshy.TaskStatus, error)
	WaitForResult(ctx context.Context, job *models.AsyncJob) (*models.ModelArtifact, error)
}

// Handler - HTTP слой сервера пайплайна. Вся доменная логика живет в
// pipeline.Service; хэндлер только разбирает запросы и переводит
// таксономию ошибок в HTTP статусы.
type Handler struct {
	service     pipeline.Service
	jobs        JobCreator
	poller      JobPoller
	defaultBase string
	logger      *zap.Logger
}

// NewHandler создает HTTP хэндлер. defaultBase используется для проверки
// статуса задачи, когда вызывающий не передал base в query.
func NewHandler(service pipeline.Service, jobs JobCreator, poller JobPoller, defaultBase string, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		jobs:        jobs,
		poller:      poller,
		defaultBase: defaultBase,
		logger:      logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API на роутере Gin.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.DELETE("/sessions/:id", h.deleteSession)
		api.POST("/sessions/:id/generate-all", h.generateAll)
		api.POST("/sessions/:id/stages/:stage/generate", h.generateStage)
		api.POST("/sessions/:id/stages/:stage/redo", h.redoStage)

		api.POST("/3d-jobs", h.createJob)
		api.GET("/3d-jobs/:id", h.jobStatus)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createSession обрабатывает POST /api/sessions.
// Тело опционально: пустая или отсутствующая идея заменяется сервером.
func (h *Handler) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, fmt.Errorf("%w: invalid request body: %v", models.ErrBadRequest, err))
		return
	}

	sess, err := h.service.CreateSession(c.Request.Context(), req.Idea)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// getSession обрабатывает GET /api/sessions/:id.
func (h *Handler) getSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.Snapshot(sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// deleteSession обрабатывает DELETE /api/sessions/:id.
func (h *Handler) deleteSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.service.DiscardSession(sessionID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// generateStage обрабатывает POST /api/sessions/:id/stages/:stage/generate.
func (h *Handler) generateStage(c *gin.Context) {
	sessionID, stage, ok := h.sessionStage(c)
	if !ok {
		return
	}
	sess, err := h.service.GenerateStage(c.Request.Context(), sessionID, stage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// redoStage обрабатывает POST /api/sessions/:id/stages/:stage/redo.
func (h *Handler) redoStage(c *gin.Context) {
	sessionID, stage, ok := h.sessionStage(c)
	if !ok {
		return
	}
	sess, err := h.service.RedoStage(c.Request.Context(), sessionID, stage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// generateAll обрабатывает POST /api/sessions/:id/generate-all:
// полный прогон пайплайна вместе с производными конфигурациями.
func (h *Handler) generateAll(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.GenerateAll(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// createJob обрабатывает POST /api/3d-jobs: создание задачи конвертации
// напрямую, без привязки к сессии пайплайна.
func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: sourceImageUrl is required", models.ErrBadRequest))
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), req.SourceImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateJobResponse{
		JobID:              job.JobID,
		ResultBaseLocation: job.ResultBaseLocation,
	})
}

// jobStatus обрабатывает GET /api/3d-jobs/:id?base=...&wait=true.
// Без wait выполняется одна проверка статуса; с wait сервер блокируется
// до терминального статуса или клиентского таймаута поллера.
func (h *Handler) jobStatus(c *gin.Context) {
	job := &models.AsyncJob{
		JobID:              c.Param("id"),
		ResultBaseLocation: c.DefaultQuery("base", h.defaultBase),
		Status:             models.JobPending,
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		artifact, err := h.poller.WaitForResult(c.Request.Context(), job)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, JobStatusResponse{
			Status:          string(models.JobSucceeded),
			ProgressPercent: 100,
			ArtifactURL:     artifact.URL,
			Format:          artifact.Format,
		})
		return
	}

	status, err := h.poller.PollOnce(c.Request.Context(), job)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := JobStatusResponse{
		Status:          string(status.Status),
		ProgressPercent: status.Progress,
	}
	if status.Status == models.JobSucceeded {
		artifact, err := meshy.ExtractArtifact(status)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp.ArtifactURL = artifact.URL
		resp.Format = artifact.Format
	}
	c.JSON(http.StatusOK, resp)
}

// sessionID разбирает :id из пути; при ошибке сам пишет ответ 400.
func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid session id %q", models.ErrBadRequest, c.Param("id")))
		return uuid.Nil, false
	}
	return sessionID, true
}

// sessionStage разбирает :id и :stage из пути; при ошибке сам пишет ответ 400.
func (h *Handler) sessionStage(c *gin.Context) (uuid.UUID, models.StageID, bool) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return uuid.Nil, "", false
	}
	stage, err := models.ParseStageID(c.Param("stage"))
	if err != nil {
		h.respondError(c, err)
		return uuid.Nil, "", false
	}
	return sessionID, stage, true
}

// respondError переводит типизированную ошибку в HTTP статус и пишет
// стандартизированный ответ. Ошибка дополнительно регистрируется в
// контексте Gin для логирующего middleware.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusForError(err), APIError{Error: err.Error()})
}

// statusForError отображает таксономию ошибок домена на HTTP статусы.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrPreconditionNotMet),
		errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, models.ErrJobTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrJobNotCreatable),
		errors.Is(err, models.ErrExternalJob),
		errors.Is(err, models.ErrNoArtifactURL),
		errors.Is(err, models.ErrExternalClient):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
