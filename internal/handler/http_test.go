package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ip-studio-server/internal/handler"
	"ip-studio-server/internal/meshy"
	"ip-studio-server/internal/mocks"
	"ip-studio-server/internal/models"
)

// fakeJobCreator и fakeJobPoller - локальные заглушки клиента конвертации.
type fakeJobCreator struct {
	createFn func(ctx context.Context, sourceImageURL string) (*models.AsyncJob, error)
}

func (f *fakeJobCreator) CreateJob(ctx context.Context, sourceImageURL string) (*models.AsyncJob, error) {
	return f.createFn(ctx, sourceImageURL)
}

type fakeJobPoller struct {
	pollFn func(ctx context.Context, job *models.AsyncJob) (*meshy.TaskStatus, error)
	waitFn func(ctx context.Context, job *models.AsyncJob) (*models.ModelArtifact, error)
}

func (f *fakeJobPoller) PollOnce(ctx context.Context, job *models.AsyncJob) (*meshy.TaskStatus, error) {
	return f.pollFn(ctx, job)
}

func (f *fakeJobPoller) WaitForResult(ctx context.Context, job *models.AsyncJob) (*models.ModelArtifact, error) {
	return f.waitFn(ctx, job)
}

func setupRouter(service *mocks.MockService, jobs handler.JobCreator, poller handler.JobPoller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := handler.NewHandler(service, jobs, poller, "https://api.example/v1", zap.NewNop())
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionEndpoint(t *testing.T) {
	t.Run("Idea from the body is passed through", func(t *testing.T) {
		service := new(mocks.MockService)
		sess := models.NewPipelineSession("моя идея")
		service.On("CreateSession", mock.Anything, "моя идея").Return(sess, nil).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions", []byte(`{"idea":"моя идея"}`))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var got models.PipelineSession
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, sess.ID, got.ID)
		service.AssertExpectations(t)
	})

	t.Run("Missing body creates a session with an empty idea", func(t *testing.T) {
		service := new(mocks.MockService)
		sess := models.NewPipelineSession("default")
		service.On("CreateSession", mock.Anything, "").Return(sess, nil).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("Malformed JSON is a bad request", func(t *testing.T) {
		service := new(mocks.MockService)
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions", []byte(`{broken`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	})
}

func TestGetSessionEndpoint(t *testing.T) {
	t.Run("Invalid session id", func(t *testing.T) {
		router := setupRouter(new(mocks.MockService), nil, nil)
		rec := doRequest(router, http.MethodGet, "/api/sessions/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown session maps to 404", func(t *testing.T) {
		service := new(mocks.MockService)
		id := uuid.New()
		service.On("Snapshot", id).Return(nil, models.ErrSessionNotFound).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodGet, "/api/sessions/"+id.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var apiErr handler.APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.NotEmpty(t, apiErr.Error)
	})
}

func TestStageEndpoints(t *testing.T) {
	id := uuid.New()

	t.Run("Unknown stage name is rejected before reaching the service", func(t *testing.T) {
		service := new(mocks.MockService)
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions/"+id.String()+"/stages/game/generate", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "GenerateStage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Generate returns the updated snapshot", func(t *testing.T) {
		service := new(mocks.MockService)
		sess := models.NewPipelineSession("идея")
		service.On("GenerateStage", mock.Anything, id, models.StageStoryScript).Return(sess, nil).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions/"+id.String()+"/stages/story_script/generate", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("Error taxonomy maps to HTTP statuses", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			want int
		}{
			{"precondition not met", models.ErrPreconditionNotMet, http.StatusBadRequest},
			{"validation", models.ErrValidation, http.StatusBadRequest},
			{"session busy", models.ErrSessionBusy, http.StatusConflict},
			{"session not found", models.ErrSessionNotFound, http.StatusNotFound},
			{"external client", models.ErrExternalClient, http.StatusBadGateway},
			{"external job", models.ErrExternalJob, http.StatusBadGateway},
			{"no artifact url", models.ErrNoArtifactURL, http.StatusBadGateway},
			{"job not creatable", models.ErrJobNotCreatable, http.StatusBadGateway},
			{"job timeout", models.ErrJobTimeout, http.StatusGatewayTimeout},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				service := new(mocks.MockService)
				// Обернутая ошибка обязана отображаться так же, как голая
				wrapped := fmt.Errorf("context: %w", tc.err)
				service.On("GenerateStage", mock.Anything, id, models.StagePanel1).Return(nil, wrapped).Once()
				router := setupRouter(service, nil, nil)

				rec := doRequest(router, http.MethodPost, "/api/sessions/"+id.String()+"/stages/panel_1/generate", nil)
				assert.Equal(t, tc.want, rec.Code)
			})
		}
	})

	t.Run("Redo delegates to the service", func(t *testing.T) {
		service := new(mocks.MockService)
		sess := models.NewPipelineSession("идея")
		service.On("RedoStage", mock.Anything, id, models.StageCharacterRef).Return(sess, nil).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions/"+id.String()+"/stages/character_ref/redo", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("Generate-all delegates to the service", func(t *testing.T) {
		service := new(mocks.MockService)
		sess := models.NewPipelineSession("идея")
		service.On("GenerateAll", mock.Anything, id).Return(sess, nil).Once()
		router := setupRouter(service, nil, nil)

		rec := doRequest(router, http.MethodPost, "/api/sessions/"+id.String()+"/generate-all", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		service.AssertExpectations(t)
	})
}

func TestDeleteSessionEndpoint(t *testing.T) {
	service := new(mocks.MockService)
	id := uuid.New()
	service.On("DiscardSession", id).Return(nil).Once()
	router := setupRouter(service, nil, nil)

	rec := doRequest(router, http.MethodDelete, "/api/sessions/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	service.AssertExpectations(t)
}

func TestCreateJobEndpoint(t *testing.T) {
	t.Run("Missing source image url", func(t *testing.T) {
		router := setupRouter(new(mocks.MockService), &fakeJobCreator{}, nil)
		rec := doRequest(router, http.MethodPost, "/api/3d-jobs", []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Created job returns its handle", func(t *testing.T) {
		jobs := &fakeJobCreator{createFn: func(_ context.Context, url string) (*models.AsyncJob, error) {
			assert.Equal(t, "https://img.example/ref.png", url)
			return &models.AsyncJob{JobID: "task-123", ResultBaseLocation: "https://api.example/v1"}, nil
		}}
		router := setupRouter(new(mocks.MockService), jobs, nil)

		rec := doRequest(router, http.MethodPost, "/api/3d-jobs", []byte(`{"sourceImageUrl":"https://img.example/ref.png"}`))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp handler.CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "task-123", resp.JobID)
		assert.Equal(t, "https://api.example/v1", resp.ResultBaseLocation)
	})

	t.Run("No accepting base location maps to 502", func(t *testing.T) {
		jobs := &fakeJobCreator{createFn: func(context.Context, string) (*models.AsyncJob, error) {
			return nil, fmt.Errorf("%w: everything is down", models.ErrJobNotCreatable)
		}}
		router := setupRouter(new(mocks.MockService), jobs, nil)

		rec := doRequest(router, http.MethodPost, "/api/3d-jobs", []byte(`{"sourceImageUrl":"https://img.example/ref.png"}`))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestJobStatusEndpoint(t *testing.T) {
	t.Run("Single poll reports progress", func(t *testing.T) {
		poller := &fakeJobPoller{pollFn: func(_ context.Context, job *models.AsyncJob) (*meshy.TaskStatus, error) {
			assert.Equal(t, "task-123", job.JobID)
			// base из query подставляется в задачу
			assert.Equal(t, "https://api.example/v2", job.ResultBaseLocation)
			return &meshy.TaskStatus{Status: models.JobInProgress, Progress: 37}, nil
		}}
		router := setupRouter(new(mocks.MockService), nil, poller)

		rec := doRequest(router, http.MethodGet, "/api/3d-jobs/task-123?base=https://api.example/v2", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp handler.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "IN_PROGRESS", resp.Status)
		assert.Equal(t, 37, resp.ProgressPercent)
		assert.Empty(t, resp.ArtifactURL)
	})

	t.Run("Default base location is used when the query omits it", func(t *testing.T) {
		poller := &fakeJobPoller{pollFn: func(_ context.Context, job *models.AsyncJob) (*meshy.TaskStatus, error) {
			assert.Equal(t, "https://api.example/v1", job.ResultBaseLocation)
			return &meshy.TaskStatus{Status: models.JobPending}, nil
		}}
		router := setupRouter(new(mocks.MockService), nil, poller)

		rec := doRequest(router, http.MethodGet, "/api/3d-jobs/task-123", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Succeeded poll includes the artifact", func(t *testing.T) {
		poller := &fakeJobPoller{pollFn: func(context.Context, *models.AsyncJob) (*meshy.TaskStatus, error) {
			return &meshy.TaskStatus{
				Status:    models.JobSucceeded,
				Progress:  100,
				ModelURLs: map[string]string{"glb": "https://cdn.example/model.glb"},
			}, nil
		}}
		router := setupRouter(new(mocks.MockService), nil, poller)

		rec := doRequest(router, http.MethodGet, "/api/3d-jobs/task-123", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp handler.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "SUCCEEDED", resp.Status)
		assert.Equal(t, "https://cdn.example/model.glb", resp.ArtifactURL)
		assert.Equal(t, "glb", resp.Format)
	})

	t.Run("Wait mode blocks until the artifact is ready", func(t *testing.T) {
		poller := &fakeJobPoller{waitFn: func(context.Context, *models.AsyncJob) (*models.ModelArtifact, error) {
			return &models.ModelArtifact{URL: "https://cdn.example/model.glb", Format: "glb"}, nil
		}}
		router := setupRouter(new(mocks.MockService), nil, poller)

		rec := doRequest(router, http.MethodGet, "/api/3d-jobs/task-123?wait=true", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp handler.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "SUCCEEDED", resp.Status)
		assert.Equal(t, 100, resp.ProgressPercent)
		assert.Equal(t, "https://cdn.example/model.glb", resp.ArtifactURL)
	})

	t.Run("Wait timeout maps to 504", func(t *testing.T) {
		poller := &fakeJobPoller{waitFn: func(context.Context, *models.AsyncJob) (*models.ModelArtifact, error) {
			return nil, fmt.Errorf("%w: job task-123 not terminal after 5m0s", models.ErrJobTimeout)
		}}
		router := setupRouter(new(mocks.MockService), nil, poller)

		rec := doRequest(router, http.MethodGet, "/api/3d-jobs/task-123?wait=true", nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := setupRouter(new(mocks.MockService), nil, nil)
	rec := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
