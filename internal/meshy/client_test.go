package meshy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ip-studio-server/internal/meshy"
	"ip-studio-server/internal/models"
)

func newTestClient(bases ...string) *meshy.Client {
	return meshy.NewClient("test-key", bases, 5*time.Second, zap.NewNop())
}

func TestCreateJob(t *testing.T) {
	t.Run("First candidate wins", func(t *testing.T) {
		var gotAuth string
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/image-to-3d", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "task-123"})
		}))
		defer srv.Close()

		job, err := newTestClient(srv.URL).CreateJob(context.Background(), "https://img.example/ref.png")
		require.NoError(t, err)
		assert.Equal(t, "task-123", job.JobID)
		assert.Equal(t, srv.URL, job.ResultBaseLocation)
		assert.Equal(t, models.JobPending, job.Status)

		assert.Equal(t, "Bearer test-key", gotAuth)
		assert.Equal(t, "https://img.example/ref.png", gotBody["image_url"])
		assert.Equal(t, "latest", gotBody["ai_model"])
		assert.Equal(t, "triangle", gotBody["topology"])
		assert.Equal(t, true, gotBody["should_texture"])
		assert.Equal(t, false, gotBody["moderation"])
	})

	t.Run("Not found falls through to the next candidate", func(t *testing.T) {
		notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no such route", http.StatusNotFound)
		}))
		defer notFound.Close()
		ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "task-456"})
		}))
		defer ok.Close()

		job, err := newTestClient(notFound.URL, ok.URL).CreateJob(context.Background(), "https://img.example/ref.png")
		require.NoError(t, err)
		assert.Equal(t, "task-456", job.JobID)
		// Принятый базовый адрес запоминается для последующих проверок статуса
		assert.Equal(t, ok.URL, job.ResultBaseLocation)
	})

	t.Run("Exhausted candidates yield one aggregated error", func(t *testing.T) {
		notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no such route", http.StatusNotFound)
		}))
		defer notFound.Close()
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusPaymentRequired)
		}))
		defer broken.Close()

		_, err := newTestClient(notFound.URL, broken.URL).CreateJob(context.Background(), "https://img.example/ref.png")
		require.ErrorIs(t, err, models.ErrJobNotCreatable)
		// Ошибка перечисляет причину по каждому кандидату
		assert.Contains(t, err.Error(), notFound.URL)
		assert.Contains(t, err.Error(), broken.URL)
		assert.Contains(t, err.Error(), "404")
		assert.Contains(t, err.Error(), "402")
	})

	t.Run("Unreachable candidate is skipped", func(t *testing.T) {
		ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "task-789"})
		}))
		defer ok.Close()

		// Первый кандидат указывает на закрытый порт
		job, err := newTestClient("http://127.0.0.1:1", ok.URL).CreateJob(context.Background(), "https://img.example/ref.png")
		require.NoError(t, err)
		assert.Equal(t, "task-789", job.JobID)
	})
}

func TestJobStatus(t *testing.T) {
	statusServer := func(payload string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/image-to-3d/task-123", r.URL.Path)
			_, _ = w.Write([]byte(payload))
		}))
	}

	t.Run("Modern model_urls payload", func(t *testing.T) {
		srv := statusServer(`{"id":"task-123","status":"SUCCEEDED","progress":100,"model_urls":{"glb":"https://cdn.example/model.glb"}}`)
		defer srv.Close()

		job := &models.AsyncJob{JobID: "task-123", ResultBaseLocation: srv.URL}
		status, err := newTestClient(srv.URL).JobStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, models.JobSucceeded, status.Status)
		assert.Equal(t, 100, status.Progress)
		assert.Equal(t, "https://cdn.example/model.glb", status.ModelURLs["glb"])
	})

	t.Run("Legacy model_url as a plain string", func(t *testing.T) {
		srv := statusServer(`{"id":"task-123","status":"SUCCEEDED","progress":100,"model_url":"https://cdn.example/model.glb"}`)
		defer srv.Close()

		job := &models.AsyncJob{JobID: "task-123", ResultBaseLocation: srv.URL}
		status, err := newTestClient(srv.URL).JobStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/model.glb", status.ModelURLs["glb"])
	})

	t.Run("Legacy model_url as an object", func(t *testing.T) {
		srv := statusServer(`{"id":"task-123","status":"SUCCEEDED","model_url":{"obj":"https://cdn.example/model.obj"}}`)
		defer srv.Close()

		job := &models.AsyncJob{JobID: "task-123", ResultBaseLocation: srv.URL}
		status, err := newTestClient(srv.URL).JobStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/model.obj", status.ModelURLs["obj"])
	})

	t.Run("Task error message is preserved", func(t *testing.T) {
		srv := statusServer(`{"id":"task-123","status":"FAILED","task_error":{"message":"image rejected"}}`)
		defer srv.Close()

		job := &models.AsyncJob{JobID: "task-123", ResultBaseLocation: srv.URL}
		status, err := newTestClient(srv.URL).JobStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, status.Status)
		assert.Equal(t, "image rejected", status.ErrorMessage)
	})

	t.Run("Unknown status maps to PENDING", func(t *testing.T) {
		srv := statusServer(`{"id":"task-123","status":"QUEUED_SOMEWHERE"}`)
		defer srv.Close()

		job := &models.AsyncJob{JobID: "task-123", ResultBaseLocation: srv.URL}
		status, err := newTestClient(srv.URL).JobStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, models.JobPending, status.Status)
	})
}
