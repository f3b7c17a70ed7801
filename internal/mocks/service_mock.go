package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"ip-studio-server/internal/models"
	"ip-studio-server/internal/pipeline"
)

// MockService is a mock type for the pipeline.Service type
type MockService struct {
	mock.Mock
}

func (_m *MockService) CreateSession(ctx context.Context, idea string) (*models.PipelineSession, error) {
	ret := _m.Called(ctx, idea)
	return sessionResult(ret)
}

func (_m *MockService) Snapshot(sessionID uuid.UUID) (*models.PipelineSession, error) {
	ret := _m.Called(sessionID)
	return sessionResult(ret)
}

func (_m *MockService) GenerateStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error) {
	ret := _m.Called(ctx, sessionID, stage)
	return sessionResult(ret)
}

func (_m *MockService) RedoStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error) {
	ret := _m.Called(ctx, sessionID, stage)
	return sessionResult(ret)
}

func (_m *MockService) GenerateAll(ctx context.Context, sessionID uuid.UUID) (*models.PipelineSession, error) {
	ret := _m.Called(ctx, sessionID)
	return sessionResult(ret)
}

func (_m *MockService) DiscardSession(sessionID uuid.UUID) error {
	ret := _m.Called(sessionID)
	return ret.Error(0)
}

func sessionResult(ret mock.Arguments) (*models.PipelineSession, error) {
	var r0 *models.PipelineSession
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.PipelineSession)
	}
	return r0, ret.Error(1)
}

var _ pipeline.Service = (*MockService)(nil)
