package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"ip-studio-server/internal/models"
	"ip-studio-server/internal/pipeline"
)

// MockStoryScriptGenerator is a mock type for the StoryScriptGenerator type
type MockStoryScriptGenerator struct {
	mock.Mock
}

func (_m *MockStoryScriptGenerator) GenerateStoryScript(ctx context.Context, idea string) (*models.StoryScript, error) {
	ret := _m.Called(ctx, idea)

	var r0 *models.StoryScript
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.StoryScript)
	}
	return r0, ret.Error(1)
}

var _ pipeline.StoryScriptGenerator = (*MockStoryScriptGenerator)(nil)

// MockPanelImageGenerator is a mock type for the PanelImageGenerator type
type MockPanelImageGenerator struct {
	mock.Mock
}

func (_m *MockPanelImageGenerator) GeneratePanelImage(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

var _ pipeline.PanelImageGenerator = (*MockPanelImageGenerator)(nil)

// MockCharacterRefGenerator is a mock type for the CharacterRefGenerator type
type MockCharacterRefGenerator struct {
	mock.Mock
}

func (_m *MockCharacterRefGenerator) GenerateCharacterRef(ctx context.Context, panelImageURL string, script *models.StoryScript) (string, string, error) {
	ret := _m.Called(ctx, panelImageURL, script)
	return ret.String(0), ret.String(1), ret.Error(2)
}

var _ pipeline.CharacterRefGenerator = (*MockCharacterRefGenerator)(nil)

// MockModelConverter is a mock type for the ModelConverter type
type MockModelConverter struct {
	mock.Mock
}

func (_m *MockModelConverter) ConvertImageToModel(ctx context.Context, sourceImageURL string) (*models.ModelArtifact, error) {
	ret := _m.Called(ctx, sourceImageURL)

	var r0 *models.ModelArtifact
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.ModelArtifact)
	}
	return r0, ret.Error(1)
}

var _ pipeline.ModelConverter = (*MockModelConverter)(nil)

// MockDerivedConfigGenerator is a mock type for the DerivedConfigGenerator type
type MockDerivedConfigGenerator struct {
	mock.Mock
}

func (_m *MockDerivedConfigGenerator) GenerateGameConfig(ctx context.Context, idea string, script *models.StoryScript) (json.RawMessage, error) {
	ret := _m.Called(ctx, idea, script)

	var r0 json.RawMessage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(json.RawMessage)
	}
	return r0, ret.Error(1)
}

func (_m *MockDerivedConfigGenerator) BuildToyConfig(script *models.StoryScript, model models.ModelArtifact) (json.RawMessage, error) {
	ret := _m.Called(script, model)

	var r0 json.RawMessage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(json.RawMessage)
	}
	return r0, ret.Error(1)
}

var _ pipeline.DerivedConfigGenerator = (*MockDerivedConfigGenerator)(nil)

// MockResultSink is a mock type for the ResultSink type
type MockResultSink struct {
	mock.Mock
}

func (_m *MockResultSink) Push(ctx context.Context, snapshot *models.PipelineSession) error {
	ret := _m.Called(ctx, snapshot)
	return ret.Error(0)
}

var _ pipeline.ResultSink = (*MockResultSink)(nil)
