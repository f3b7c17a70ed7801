package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ip-studio-server/internal/generation"
	"ip-studio-server/internal/models"
)

// MockChatImageClient is a mock type for the ChatImageClient type
type MockChatImageClient struct {
	mock.Mock
}

func (_m *MockChatImageClient) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	ret := _m.Called(ctx, systemPrompt, userPrompt, temperature)
	return ret.String(0), ret.Error(1)
}

func (_m *MockChatImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

var _ generation.ChatImageClient = (*MockChatImageClient)(nil)

const validScriptJSON = `{
	"title": "Лис-детектив",
	"logline": "Фокс распутывает дело",
	"main_character": {
		"name": "Fox",
		"short_description": "a clever fox",
		"style": "cozy cartoon",
		"colors": ["#D2691E"]
	},
	"panels": [
		{"caption": "1", "image_prompt": "p1"},
		{"caption": "2", "image_prompt": "p2"},
		{"caption": "3", "image_prompt": "p3"}
	],
	"character_ref_prompt": "full-body fox"
}`

func TestGenerateStoryScript(t *testing.T) {
	ctx := context.Background()

	t.Run("Parses clean JSON", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(validScriptJSON, nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		script, err := gen.GenerateStoryScript(ctx, "идея")
		require.NoError(t, err)
		assert.Equal(t, "Лис-детектив", script.Title)
		assert.Len(t, script.Panels, 3)
		ai.AssertExpectations(t)
	})

	t.Run("Strips markdown fences around the JSON", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("```json\n"+validScriptJSON+"\n```", nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		script, err := gen.GenerateStoryScript(ctx, "идея")
		require.NoError(t, err)
		assert.Equal(t, "Лис-детектив", script.Title)
	})

	t.Run("Rejects non-JSON answer", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("Извините, я не могу помочь с этим.", nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		_, err := gen.GenerateStoryScript(ctx, "идея")
		assert.Error(t, err)
	})

	t.Run("Rejects incomplete script", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{"title":"","panels":[]}`, nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		_, err := gen.GenerateStoryScript(ctx, "идея")
		assert.Error(t, err)
	})

	t.Run("Propagates client error", func(t *testing.T) {
		ai := new(MockChatImageClient)
		bang := errors.New("rate limited")
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", bang).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		_, err := gen.GenerateStoryScript(ctx, "идея")
		assert.ErrorIs(t, err, bang)
	})
}

func TestGeneratePanelImage(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty prompt is rejected without calling the client", func(t *testing.T) {
		ai := new(MockChatImageClient)
		gen := generation.NewGenerator(ai, zap.NewNop())

		_, err := gen.GeneratePanelImage(ctx, "   ")
		assert.Error(t, err)
		ai.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
	})

	t.Run("Returns the image URL", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("GenerateImage", mock.Anything, "fox finds a clue").
			Return("https://img.example/panel.png", nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		url, err := gen.GeneratePanelImage(ctx, "fox finds a clue")
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/panel.png", url)
	})
}

func TestGenerateCharacterRef(t *testing.T) {
	ctx := context.Background()
	script := &models.StoryScript{
		Title:              "Лис-детектив",
		CharacterRefPrompt: "full-body fox",
	}

	t.Run("Derived prompt is used for the image and returned to the caller", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("a detailed fox turnaround sheet", nil).Once()
		ai.On("GenerateImage", mock.Anything, "a detailed fox turnaround sheet").
			Return("https://img.example/ref.png", nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		url, promptUsed, err := gen.GenerateCharacterRef(ctx, "https://img.example/panel1.png", script)
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/ref.png", url)
		assert.Equal(t, "a detailed fox turnaround sheet", promptUsed)
		ai.AssertExpectations(t)
	})

	t.Run("Prompt derivation failure stops before image generation", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("bad day")).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		_, _, err := gen.GenerateCharacterRef(ctx, "https://img.example/panel1.png", script)
		assert.Error(t, err)
		ai.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
	})
}

func TestGenerateGameConfig(t *testing.T) {
	ctx := context.Background()
	script := &models.StoryScript{Title: "Лис-детектив"}

	t.Run("Out-of-range values are clamped", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{
				"game_title": "Fox Run",
				"character": {"display_name": "Fox", "move_speed_units_per_sec": 99, "turn_speed_deg_per_sec": 10},
				"objects": {"max_prizes": 1000, "max_hazards": 0},
				"session": {"duration_sec": 5, "target_score": 500, "min_score": -99}
			}`, nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		raw, err := gen.GenerateGameConfig(ctx, "идея", script)
		require.NoError(t, err)

		var cfg struct {
			Character struct {
				MoveSpeed float64 `json:"move_speed_units_per_sec"`
				TurnSpeed float64 `json:"turn_speed_deg_per_sec"`
			} `json:"character"`
			Objects struct {
				MaxPrizes  int `json:"max_prizes"`
				MaxHazards int `json:"max_hazards"`
			} `json:"objects"`
			Session struct {
				DurationSec int `json:"duration_sec"`
				TargetScore int `json:"target_score"`
				MinScore    int `json:"min_score"`
			} `json:"session"`
		}
		require.NoError(t, json.Unmarshal(raw, &cfg))

		// Завышенные значения прижимаются к границам, ноль заменяется
		// значением по умолчанию
		assert.Equal(t, 15.0, cfg.Character.MoveSpeed)
		assert.Equal(t, 60.0, cfg.Character.TurnSpeed)
		assert.Equal(t, 20, cfg.Objects.MaxPrizes)
		assert.Equal(t, 6, cfg.Objects.MaxHazards)
		assert.Equal(t, 30, cfg.Session.DurationSec)
		assert.Equal(t, 50, cfg.Session.TargetScore)
		assert.Equal(t, -10, cfg.Session.MinScore)
	})

	t.Run("Missing values fall back to defaults", func(t *testing.T) {
		ai := new(MockChatImageClient)
		ai.On("ChatCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{"game_title": "Fox Run"}`, nil).Once()
		gen := generation.NewGenerator(ai, zap.NewNop())

		raw, err := gen.GenerateGameConfig(ctx, "идея", script)
		require.NoError(t, err)

		var cfg struct {
			Session struct {
				DurationSec int `json:"duration_sec"`
				TargetScore int `json:"target_score"`
			} `json:"session"`
		}
		require.NoError(t, json.Unmarshal(raw, &cfg))
		assert.Equal(t, 60, cfg.Session.DurationSec)
		assert.Equal(t, 12, cfg.Session.TargetScore)
	})
}

func TestBuildToyConfig(t *testing.T) {
	gen := generation.NewGenerator(new(MockChatImageClient), zap.NewNop())
	script := &models.StoryScript{
		MainCharacter: models.MainCharacter{
			Name:             "Fox",
			ShortDescription: "a clever fox",
			Colors:           []string{"#D2691E"},
		},
	}

	t.Run("Builds the showcase config locally", func(t *testing.T) {
		raw, err := gen.BuildToyConfig(script, models.ModelArtifact{URL: "https://cdn.example/model.glb", Format: "glb"})
		require.NoError(t, err)

		var toy map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &toy))
		assert.Equal(t, "https://cdn.example/model.glb", toy["model_url"])
		assert.Equal(t, "glb", toy["model_format"])
		assert.Equal(t, "Fox", toy["display_name"])
		assert.Equal(t, true, toy["show_pedestal"])
	})

	t.Run("Placeholder model is rejected", func(t *testing.T) {
		_, err := gen.BuildToyConfig(script, models.ModelArtifact{URL: models.PlaceholderURL})
		assert.Error(t, err)
	})
}
