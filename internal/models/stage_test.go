package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ip-studio-server/internal/models"
)

func TestParseStageID(t *testing.T) {
	t.Run("Known stage names", func(t *testing.T) {
		for _, stage := range models.AllStages {
			parsed, err := models.ParseStageID(string(stage))
			require.NoError(t, err)
			assert.Equal(t, stage, parsed)
		}
	})

	t.Run("Unknown names are a validation error", func(t *testing.T) {
		// game и toy - производные представления, а не стадии
		for _, name := range []string{"game", "toy", "panel_4", ""} {
			_, err := models.ParseStageID(name)
			assert.ErrorIs(t, err, models.ErrValidation, "name %q", name)
		}
	})
}

func TestStageRecordTransitions(t *testing.T) {
	assert.True(t, models.StageRecord{Status: models.StageEmpty}.IsGeneratable())
	assert.True(t, models.StageRecord{Status: models.StageFailed}.IsGeneratable())
	assert.False(t, models.StageRecord{Status: models.StagePending}.IsGeneratable())
	assert.False(t, models.StageRecord{Status: models.StageReady}.IsGeneratable())

	assert.True(t, models.StageRecord{Status: models.StageReady}.IsRedoable())
	assert.True(t, models.StageRecord{Status: models.StageFailed}.IsRedoable())
	assert.False(t, models.StageRecord{Status: models.StageEmpty}.IsRedoable())
	assert.False(t, models.StageRecord{Status: models.StagePending}.IsRedoable())
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, models.JobPending.IsTerminal())
	assert.False(t, models.JobInProgress.IsTerminal())
	assert.True(t, models.JobSucceeded.IsTerminal())
	assert.True(t, models.JobFailed.IsTerminal())
	assert.True(t, models.JobCanceled.IsTerminal())
}

func TestPipelineSessionClone(t *testing.T) {
	sess := models.NewPipelineSession("идея")
	sess.StoryScript = &models.StoryScript{
		Title:  "Лис-детектив",
		Panels: []models.PanelScript{{Caption: "1"}},
	}
	sess.GameConfig = []byte(`{"game":true}`)

	clone := sess.Clone()

	// Мутации клона не затрагивают оригинал
	clone.StoryScript.Title = "другое"
	clone.StoryScript.Panels[0].Caption = "изменено"
	clone.SetStage(models.StageStoryScript, models.StageRecord{Status: models.StageReady})

	assert.Equal(t, "Лис-детектив", sess.StoryScript.Title)
	assert.Equal(t, "1", sess.StoryScript.Panels[0].Caption)
	assert.Equal(t, models.StageEmpty, sess.Stage(models.StageStoryScript).Status)
}
