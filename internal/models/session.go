package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PlaceholderURL - строковый сентинел "артефакт еще не произведен".
// Сериализуется как есть и никогда не должен использоваться ниже по
// пайплайну как настоящий URL.
const PlaceholderURL = "placeholder"

// PanelCount - фиксированное число иллюстрированных панелей в истории.
const PanelCount = 3

// MainCharacter описывает главного персонажа сгенерированной истории.
type MainCharacter struct {
	Name             string   `json:"name"`
	ShortDescription string   `json:"short_description"`
	Style            string   `json:"style"`
	Colors           []string `json:"colors"`
}

// PanelScript - сценарий одной панели: подпись и промпт для генерации
// изображения.
type PanelScript struct {
	Caption     string `json:"caption"`
	ImagePrompt string `json:"image_prompt"`
}

// StoryScript - артефакт стадии StoryScript.
type StoryScript struct {
	Title              string        `json:"title"`
	Logline            string        `json:"logline"`
	MainCharacter      MainCharacter `json:"main_character"`
	Panels             []PanelScript `json:"panels"`
	CharacterRefPrompt string        `json:"character_ref_prompt"`
}

// ImageArtifact - артефакт стадий, производящих изображение.
// URL равен PlaceholderURL, пока изображение не произведено.
type ImageArtifact struct {
	URL string `json:"url"`
}

// IsPlaceholder сообщает, что артефакт еще не произведен.
func (a ImageArtifact) IsPlaceholder() bool {
	return a.URL == "" || a.URL == PlaceholderURL
}

// ModelArtifact - артефакт стадии Model3D.
type ModelArtifact struct {
	URL    string `json:"url"`
	Format string `json:"format"` // glb | obj
}

// IsPlaceholder сообщает, что модель еще не произведена.
func (a ModelArtifact) IsPlaceholder() bool {
	return a.URL == "" || a.URL == PlaceholderURL
}

// PipelineSession - корневой агрегат, одна сессия на один прогон генерации.
// Внешне видимая форма сериализуется как плоский объект; отсутствующие
// артефакты изображений представлены сентинелом PlaceholderURL.
type PipelineSession struct {
	ID           uuid.UUID `json:"id"`
	OriginalIdea string    `json:"originalIdea"` // неизменяемо после создания
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	StoryScript        *StoryScript             `json:"storyScript,omitempty"`
	Panels             [PanelCount]ImageArtifact `json:"panels"`
	CharacterRef       ImageArtifact            `json:"characterReference"`
	CharacterRefPrompt string                   `json:"characterReferencePrompt,omitempty"`
	Model3D            ModelArtifact            `json:"model3D"`

	// Производные представления; присутствуют только когда Model3D готова.
	GameConfig json.RawMessage `json:"gameConfig,omitempty"`
	ToyConfig  json.RawMessage `json:"toyConfig,omitempty"`

	Stages map[StageID]StageRecord `json:"stages"`
}

// NewPipelineSession создает сессию с ленивыми записями стадий:
// все стадии стартуют в статусе Empty, артефакты - в placeholder.
func NewPipelineSession(idea string) *PipelineSession {
	now := time.Now().UTC()
	s := &PipelineSession{
		ID:           uuid.New(),
		OriginalIdea: idea,
		CreatedAt:    now,
		UpdatedAt:    now,
		CharacterRef: ImageArtifact{URL: PlaceholderURL},
		Model3D:      ModelArtifact{URL: PlaceholderURL},
		Stages:       make(map[StageID]StageRecord, len(AllStages)),
	}
	for i := range s.Panels {
		s.Panels[i] = ImageArtifact{URL: PlaceholderURL}
	}
	for _, id := range AllStages {
		s.Stages[id] = StageRecord{Status: StageEmpty}
	}
	return s
}

// Stage возвращает запись стадии (Empty, если запись еще не создавалась).
func (s *PipelineSession) Stage(id StageID) StageRecord {
	if rec, ok := s.Stages[id]; ok {
		return rec
	}
	return StageRecord{Status: StageEmpty}
}

// SetStage записывает новое состояние стадии и обновляет UpdatedAt.
func (s *PipelineSession) SetStage(id StageID, rec StageRecord) {
	s.Stages[id] = rec
	s.UpdatedAt = time.Now().UTC()
}

// Clone делает глубокую копию сессии. Снимки, уходящие наружу
// (Result Sink, HTTP ответы), всегда строятся из копии, чтобы читатели
// не наблюдали частично примененные переходы.
func (s *PipelineSession) Clone() *PipelineSession {
	cp := *s
	if s.StoryScript != nil {
		script := *s.StoryScript
		script.Panels = append([]PanelScript(nil), s.StoryScript.Panels...)
		script.MainCharacter.Colors = append([]string(nil), s.StoryScript.MainCharacter.Colors...)
		cp.StoryScript = &script
	}
	cp.GameConfig = append(json.RawMessage(nil), s.GameConfig...)
	cp.ToyConfig = append(json.RawMessage(nil), s.ToyConfig...)
	cp.Stages = make(map[StageID]StageRecord, len(s.Stages))
	for id, rec := range s.Stages {
		cp.Stages[id] = rec
	}
	return &cp
}
