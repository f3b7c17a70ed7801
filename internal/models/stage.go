package models

import "fmt"

// StageID идентифицирует один шаг генерационного пайплайна.
// Game и Toy не входят в перечисление: это производные представления,
// которые нельзя перегенерировать как самостоятельные стадии.
type StageID string

const (
	StageStoryScript  StageID = "story_script"
	StagePanel1       StageID = "panel_1"
	StagePanel2       StageID = "panel_2"
	StagePanel3       StageID = "panel_3"
	StageCharacterRef StageID = "character_ref"
	StageModel3D      StageID = "model_3d"
)

// AllStages перечисляет стадии в порядке зависимостей (для полного прогона).
var AllStages = []StageID{
	StageStoryScript,
	StagePanel1,
	StagePanel2,
	StagePanel3,
	StageCharacterRef,
	StageModel3D,
}

// ParseStageID преобразует строку из запроса в StageID.
// Неизвестное имя стадии - это ошибка валидации, а не паника:
// значение приходит от внешнего вызывающего.
func ParseStageID(s string) (StageID, error) {
	switch StageID(s) {
	case StageStoryScript, StagePanel1, StagePanel2, StagePanel3, StageCharacterRef, StageModel3D:
		return StageID(s), nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrValidation, s)
}

// StageStatus описывает состояние одной стадии внутри сессии.
type StageStatus string

const (
	StageEmpty   StageStatus = "empty"
	StagePending StageStatus = "pending"
	StageReady   StageStatus = "ready"
	StageFailed  StageStatus = "failed"
)

// StageRecord - учетная запись стадии внутри сессии.
type StageRecord struct {
	Status    StageStatus `json:"status"`
	LastError string      `json:"lastError,omitempty"`
}

// IsRedoable сообщает, допустим ли redo для текущего статуса стадии.
func (r StageRecord) IsRedoable() bool {
	return r.Status == StageReady || r.Status == StageFailed
}

// IsGeneratable сообщает, допустим ли запуск генерации для текущего статуса.
func (r StageRecord) IsGeneratable() bool {
	return r.Status == StageEmpty || r.Status == StageFailed
}
