package generation

import "encoding/json"

// gameConfig - типизированная часть конфигурации игры, подлежащая
// ограничению. Остальные поля прогоняются как есть.
type gameConfig struct {
	GameID            string          `json:"game_id"`
	GameTitle         string          `json:"game_title"`
	ShortInstructions string          `json:"short_instructions"`
	Camera            json.RawMessage `json:"camera"`
	Theme             json.RawMessage `json:"theme"`
	Character         gameCharacter   `json:"character"`
	Objects           gameObjects     `json:"objects"`
	Session           gameSession     `json:"session"`
	Copy              json.RawMessage `json:"copy"`
}

type gameCharacter struct {
	DisplayName          string  `json:"display_name"`
	MoveSpeedUnitsPerSec float64 `json:"move_speed_units_per_sec"`
	TurnSpeedDegPerSec   float64 `json:"turn_speed_deg_per_sec"`
}

type gameObjects struct {
	MaxPrizes        int             `json:"max_prizes"`
	MaxHazards       int             `json:"max_hazards"`
	PrizeValue       int             `json:"prize_value"`
	HazardPenalty    int             `json:"hazard_penalty"`
	SpawnRegions     json.RawMessage `json:"spawn_regions"`
	RespawnOnCollect bool            `json:"respawn_on_collect"`
	RespawnOnExplode bool            `json:"respawn_on_explode"`
}

type gameSession struct {
	Mode        string `json:"mode"`
	DurationSec int    `json:"duration_sec"`
	MaxMoves    int    `json:"max_moves"`
	TargetScore int    `json:"target_score"`
	MinScore    int    `json:"min_score"`
}

// sanitizeGameConfig зажимает сгенерированные значения в безопасные
// диапазоны: модель иногда выдает скорость или счет, ломающие игру.
func sanitizeGameConfig(cfg *gameConfig) {
	cfg.Character.MoveSpeedUnitsPerSec = clampFloat(cfg.Character.MoveSpeedUnitsPerSec, 2, 15, 6)
	cfg.Character.TurnSpeedDegPerSec = clampFloat(cfg.Character.TurnSpeedDegPerSec, 60, 360, 180)
	cfg.Objects.MaxPrizes = clampInt(cfg.Objects.MaxPrizes, 3, 20, 10)
	cfg.Objects.MaxHazards = clampInt(cfg.Objects.MaxHazards, 1, 15, 6)
	cfg.Session.DurationSec = clampInt(cfg.Session.DurationSec, 30, 180, 60)
	cfg.Session.TargetScore = clampInt(cfg.Session.TargetScore, 3, 50, 12)
	cfg.Session.MinScore = clampInt(cfg.Session.MinScore, -10, 0, -5)
}

// clampInt зажимает v в [min, max]; нулевое значение трактуется как
// отсутствующее и заменяется на def.
func clampInt(v, min, max, def int) int {
	if v == 0 {
		v = def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max, def float64) float64 {
	if v == 0 {
		v = def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
