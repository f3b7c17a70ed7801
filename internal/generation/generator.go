package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ip-studio-server/internal/models"
	"ip-studio-server/internal/pipeline"
)

// Generator реализует внешних коллабораторов пайплайна поверх одного
// генеративного API: сценарий истории, панельные изображения, референс
// персонажа и производные конфигурации.
type Generator struct {
	ai     ChatImageClient
	logger *zap.Logger
}

var (
	_ pipeline.StoryScriptGenerator   = (*Generator)(nil)
	_ pipeline.PanelImageGenerator    = (*Generator)(nil)
	_ pipeline.CharacterRefGenerator  = (*Generator)(nil)
	_ pipeline.DerivedConfigGenerator = (*Generator)(nil)
)

// NewGenerator создает Generator.
func NewGenerator(ai ChatImageClient, logger *zap.Logger) *Generator {
	return &Generator{
		ai:     ai,
		logger: logger.Named("Generator"),
	}
}

// GenerateStoryScript генерирует сценарий истории по идее.
func (g *Generator) GenerateStoryScript(ctx context.Context, idea string) (*models.StoryScript, error) {
	raw, err := g.ai.ChatCompletion(ctx, jsonOnlySystemPrompt, storyScriptPrompt(idea), 0.8)
	if err != nil {
		return nil, err
	}

	var script models.StoryScript
	cleaned := stripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), &script); err != nil {
		return nil, fmt.Errorf("failed to parse story script JSON: %w (content: %s)", err, truncateForLog(cleaned))
	}
	if script.Title == "" || len(script.Panels) == 0 {
		return nil, fmt.Errorf("story script is incomplete: title=%q panels=%d", script.Title, len(script.Panels))
	}
	g.logger.Info("Story script generated",
		zap.String("title", script.Title),
		zap.Int("panels", len(script.Panels)))
	return &script, nil
}

// GeneratePanelImage генерирует одно панельное изображение по промпту.
func (g *Generator) GeneratePanelImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("panel image prompt is empty")
	}
	url, err := g.ai.GenerateImage(ctx, prompt)
	if err != nil {
		return "", err
	}
	g.logger.Info("Panel image generated", zap.String("url", url))
	return url, nil
}

// GenerateCharacterRef выводит промпт референса персонажа из первой панели
// и генерирует по нему изображение. Возвращает URL и использованный промпт.
func (g *Generator) GenerateCharacterRef(ctx context.Context, panelImageURL string, script *models.StoryScript) (string, string, error) {
	promptText, err := g.ai.ChatCompletion(ctx, promptEngineerSystemPrompt, characterRefPrompt(panelImageURL, script), 0.7)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive character ref prompt: %w", err)
	}
	promptText = stripFences(promptText)

	url, err := g.ai.GenerateImage(ctx, promptText)
	if err != nil {
		return "", "", err
	}
	g.logger.Info("Character reference image generated",
		zap.String("url", url),
		zap.Int("promptChars", len(promptText)))
	return url, promptText, nil
}

// GenerateGameConfig генерирует конфигурацию игры и зажимает значения в
// безопасные диапазоны.
func (g *Generator) GenerateGameConfig(ctx context.Context, idea string, script *models.StoryScript) (json.RawMessage, error) {
	raw, err := g.ai.ChatCompletion(ctx, jsonOnlySystemPrompt, gameConfigPrompt(idea, script), 0.7)
	if err != nil {
		return nil, err
	}

	var cfg gameConfig
	cleaned := stripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse game config JSON: %w (content: %s)", err, truncateForLog(cleaned))
	}
	sanitizeGameConfig(&cfg)

	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sanitized game config: %w", err)
	}
	g.logger.Info("Game config generated", zap.String("gameTitle", cfg.GameTitle))
	return out, nil
}

// BuildToyConfig собирает конфигурацию витрины игрушки из готовой модели.
// Внешних вызовов не делает.
func (g *Generator) BuildToyConfig(script *models.StoryScript, model models.ModelArtifact) (json.RawMessage, error) {
	if model.IsPlaceholder() {
		return nil, fmt.Errorf("toy config requires a produced 3d model artifact")
	}
	toy := map[string]interface{}{
		"model_url":      model.URL,
		"model_format":   model.Format,
		"display_name":   script.MainCharacter.Name,
		"description":    script.MainCharacter.ShortDescription,
		"accent_colors":  script.MainCharacter.Colors,
		"turntable_rpm":  4,
		"show_pedestal":  true,
		"pedestal_color": "#f5f5f5",
	}
	return json.Marshal(toy)
}

func truncateForLog(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
