package generation

import (
	"fmt"
	"strings"

	"ip-studio-server/internal/models"
)

// Системные промпты повторяют контракт исходного генератора: модель
// обязана отдавать чистый JSON без markdown-оберток, но на практике
// обертки все равно встречаются и срезаются парсером.
const (
	jsonOnlySystemPrompt = "You are a JSON generator. Always output valid JSON only, no markdown formatting, no code blocks, no explanatory text. Output ONLY the raw JSON object, nothing else."

	promptEngineerSystemPrompt = "You are a prompt engineer. Generate detailed, specific image-generation prompts that accurately describe visual concepts. Output ONLY the prompt text, no explanations."
)

// storyScriptPrompt строит промпт генерации сценария истории с тремя
// панелями в стиле анимированного комикса.
func storyScriptPrompt(idea string) string {
	return fmt.Sprintf(`You are a creative IP generator. Given a short IP idea, generate a complete story configuration in JSON format.

IP Idea: %q

Generate a JSON object with the following exact structure (output ONLY valid JSON, no markdown, no code blocks):

{
  "title": "Story title (short, catchy)",
  "logline": "One sentence logline describing the story",
  "main_character": {
    "name": "Character name",
    "short_description": "Brief physical description",
    "style": "Art style description (e.g., 'cute, clean, colorful, minimal shading')",
    "colors": ["primary color", "secondary color"]
  },
  "panels": [
    {"caption": "Caption for panel 1", "image_prompt": "Detailed image prompt for panel 1 in animated comic book style, consistent character design"},
    {"caption": "Caption for panel 2", "image_prompt": "Detailed image prompt for panel 2 in animated comic book style, consistent with panel 1"},
    {"caption": "Caption for panel 3", "image_prompt": "Detailed image prompt for panel 3 in animated comic book style, consistent with previous panels"}
  ],
  "character_ref_prompt": "A prompt will be generated from the first comic panel image to extract the main character as a 3D plastic toy"
}

IMPORTANT - Comic Panel Image Style Guidelines:
Every image_prompt MUST specify "animated comic book style, vibrant colors, bold outlines, cel-shaded animation aesthetic" prominently, include the character's description and style, and maintain the exact same character design, colors and proportions across all three panels while varying poses, expressions and camera angles to show the progression of the story. Specify "high-quality animated comic illustration, professional comic book art style, cinematic composition".`, idea)
}

// characterRefPrompt строит промпт для вывода промпта референса персонажа
// из первой панели: один персонаж, фронтальный вид, чистый белый фон,
// эстетика пластиковой игрушки - пригодно как референс для 3D модели.
func characterRefPrompt(firstPanelImageURL string, script *models.StoryScript) string {
	return fmt.Sprintf(`You are creating an image-generation prompt to produce a character reference image for 3D model generation.

Context:
- A comic panel image has been generated showing %q (%s)
- The character appears in the image at this URL: %s
- Character style: %s
- Character colors: %s

Task:
Generate a detailed image prompt that will create a 3D plastic toy version of this exact character. The prompt MUST:
1. Extract and isolate ONLY the main character from the comic panel - no other characters, objects, or background elements
2. Maintain the exact appearance, colors, and features of the character as shown in the first panel
3. Transform the character into a 3D plastic toy aesthetic (smooth surfaces, toy-like materials, slightly stylized but recognizable)
4. Show EXACTLY ONE SINGLE INSTANCE of the character - full body, perfectly centered, facing directly forward toward the camera
5. Place the character on a PURE WHITE background (#FFFFFF) with no shadows, no ground, no textures, no gradients
6. Make it look like a high-quality collectible toy, ONE VIEW ONLY - frontal view facing the camera, no side views, no rotation views

The prompt must explicitly state "single character", "one character", "centered", and "frontal view only".

Output ONLY the image prompt text, nothing else. No explanations, no markdown, just the prompt.`,
		script.MainCharacter.Name,
		script.MainCharacter.ShortDescription,
		firstPanelImageURL,
		script.MainCharacter.Style,
		strings.Join(script.MainCharacter.Colors, ", "))
}

// gameConfigPrompt строит промпт генерации конфигурации изометрической
// 3D игры-доски под сгенерированную историю.
func gameConfigPrompt(idea string, script *models.StoryScript) string {
	return fmt.Sprintf(`You are a game designer. Generate a game configuration JSON for a 3D board game called "3D Board Dash".

IP Idea: %q
Story Title: %q
Main Character: %s (%s)

The game is a simple isometric 3D board game where the main character moves on a flat board, prizes give points when collected, hazards subtract points when touched, and the game ends after a time limit or move limit.

Generate a JSON object with this exact structure (output ONLY valid JSON, no markdown, no code blocks):

{
  "game_id": "3d_board_dash_isometric_v1",
  "game_title": "Creative game title featuring the character name",
  "short_instructions": "One sentence instruction for players",
  "camera": {"type": "angled", "position": {"x": 0, "y": 20, "z": 20}, "look_at": {"x": 0, "y": 0, "z": 0}, "field_of_view": 40},
  "theme": {"board_color": "#1e2f45", "board_size": {"width": 22, "height": 22}, "background_color": "#00101e", "light_intensity": 1.2, "prize_color": "#ffee7a", "hazard_color": "#ff5555", "cursor_color": "#ffffff"},
  "character": {"display_name": %q, "move_speed_units_per_sec": 6, "turn_speed_deg_per_sec": 180},
  "objects": {"max_prizes": 10, "max_hazards": 6, "prize_value": 1, "hazard_penalty": -1, "spawn_regions": [{"x_min": -9, "x_max": 9, "z_min": -9, "z_max": 9}], "respawn_on_collect": true, "respawn_on_explode": true},
  "session": {"mode": "timed", "duration_sec": 60, "max_moves": 20, "target_score": 12, "min_score": -5},
  "copy": {"score_label": "Thematic name for score", "prize_name": "Thematic name for prizes", "hazard_name": "Thematic name for hazards", "start_message": "Encouraging start message", "win_message": "Victory message", "lose_message": "Defeat message", "time_up_message": "Time's up message"}
}

Make the theme colors, prize/hazard names, and messages thematically consistent with the IP idea.`,
		idea,
		script.Title,
		script.MainCharacter.Name,
		script.MainCharacter.ShortDescription,
		script.MainCharacter.Name)
}
