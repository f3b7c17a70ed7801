package generation

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe  = regexp.MustCompile("(?i)^```(?:json|text)?\n?")
	fenceCloseRe = regexp.MustCompile("\n?```$")
)

// stripFences срезает markdown-ограждения вокруг ответа модели.
// Модель просят отдавать чистый JSON, но ограждения все равно
// периодически приходят.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = fenceOpenRe.ReplaceAllString(s, "")
		s = fenceCloseRe.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
