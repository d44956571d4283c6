package generate

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)(?:```|$)")

// ExtractSource strips markdown code fences from a model response. A go or
// golang block wins over other blocks; the longest block wins among equals.
// A response without fences is returned trimmed.
func ExtractSource(response string) string {
	matches := fenceRe.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(response)
	}

	best, bestScore := "", -1
	for _, m := range matches {
		lang := strings.ToLower(m[1])
		body := strings.TrimSpace(m[2])
		score := len(body)
		if lang == "go" || lang == "golang" {
			score += 1 << 30
		}
		if score > bestScore {
			best, bestScore = body, score
		}
	}
	return best
}
