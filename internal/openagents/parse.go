package openagents

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	labeledIDRe  = regexp.MustCompile(`(?i)project[_\s]?id[:\s]+["']?([a-zA-Z0-9_-]+)["']?`)
	quotedKeyRe  = regexp.MustCompile(`["']?id["']?\s*:\s*["']([a-zA-Z0-9_-]+)["']`)
	jsonFragRe   = regexp.MustCompile(`\{[^}]+\}`)
	statusRe     = regexp.MustCompile(`'status':\s*'(\w+)'`)
	msgContentRe = regexp.MustCompile(`(?s)'content':\s*\{'text':\s*['"](.*?)['"]\s*\}`)
)

// extractProjectID tries three shapes in order: a labeled project_id token,
// a quoted id key, and a JSON-parseable {...} fragment. Returns "" when all
// three fail.
func extractProjectID(text string) string {
	if m := labeledIDRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := quotedKeyRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if frag := jsonFragRe.FindString(text); frag != "" {
		var parsed struct {
			ProjectID string `json:"project_id"`
			ID        string `json:"id"`
		}
		if err := json.Unmarshal([]byte(frag), &parsed); err == nil {
			if parsed.ProjectID != "" {
				return parsed.ProjectID
			}
			if parsed.ID != "" {
				return parsed.ID
			}
		}
	}
	return ""
}

// parseProjectText recovers status and message texts from the upstream
// get_project response, which resembles a Python dict repr with
// single-quoted keys rather than JSON. Keep this parse defensive; the
// format is not contractual.
func parseProjectText(text string) (status string, messages []string) {
	status = "unknown"
	if m := statusRe.FindStringSubmatch(text); m != nil {
		status = m[1]
	}
	for _, m := range msgContentRe.FindAllStringSubmatch(text, -1) {
		messages = append(messages, unescape(m[1]))
	}
	return status, messages
}

var unescaper = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\'`, "'",
	`\"`, `"`,
)

func unescape(s string) string {
	return unescaper.Replace(s)
}
