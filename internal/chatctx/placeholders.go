package chatctx

import "strings"

// Names are the display names substituted for {{user}} and {{char}}.
type Names struct {
	User      string
	Character string
}

// ReplacePlaceholders substitutes the display names into text. An empty
// name leaves its placeholder untouched.
func ReplacePlaceholders(text string, names Names) string {
	if names.User != "" {
		text = strings.ReplaceAll(text, "{{user}}", names.User)
	}
	if names.Character != "" {
		text = strings.ReplaceAll(text, "{{char}}", names.Character)
	}
	return text
}
