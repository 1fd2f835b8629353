package chatctx

import (
	"strings"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

// MatchLorebook returns the content of every enabled entry with a keyword
// that occurs in message, case-insensitively. Entries keep lorebook order
// and contribute at most once.
func MatchLorebook(message string, entries []store.LorebookEntry) []string {
	lower := strings.ToLower(message)

	var matched []string
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		for _, key := range strings.Split(e.Keys, ",") {
			key = strings.ToLower(strings.TrimSpace(key))
			if key != "" && strings.Contains(lower, key) {
				matched = append(matched, e.Content)
				break
			}
		}
	}
	return matched
}
