package chatctx

import (
	"github.com/ThatCatDev/slusha/server/internal/store"
)

// dedupKeyLength is how many leading characters identify a message when
// merging relevant and recent messages.
const dedupKeyLength = 100

// dedupKey approximates message identity by its first 100 characters. Two
// different messages sharing that prefix collapse into one; this is a known
// approximation and is kept so retrieval results stay stable.
func dedupKey(content string) string {
	r := []rune(content)
	if len(r) > dedupKeyLength {
		r = r[:dedupKeyLength]
	}
	return string(r)
}

// merge puts relevant messages first, then the recent ones not already
// present.
func merge(relevant, recent []store.Message) []store.Message {
	seen := make(map[string]bool, len(relevant)+len(recent))
	combined := make([]store.Message, 0, len(relevant)+len(recent))

	for _, group := range [][]store.Message{relevant, recent} {
		for _, m := range group {
			key := dedupKey(m.Content)
			if seen[key] {
				continue
			}
			seen[key] = true
			combined = append(combined, m)
		}
	}
	return combined
}
