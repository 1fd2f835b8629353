package chatctx

import (
	"strings"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

const (
	maxFormattedMemories = 5
	maxMemoryLength      = 500

	lorebookHeader = "[World information relevant to this conversation:]"
	lorebookFooter = "[End of world information. Treat the above as established facts.]"
	memoryHeader   = "[Relevant past conversation context:]"
	memoryFooter   = "[End of past context. Continue the conversation naturally.]"
)

// FormatContext renders retrieved context as a block for the system prompt.
// It returns "" when there is nothing to add.
func FormatContext(rc *RetrievedContext) string {
	if rc == nil {
		return ""
	}

	var sections []string

	if len(rc.LorebookContext) > 0 {
		lines := []string{lorebookHeader}
		for _, content := range rc.LorebookContext {
			lines = append(lines, "- "+stripBrackets(content))
		}
		lines = append(lines, lorebookFooter)
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if rc.MemoryEnabled && len(rc.RelevantMessages) > 0 {
		lines := []string{memoryHeader}
		for i, m := range rc.RelevantMessages {
			if i == maxFormattedMemories {
				break
			}
			lines = append(lines, roleLabel(m.Role)+": "+truncate(m.Content, maxMemoryLength))
		}
		lines = append(lines, memoryFooter)
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n")
}

func roleLabel(role string) string {
	if role == store.RoleUser {
		return "User"
	}
	return "Character"
}

// truncate cuts s to n characters, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// stripBrackets removes one enclosing pair of square brackets, as in
// "[Eldoria is a kingdom.]".
func stripBrackets(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
