package chatctx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

func TestReplacePlaceholders(t *testing.T) {
	names := Names{User: "Ann", Character: "Bob"}
	assert.Equal(t, "Ann meets Bob, Bob waves at Ann",
		ReplacePlaceholders("{{user}} meets {{char}}, {{char}} waves at {{user}}", names))

	// Empty names leave the placeholder in place.
	assert.Equal(t, "{{user}} meets Bob", ReplacePlaceholders("{{user}} meets {{char}}", Names{Character: "Bob"}))
	assert.Equal(t, "{{user}}", ReplacePlaceholders("{{user}}", Names{}))
}

func TestMatchLorebook(t *testing.T) {
	entries := []store.LorebookEntry{
		{Keys: "dragon, sword", Content: "Dragons hoard gold.", Enabled: true},
	}

	assert.Equal(t, []string{"Dragons hoard gold."}, MatchLorebook("I found a dragon!", entries))
	assert.Equal(t, []string{"Dragons hoard gold."}, MatchLorebook("A DRAGON and a Sword", entries), "matches once")
	assert.Empty(t, MatchLorebook("I found a dog", entries))
}

func TestMatchLorebookDisabledNeverTriggers(t *testing.T) {
	entries := []store.LorebookEntry{
		{Keys: "dragon", Content: "hidden", Enabled: false},
	}
	assert.Empty(t, MatchLorebook("dragon dragon dragon", entries))
}

func TestMatchLorebookKeepsEntryOrder(t *testing.T) {
	entries := []store.LorebookEntry{
		{Keys: "castle", Content: "first", Enabled: true},
		{Keys: " , ", Content: "blank keys", Enabled: true},
		{Keys: "  KING ", Content: "second", Enabled: true},
		{Keys: "queen", Content: "unmatched", Enabled: true},
	}
	got := MatchLorebook("The king rides to the castle", entries)
	assert.Equal(t, []string{"first", "second"}, got)
}

func msg(id int64, role, content string) store.Message {
	return store.Message{ID: id, Role: role, Content: content}
}

func TestMergeOrdering(t *testing.T) {
	m1 := msg(1, store.RoleUser, "one")
	m2 := msg(2, store.RoleAssistant, "two")
	m3 := msg(3, store.RoleUser, "three")

	got := merge([]store.Message{m1, m2}, []store.Message{m2, m3})
	assert.Equal(t, []store.Message{m1, m2, m3}, got)
}

func TestMergeCollapsesSharedPrefix(t *testing.T) {
	prefix := strings.Repeat("p", dedupKeyLength)
	a := msg(1, store.RoleUser, prefix+" ending A")
	b := msg(2, store.RoleUser, prefix+" ending B")

	got := merge([]store.Message{a}, []store.Message{b})
	assert.Equal(t, []store.Message{a}, got)
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, merge(nil, nil))
}

func TestFormatContextEmpty(t *testing.T) {
	assert.Equal(t, "", FormatContext(nil))
	assert.Equal(t, "", FormatContext(&RetrievedContext{MemoryEnabled: true}))

	// Relevant messages are ignored while memory is off.
	rc := &RetrievedContext{RelevantMessages: []store.Message{msg(1, store.RoleUser, "hi")}}
	assert.Equal(t, "", FormatContext(rc))
}

func TestFormatContextLorebook(t *testing.T) {
	rc := &RetrievedContext{LorebookContext: []string{"[Eldoria is a kingdom.]", "Magic is rare."}}

	want := strings.Join([]string{
		lorebookHeader,
		"- Eldoria is a kingdom.",
		"- Magic is rare.",
		lorebookFooter,
	}, "\n")
	assert.Equal(t, want, FormatContext(rc))
}

func TestFormatContextMemory(t *testing.T) {
	long := strings.Repeat("x", 600)
	relevant := []store.Message{
		msg(1, store.RoleUser, "hello"),
		msg(2, store.RoleAssistant, long),
		msg(3, store.RoleUser, "a"),
		msg(4, store.RoleUser, "b"),
		msg(5, store.RoleUser, "c"),
		msg(6, store.RoleUser, "dropped"),
	}
	rc := &RetrievedContext{MemoryEnabled: true, RelevantMessages: relevant}

	want := strings.Join([]string{
		memoryHeader,
		"User: hello",
		"Character: " + strings.Repeat("x", 500) + "...",
		"User: a",
		"User: b",
		"User: c",
		memoryFooter,
	}, "\n")
	assert.Equal(t, want, FormatContext(rc))
}

func TestFormatContextBothSections(t *testing.T) {
	rc := &RetrievedContext{
		MemoryEnabled:    true,
		LorebookContext:  []string{"lore"},
		RelevantMessages: []store.Message{msg(1, store.RoleUser, "hi")},
	}
	out := FormatContext(rc)
	assert.Equal(t, lorebookHeader+"\n- lore\n"+lorebookFooter+"\n"+memoryHeader+"\nUser: hi\n"+memoryFooter, out)
}

func TestStripBrackets(t *testing.T) {
	assert.Equal(t, "x", stripBrackets("[x]"))
	assert.Equal(t, "x", stripBrackets("  [ x ] "))
	assert.Equal(t, "[x", stripBrackets("[x"))
	assert.Equal(t, "a [b] c", stripBrackets("a [b] c"))
	assert.Equal(t, "", stripBrackets("[]"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "жж...", truncate("жжж", 2))
}
