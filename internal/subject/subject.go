// Package subject holds the closed set of tutoring subjects and the prompt
// fragment each one adds to the tutor's system instruction.
package subject

import (
	"fmt"
	"strings"
)

type ID string

const (
	General ID = "General"
	Math    ID = "Math"
	Science ID = "Science"
	History ID = "History"
	Logic   ID = "Logic"
)

// Config is the static display metadata of a subject.
type Config struct {
	ID                ID     `json:"id"`
	Name              string `json:"name"`
	Icon              string `json:"icon"`
	Color             string `json:"color"`
	SystemPromptAddon string `json:"system_prompt_addon"`
}

var registry = []Config{
	{
		ID:                General,
		Name:              "General",
		Icon:              "🎓",
		Color:             "bg-gray-100 text-gray-700 hover:bg-gray-200",
		SystemPromptAddon: "Answer general knowledge questions clearly.",
	},
	{
		ID:                Math,
		Name:              "Math",
		Icon:              "➗",
		Color:             "bg-blue-100 text-blue-700 hover:bg-blue-200",
		SystemPromptAddon: "You are a math tutor. Solve equations step-by-step. Show all your work logically. Use clear LaTeX formatting where possible, or clear text representation.",
	},
	{
		ID:                Science,
		Name:              "Science",
		Icon:              "🧬",
		Color:             "bg-green-100 text-green-700 hover:bg-green-200",
		SystemPromptAddon: "You are a science tutor. Explain scientific concepts simply. Use analogies where helpful.",
	},
	{
		ID:                History,
		Name:              "History",
		Icon:              "🏛️",
		Color:             "bg-amber-100 text-amber-700 hover:bg-amber-200",
		SystemPromptAddon: "You are a history tutor. Provide historical context, dates, and significance of events.",
	},
	{
		ID:                Logic,
		Name:              "Logic",
		Icon:              "🧩",
		Color:             "bg-purple-100 text-purple-700 hover:bg-purple-200",
		SystemPromptAddon: "You are a logic tutor. Help the user improve their reasoning. Break down problems into premises and conclusions.",
	},
}

var byID = func() map[ID]Config {
	m := make(map[ID]Config, len(registry))
	for _, c := range registry {
		m[c.ID] = c
	}
	return m
}()

// All returns the registry in display order.
func All() []Config {
	out := make([]Config, len(registry))
	copy(out, registry)
	return out
}

func Lookup(id ID) (Config, bool) {
	c, ok := byID[id]
	return c, ok
}

// MustLookup panics on an id outside the registry. Callers only hold ids that
// came from this package, so a miss is a programming error.
func MustLookup(id ID) Config {
	c, ok := byID[id]
	if !ok {
		panic(fmt.Sprintf("subject: unknown id %q", id))
	}
	return c
}

// Parse resolves a user supplied name, ignoring case and surrounding space.
func Parse(name string) (ID, bool) {
	name = strings.TrimSpace(name)
	for _, c := range registry {
		if strings.EqualFold(string(c.ID), name) {
			return c.ID, true
		}
	}
	return "", false
}

// SystemInstruction appends the subject's prompt fragment to the base
// instruction.
func SystemInstruction(base string, id ID) string {
	return fmt.Sprintf("%s\n\nCURRENT CONTEXT: %s", base, MustLookup(id).SystemPromptAddon)
}
