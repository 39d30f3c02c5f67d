package api

// ModelEntry describes one model the platform can back an agent with.
// It mirrors the platform's model registry without a network call.
type ModelEntry struct {
	ID       string
	Label    string
	Provider string
}

// Models returns the static model catalog in display order.
func Models() []ModelEntry {
	return []ModelEntry{
		{ID: "claude-sonnet-4-5", Label: "Claude Sonnet 4.5", Provider: "anthropic"},
		{ID: "claude-haiku-4-5", Label: "Claude Haiku 4.5", Provider: "anthropic"},
		{ID: "gpt-5", Label: "GPT-5", Provider: "openai"},
		{ID: "gpt-5-mini", Label: "GPT-5 Mini", Provider: "openai"},
		{ID: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Provider: "google"},
		{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Provider: "google"},
	}
}

// DefaultModel is the model assigned when a create request names none.
const DefaultModel = "claude-sonnet-4-5"

// ModelLabel returns the display label for a model ID, or the ID
// itself for models not in the catalog.
func ModelLabel(id string) string {
	for _, m := range Models() {
		if m.ID == id {
			return m.Label
		}
	}
	return id
}

// KnownModel reports whether the ID is in the catalog.
func KnownModel(id string) bool {
	for _, m := range Models() {
		if m.ID == id {
			return true
		}
	}
	return false
}
