package chat

// PromptMessage is the role/content shape consumed by the model call.
// Keeping it separate from Message lets the storage schema change without
// touching the wire format sent to the model.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt renders stored history for model consumption: timestamps are
// stripped, order and roles pass through unchanged. Pure function, no I/O.
func Prompt(history []Message) []PromptMessage {
	out := make([]PromptMessage, 0, len(history))
	for _, m := range history {
		out = append(out, PromptMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
