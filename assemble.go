package toolgate

import (
	models "github.com/Desarso/toolgate/models"
)

// Assemble builds the message sequence for the follow-up model invocation:
// the original messages, then the assistant turn that requested the tools,
// then one tool message per call in request order. The input slices are
// never mutated; the result is a fresh slice.
func Assemble(messages []models.ChatMessage, assistant models.ChatMessage, results []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages)+1+len(results))
	out = append(out, messages...)
	out = append(out, assistant)
	out = append(out, results...)
	return out
}
