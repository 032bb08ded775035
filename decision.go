package toolgate

import (
	"strings"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/tools"
)

// DecisionStrategy decides, for a request that declared no tools, whether
// the gateway should offer its own tool set to the model. Implementations
// must be deterministic: the same messages always yield the same answer.
type DecisionStrategy interface {
	ShouldOfferTools(messages []models.ChatMessage) bool
}

// Decision is the outcome of the tool decision step for one request.
type Decision struct {
	Tools      []models.Tool // tools to advertise, nil when none
	ToolChoice interface{}   // forwarded tool_choice, nil when none
	Snapshot   *tools.Snapshot
}

// DecideTools applies the two decision modes. When the caller declared
// tools, their declarations and tool_choice pass through untouched and the
// model's structured output is the decision. When no tools were declared,
// the strategy classifies the request and, on a positive answer, the
// registry's own tool set is offered with tool_choice "auto".
func DecideTools(req *models.ChatRequest, snap *tools.Snapshot, strategy DecisionStrategy) Decision {
	if choice, ok := req.ToolChoice.(string); ok && choice == "none" {
		return Decision{Snapshot: snap}
	}

	if len(req.Tools) > 0 {
		return Decision{
			Tools:      req.Tools,
			ToolChoice: req.ToolChoice,
			Snapshot:   snap,
		}
	}

	if strategy == nil || snap.Len() == 0 {
		return Decision{Snapshot: snap}
	}
	if !strategy.ShouldOfferTools(req.Messages) {
		return Decision{Snapshot: snap}
	}
	return Decision{
		Tools:      snap.Tools(),
		ToolChoice: "auto",
		Snapshot:   snap,
	}
}

// KeywordStrategy flags requests whose last user message mentions search or
// freshness terms, or carries a URL. It is intentionally cheap; swap in a
// model-backed strategy when better recall is worth the extra call.
type KeywordStrategy struct {
	Keywords []string
}

var defaultKeywords = []string{
	"search", "find", "lookup",
	"news", "latest", "recent",
	"url", "webpage", "website",
	"what is", "how to",
	"today", "now", "current",
}

func NewKeywordStrategy() *KeywordStrategy {
	return &KeywordStrategy{Keywords: defaultKeywords}
}

func (s *KeywordStrategy) ShouldOfferTools(messages []models.ChatMessage) bool {
	content := models.LastUserContent(messages)
	if content == "" {
		return false
	}
	lowered := strings.ToLower(content)
	if strings.Contains(lowered, "http://") || strings.Contains(lowered, "https://") {
		return true
	}
	for _, keyword := range s.Keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// NeverStrategy disables implicit tool use entirely.
type NeverStrategy struct{}

func (NeverStrategy) ShouldOfferTools([]models.ChatMessage) bool { return false }
