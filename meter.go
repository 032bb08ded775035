package toolgate

import (
	"errors"
	"fmt"
	"log"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
	"github.com/pkoukk/tiktoken-go"
)

// UsageMeter turns provider-reported token counts into cost records. When a
// provider omits usage, counts are estimated with a local tokenizer and the
// record is marked estimated. Writes are at-most-once per request ID.
type UsageMeter struct {
	store  stores.GatewayStore
	logger *log.Logger
}

func NewUsageMeter(store stores.GatewayStore, logger *log.Logger) *UsageMeter {
	if logger == nil {
		logger = log.Default()
	}
	return &UsageMeter{store: store, logger: logger}
}

// Record computes costs from the effective price and persists the usage
// record. A duplicate request ID is deduplicated silently: the first write
// wins and Record reports success.
func (m *UsageMeter) Record(requestID, userID, model string, usage models.Usage, estimated bool, price ResolvedPrice) (*stores.UsageRecord, error) {
	if requestID == "" {
		return nil, fmt.Errorf("usage record requires a request id")
	}

	inputCost := float64(usage.PromptTokens) / 1000 * price.InputPer1K
	outputCost := float64(usage.CompletionTokens) / 1000 * price.OutputPer1K

	rec := &stores.UsageRecord{
		RequestID:       requestID,
		UserID:          userID,
		ModelName:       model,
		InputTokens:     usage.PromptTokens,
		OutputTokens:    usage.CompletionTokens,
		InputUnitPrice:  price.InputPer1K,
		OutputUnitPrice: price.OutputPer1K,
		InputCost:       inputCost,
		OutputCost:      outputCost,
		TotalCost:       inputCost + outputCost,
		Currency:        price.Currency,
		EstimatedTokens: estimated,
		RecordedAt:      time.Now().UTC(),
	}

	err := m.store.RecordUsage(rec)
	if errors.Is(err, models.ErrMeteringConflict) {
		m.logger.Printf("duplicate usage write for request %s, keeping first record", requestID)
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// EstimateUsage reconstructs token counts with tiktoken when the provider
// response carried no usage block.
func EstimateUsage(req *models.ChatRequest, resp *models.ChatResponse) models.Usage {
	var prompt int
	for _, msg := range req.Messages {
		prompt += countTokens(req.Model, msg.Content)
		for _, tc := range msg.ToolCalls {
			prompt += countTokens(req.Model, tc.Function.Arguments)
		}
	}

	var completion int
	if choice := resp.FirstChoice(); choice != nil {
		completion += countTokens(req.Model, choice.Message.Content)
		for _, tc := range choice.Message.ToolCalls {
			completion += countTokens(req.Model, tc.Function.Arguments)
		}
	}

	return models.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func countTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// tokenizer unavailable, fall back to the ~4 chars/token rule
			return len(text) / 4
		}
	}
	return len(enc.Encode(text, nil, nil))
}
