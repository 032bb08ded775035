package toolgate

import (
	"context"
	"fmt"
	"log"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
	"github.com/Desarso/toolgate/tools"
	"github.com/google/uuid"
)

const (
	defaultMaxToolRounds  = 5
	defaultRequestTimeout = 2 * time.Minute
)

// Gateway composes the tool registry, executor, decision strategy, pricing
// and metering into the end-to-end completion lifecycle.
type Gateway struct {
	Provider models.Completer
	Registry *tools.Registry
	Executor *tools.Executor
	Strategy DecisionStrategy
	Pricing  *PricingResolver
	Meter    *UsageMeter
	Store    stores.GatewayStore
	Logger   *log.Logger

	// MaxToolRounds bounds how many times the model may request tools in
	// one request before the gateway stops offering them.
	MaxToolRounds  int
	RequestTimeout time.Duration
	Provider_Name  string // pricing provider key, e.g. "openai"
}

// Result carries the final response plus the accounting attached to it.
type Result struct {
	RequestID string
	Response  *models.ChatResponse
	Usage     models.Usage
	Record    *stores.UsageRecord
}

// Complete runs one request through the full lifecycle: validate, decide
// tools, execute rounds of tool calls, and meter the result. Tool failures
// degrade into tool message content; only malformed requests and provider
// outages fail the call.
func (g *Gateway) Complete(ctx context.Context, userID string, req *models.ChatRequest) (*Result, error) {
	snap := g.Registry.Snapshot()
	if err := validateRequest(req, snap); err != nil {
		return nil, err
	}

	timeout := g.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestID := uuid.NewString()
	logger := g.logger()

	decision := DecideTools(req, snap, g.Strategy)

	maxRounds := g.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	messages := req.Messages
	toolChoice := decision.ToolChoice
	var totalUsage models.Usage
	estimated := false

	var resp *models.ChatResponse
	for round := 0; ; round++ {
		final := round >= maxRounds
		offered := decision.Tools
		if final {
			// stop advertising tools so the model must answer
			offered = nil
			toolChoice = nil
		}

		providerReq := *req
		providerReq.Messages = messages
		providerReq.Tools = offered
		providerReq.ToolChoice = toolChoice

		var err error
		resp, err = g.Provider.Complete(ctx, &providerReq)
		if err != nil {
			return nil, err
		}

		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		} else {
			est := EstimateUsage(&providerReq, resp)
			totalUsage.PromptTokens += est.PromptTokens
			totalUsage.CompletionTokens += est.CompletionTokens
			estimated = true
		}

		calls := resp.ToolCalls()
		if final || len(calls) == 0 {
			// after the cap the answer stands even if the model still asks
			// for tools it was not offered
			break
		}

		logger.Printf("request %s round %d: executing %d tool call(s)", requestID, round, len(calls))
		results := g.Executor.ExecuteAll(ctx, decision.Snapshot, calls)
		messages = Assemble(messages, resp.FirstChoice().Message, results)

		// a forced tool must not be forced again on the follow-up turn
		toolChoice = "auto"
	}
	totalUsage.TotalTokens = totalUsage.PromptTokens + totalUsage.CompletionTokens

	result := &Result{
		RequestID: requestID,
		Response:  resp,
		Usage:     totalUsage,
	}
	result.Record = g.meter(requestID, userID, req.Model, totalUsage, estimated)
	return result, nil
}

// meter runs the pricing and usage pipeline. Pricing and persistence
// problems are logged and never fail the completed request.
func (g *Gateway) meter(requestID, userID, model string, usage models.Usage, estimated bool) *stores.UsageRecord {
	logger := g.logger()
	if g.Meter == nil || g.Pricing == nil {
		return nil
	}

	price, err := g.Pricing.Resolve(g.Provider_Name, model, time.Now().UTC())
	if err != nil {
		logger.Printf("request %s: %v, defaulting cost to zero", requestID, err)
	}

	if g.Store != nil && userID != "" {
		policy, err := g.Store.MarkupPolicy(userID, model)
		if err != nil {
			logger.Printf("request %s: markup lookup failed: %v", requestID, err)
		} else {
			price = ApplyMarkup(price, policy)
		}
	}

	rec, err := g.Meter.Record(requestID, userID, model, usage, estimated, price)
	if err != nil {
		logger.Printf("request %s: usage recording failed: %v", requestID, err)
		return nil
	}
	return rec
}

func (g *Gateway) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

func validateRequest(req *models.ChatRequest, snap *tools.Snapshot) error {
	if req == nil {
		return &models.BadRequestError{Reason: "missing request body"}
	}
	if len(req.Messages) == 0 {
		return &models.BadRequestError{Reason: "messages must not be empty"}
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case "system", "user", "assistant", "tool":
		default:
			return &models.BadRequestError{Reason: fmt.Sprintf("invalid role at message %d: %s", i, msg.Role)}
		}
	}

	// declared tools must name registered variants
	for _, t := range req.Tools {
		if _, _, ok := snap.Lookup(t.Function.Name); !ok {
			return &models.BadRequestError{Reason: "declared tool is not registered: " + t.Function.Name}
		}
	}

	// a forced tool must exist in the declared set
	if forced, ok := forcedToolName(req.ToolChoice); ok {
		found := false
		for _, t := range req.Tools {
			if t.Function.Name == forced {
				found = true
				break
			}
		}
		if !found {
			return &models.BadRequestError{Reason: "tool_choice names undeclared tool " + forced}
		}
	}
	return nil
}

// forcedToolName extracts the tool name from an object-form tool_choice:
// {"type":"function","function":{"name":"..."}}.
func forcedToolName(choice interface{}) (string, bool) {
	obj, ok := choice.(map[string]interface{})
	if !ok {
		return "", false
	}
	fn, ok := obj["function"].(map[string]interface{})
	if !ok {
		return "", false
	}
	name, ok := fn["name"].(string)
	return name, ok && name != ""
}
