package gemini

import (
	"context"
	"errors"
	"testing"

	models "github.com/Desarso/toolgate/models"
	"google.golang.org/genai"
)

func scriptedClient(model string, outcomes ...func() (*genai.GenerateContentResponse, error)) (*Client, *int) {
	attempts := new(int)
	c := &Client{Model: model}
	c.generate = func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		n := *attempts
		*attempts++
		if n >= len(outcomes) {
			n = len(outcomes) - 1
		}
		return outcomes[n]()
	}
	return c, attempts
}

func textResult(text string) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
			}},
		}, nil
	}
}

func upstreamFailure(status int) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) {
		return nil, &models.UpstreamError{Provider: "gemini", Status: status, Message: "unavailable"}
	}
}

func TestCompleteRetriesOnce(t *testing.T) {
	c, attempts := scriptedClient("gemini-2.0-flash", upstreamFailure(503), textResult("recovered"))

	req := &models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}
	resp, err := c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("expected the retry to recover: %v", err)
	}
	if *attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", *attempts)
	}
	if got := resp.FirstChoice().Message.Content; got != "recovered" {
		t.Errorf("content = %q", got)
	}
}

func TestCompleteGivesUpAfterRetry(t *testing.T) {
	c, attempts := scriptedClient("gemini-2.0-flash", upstreamFailure(500))

	req := &models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}
	_, err := c.Complete(context.Background(), req)
	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if *attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", *attempts)
	}
}

func TestCompleteNoRetryOnFatalStatus(t *testing.T) {
	c, attempts := scriptedClient("gemini-2.0-flash", upstreamFailure(400))

	req := &models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}
	if _, err := c.Complete(context.Background(), req); err == nil {
		t.Fatal("expected an error")
	}
	if *attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", *attempts)
	}
}

func TestTranslateRequestRoles(t *testing.T) {
	req := &models.ChatRequest{
		Messages: []models.ChatMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi", ToolCalls: []models.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: models.ToolCallFunction{Name: "search", Arguments: `{"query":"x"}`},
			}}},
			{Role: "tool", Name: "search", ToolCallID: "call_1", Content: "[]"},
		},
	}

	contents, config := translateRequest(req)

	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be terse" {
		t.Error("system message must become the system instruction")
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("user message role = %q", contents[0].Role)
	}
	assist := contents[1]
	if assist.Role != genai.RoleModel || len(assist.Parts) != 2 {
		t.Fatalf("assistant turn should carry text + function call, got %+v", assist)
	}
	if assist.Parts[1].FunctionCall == nil || assist.Parts[1].FunctionCall.Name != "search" {
		t.Error("tool call lost in translation")
	}
	if contents[2].Parts[0].FunctionResponse == nil || contents[2].Parts[0].FunctionResponse.Name != "search" {
		t.Error("tool result must become a function response")
	}
}

func TestTranslateRequestTools(t *testing.T) {
	req := &models.ChatRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "q"}},
		Tools: []models.Tool{{
			Type: "function",
			Function: models.ToolFunction{
				Name:        "search",
				Description: "web search",
				Parameters: models.Parameters{
					Type: "object",
					Properties: map[string]interface{}{
						"query": map[string]interface{}{"type": "string", "description": "the query"},
						"count": map[string]interface{}{"type": "integer"},
					},
					Required: []string{"query"},
				},
			},
		}},
	}

	_, config := translateRequest(req)
	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != 1 {
		t.Fatal("tool declarations missing")
	}
	decl := config.Tools[0].FunctionDeclarations[0]
	if decl.Name != "search" {
		t.Errorf("name = %q", decl.Name)
	}
	if decl.Parameters.Properties["query"].Type != genai.TypeString {
		t.Error("query type lost")
	}
	if decl.Parameters.Properties["count"].Type != genai.TypeInteger {
		t.Error("count type lost")
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "query" {
		t.Error("required list lost")
	}
}

func TestTranslateResponse(t *testing.T) {
	result := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "checking "},
					{FunctionCall: &genai.FunctionCall{Name: "search", Args: map[string]any{"query": "x"}}},
				},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 4,
			TotalTokenCount:      14,
		},
	}

	resp := translateResponse("gemini-2.0-flash", result)

	if resp.Usage == nil || resp.Usage.TotalTokens != 14 {
		t.Errorf("usage lost: %+v", resp.Usage)
	}
	choice := resp.FirstChoice()
	if choice == nil {
		t.Fatal("no choice")
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(choice.Message.ToolCalls))
	}
	tc := choice.Message.ToolCalls[0]
	if tc.ID == "" || tc.Function.Name != "search" {
		t.Errorf("bad tool call: %+v", tc)
	}
	if tc.Function.Arguments != `{"query":"x"}` {
		t.Errorf("arguments = %q", tc.Function.Arguments)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "tool_calls" {
		t.Error("finish reason should be tool_calls")
	}
}

func TestTranslateResponseTextOnly(t *testing.T) {
	result := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "plain answer"}}},
		}},
	}
	resp := translateResponse("gemini-2.0-flash", result)
	choice := resp.FirstChoice()
	if choice.Message.Content != "plain answer" {
		t.Errorf("content = %q", choice.Message.Content)
	}
	if *choice.FinishReason != "stop" {
		t.Error("finish reason should be stop")
	}
}
