package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

func init() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Client adapts the Gemini SDK to the OpenAI-style Completer interface.
// Gemini has its own content/part model, so requests and responses are
// translated at the boundary and the rest of the gateway never sees the
// difference.
type Client struct {
	Model string

	newClient func(ctx context.Context) (*genai.Client, error)
	generate  func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func NewClient(model string) *Client {
	return &Client{
		Model: model,
		newClient: func(ctx context.Context) (*genai.Client, error) {
			return genai.NewClient(ctx, nil)
		},
	}
}

// Complete implements models.Completer. Transient failures are retried once
// before surfacing, like the OpenAI-compatible client.
func (c *Client) Complete(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = DefaultModel
	}

	contents, config := translateRequest(req)

	result, err := c.doGenerate(ctx, model, contents, config)
	if err != nil {
		var upstream *models.UpstreamError
		if errors.As(err, &upstream) && upstream.Retryable() && ctx.Err() == nil {
			log.Printf("retrying gemini request after transient failure: %v", err)
			result, err = c.doGenerate(ctx, model, contents, config)
		}
	}
	if err != nil {
		return nil, err
	}

	return translateResponse(model, result), nil
}

func (c *Client) doGenerate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if c.generate != nil {
		return c.generate(ctx, model, contents, config)
	}
	client, err := c.newClient(ctx)
	if err != nil {
		return nil, &models.UpstreamError{Provider: "gemini", Message: "failed to create client", Err: err}
	}
	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, &models.UpstreamError{Provider: "gemini", Message: "generate content failed", Err: err}
	}
	return result, nil
}

// translateRequest converts OpenAI-style messages into Gemini contents.
// System messages become the system instruction; tool result messages become
// function responses attributed to the tool's name.
func translateRequest(req *models.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}

	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, t := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  paramsToSchema(t.Function.Parameters),
			})
		}
		config.Tools = []*genai.Tool{tool}
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}
		case "assistant":
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case "tool":
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, config
}

// translateResponse converts a Gemini result into an OpenAI-shaped response.
// Gemini does not assign tool call IDs, so fresh ones are minted here; the
// assembler echoes them back on the matching tool messages.
func translateResponse(model string, result *genai.GenerateContentResponse) *models.ChatResponse {
	resp := &models.ChatResponse{
		ID:      "gemini-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}

	if result.UsageMetadata != nil {
		resp.Usage = &models.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	msg := models.ChatMessage{Role: "assistant"}
	var texts []string
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
			if part.FunctionCall != nil {
				argBytes, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					argBytes = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
					ID:   "call_" + uuid.NewString(),
					Type: "function",
					Function: models.ToolCallFunction{
						Name:      part.FunctionCall.Name,
						Arguments: string(argBytes),
					},
				})
			}
		}
	}
	msg.Content = strings.Join(texts, "")

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	resp.Choices = []models.Choice{{Index: 0, Message: msg, FinishReason: &finish}}
	return resp
}

// paramsToSchema maps a JSON Schema parameters object onto the Gemini schema
// type. Only the subset used by tool declarations is covered.
func paramsToSchema(p models.Parameters) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Required:   p.Required,
		Properties: map[string]*genai.Schema{},
	}
	for name, raw := range p.Properties {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		schema.Properties[name] = propertyToSchema(prop)
	}
	return schema
}

func propertyToSchema(prop map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := prop["type"].(string); ok {
		s.Type = schemaType(t)
	}
	if d, ok := prop["description"].(string); ok {
		s.Description = d
	}
	if items, ok := prop["items"].(map[string]interface{}); ok {
		s.Items = propertyToSchema(items)
	}
	if enum, ok := prop["enum"].([]interface{}); ok {
		for _, v := range enum {
			s.Enum = append(s.Enum, fmt.Sprint(v))
		}
	}
	return s
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}

var _ models.Completer = (*Client)(nil)
