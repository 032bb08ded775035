package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1/chat/completions"
	DefaultModel   = "gpt-4o-mini"
)

func init() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Client talks to any OpenAI-compatible chat completions endpoint. The
// zero value targets api.openai.com with OPENAI_API_KEY; set BaseURL and
// APIKeyEnv to point it at Groq, OpenRouter, or a local server.
type Client struct {
	Model      string
	BaseURL    string
	APIKeyEnv  string
	HTTPClient *http.Client

	breaker *gobreaker.CircuitBreaker[*models.ChatResponse]
}

// NewClient builds a client with a circuit breaker in front of the endpoint.
// After five consecutive failures the circuit opens for thirty seconds and
// calls fail fast without touching the network.
func NewClient(model, baseURL, apiKeyEnv string) *Client {
	c := &Client{
		Model:      model,
		BaseURL:    baseURL,
		APIKeyEnv:  apiKeyEnv,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
	c.breaker = gobreaker.NewCircuitBreaker[*models.ChatResponse](gobreaker.Settings{
		Name:        "openai:" + c.endpoint(),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	})
	return c
}

func (c *Client) endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) apiKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	return os.Getenv(env)
}

// Complete implements models.Completer. Transient failures (connection
// errors, 429, 5xx) are retried once before surfacing; every attempt runs
// through the circuit breaker.
func (c *Client) Complete(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	resp, err := c.execute(ctx, req)
	if err == nil {
		return resp, nil
	}

	var upstream *models.UpstreamError
	if errors.As(err, &upstream) && upstream.Retryable() && ctx.Err() == nil {
		log.Printf("retrying provider request after transient failure: %v", err)
		return c.execute(ctx, req)
	}
	return nil, err
}

func (c *Client) execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if c.breaker == nil {
		return c.makeRequest(ctx, req)
	}
	resp, err := c.breaker.Execute(func() (*models.ChatResponse, error) {
		return c.makeRequest(ctx, req)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &models.UpstreamError{Provider: "openai", Message: "circuit open", Err: err}
	}
	return resp, err
}

func (c *Client) makeRequest(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	body := *req
	if body.Model == "" {
		body.Model = c.Model
	}
	if body.Model == "" {
		body.Model = DefaultModel
	}

	jsonBytes, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(), bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &models.UpstreamError{Provider: "openai", Message: "HTTP request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.UpstreamError{Provider: "openai", Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &models.UpstreamError{
				Provider: "openai",
				Status:   resp.StatusCode,
				Message:  fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type),
			}
		}
		return nil, &models.UpstreamError{
			Provider: "openai",
			Status:   resp.StatusCode,
			Message:  string(respBody),
		}
	}

	var response models.ChatResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &models.UpstreamError{Provider: "openai", Message: "failed to unmarshal response", Err: err}
	}
	return &response, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

var _ models.Completer = (*Client)(nil)
