package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	models "github.com/Desarso/toolgate/models"
)

const (
	defaultPerCallTimeout = 15 * time.Second
	retryBackoff          = 500 * time.Millisecond
	maxRetries            = 2
)

// Executor runs the tool calls requested by a model round. Calls run
// concurrently; each failure is converted into tool message content so a
// broken tool never aborts the completion.
type Executor struct {
	PerCallTimeout time.Duration
	Logger         *log.Logger
}

func NewExecutor(logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		PerCallTimeout: defaultPerCallTimeout,
		Logger:         logger,
	}
}

// ExecuteAll runs every call against the pinned snapshot and returns one
// tool message per call, in the order the model requested them. The ctx
// deadline bounds the whole batch; calls still running when it expires
// report a timeout result.
func (e *Executor) ExecuteAll(ctx context.Context, snap *Snapshot, calls []models.ToolCall) []models.ChatMessage {
	results := make([]models.ChatMessage, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, snap, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) executeOne(ctx context.Context, snap *Snapshot, call models.ToolCall) models.ChatMessage {
	name := call.Function.Name
	msg := models.ChatMessage{
		Role:       "tool",
		ToolCallID: call.ID,
		Name:       name,
	}

	content, err := e.run(ctx, snap, call)
	if err != nil {
		e.Logger.Printf("tool %s (call %s) failed: %v", name, call.ID, err)
		content = fmt.Sprintf("Error executing function %s: %s", name, err.Error())
	}
	msg.Content = content
	return msg
}

func (e *Executor) run(ctx context.Context, snap *Snapshot, call models.ToolCall) (string, error) {
	name := call.Function.Name

	decl, fn, ok := snap.Lookup(name)
	if !ok {
		return "", &models.UnknownToolError{Tool: name}
	}

	args := map[string]interface{}{}
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", &models.ValidationError{Tool: name, Reason: "arguments are not valid JSON"}
		}
	}

	if err := validateArgs(name, decl.Parameters, args); err != nil {
		return "", err
	}

	timeout := e.PerCallTimeout
	if timeout <= 0 {
		timeout = defaultPerCallTimeout
	}

	result, err := e.invoke(ctx, fn, args, timeout)
	backoff := retryBackoff
	for retry := 0; retry < maxRetries; retry++ {
		var transient *models.TransientToolError
		if !errors.As(err, &transient) || ctx.Err() != nil {
			break
		}
		e.Logger.Printf("tool %s transient failure, retrying: %v", name, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
		result, err = e.invoke(ctx, fn, args, timeout)
	}
	return result, err
}

func (e *Executor) invoke(ctx context.Context, fn Func, args map[string]interface{}, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx, args)
}

// validateArgs checks the unmarshaled arguments against the declaration's
// JSON Schema: required fields must be present, and present fields must
// match their declared type.
func validateArgs(tool string, params models.Parameters, args map[string]interface{}) error {
	for _, field := range params.Required {
		if _, ok := args[field]; !ok {
			return &models.ValidationError{Tool: tool, Field: field, Reason: "required field missing"}
		}
	}
	for field, value := range args {
		raw, ok := params.Properties[field]
		if !ok {
			continue // unknown fields pass through untouched
		}
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		declared, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if !matchesType(declared, value) {
			return &models.ValidationError{
				Tool:   tool,
				Field:  field,
				Reason: fmt.Sprintf("expected %s, got %T", declared, value),
			}
		}
	}
	return nil
}

func matchesType(declared string, value interface{}) bool {
	if value == nil {
		return true
	}
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	}
	return true
}
