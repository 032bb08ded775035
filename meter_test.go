package toolgate

import (
	"testing"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
)

func markupPolicy(rate, fixed float64) *stores.UserMarkupPolicy {
	return &stores.UserMarkupPolicy{MarkupRate: rate, FixedMarkup: fixed, Active: true}
}

func TestRecordCostMath(t *testing.T) {
	store := testStore(t)
	m := NewUsageMeter(store, nil)

	// 1000 input at 0.03/1K and 500 output at 0.06/1K
	usage := models.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}
	price := ResolvedPrice{InputPer1K: 0.03, OutputPer1K: 0.06, Currency: "USD", Resolved: true}

	rec, err := m.Record("req-1", "user-1", "gpt-4", usage, false, price)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rec.InputCost, 0.03) {
		t.Errorf("input cost = %v, want 0.03", rec.InputCost)
	}
	if !approx(rec.OutputCost, 0.03) {
		t.Errorf("output cost = %v, want 0.03", rec.OutputCost)
	}
	if !approx(rec.TotalCost, 0.06) {
		t.Errorf("total cost = %v, want 0.06", rec.TotalCost)
	}
}

func TestRecordWithMarkup(t *testing.T) {
	store := testStore(t)
	m := NewUsageMeter(store, nil)

	base := ResolvedPrice{InputPer1K: 0.03, OutputPer1K: 0.06, Currency: "USD", Resolved: true}
	marked := ApplyMarkup(base, markupPolicy(1.2, 0))

	usage := models.Usage{PromptTokens: 1000, CompletionTokens: 500}
	rec, err := m.Record("req-markup", "user-1", "gpt-4", usage, false, marked)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rec.InputCost, 0.036) || !approx(rec.OutputCost, 0.036) || !approx(rec.TotalCost, 0.072) {
		t.Errorf("marked-up costs wrong: %+v", rec)
	}
}

func TestRecordIdempotent(t *testing.T) {
	store := testStore(t)
	m := NewUsageMeter(store, nil)

	usage := models.Usage{PromptTokens: 100, CompletionTokens: 50}
	price := ResolvedPrice{InputPer1K: 0.01, OutputPer1K: 0.02, Currency: "USD", Resolved: true}

	if _, err := m.Record("req-dup", "user-1", "gpt-4", usage, false, price); err != nil {
		t.Fatal(err)
	}
	// retried write must not double-charge nor error
	if _, err := m.Record("req-dup", "user-1", "gpt-4", usage, false, price); err != nil {
		t.Fatalf("duplicate record must be silent, got %v", err)
	}

	records, err := store.ListUsage("user-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 persisted record, got %d", len(records))
	}
}

func TestRecordZeroTokens(t *testing.T) {
	store := testStore(t)
	m := NewUsageMeter(store, nil)

	rec, err := m.Record("req-zero", "user-1", "gpt-4", models.Usage{}, false, ResolvedPrice{Currency: "USD"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalCost != 0 {
		t.Errorf("zero usage must cost zero, got %v", rec.TotalCost)
	}
}

func TestRecordRequiresRequestID(t *testing.T) {
	store := testStore(t)
	m := NewUsageMeter(store, nil)
	if _, err := m.Record("", "user-1", "gpt-4", models.Usage{}, false, ResolvedPrice{}); err == nil {
		t.Error("expected error for empty request id")
	}
}

func TestEstimateUsageCountsBothSides(t *testing.T) {
	req := &models.ChatRequest{
		Model: "gpt-4",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "tell me about the history of computing"},
		},
	}
	resp := &models.ChatResponse{
		Choices: []models.Choice{{
			Message: models.ChatMessage{Role: "assistant", Content: "computing has a long history going back to mechanical calculators"},
		}},
	}

	usage := EstimateUsage(req, resp)
	if usage.PromptTokens == 0 {
		t.Error("expected nonzero prompt estimate")
	}
	if usage.CompletionTokens == 0 {
		t.Error("expected nonzero completion estimate")
	}
	if usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Error("total must be the sum of both sides")
	}
}
