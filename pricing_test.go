package toolgate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
)

func testStore(t *testing.T) stores.GatewayStore {
	t.Helper()
	store, err := stores.NewSQLiteStoreSimple(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedPricing(t *testing.T, store stores.GatewayStore, provider, model string, in, out float64, effective string) {
	t.Helper()
	err := store.SavePricing(&stores.PricingRecord{
		Provider:         provider,
		ModelName:        model,
		InputPricePer1K:  in,
		OutputPricePer1K: out,
		Currency:         "USD",
		EffectiveDate:    date(effective),
		Active:           true,
	}, "test")
	if err != nil {
		t.Fatal(err)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestResolvePicksLatestEffective(t *testing.T) {
	store := testStore(t)
	seedPricing(t, store, "openai", "gpt-4", 0.03, 0.06, "2024-01-01")
	seedPricing(t, store, "openai", "gpt-4", 0.02, 0.04, "2024-05-01")
	seedPricing(t, store, "openai", "gpt-4", 0.01, 0.02, "2030-01-01") // future, must be ignored

	r, err := NewPricingResolver(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	price, err := r.Resolve("openai", "gpt-4", date("2024-06-01"))
	if err != nil {
		t.Fatal(err)
	}
	if !price.Resolved {
		t.Fatal("expected price to resolve")
	}
	if !approx(price.InputPer1K, 0.02) || !approx(price.OutputPer1K, 0.04) {
		t.Errorf("expected May record, got %+v", price)
	}

	// deterministic across calls
	again, _ := r.Resolve("openai", "gpt-4", date("2024-06-01"))
	if again != price {
		t.Error("resolution must be deterministic")
	}
}

func TestResolveUnresolvedDefaultsToZero(t *testing.T) {
	store := testStore(t)
	r, err := NewPricingResolver(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	price, err := r.Resolve("openai", "unknown-model", time.Now())
	var unresolved *models.PriceUnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected PriceUnresolvedError, got %v", err)
	}
	if price.Resolved || price.InputPer1K != 0 || price.OutputPer1K != 0 {
		t.Errorf("unresolved price must be zero, got %+v", price)
	}
}

func TestResolveSeesRefresh(t *testing.T) {
	store := testStore(t)
	r, err := NewPricingResolver(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	seedPricing(t, store, "openai", "gpt-4", 0.03, 0.06, "2024-01-01")

	// not visible until refresh
	if _, err := r.Resolve("openai", "gpt-4", date("2024-06-01")); err == nil {
		t.Error("expected unresolved before refresh")
	}
	if err := r.Refresh(); err != nil {
		t.Fatal(err)
	}
	price, err := r.Resolve("openai", "gpt-4", date("2024-06-01"))
	if err != nil || !price.Resolved {
		t.Errorf("expected resolved price after refresh, got %+v (%v)", price, err)
	}
}

func TestApplyMarkup(t *testing.T) {
	base := ResolvedPrice{InputPer1K: 0.03, OutputPer1K: 0.06, Currency: "USD", Resolved: true}

	if got := ApplyMarkup(base, nil); got != base {
		t.Errorf("nil policy must be identity, got %+v", got)
	}

	marked := ApplyMarkup(base, &stores.UserMarkupPolicy{MarkupRate: 1.2})
	if !approx(marked.InputPer1K, 0.036) || !approx(marked.OutputPer1K, 0.072) {
		t.Errorf("rate 1.2: got %+v", marked)
	}

	fixed := ApplyMarkup(base, &stores.UserMarkupPolicy{MarkupRate: 1.0, FixedMarkup: 0.01})
	if !approx(fixed.InputPer1K, 0.04) || !approx(fixed.OutputPer1K, 0.07) {
		t.Errorf("fixed markup: got %+v", fixed)
	}

	// zero rate means the default 1.0, not a free ride
	zeroRate := ApplyMarkup(base, &stores.UserMarkupPolicy{})
	if !approx(zeroRate.InputPer1K, 0.03) {
		t.Errorf("zero rate should default to 1.0, got %+v", zeroRate)
	}
}

func TestSavePricingWritesAudit(t *testing.T) {
	store := testStore(t)
	seedPricing(t, store, "openai", "gpt-4", 0.03, 0.06, "2024-01-01")
	seedPricing(t, store, "openai", "gpt-4", 0.02, 0.04, "2024-05-01")

	records, err := store.ActivePricing("openai", "gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("superseded records must be kept, got %d", len(records))
	}
}
