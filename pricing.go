package toolgate

import (
	"fmt"
	"log"
	"sync"
	"time"

	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/stores"
	"github.com/robfig/cron/v3"
)

// ResolvedPrice is the effective unit price used for cost computation.
// Resolved is false when no pricing record matched; costs then default to
// zero rather than failing the request.
type ResolvedPrice struct {
	InputPer1K  float64
	OutputPer1K float64
	Currency    string
	Resolved    bool
}

// PricingResolver answers price lookups from an in-memory table refreshed
// from the store on a cron schedule. Administrative writes land in the
// store; readers see them after the next refresh, never a half-updated
// table.
type PricingResolver struct {
	store  stores.GatewayStore
	logger *log.Logger

	mu    sync.RWMutex
	table map[string][]stores.PricingRecord // provider/model -> active records

	cron *cron.Cron
}

func NewPricingResolver(store stores.GatewayStore, logger *log.Logger) (*PricingResolver, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &PricingResolver{
		store:  store,
		logger: logger,
		table:  map[string][]stores.PricingRecord{},
	}
	if err := r.Refresh(); err != nil {
		return nil, fmt.Errorf("initial pricing load failed: %w", err)
	}
	return r, nil
}

// StartRefresh begins periodic reloads. schedule is a cron expression, e.g.
// "@every 5m".
func (r *PricingResolver) StartRefresh(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.Refresh(); err != nil {
			r.logger.Printf("pricing refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid pricing refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// StopRefresh stops the periodic reloads, waiting for a running one.
func (r *PricingResolver) StopRefresh() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Refresh reloads the whole table from the store and swaps it in one step.
func (r *PricingResolver) Refresh() error {
	records, err := r.store.AllActivePricing()
	if err != nil {
		return err
	}
	table := make(map[string][]stores.PricingRecord)
	for _, rec := range records {
		key := priceKey(rec.Provider, rec.ModelName)
		table[key] = append(table[key], rec)
	}

	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
	return nil
}

// Resolve selects the active record with the greatest effective date not
// after at. When nothing matches it returns a zero price together with a
// PriceUnresolvedError; callers log the error and keep going.
func (r *PricingResolver) Resolve(provider, model string, at time.Time) (ResolvedPrice, error) {
	r.mu.RLock()
	records := r.table[priceKey(provider, model)]
	r.mu.RUnlock()

	var best *stores.PricingRecord
	for i := range records {
		rec := &records[i]
		if rec.EffectiveDate.After(at) {
			continue
		}
		if best == nil || rec.EffectiveDate.After(best.EffectiveDate) {
			best = rec
		}
	}
	if best == nil {
		return ResolvedPrice{Currency: "USD"}, &models.PriceUnresolvedError{Model: model}
	}
	currency := best.Currency
	if currency == "" {
		currency = "USD"
	}
	return ResolvedPrice{
		InputPer1K:  best.InputPricePer1K,
		OutputPer1K: best.OutputPricePer1K,
		Currency:    currency,
		Resolved:    true,
	}, nil
}

// ApplyMarkup layers a user's policy on top of the base price:
// effective = base * markup_rate + fixed_markup. A nil policy is identity.
func ApplyMarkup(price ResolvedPrice, policy *stores.UserMarkupPolicy) ResolvedPrice {
	if policy == nil {
		return price
	}
	rate := policy.MarkupRate
	if rate == 0 {
		rate = 1.0
	}
	price.InputPer1K = price.InputPer1K*rate + policy.FixedMarkup
	price.OutputPer1K = price.OutputPer1K*rate + policy.FixedMarkup
	return price
}

func priceKey(provider, model string) string {
	return provider + "/" + model
}
