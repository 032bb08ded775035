package stores

import (
	"time"

	"gorm.io/gorm"
)

// PricingRecord is one versioned price for a (provider, model) pair. Records
// are never deleted; a new record with a later effective date supersedes the
// old one, and every write leaves a PriceChange entry behind.
type PricingRecord struct {
	gorm.Model
	Provider         string    `gorm:"index:idx_provider_model;not null"`
	ModelName        string    `gorm:"index:idx_provider_model;not null"`
	ModelVersion     string    `gorm:"default:''"`
	InputPricePer1K  float64   `gorm:"not null"` // price per 1000 input tokens
	OutputPricePer1K float64   `gorm:"not null"` // price per 1000 output tokens
	Currency         string    `gorm:"default:'USD'"`
	EffectiveDate    time.Time `gorm:"index;not null"`
	Active           bool      `gorm:"default:true"`
}

// PriceChange is the append-only audit trail: one entry per pricing write.
type PriceChange struct {
	gorm.Model
	Provider         string  `gorm:"index;not null"`
	ModelName        string  `gorm:"index;not null"`
	InputPricePer1K  float64 `gorm:"not null"`
	OutputPricePer1K float64 `gorm:"not null"`
	Currency         string
	EffectiveDate    time.Time
	ChangedBy        string
}

// UserMarkupPolicy adjusts the base price for one user and model. At most
// one active policy exists per (user, model).
type UserMarkupPolicy struct {
	gorm.Model
	UserID      string  `gorm:"uniqueIndex:idx_user_model;not null"`
	ModelName   string  `gorm:"uniqueIndex:idx_user_model;not null"`
	MarkupRate  float64 `gorm:"default:1.0"` // multiplicative
	FixedMarkup float64 `gorm:"default:0"`   // additive, per 1000 tokens
	Active      bool    `gorm:"default:true"`
}

// UsageRecord is the immutable accounting entry for one completed request.
// RequestID carries a unique index so a retried write cannot double-charge.
type UsageRecord struct {
	gorm.Model
	RequestID        string  `gorm:"uniqueIndex;not null"`
	UserID           string  `gorm:"index;not null"`
	ModelName        string  `gorm:"not null"`
	InputTokens      int     `gorm:"not null"`
	OutputTokens     int     `gorm:"not null"`
	InputUnitPrice   float64 // effective price per 1000 tokens, markup applied
	OutputUnitPrice  float64
	InputCost        float64
	OutputCost       float64
	TotalCost        float64
	Currency         string `gorm:"default:'USD'"`
	EstimatedTokens  bool   // true when counts came from the local tokenizer
	RecordedAt       time.Time
}

// GatewayStore abstracts pricing and usage persistence.
type GatewayStore interface {
	// Pricing operations
	ActivePricing(provider, model string) ([]PricingRecord, error)
	AllActivePricing() ([]PricingRecord, error)
	SavePricing(rec *PricingRecord, changedBy string) error

	// Markup operations
	MarkupPolicy(userID, model string) (*UserMarkupPolicy, error)
	SaveMarkupPolicy(policy *UserMarkupPolicy) error

	// Usage operations
	RecordUsage(rec *UsageRecord) error
	ListUsage(userID string, limit int) ([]UsageRecord, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
