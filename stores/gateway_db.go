package stores

import (
	"errors"
	"fmt"

	models "github.com/Desarso/toolgate/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gatewayDB holds the gorm-backed operations shared by every driver. The
// driver-specific stores embed it and supply Connect.
type gatewayDB struct {
	db *gorm.DB
}

func (g *gatewayDB) migrate() error {
	return g.db.AutoMigrate(
		&PricingRecord{},
		&PriceChange{},
		&UserMarkupPolicy{},
		&UsageRecord{},
	)
}

// ActivePricing returns every active record for the pair, newest effective
// date first. The resolver picks the applicable one for a request date.
func (g *gatewayDB) ActivePricing(provider, model string) ([]PricingRecord, error) {
	if g.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	var records []PricingRecord
	err := g.db.
		Where("provider = ? AND model_name = ? AND active = ?", provider, model, true).
		Order("effective_date DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing for %s/%s: %w", provider, model, err)
	}
	return records, nil
}

func (g *gatewayDB) AllActivePricing() ([]PricingRecord, error) {
	if g.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	var records []PricingRecord
	err := g.db.
		Where("active = ?", true).
		Order("provider, model_name, effective_date DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}
	return records, nil
}

// SavePricing inserts a new pricing record and its audit entry in one
// transaction. Existing records are left in place; resolution by effective
// date makes the new record authoritative.
func (g *gatewayDB) SavePricing(rec *PricingRecord, changedBy string) error {
	if g.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to save pricing record: %w", err)
		}
		change := PriceChange{
			Provider:         rec.Provider,
			ModelName:        rec.ModelName,
			InputPricePer1K:  rec.InputPricePer1K,
			OutputPricePer1K: rec.OutputPricePer1K,
			Currency:         rec.Currency,
			EffectiveDate:    rec.EffectiveDate,
			ChangedBy:        changedBy,
		}
		if err := tx.Create(&change).Error; err != nil {
			return fmt.Errorf("failed to save price change audit entry: %w", err)
		}
		return nil
	})
}

// MarkupPolicy returns the active policy for (user, model), or nil when the
// user has none.
func (g *gatewayDB) MarkupPolicy(userID, model string) (*UserMarkupPolicy, error) {
	if g.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	var policy UserMarkupPolicy
	err := g.db.
		Where("user_id = ? AND model_name = ? AND active = ?", userID, model, true).
		First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load markup policy for %s/%s: %w", userID, model, err)
	}
	return &policy, nil
}

func (g *gatewayDB) SaveMarkupPolicy(policy *UserMarkupPolicy) error {
	if g.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	err := g.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "model_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"markup_rate", "fixed_markup", "active", "updated_at",
		}),
	}).Create(policy).Error
	if err != nil {
		return fmt.Errorf("failed to save markup policy: %w", err)
	}
	return nil
}

// RecordUsage persists the usage record at most once per request ID. A
// duplicate write is reported as models.ErrMeteringConflict and leaves the
// stored record untouched.
func (g *gatewayDB) RecordUsage(rec *UsageRecord) error {
	if g.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	result := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("failed to record usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrMeteringConflict
	}
	return nil
}

func (g *gatewayDB) ListUsage(userID string, limit int) ([]UsageRecord, error) {
	if g.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	var records []UsageRecord
	err := g.db.
		Where("user_id = ?", userID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list usage for %s: %w", userID, err)
	}
	return records, nil
}

func (g *gatewayDB) Close() error {
	if g.db != nil {
		sqlDB, err := g.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (g *gatewayDB) Ping() error {
	if g.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
