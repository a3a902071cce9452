package sales

import (
	"context"

	"github.com/google/uuid"
)

// ContractRepository reads sales contracts
type ContractRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Contract, error)
	// FindActiveWithoutSchedule returns active contracts that have no
	// payment schedule rows yet, oldest first. limit <= 0 means no limit.
	FindActiveWithoutSchedule(ctx context.Context, limit int) ([]Contract, error)
}

// LotRepository reads lots
type LotRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Lot, error)
}

// PricingRepository reads pricing templates and zone financing rules
type PricingRepository interface {
	FindTemplateByID(ctx context.Context, id uuid.UUID) (*FinancialTemplate, error)
	FindTemplateByLot(ctx context.Context, lotID uuid.UUID) (*FinancialTemplate, error)
	// FindRuleByZone returns shared.ErrNotFound when the zone has no rule
	FindRuleByZone(ctx context.Context, zoneID uuid.UUID) (*FinancingRule, error)
}
