package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// openStatuses are the receivable states that still carry a balance
var openStatuses = []string{"PENDING", "PARTIAL", "OVERDUE"}

// GormReceivableMetricsProvider aggregates the account_receivables table
type GormReceivableMetricsProvider struct {
	db *gorm.DB
}

// NewGormReceivableMetricsProvider creates a GormReceivableMetricsProvider
func NewGormReceivableMetricsProvider(db *gorm.DB) *GormReceivableMetricsProvider {
	return &GormReceivableMetricsProvider{db: db}
}

// OpenReceivablesByStatus counts open receivables per status
func (p *GormReceivableMetricsProvider) OpenReceivablesByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := p.db.WithContext(ctx).
		Table("account_receivables").
		Select("status, COUNT(*) AS total").
		Where("status IN ?", openStatuses).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(openStatuses))
	for _, s := range openStatuses {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// OutstandingByCurrency sums outstanding_amount of open receivables per currency
func (p *GormReceivableMetricsProvider) OutstandingByCurrency(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Currency string
		Total    decimal.Decimal
	}
	err := p.db.WithContext(ctx).
		Table("account_receivables").
		Select("currency, COALESCE(SUM(outstanding_amount), 0) AS total").
		Where("status IN ?", openStatuses).
		Group("currency").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Currency] = r.Total
	}
	return out, nil
}
