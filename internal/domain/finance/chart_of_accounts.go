package finance

import (
	"context"

	"github.com/google/uuid"
)

// PaymentMethod is how a client paid
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodTransfer   PaymentMethod = "TRANSFER"
	PaymentMethodCheck      PaymentMethod = "CHECK"
	PaymentMethodDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodYape       PaymentMethod = "YAPE"
	PaymentMethodPlin       PaymentMethod = "PLIN"
	PaymentMethodOther      PaymentMethod = "OTHER"
)

// IsValid checks if the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCheck, PaymentMethodDebitCard,
		PaymentMethodCreditCard, PaymentMethodYape, PaymentMethodPlin, PaymentMethodOther:
		return true
	}
	return false
}

// AccountType classifies chart-of-accounts entries
type AccountType string

const (
	AccountTypeAsset   AccountType = "ASSET"
	AccountTypeRevenue AccountType = "REVENUE"
)

// Account is a chart-of-accounts row
type Account struct {
	ID   uuid.UUID
	Code string
	Name string
	Type AccountType
}

// SuspenseAccountID receives postings whose configured account code is missing
// from the chart of accounts
var SuspenseAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000999")

// AccountCodes maps ledger roles to chart-of-accounts codes
type AccountCodes struct {
	Methods           map[PaymentMethod]string
	DefaultCash       string
	ReceivableControl string
	SalesRevenue      string
}

// DefaultAccountCodes follows the Peruvian general chart of accounts (PCGE)
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Methods: map[PaymentMethod]string{
			PaymentMethodCash:       "1011",
			PaymentMethodTransfer:   "1041",
			PaymentMethodCheck:      "1031",
			PaymentMethodDebitCard:  "1042",
			PaymentMethodCreditCard: "1043",
			PaymentMethodYape:       "1044",
			PaymentMethodPlin:       "1045",
			PaymentMethodOther:      "1049",
		},
		DefaultCash:       "1011",
		ReceivableControl: "1213",
		SalesRevenue:      "7012",
	}
}

// CashAccountFor returns the cash/bank account code for a payment method
func (c AccountCodes) CashAccountFor(method PaymentMethod) string {
	if code, ok := c.Methods[method]; ok && code != "" {
		return code
	}
	return c.DefaultCash
}

// ChartOfAccounts resolves account codes to account ids
type ChartOfAccounts interface {
	// AccountIDForCode returns shared.ErrNotFound when the code is not configured
	AccountIDForCode(ctx context.Context, code string) (uuid.UUID, error)
}
