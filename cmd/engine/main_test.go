package main

import (
	"testing"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestAccountCodes(t *testing.T) {
	codes := accountCodes(config.EngineConfig{
		MethodAccounts: map[string]string{
			"transfer": "1046",
			"bitcoin":  "1099",
			"yape":     "",
		},
		ReceivableAccount: "1212",
	})

	defaults := finance.DefaultAccountCodes()
	assert.Equal(t, "1046", codes.CashAccountFor(finance.PaymentMethodTransfer))
	assert.Equal(t, defaults.Methods[finance.PaymentMethodYape], codes.CashAccountFor(finance.PaymentMethodYape))
	assert.NotContains(t, codes.Methods, finance.PaymentMethod("BITCOIN"))
	assert.Equal(t, "1212", codes.ReceivableControl)
	assert.Equal(t, defaults.SalesRevenue, codes.SalesRevenue)
	assert.Equal(t, defaults.DefaultCash, codes.DefaultCash)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
