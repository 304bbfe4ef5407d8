package shared

import (
	"github.com/shopspring/decimal"
)

// Money columns in the ledger schema are NUMERIC(MoneyPrecision, MoneyScale).
// Amounts that do not fit are refused up front; the database would otherwise
// round them silently or fail the statement.
const (
	MoneyPrecision int32 = 20
	MoneyScale     int32 = 4
)

var maxMoney = decimal.New(1, MoneyPrecision-MoneyScale)

// CheckMoney returns ErrAmountScale or ErrAmountTooLarge when amount cannot be
// stored exactly
func CheckMoney(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return ErrAmountScale
	}
	if amount.Abs().GreaterThanOrEqual(maxMoney) {
		return ErrAmountTooLarge
	}
	return nil
}
