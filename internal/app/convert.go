package app

import "github.com/shopspring/decimal"

// decimalFromFloat turns an env-sourced float64 tunable into the decimal
// type every money/ratio field uses internally.
func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
