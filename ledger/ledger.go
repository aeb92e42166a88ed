// Package ledger computes the money split for a sale. It is pure: the same
// inputs always produce the same split, and commission + seller amount always
// equals the sale price.
package ledger

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Split returns the platform commission and the seller's net amount for a
// sale price and a commission rate given in percent (e.g. 5.0).
// The commission is rounded half-up to 2 decimal places; the seller amount
// absorbs the rounding remainder so the two always sum to price.
func Split(price decimal.Decimal, ratePercent decimal.Decimal) (commission, sellerAmount decimal.Decimal) {
	commission = price.Mul(ratePercent).Div(hundred).Round(2)
	sellerAmount = price.Sub(commission)
	return commission, sellerAmount
}
