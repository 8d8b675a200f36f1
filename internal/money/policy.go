// Package money holds the pure pricing policy for tuition settlement.
// All amounts are currency minor units; nothing in here touches storage.
package money

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Discount returns floor(base * percent / 100). The floor keeps scholarship
// math exact in minor units regardless of the percent applied.
func Discount(base int64, percent int) (int64, error) {
	if base < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "base amount must not be negative")
	}
	if percent < 0 || percent > 100 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "scholarship percent must be between 0 and 100")
	}
	discount := decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(hundred).
		Floor()
	return discount.IntPart(), nil
}

// Final returns max(base - discount, 0).
func Final(base, discount int64) (int64, error) {
	if base < 0 || discount < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative")
	}
	final := base - discount
	if final < 0 {
		final = 0
	}
	return final, nil
}

// Apply computes discount and final amount for a base and scholarship percent.
func Apply(base int64, percent int) (discount, final int64, err error) {
	discount, err = Discount(base, percent)
	if err != nil {
		return 0, 0, err
	}
	final, err = Final(base, discount)
	if err != nil {
		return 0, 0, err
	}
	return discount, final, nil
}
