// Package money содержит операции над денежными суммами в центах.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplyRate умножает сумму в центах на ставку и округляет результат
// до целого цента, половина округляется от нуля.
func ApplyRate(amountCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
}

// PointsFor возвращает количество баллов за сумму: целые доллары суммы,
// умноженные на множитель, с отбрасыванием дробной части.
func PointsFor(amountCents int64, multiplier decimal.Decimal) int64 {
	if amountCents <= 0 {
		return 0
	}
	dollars := decimal.NewFromInt(amountCents).Div(hundred).Floor()
	return dollars.Mul(multiplier).Floor().IntPart()
}
