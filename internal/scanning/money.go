package scanning

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var currencyNoise = strings.NewReplacer("₼", "", "AZN", "", "azn", "", "$", "", " ", "", " ", "")

// parseAmount reads a decimal amount that may use a comma separator.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = currencyNoise.Replace(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// amountOf reads a JSON number or numeric string.
func amountOf(r gjson.Result) (decimal.Decimal, bool) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromFloat(r.Float()), true
	case gjson.String:
		return parseAmount(r.String())
	default:
		return decimal.Zero, false
	}
}

func sumItems(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price))
	}
	return sum.Round(2)
}
