package insights

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zombor/receipt-insights/internal/dataset"
)

// bulkSavingRate is the assumed saving from buying the priciest repeat
// purchase in bulk or on promotion.
var bulkSavingRate = decimal.NewFromFloat(0.10)

// SavingsOpportunity is a potential-savings figure with one recommendation
type SavingsOpportunity struct {
	PotentialSavings float64 `json:"potential_savings"`
	FocusProduct     string  `json:"focus_product,omitempty"`
	Recommendation   string  `json:"recommendation"`
}

// savingsOpportunity adds up what was paid above the cheapest price seen for
// each repeat purchase, plus a bulk saving on the priciest repeat purchase.
func savingsOpportunity(products []*productStats, entries []dataset.Entry) SavingsOpportunity {
	var (
		spreadTotal  = decimal.Zero
		widest       *productStats
		widestSpread = decimal.Zero
		widestMin    float64
		priciest     *productStats
		priciestAvg  = decimal.Zero
	)

	for _, p := range products {
		if p.count < 2 {
			continue
		}
		lowest := p.prices[0]
		sum := decimal.Zero
		for _, price := range p.prices {
			if price < lowest {
				lowest = price
			}
			sum = sum.Add(decimal.NewFromFloat(price))
		}

		spread := sum.Sub(decimal.NewFromFloat(lowest).Mul(decimal.NewFromInt(int64(len(p.prices)))))
		spreadTotal = spreadTotal.Add(spread)
		if spread.GreaterThan(widestSpread) {
			widest, widestSpread, widestMin = p, spread, lowest
		}

		avg := sum.Div(decimal.NewFromInt(int64(len(p.prices))))
		if priciest == nil || avg.GreaterThan(priciestAvg) {
			priciest, priciestAvg = p, avg
		}
	}

	potential := spreadTotal
	var bulk decimal.Decimal
	if priciest != nil {
		bulk = priciestAvg.Mul(decimal.NewFromInt(int64(priciest.count))).Mul(bulkSavingRate)
		potential = potential.Add(bulk)
	}

	switch {
	case widest != nil:
		return SavingsOpportunity{
			PotentialSavings: round2(potential),
			FocusProduct:     widest.name,
			Recommendation: fmt.Sprintf("Buy %s at its lowest seen price of %.2f ₼; you have paid %.2f ₼ more than that so far.",
				widest.name, widestMin, round2(widestSpread)),
		}
	case priciest != nil:
		return SavingsOpportunity{
			PotentialSavings: round2(potential),
			FocusProduct:     priciest.name,
			Recommendation: fmt.Sprintf("%s is your priciest repeat purchase; buying it in bulk or on promotion could save about %.2f ₼.",
				priciest.name, round2(bulk)),
		}
	}

	if breakdown := categoryBreakdown(entries); len(breakdown) > 0 {
		return SavingsOpportunity{
			Recommendation: fmt.Sprintf("Most of your spending goes to %s (%.0f%%); compare prices there first.",
				breakdown[0].Category, breakdown[0].Share),
		}
	}
	return SavingsOpportunity{Recommendation: "Scan more receipts to discover savings opportunities."}
}
