package insights

// PriceBaseline chooses the price a latest purchase is compared against.
type PriceBaseline func(latest, previous Purchase) float64

// heuristicRatio is the share of the latest price assumed as the previous
// price when no real history is tracked.
const heuristicRatio = 0.9

// HeuristicBaseline approximates the previous price as 90% of the latest one.
// It has no historical basis; HistoricalBaseline uses recorded prices instead.
func HeuristicBaseline(latest, _ Purchase) float64 {
	return latest.Price * heuristicRatio
}

// HistoricalBaseline compares against the price actually paid last time.
func HistoricalBaseline(_, previous Purchase) float64 {
	return previous.Price
}
