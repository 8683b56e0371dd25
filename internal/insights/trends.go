package insights

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zombor/receipt-insights/internal/category"
	"github.com/zombor/receipt-insights/internal/dataset"
)

// TrendPoint is the spend of one week or month
type TrendPoint struct {
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	Total    float64   `json:"total"`
	Receipts int       `json:"receipts"`
}

// CategorySpend is the item spend of one category
type CategorySpend struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Share    float64 `json:"share"`
}

// Prediction forecasts next week's spend
type Prediction struct {
	NextWeekAmount float64 `json:"next_week_amount"`
	Confidence     string  `json:"confidence"`
	Method         string  `json:"method"`
}

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// bucket sums entry totals into consecutive [start, next(start)) ranges
func bucket(entries []dataset.Entry, starts []time.Time, next func(time.Time) time.Time, label string) []TrendPoint {
	sums := make([]decimal.Decimal, len(starts))
	points := make([]TrendPoint, len(starts))
	for i, start := range starts {
		points[i] = TrendPoint{Label: start.Format(label), Start: start}
		sums[i] = decimal.Zero
	}

	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			continue
		}
		for i, start := range starts {
			if e.CreatedAt.Before(start) || !e.CreatedAt.Before(next(start)) {
				continue
			}
			sums[i] = sums[i].Add(decimal.NewFromFloat(e.TotalAmount))
			points[i].Receipts++
			break
		}
	}

	for i := range points {
		points[i].Total = round2(sums[i])
	}
	return points
}

func weeklyTrends(entries []dataset.Entry, now time.Time) []TrendPoint {
	current := weekStart(now)
	starts := make([]time.Time, weeklyBuckets)
	for i := range starts {
		starts[i] = current.AddDate(0, 0, -7*(weeklyBuckets-1-i))
	}
	return bucket(entries, starts, func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }, "Jan 2")
}

func monthlyTrends(entries []dataset.Entry, now time.Time) []TrendPoint {
	current := monthStart(now)
	starts := make([]time.Time, monthlyBuckets)
	for i := range starts {
		starts[i] = current.AddDate(0, -(monthlyBuckets - 1 - i), 0)
	}
	return bucket(entries, starts, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }, "Jan 2006")
}

func categoryBreakdown(entries []dataset.Entry) []CategorySpend {
	var order []string
	sums := make(map[string]decimal.Decimal)
	total := decimal.Zero

	for _, e := range entries {
		for _, item := range e.Items {
			if item.Price <= 0 || isBoilerplate(item.Name) {
				continue
			}
			name := item.Category
			if name == "" {
				name = category.Categorize(item.Name)
			}
			if _, ok := sums[name]; !ok {
				order = append(order, name)
			}
			price := decimal.NewFromFloat(item.Price)
			sums[name] = sums[name].Add(price)
			total = total.Add(price)
		}
	}

	out := make([]CategorySpend, 0, len(order))
	for _, name := range order {
		share := 0.0
		if total.IsPositive() {
			share = sums[name].Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		out = append(out, CategorySpend{Category: name, Amount: round2(sums[name]), Share: share})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// predictNextWeek projects the weekly series one step ahead. Weeks before
// the first purchase are ignored. Three or more weeks use a least-squares
// line; fewer fall back to the average of the weeks with spend.
func predictNextWeek(weekly []TrendPoint) Prediction {
	first := -1
	for i, p := range weekly {
		if p.Receipts > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return Prediction{Confidence: ConfidenceLow, Method: "none"}
	}

	series := make([]float64, 0, len(weekly)-first)
	for _, p := range weekly[first:] {
		series = append(series, p.Total)
	}

	var active []float64
	for _, v := range series {
		if v > 0 {
			active = append(active, v)
		}
	}
	if len(active) == 0 {
		return Prediction{Confidence: ConfidenceLow, Method: "none"}
	}
	mean, stddev := meanStddev(active)

	if len(series) < 3 {
		return Prediction{NextWeekAmount: roundFloat(mean), Confidence: ConfidenceLow, Method: "average"}
	}

	slope, intercept := linearFit(series)
	next := intercept + slope*float64(len(series))
	if next < 0 {
		next = 0
	}

	confidence := ConfidenceMedium
	if len(active) >= 6 && mean > 0 && stddev/mean < 0.35 {
		confidence = ConfidenceHigh
	} else if len(active) < 3 {
		confidence = ConfidenceLow
	}
	return Prediction{NextWeekAmount: roundFloat(next), Confidence: confidence, Method: "linear_trend"}
}

func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// linearFit returns the least-squares slope and intercept over x = 0..n-1
func linearFit(ys []float64) (float64, float64) {
	n := float64(len(ys))
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, sy / n
	}
	slope := (n*sxy - sx*sy) / denom
	return slope, (sy - slope*sx) / n
}
