// Package insights derives spend analytics from the purchase dataset.
//
// Build is a pure function of the entries, the current time and the
// promotions catalog; nothing is cached or persisted.
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zombor/receipt-insights/internal/category"
	"github.com/zombor/receipt-insights/internal/dataset"
)

const (
	topProductLimit     = 5
	priceAlertLimit     = 4
	replenishmentLimit  = 4
	promotionMatchLimit = 5
	smartPlanLimit      = 4

	monthlyWindow      = 30 * 24 * time.Hour
	minAlertGap        = 12 * time.Hour
	alertThreshold     = 8.0
	minRestockPurchase = 3
	restockHorizonDays = 5
	weeklyBuckets      = 8
	monthlyBuckets     = 6
)

// ProductCount is one of the most frequently bought products
type ProductCount struct {
	Name      string  `json:"name"`
	Count     int     `json:"count"`
	LastPrice float64 `json:"last_price"`
}

// PriceAlert flags a product whose price moved noticeably
type PriceAlert struct {
	Name          string  `json:"name"`
	PreviousPrice float64 `json:"previous_price"`
	CurrentPrice  float64 `json:"current_price"`
	ChangePercent float64 `json:"change_percent"`
	Direction     string  `json:"direction"` // "up" or "down"
}

// Replenishment predicts when a regularly bought product runs out
type Replenishment struct {
	Name                string    `json:"name"`
	AverageIntervalDays float64   `json:"average_interval_days"`
	LastPurchased       time.Time `json:"last_purchased"`
	NextDue             time.Time `json:"next_due"`
	DaysUntilDue        int       `json:"days_until_due"`
}

// PlanCard is one actionable smart-plan card
type PlanCard struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Result holds every derived insight
type Result struct {
	TopProducts        []ProductCount     `json:"top_products"`
	MonthlySpend       float64            `json:"monthly_spend"`
	PriceAlerts        []PriceAlert       `json:"price_alerts"`
	Replenishment      []Replenishment    `json:"replenishment"`
	PromotionMatches   []PromotionMatch   `json:"promotion_matches"`
	SmartPlan          []PlanCard         `json:"smart_plan"`
	WeeklyTrends       []TrendPoint       `json:"weekly_trends"`
	MonthlyTrends      []TrendPoint       `json:"monthly_trends"`
	CategoryBreakdown  []CategorySpend    `json:"category_breakdown"`
	SpendingPrediction Prediction         `json:"spending_prediction"`
	SavingsOpportunity SavingsOpportunity `json:"savings_opportunity"`
}

// Engine computes insights with an injectable clock, catalog and price baseline
type Engine struct {
	Now        func() time.Time
	Promotions []Promotion
	Baseline   PriceBaseline
}

// NewEngine creates an Engine using the wall clock and the heuristic baseline
func NewEngine(promotions []Promotion) *Engine {
	return &Engine{
		Now:        time.Now,
		Promotions: promotions,
		Baseline:   HeuristicBaseline,
	}
}

// Build computes insights at the given time with the default catalog
func Build(entries []dataset.Entry, now time.Time) Result {
	e := &Engine{
		Now:        func() time.Time { return now },
		Promotions: DefaultPromotions(),
		Baseline:   HeuristicBaseline,
	}
	return e.Build(entries)
}

// Build computes every insight for entries. It never panics on odd data:
// zero prices, empty item lists and zero timestamps are simply skipped where
// they cannot contribute.
func (e *Engine) Build(entries []dataset.Entry) Result {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	baseline := e.Baseline
	if baseline == nil {
		baseline = HeuristicBaseline
	}

	products := collectProducts(entries)
	top := topProducts(products)
	monthly := monthlySpend(entries, now)
	replenish := replenishment(products, now)
	matches := matchPromotions(top, e.Promotions, now)
	weekly := weeklyTrends(entries, now)

	return Result{
		TopProducts:        top,
		MonthlySpend:       monthly,
		PriceAlerts:        priceAlerts(products, baseline),
		Replenishment:      replenish,
		PromotionMatches:   matches,
		SmartPlan:          smartPlan(entries, top, monthly, matches, replenish, now),
		WeeklyTrends:       weekly,
		MonthlyTrends:      monthlyTrends(entries, now),
		CategoryBreakdown:  categoryBreakdown(entries),
		SpendingPrediction: predictNextWeek(weekly),
		SavingsOpportunity: savingsOpportunity(products, entries),
	}
}

// boilerplateTerms are payment and fiscal words that OCR reads as items.
// They are matched as substrings of the folded item name.
var boilerplateTerms = []string{
	"cash", "bonus", "prepayment", "credit", "change", "fiscal", "receipt",
	"nagd", "avans", "ilkin odenis", "kredit", "qaliq", "fiskal", "qebz",
	"visa", "mastercard", "maestro", "amex",
}

func isBoilerplate(name string) bool {
	folded := category.Fold(name)
	for _, term := range boilerplateTerms {
		if strings.Contains(folded, term) {
			return true
		}
	}
	return false
}

// Purchase is one dated purchase of a product
type Purchase struct {
	Price float64
	At    time.Time
}

type productStats struct {
	name      string
	count     int
	lastPrice float64
	prices    []float64
	purchases []Purchase // one per entry, input order
}

// collectProducts groups items by trimmed, case-sensitive name in first-seen order.
func collectProducts(entries []dataset.Entry) []*productStats {
	var order []*productStats
	index := make(map[string]*productStats)

	for _, entry := range entries {
		seenInEntry := make(map[string]int)
		for _, item := range entry.Items {
			name := strings.TrimSpace(item.Name)
			if name == "" || isBoilerplate(name) {
				continue
			}
			p, ok := index[name]
			if !ok {
				p = &productStats{name: name}
				index[name] = p
				order = append(order, p)
			}
			p.count++
			p.lastPrice = item.Price
			p.prices = append(p.prices, item.Price)

			if entry.CreatedAt.IsZero() {
				continue
			}
			if i, dup := seenInEntry[name]; dup {
				p.purchases[i].Price = item.Price
				continue
			}
			seenInEntry[name] = len(p.purchases)
			p.purchases = append(p.purchases, Purchase{Price: item.Price, At: entry.CreatedAt})
		}
	}
	return order
}

func topProducts(products []*productStats) []ProductCount {
	ranked := make([]*productStats, len(products))
	copy(ranked, products)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].count > ranked[j].count
	})

	top := make([]ProductCount, 0, topProductLimit)
	for _, p := range ranked {
		if len(top) == topProductLimit {
			break
		}
		top = append(top, ProductCount{Name: p.name, Count: p.count, LastPrice: p.lastPrice})
	}
	return top
}

func monthlySpend(entries []dataset.Entry, now time.Time) float64 {
	cutoff := now.Add(-monthlyWindow)
	sum := decimal.Zero
	for _, e := range entries {
		if e.CreatedAt.IsZero() || e.CreatedAt.Before(cutoff) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(e.TotalAmount))
	}
	return round2(sum)
}

// newestFirst returns the purchases sorted by time, most recent first
func newestFirst(purchases []Purchase) []Purchase {
	sorted := make([]Purchase, len(purchases))
	copy(sorted, purchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.After(sorted[j].At)
	})
	return sorted
}

func priceAlerts(products []*productStats, baseline PriceBaseline) []PriceAlert {
	alerts := make([]PriceAlert, 0, priceAlertLimit)
	for _, p := range products {
		if len(alerts) == priceAlertLimit {
			break
		}
		if len(p.purchases) < 2 {
			continue
		}
		sorted := newestFirst(p.purchases)
		latest, previous := sorted[0], sorted[1]
		if latest.At.Sub(previous.At) < minAlertGap {
			continue
		}

		before := baseline(latest, previous)
		if before <= 0 {
			continue
		}
		change := (latest.Price - before) / before * 100
		if change < alertThreshold && change > -alertThreshold {
			continue
		}

		direction := "up"
		if change < 0 {
			direction = "down"
		}
		alerts = append(alerts, PriceAlert{
			Name:          p.name,
			PreviousPrice: roundFloat(before),
			CurrentPrice:  roundFloat(latest.Price),
			ChangePercent: roundFloat(change),
			Direction:     direction,
		})
	}
	return alerts
}

func replenishment(products []*productStats, now time.Time) []Replenishment {
	out := make([]Replenishment, 0, replenishmentLimit)
	for _, p := range products {
		if len(out) == replenishmentLimit {
			break
		}
		if len(p.purchases) < minRestockPurchase {
			continue
		}
		sorted := newestFirst(p.purchases)
		last, first := sorted[0].At, sorted[len(sorted)-1].At
		interval := last.Sub(first) / time.Duration(len(sorted)-1)
		if interval <= 0 {
			continue
		}

		next := last.Add(interval)
		days := int(math.Ceil(next.Sub(now).Hours() / 24))
		if days < 0 {
			days = 0
		}
		if days > restockHorizonDays {
			continue
		}

		out = append(out, Replenishment{
			Name:                p.name,
			AverageIntervalDays: roundFloat(interval.Hours() / 24),
			LastPurchased:       last,
			NextDue:             next,
			DaysUntilDue:        days,
		})
	}
	return out
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func roundFloat(f float64) float64 {
	return round2(decimal.NewFromFloat(f))
}
