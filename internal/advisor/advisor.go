// Package advisor turns computed insights into a short spending summary,
// optionally rewritten by a text generator, and caches the latest one.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/receipt-insights/internal/dataset"
	"github.com/zombor/receipt-insights/internal/insights"
)

// Trend labels
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Summary sources
const (
	SourceRules      = "rules"
	SourceAI         = "ai"
	SourceOnboarding = "onboarding"
)

const (
	maxRecommendations = 3
	trendThreshold     = 0.10
)

// Generator produces free text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summary is the cached advisor output
type Summary struct {
	Headline         string    `json:"headline"`
	BulletPoints     []string  `json:"bullet_points"`
	Recommendations  []string  `json:"recommendations"`
	Timestamp        time.Time `json:"timestamp"`
	SpendingTrend    string    `json:"spending_trend"`
	SavingsTip       string    `json:"savings_tip"`
	WeeklyPrediction *float64  `json:"weekly_prediction,omitempty"`
	Source           string    `json:"source"`
}

// Advisor builds and caches summaries
type Advisor struct {
	generator Generator
	cache     dataset.KV
	engine    *insights.Engine
	now       func() time.Time
}

// New creates an Advisor. generator may be nil, in which case summaries are
// always rule-based. A nil engine uses the wall clock and the built-in
// promotions catalog.
func New(generator Generator, cache dataset.KV, engine *insights.Engine) *Advisor {
	if engine == nil {
		engine = insights.NewEngine(insights.DefaultPromotions())
	}
	now := time.Now
	if engine.Now != nil {
		now = engine.Now
	}
	return &Advisor{
		generator: generator,
		cache:     cache,
		engine:    engine,
		now:       now,
	}
}

// Generate builds a summary for entries and caches it. Generator failures
// fall back to the rule-based summary; the only error returned is a failure
// to write the cache.
func (a *Advisor) Generate(ctx context.Context, entries []dataset.Entry) (*Summary, error) {
	var summary *Summary
	if len(entries) == 0 {
		summary = onboarding(a.now())
	} else {
		result := a.engine.Build(entries)
		summary = ruleBased(result, len(entries), a.now())
		a.rewrite(ctx, summary, result)
	}

	if err := a.cache.Put(dataset.AISummaryKey, summary); err != nil {
		return nil, fmt.Errorf("caching summary: %w", err)
	}
	return summary, nil
}

// Latest returns the cached summary, or nil when none exists
func (a *Advisor) Latest() (*Summary, error) {
	var summary Summary
	found, err := a.cache.Get(dataset.AISummaryKey, &summary)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &summary, nil
}

// Clear removes the cached summary
func (a *Advisor) Clear() error {
	if err := a.cache.Delete(dataset.AISummaryKey); err != nil {
		return fmt.Errorf("clearing summary: %w", err)
	}
	return nil
}

func onboarding(now time.Time) *Summary {
	return &Summary{
		Headline: "Welcome! Scan your first receipt to unlock spending insights.",
		BulletPoints: []string{
			"Scan the QR code on a fiscal receipt or take a photo of it.",
			"Your purchases, prices and categories are tracked automatically.",
		},
		Recommendations: []string{"Scan your first receipt"},
		Timestamp:       now,
		SpendingTrend:   TrendStable,
		SavingsTip:      "Keep every receipt for a week to see where your money goes.",
		Source:          SourceOnboarding,
	}
}

// Trend compares the last two points of the weekly series
func Trend(weekly []insights.TrendPoint) string {
	if len(weekly) < 2 {
		return TrendStable
	}
	prev, last := weekly[len(weekly)-2].Total, weekly[len(weekly)-1].Total
	if prev == 0 {
		if last > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (last - prev) / prev
	switch {
	case change > trendThreshold:
		return TrendIncreasing
	case change < -trendThreshold:
		return TrendDecreasing
	}
	return TrendStable
}

func ruleBased(r insights.Result, receipts int, now time.Time) *Summary {
	trend := Trend(r.WeeklyTrends)

	s := &Summary{
		Headline:      fmt.Sprintf("You spent %.2f ₼ in the last 30 days; weekly spending is %s.", r.MonthlySpend, trend),
		Timestamp:     now,
		SpendingTrend: trend,
		SavingsTip:    r.SavingsOpportunity.Recommendation,
		Source:        SourceRules,
	}

	s.BulletPoints = append(s.BulletPoints, fmt.Sprintf("%d receipts recorded.", receipts))
	if len(r.TopProducts) > 0 {
		p := r.TopProducts[0]
		s.BulletPoints = append(s.BulletPoints, fmt.Sprintf("Most bought: %s (%d times).", p.Name, p.Count))
	}
	if len(r.CategoryBreakdown) > 0 {
		c := r.CategoryBreakdown[0]
		s.BulletPoints = append(s.BulletPoints, fmt.Sprintf("Largest category: %s at %.0f%% of item spend.", c.Category, c.Share))
	}
	if r.SpendingPrediction.Method != "none" {
		amount := r.SpendingPrediction.NextWeekAmount
		s.WeeklyPrediction = &amount
		s.BulletPoints = append(s.BulletPoints, fmt.Sprintf("Next week is forecast at %.2f ₼ (%s confidence).", amount, r.SpendingPrediction.Confidence))
	}

	if r.SavingsOpportunity.PotentialSavings > 0 {
		s.Recommendations = append(s.Recommendations, r.SavingsOpportunity.Recommendation)
	}
	if len(r.PriceAlerts) > 0 {
		alert := r.PriceAlerts[0]
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("Watch the price of %s; it moved %+.1f%%.", alert.Name, alert.ChangePercent))
	}
	if len(r.Replenishment) > 0 {
		due := r.Replenishment[0]
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("Restock %s within %d days.", due.Name, due.DaysUntilDue))
	}
	if len(r.PromotionMatches) > 0 {
		m := r.PromotionMatches[0]
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("Buy %s at %s to save %.2f ₼ before %s.", m.ProductName, m.Promotion.Store, m.DiscountAmount, m.ExpiresAt))
	}
	if len(s.Recommendations) == 0 {
		s.Recommendations = append(s.Recommendations, "Keep scanning receipts to sharpen your insights.")
	}
	if len(s.Recommendations) > maxRecommendations {
		s.Recommendations = s.Recommendations[:maxRecommendations]
	}
	return s
}

// rewrite asks the generator for a headline and bullets and applies them
// when at least one bullet parses.
func (a *Advisor) rewrite(ctx context.Context, s *Summary, r insights.Result) {
	if a.generator == nil {
		return
	}

	text, err := a.generator.Generate(ctx, summaryPrompt(s, r))
	if err != nil {
		slog.Warn("Summary generation failed, using rule-based summary", "error", err)
		return
	}

	headline, bullets := parseGenerated(text)
	if len(bullets) == 0 {
		slog.Debug("Generated summary had no bullets, using rule-based summary")
		return
	}

	if headline != "" {
		s.Headline = headline
	}
	if len(bullets) > maxRecommendations {
		bullets = bullets[:maxRecommendations]
	}
	s.Recommendations = bullets
	s.Source = SourceAI
}

func summaryPrompt(s *Summary, r insights.Result) string {
	var b strings.Builder
	b.WriteString("You are a personal grocery budget advisor. Using only the figures below, write one short headline on the first line, ")
	b.WriteString("then up to 3 practical recommendations, each on its own line starting with \"- \". Currency is AZN (₼). No other text.\n\n")

	fmt.Fprintf(&b, "Spend in the last 30 days: %.2f\n", r.MonthlySpend)
	fmt.Fprintf(&b, "Weekly trend: %s\n", s.SpendingTrend)
	if s.WeeklyPrediction != nil {
		fmt.Fprintf(&b, "Forecast for next week: %.2f (%s confidence)\n", *s.WeeklyPrediction, r.SpendingPrediction.Confidence)
	}
	for _, p := range r.TopProducts {
		fmt.Fprintf(&b, "Top product: %s, bought %d times, last price %.2f\n", p.Name, p.Count, p.LastPrice)
	}
	for _, c := range r.CategoryBreakdown {
		fmt.Fprintf(&b, "Category: %s, %.2f (%.1f%%)\n", c.Category, c.Amount, c.Share)
	}
	for _, alert := range r.PriceAlerts {
		fmt.Fprintf(&b, "Price change: %s %+.1f%%\n", alert.Name, alert.ChangePercent)
	}
	for _, due := range r.Replenishment {
		fmt.Fprintf(&b, "Restock due: %s in %d days\n", due.Name, due.DaysUntilDue)
	}
	if r.SavingsOpportunity.PotentialSavings > 0 {
		fmt.Fprintf(&b, "Potential savings: %.2f (%s)\n", r.SavingsOpportunity.PotentialSavings, r.SavingsOpportunity.Recommendation)
	}
	return b.String()
}

var (
	bulletLine   = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+(.+)$`)
	headingLabel = regexp.MustCompile(`(?i)^(?:headline|title|summary)\s*:\s*`)
)

// parseGenerated splits generator output into a headline (the first
// non-bullet line) and bullet items.
func parseGenerated(text string) (string, []string) {
	var (
		headline string
		bullets  []string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if m := bulletLine.FindStringSubmatch(line); m != nil {
			if item := cleanMarkup(m[1]); item != "" {
				bullets = append(bullets, item)
			}
			continue
		}
		if headline == "" && len(bullets) == 0 {
			headline = strings.TrimSpace(headingLabel.ReplaceAllString(cleanMarkup(strings.TrimLeft(line, "# ")), ""))
		}
	}
	return headline, bullets
}

func cleanMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}
