package insights

import (
	"fmt"
	"time"

	"github.com/zombor/receipt-insights/internal/dataset"
)

// Smart plan card kinds
const (
	CardOnboarding = "onboarding"
	CardWatch      = "watch"
	CardBudget     = "budget"
	CardPromotion  = "promotion"
	CardRestock    = "restock"
)

// OnboardingCard is the only card shown before anything is scanned
var OnboardingCard = PlanCard{
	Kind:        CardOnboarding,
	Title:       "Scan your first receipt",
	Description: "Scan a receipt QR code or take a photo to start tracking your spending.",
}

func smartPlan(entries []dataset.Entry, top []ProductCount, monthly float64, matches []PromotionMatch, restock []Replenishment, now time.Time) []PlanCard {
	if len(entries) == 0 {
		return []PlanCard{OnboardingCard}
	}

	cards := make([]PlanCard, 0, smartPlanLimit)
	if len(top) > 0 {
		p := top[0]
		cards = append(cards, PlanCard{
			Kind:        CardWatch,
			Title:       fmt.Sprintf("Keep an eye on %s", p.Name),
			Description: fmt.Sprintf("You bought it %d times; the last price was %.2f ₼.", p.Count, p.LastPrice),
		})
	}

	if monthly > 0 {
		cards = append(cards, PlanCard{
			Kind:        CardBudget,
			Title:       "Monthly spend snapshot",
			Description: fmt.Sprintf("%.2f ₼ spent in the last 30 days across %d receipts.", monthly, receiptsSince(entries, now.Add(-monthlyWindow))),
		})
	}

	if best, ok := bestPromotion(matches); ok {
		cards = append(cards, PlanCard{
			Kind:        CardPromotion,
			Title:       fmt.Sprintf("%s is on sale", best.ProductName),
			Description: fmt.Sprintf("Save %.2f ₼ at %s until %s.", best.DiscountAmount, best.Promotion.Store, best.ExpiresAt),
		})
	}

	if len(restock) > 0 && len(cards) < smartPlanLimit {
		r := restock[0]
		cards = append(cards, PlanCard{
			Kind:        CardRestock,
			Title:       fmt.Sprintf("Time to restock %s", r.Name),
			Description: fmt.Sprintf("Usually bought every %.0f days; due in %d days.", r.AverageIntervalDays, r.DaysUntilDue),
		})
	}
	return cards
}

func bestPromotion(matches []PromotionMatch) (PromotionMatch, bool) {
	if len(matches) == 0 {
		return PromotionMatch{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.DiscountAmount > best.DiscountAmount {
			best = m
		}
	}
	return best, true
}

func receiptsSince(entries []dataset.Entry, cutoff time.Time) int {
	n := 0
	for _, e := range entries {
		if !e.CreatedAt.IsZero() && !e.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}
