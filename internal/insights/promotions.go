package insights

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/zombor/receipt-insights/internal/category"
	"gopkg.in/yaml.v2"
)

const promotionDateLayout = "2006-01-02"

//go:embed promotions.yaml
var defaultCatalog []byte

// Promotion is one entry of the static promotions catalog
type Promotion struct {
	Product     string  `yaml:"product" json:"product"`
	Store       string  `yaml:"store" json:"store"`
	Discount    float64 `yaml:"discount" json:"discount"`
	ValidUntil  string  `yaml:"valid_until" json:"valid_until"`
	Description string  `yaml:"description" json:"description"`
}

// PromotionMatch pairs a top product with a promotion that applies to it
type PromotionMatch struct {
	ProductName    string    `json:"product_name"`
	Promotion      Promotion `json:"promotion"`
	DiscountAmount float64   `json:"discount_amount"`
	ExpiresAt      string    `json:"expires_at"`
}

// LoadPromotions decodes a YAML promotions list
func LoadPromotions(r io.Reader) ([]Promotion, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading promotions: %w", err)
	}

	var promotions []Promotion
	if err := yaml.Unmarshal(data, &promotions); err != nil {
		return nil, fmt.Errorf("decoding promotions: %w", err)
	}

	valid := promotions[:0]
	for _, p := range promotions {
		p.Product = strings.TrimSpace(p.Product)
		if p.Product == "" {
			continue
		}
		valid = append(valid, p)
	}
	return valid, nil
}

// LoadPromotionsFile reads the catalog at path, or the built-in one when path is empty
func LoadPromotionsFile(path string) ([]Promotion, error) {
	if path == "" {
		return DefaultPromotions(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening promotions file: %w", err)
	}
	defer f.Close()

	return LoadPromotions(f)
}

// DefaultPromotions returns the built-in catalog
func DefaultPromotions() []Promotion {
	promotions, err := LoadPromotions(strings.NewReader(string(defaultCatalog)))
	if err != nil {
		panic(fmt.Sprintf("embedded promotions catalog: %v", err))
	}
	return promotions
}

// expired reports whether the promotion ended before the day of now.
// Promotions without a parseable date never expire.
func (p Promotion) expired(now time.Time) bool {
	until, err := time.ParseInLocation(promotionDateLayout, p.ValidUntil, now.Location())
	if err != nil {
		return false
	}
	return now.After(until.AddDate(0, 0, 1))
}

func matchPromotions(top []ProductCount, promotions []Promotion, now time.Time) []PromotionMatch {
	matches := make([]PromotionMatch, 0, promotionMatchLimit)
	for _, product := range top {
		name := category.Fold(product.Name)
		for _, promo := range promotions {
			if len(matches) == promotionMatchLimit {
				return matches
			}
			if promo.expired(now) {
				continue
			}
			target := category.Fold(promo.Product)
			if !strings.Contains(name, target) && !strings.Contains(target, name) {
				continue
			}
			matches = append(matches, PromotionMatch{
				ProductName:    product.Name,
				Promotion:      promo,
				DiscountAmount: roundFloat(promo.Discount),
				ExpiresAt:      promo.ValidUntil,
			})
		}
	}
	return matches
}
