package scanning

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/zombor/receipt-insights/internal/category"
)

// stripCodeFence removes markdown code fences some models wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseStructuredJSON parses the generator's structuring answer. Prices may be
// numbers or numeric strings; items without a name or a usable price are dropped.
func parseStructuredJSON(text string) (*ReceiptData, error) {
	text = stripCodeFence(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedAIResponse)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("%w: unterminated JSON object", ErrMalformedAIResponse)
	}
	text = text[startIdx : endIdx+1]
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedAIResponse)
	}

	doc := gjson.Parse(text)
	data := &ReceiptData{
		StoreName: strings.TrimSpace(doc.Get("storeName").String()),
		Source:    SourceAI,
	}

	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		name := strings.TrimSpace(item.Get("name").String())
		price, ok := amountOf(item.Get("price"))
		if name == "" || !ok || price.IsNegative() {
			return true
		}
		data.Items = append(data.Items, LineItem{
			Name:     name,
			Price:    price.Round(2).InexactFloat64(),
			Category: category.Categorize(name),
		})
		return true
	})
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrMalformedAIResponse)
	}

	total, ok := amountOf(doc.Get("totalAmount"))
	if !ok || !total.IsPositive() {
		total = sumItems(data.Items)
	}
	if !total.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: no usable total", ErrMalformedAIResponse)
	}
	data.Total = total.Round(2).InexactFloat64()

	return data, nil
}
