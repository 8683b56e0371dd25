package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// structuringPrompt asks the generator to turn raw OCR text into strict JSON
const structuringPrompt = `You are reading the OCR text of a grocery store receipt from Azerbaijan. The text may be in Azerbaijani, Russian or English and may contain OCR mistakes.

Extract:
1. **storeName**: the merchant or store name (often after "Obyektin adı" or at the top).
2. **items**: every purchased product with its final line price. Skip taxes (ƏDV), payment lines (nağd, kart, bonus), change (qalıq) and totals.
3. **totalAmount**: the final amount paid (often labeled "Cəmi", "Yekun" or "Total").

Return ONLY valid JSON in this exact format:
{
  "storeName": "Store Name",
  "items": [{"name": "Product", "price": 0.00}],
  "totalAmount": 0.00
}

Important:
- Prices and totalAmount must be numbers, not strings
- Use a dot as the decimal separator
- If you cannot find the store name, use null
- Do not include any text before or after the JSON
- Do not use markdown code blocks

Receipt text:
`

// Extractor turns OCR text into structured receipt data. An AI-assisted pass
// runs first when a generator is configured; the rule-based parser covers
// every failure.
type Extractor struct {
	generator Generator
}

// NewExtractor creates a new Extractor. generator may be nil.
func NewExtractor(generator Generator) *Extractor {
	return &Extractor{generator: generator}
}

// Extract never fails: a failing or useless AI answer falls back to ParseText.
func (e *Extractor) Extract(ctx context.Context, text string) *ReceiptData {
	rules := ParseText(text)

	data := &ReceiptData{
		Items:     rules.Items,
		Total:     rules.Total,
		VATAmount: rules.VATAmount,
		Source:    SourceRules,
	}

	var aiStore string
	structured, err := e.structure(ctx, text)
	switch {
	case err == nil:
		data.Items = structured.Items
		data.Total = structured.Total
		data.Source = SourceAI
		aiStore = structured.StoreName
	case errors.Is(err, errGeneratorUnavailable):
	default:
		slog.Warn("AI structuring failed, using rule-based parser", "error", err)
	}

	data.StoreName = firstNonEmpty(aiStore, rules.DetectedStore, firstLine(text))
	data.FiscalID = FiscalID(text)
	if data.Items == nil {
		data.Items = []LineItem{}
	}

	return data
}

func (e *Extractor) structure(ctx context.Context, text string) (*ReceiptData, error) {
	if e.generator == nil || strings.TrimSpace(text) == "" {
		return nil, errGeneratorUnavailable
	}

	answer, err := e.generator.Generate(ctx, structuringPrompt+text)
	if err != nil {
		return nil, fmt.Errorf("generating structure: %w", err)
	}

	data, err := parseStructuredJSON(answer)
	if err != nil {
		return nil, fmt.Errorf("parsing structure: %w", err)
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
