package scanning

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxReceiptText caps the raw OCR excerpt kept with a receipt
const maxReceiptText = 500

// Pipeline runs OCR and extraction for one image
type Pipeline struct {
	ocr       OCR
	extractor *Extractor
	now       func() time.Time
}

// NewPipeline creates a new Pipeline
func NewPipeline(ocr OCR, extractor *Extractor) *Pipeline {
	return &Pipeline{
		ocr:       ocr,
		extractor: extractor,
		now:       time.Now,
	}
}

// ScanImage recognises the image text and extracts a receipt from it
func (p *Pipeline) ScanImage(ctx context.Context, data []byte, contentType string) (*Receipt, error) {
	text, err := p.ocr.ExtractText(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	extracted := p.extractor.Extract(ctx, text)

	return &Receipt{
		ID:          uuid.NewString(),
		Date:        p.now().UTC(),
		TotalAmount: extracted.Total,
		Items:       extracted.Items,
		Text:        Truncate(text, maxReceiptText),
		StoreName:   extracted.StoreName,
		FiscalID:    extracted.FiscalID,
		VATAmount:   extracted.VATAmount,
	}, nil
}

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
