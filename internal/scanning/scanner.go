package scanning

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoTextFound is returned when the OCR service recognised nothing.
	ErrNoTextFound = errors.New("no text found on receipt")

	// ErrOCRUnavailable is returned when the OCR service cannot be reached or
	// answers with a non-2xx status.
	ErrOCRUnavailable = errors.New("OCR service unavailable")

	// ErrMalformedAIResponse marks generator output that could not be used.
	// It never leaves the Extractor.
	ErrMalformedAIResponse = errors.New("malformed AI response")

	errGeneratorUnavailable = errors.New("text generator unavailable")
)

// Extraction sources
const (
	SourceAI    = "ai"
	SourceRules = "rules"
)

// LineItem is a single purchased item read from a receipt
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// ReceiptData contains structured information extracted from receipt text
type ReceiptData struct {
	StoreName string     `json:"store_name,omitempty"`
	Items     []LineItem `json:"items"`
	Total     float64    `json:"total"`
	FiscalID  string     `json:"fiscal_id,omitempty"`
	VATAmount float64    `json:"vat_amount,omitempty"`
	Source    string     `json:"source"`
}

// Receipt is the producer-side record built from one successful scan.
type Receipt struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	TotalAmount float64    `json:"total_amount"`
	Items       []LineItem `json:"items"`
	Text        string     `json:"text"`
	ImageURL    string     `json:"image_url,omitempty"`
	StoreName   string     `json:"store_name,omitempty"`
	FiscalID    string     `json:"fiscal_id,omitempty"`
	VATAmount   float64    `json:"vat_amount,omitempty"`
}

// OCR defines the interface for optical character recognition services
type OCR interface {
	// ExtractText uploads an image or PDF and returns the recognised text
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// Generator defines the interface for natural-language generation services
type Generator interface {
	// Generate sends a prompt and returns the generated text
	Generate(ctx context.Context, prompt string) (string, error)
	// Close closes the generator and releases resources
	Close() error
}
