// Package dataset persists normalized purchase entries and small key/value
// caches. The entry collection is append-only, newest first, and capped.
package dataset

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Entry sources
const (
	SourceQR    = "qr"
	SourcePhoto = "photo"
)

// MaxEntries is the number of entries kept; older entries are pruned.
const MaxEntries = 500

// Item is a purchased item nested inside an Entry
type Item struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// Entry is one normalized scanned purchase event
type Entry struct {
	ID          string    `json:"id"`
	StoreName   string    `json:"store_name,omitempty"`
	TotalAmount float64   `json:"total_amount"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	RawText     string    `json:"raw_text,omitempty"`
	FiscalID    string    `json:"fiscal_id,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
}

// ItemsTotal returns the rounded sum of item prices
func ItemsTotal(items []Item) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price))
	}
	return sum.Round(2).InexactFloat64()
}

// UnmarshalJSON decodes an item leniently: a missing or non-numeric price is 0.
func (i *Item) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid item JSON")
	}
	*i = decodeItem(gjson.ParseBytes(data))
	return nil
}

// UnmarshalJSON decodes an entry leniently. Missing items become an empty
// list, unusable prices become 0, an absent total is derived from the items and
// an unparseable created_at becomes the zero time.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid entry JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return fmt.Errorf("entry is not an object")
	}

	decoded := Entry{
		ID:        doc.Get("id").String(),
		StoreName: doc.Get("store_name").String(),
		Source:    doc.Get("source").String(),
		RawText:   doc.Get("raw_text").String(),
		FiscalID:  doc.Get("fiscal_id").String(),
		ImageURL:  doc.Get("image_url").String(),
		Items:     []Item{},
	}
	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		if it := decodeItem(item); it.Name != "" {
			decoded.Items = append(decoded.Items, it)
		}
		return true
	})

	if total, ok := number(doc.Get("total_amount")); ok {
		decoded.TotalAmount = total
	} else {
		decoded.TotalAmount = ItemsTotal(decoded.Items)
	}

	if ts, err := time.Parse(time.RFC3339Nano, doc.Get("created_at").String()); err == nil {
		decoded.CreatedAt = ts
	}

	*e = decoded
	return nil
}

func decodeItem(r gjson.Result) Item {
	price, _ := number(r.Get("price"))
	return Item{
		Name:     strings.TrimSpace(r.Get("name").String()),
		Price:    price,
		Category: r.Get("category").String(),
	}
}

// number reads a non-negative JSON number or numeric string.
func number(r gjson.Result) (float64, bool) {
	var d decimal.Decimal
	switch r.Type {
	case gjson.Number:
		d = decimal.NewFromFloat(r.Float())
	case gjson.String:
		parsed, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(r.String()), ",", "."))
		if err != nil {
			return 0, false
		}
		d = parsed
	default:
		return 0, false
	}
	if d.IsNegative() {
		return 0, true
	}
	return d.InexactFloat64(), true
}

// decodeEntries decodes a persisted JSON array, skipping elements that are not
// entries at all.
func decodeEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return []Entry{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("dataset document is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("dataset document is not an array")
	}

	entries := make([]Entry, 0, MaxEntries)
	var decodeErr error
	doc.ForEach(func(_, raw gjson.Result) bool {
		var e Entry
		if err := json.Unmarshal([]byte(raw.Raw), &e); err != nil {
			decodeErr = err
			return true
		}
		entries = append(entries, e)
		return true
	})
	if decodeErr != nil && len(entries) == 0 && len(doc.Array()) > 0 {
		return nil, fmt.Errorf("decoding entries: %w", decodeErr)
	}
	return entries, nil
}

// prependCapped puts entry first and keeps the newest MaxEntries.
func prependCapped(entries []Entry, entry Entry) []Entry {
	out := make([]Entry, 0, min(len(entries)+1, MaxEntries))
	out = append(out, entry)
	for _, e := range entries {
		if len(out) == MaxEntries {
			break
		}
		out = append(out, e)
	}
	return out
}
