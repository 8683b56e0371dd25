package scanning

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/zombor/receipt-insights/internal/category"
)

// RuleResult is the outcome of the pattern-based receipt parser
type RuleResult struct {
	Items         []LineItem
	Total         float64
	HasTotalLine  bool
	VATAmount     float64
	DetectedStore string
}

var (
	// priceToken matches a 2-decimal amount not glued to further digits, so
	// dates such as 16.10.2026 never yield a price.
	priceToken = regexp.MustCompile(`(\d+[.,]\d{2})(?:[^\d.,]|[.,](?:\D|$)|$)`)

	// noiseLine matches rows made only of digits and punctuation (dates, row numbers, separators)
	noiseLine = regexp.MustCompile(`^[\d\s.,:;/\\|*#№%+=()_\-–]+$`)

	cashierLine = regexp.MustCompile(`(?i)^\s*(?:kassir|kasir|cashier|кассир)\b`)

	// Label patterns run on turkicI output, so they are written with ASCII i.
	storeLabel = regexp.MustCompile(`(?i)^\s*(?:obyekt(?:in)?\s+adi|object\s+name|obyekt|store)\s*[:\-–]\s*(.+)$`)

	fiscalLabel = regexp.MustCompile(`(?i)(?:fiscal\s*id|fiskal\s*id|fiskal\s*kod)\s*[:#№\-]?\s*([A-Za-z0-9]{4,})`)

	trailingQuantity = regexp.MustCompile(`(?:\s+[\d.,]+\s*[xX×*хХ]\s*[\d.,]*)?[\s=@:*\-–]*$`)
	leadingIndex     = regexp.MustCompile(`^\s*\d+[.)]?\s+`)
)

// Keywords are matched against category.Fold output. Total keywords match as
// substrings; tax and payment labels must be whole words so that "Kartof" is
// not read as a card payment.
var (
	totalKeywords = []string{"cemi", "yekun", "total", "toplam", "umumi", "итого", "всего"}
	taxWords      = wordSet("edv", "vat", "vergi", "ндс", "tax")
	paymentWords  = wordSet("nagd", "nagdsiz", "kart", "kartla", "bonus", "avans", "kredit", "qaliq",
		"cash", "cashless", "card", "change", "odenis", "visa", "mastercard", "сдача")
)

// ParseText parses OCR text line by line using pattern rules. It never fails;
// text with nothing recognisable produces an empty result.
func ParseText(text string) RuleResult {
	var (
		result RuleResult
		total  decimal.Decimal
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if store, ok := matchLabel(storeLabel, line); ok {
			result.DetectedStore = strings.TrimSpace(store)
			continue
		}
		_, fiscal := matchLabel(fiscalLabel, line)
		if fiscal || noiseLine.MatchString(line) || cashierLine.MatchString(line) {
			continue
		}

		start, end, price, ok := lastPrice(line)
		if !ok {
			continue
		}

		folded := category.Fold(line)
		switch {
		case hasWord(folded, taxWords):
			result.VATAmount = price.InexactFloat64()
			continue
		case containsAny(folded, totalKeywords):
			total = price
			result.HasTotalLine = true
			continue
		case hasWord(folded, paymentWords):
			continue
		}

		name := cleanItemName(line[:start] + " " + line[end:])
		if utf8.RuneCountInString(name) <= 1 {
			continue
		}
		result.Items = append(result.Items, LineItem{
			Name:     name,
			Price:    price.InexactFloat64(),
			Category: category.Categorize(name),
		})
	}

	if result.HasTotalLine {
		result.Total = total.Round(2).InexactFloat64()
	} else {
		result.Total = sumItems(result.Items).InexactFloat64()
	}
	return result
}

// FiscalID returns the first labelled fiscal document id in text, or "".
func FiscalID(text string) string {
	id, _ := matchLabel(fiscalLabel, text)
	return id
}

// turkicI maps İ and ı to I and i. (?i) does not fold them, and the mapping is
// rune for rune so match offsets carry back to the original text.
var turkicI = strings.NewReplacer("İ", "I", "ı", "i")

// matchLabel runs re over s with turkicI applied and returns the first capture
// group cut from s itself.
func matchLabel(re *regexp.Regexp, s string) (string, bool) {
	mapped := turkicI.Replace(s)
	m := re.FindStringSubmatchIndex(mapped)
	if m == nil || m[2] < 0 {
		return "", false
	}
	start := runeOffset(s, utf8.RuneCountInString(mapped[:m[2]]))
	end := runeOffset(s, utf8.RuneCountInString(mapped[:m[3]]))
	return s[start:end], true
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}

// lastPrice finds the last price token on the line and returns its byte span.
func lastPrice(line string) (int, int, decimal.Decimal, bool) {
	matches := priceToken.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return 0, 0, decimal.Zero, false
	}
	m := matches[len(matches)-1]
	price, ok := parseAmount(line[m[2]:m[3]])
	if !ok || price.IsNegative() {
		return 0, 0, decimal.Zero, false
	}
	return m[2], m[3], price, true
}

func cleanItemName(name string) string {
	name = strings.TrimSpace(name)
	name = trailingQuantity.ReplaceAllString(name, "")
	name = leadingIndex.ReplaceAllString(name, "")
	return strings.Trim(name, " \t.,:;*=#|-–")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func hasWord(s string, set map[string]bool) bool {
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if set[w] {
			return true
		}
	}
	return false
}
