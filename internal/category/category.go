// Package category assigns a shopping category to a purchased item name.
//
// Categories are a best-effort hint for the insights dashboard; they are never
// authoritative and an unknown item always lands in General.
package category

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// General is returned when no bucket matches.
const General = "General"

type bucket struct {
	name     string
	keywords []string
	// words must start a word, so "oil" does not match "toilet"
	words []string
}

// buckets are checked in order; the first bucket with a matching keyword wins.
// Keywords are written in folded form (see Fold).
var buckets = []bucket{
	{"Diet", []string{"diet", "sekersiz", "sugar free", "zero", "light", "protein", "keto", "gluten", "fitness", "диет"}, nil},
	{"Dairy", []string{"sud", "milk", "pendir", "cheese", "qatiq", "yogurt", "kefir", "ayran", "xama", "kere yag", "butter", "smetana", "shor", "молок", "сыр", "творог", "кефир"}, nil},
	{"Bakery", []string{"corek", "bread", "lavas", "bulka", "baton", "tort", "cake", "kruassan", "croissant", "xleb", "хлеб", "батон"}, nil},
	{"Meat", []string{"mal eti", "quzu eti", "toyuq", "chicken", "beef", "kolbasa", "sosiska", "qiyme", "meat", "baliq", "fish", "мяс", "колбас", "куриц"}, nil},
	{"Produce", []string{"alma", "banan", "pomidor", "xiyar", "kartof", "sogan", "apple", "banana", "tomato", "potato", "onion", "meyve", "terevez", "limon", "portagal", "яблок", "картоф"}, nil},
	{"Pantry", []string{"duyu", "makaron", "pasta", "flour", "seker", "sugar", "gunebaxan", "qarabasaq", "mercimek", "noxud", "konserv", "рис", "сахар", "масло"}, []string{"rice", "oil", "salt"}},
	{"Beverages", []string{"mineral", "water", "sirab", "badamli", "cola", "pepsi", "fanta", "sprite", "juice", "sire", "cay", "coffee", "qehve", "kofe", "pivo", "beer", "limonad", "вода", "сок", "чаи"}, []string{"tea"}},
	{"Household", []string{"sabun", "soap", "shampoo", "sampun", "tualet", "kagiz", "paper", "detergent", "ariel", "fairy", "domestos", "salfet", "cleaner", "мыло"}, nil},
	{"Snacks", []string{"cips", "chips", "sokolad", "chocolate", "konfet", "candy", "peceniye", "biscuit", "cookie", "cracker", "kraker", "snickers", "dondurma", "semki", "шоколад", "печень"}, nil},
}

// Categorize returns the first bucket whose keyword is a substring of name,
// compared case- and accent-insensitively.
func Categorize(name string) string {
	folded := Fold(name)
	if folded == "" {
		return General
	}
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if strings.Contains(folded, kw) {
				return b.name
			}
		}
		if len(b.words) > 0 && startsWord(folded, b.words) {
			return b.name
		}
	}
	return General
}

func startsWord(s string, prefixes []string) bool {
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}

// Names lists every category in match order, followed by General.
func Names() []string {
	names := make([]string, 0, len(buckets)+1)
	for _, b := range buckets {
		names = append(names, b.name)
	}
	return append(names, General)
}

// dotless i and schwa have no decomposition, so they are mapped by hand after
// combining marks are stripped.
var baseLetters = strings.NewReplacer("ı", "i", "ə", "e")

// Fold lower-cases s with Azerbaijani rules and strips diacritics so that
// "ÇÖRƏK", "Çörək" and "corek" compare equal. Use it only for matching.
func Fold(s string) string {
	lower := cases.Lower(language.Azerbaijani).String(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, lower)
	if err != nil {
		stripped = lower
	}
	return baseLetters.Replace(stripped)
}
