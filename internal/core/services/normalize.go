package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/financescope/financescope/internal/core/domain"
)

// errTypeMismatch marks a proposed value that does not parse as the
// metric's expected kind. It translates to rejected:type_mismatch.
var errTypeMismatch = errors.New("type mismatch")

// scaleWords maps magnitude suffixes commonly found in financial prose
// to multipliers.
var scaleWords = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mm":       1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
	"trillion": 1e12,
}

// currencyCodes are recognised as currency unit markers when they
// prefix or suffix a value.
var currencyCodes = []string{"USD", "EUR", "GBP", "BRL", "JPY", "CHF", "CAD", "AUD"}

// currencySymbols maps symbols to canonical currency codes.
// Multi-character symbols are listed before their prefixes in
// symbolOrder so "R$" is not consumed as "$".
var currencySymbols = map[string]string{
	"US$": "USD",
	"R$":  "BRL",
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
}

var symbolOrder = []string{"US$", "R$", "$", "€", "£", "¥"}

// dateLayouts are tried in order when normalizing date values.
var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
	"January 2006",
	"Jan 2006",
}

// normalizeValue parses a raw model-proposed value into a typed
// NormalizedValue of the expected kind. It returns errTypeMismatch
// when the raw value cannot be read as that kind; it never coerces.
func normalizeValue(raw string, kind domain.ValueKind) (domain.NormalizedValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	switch kind {
	case domain.KindCurrency:
		return normalizeCurrency(raw)
	case domain.KindPercent:
		return normalizePercent(raw)
	case domain.KindDate:
		return normalizeDate(raw)
	case domain.KindCount:
		return normalizeCount(raw)
	default:
		return domain.NormalizedValue{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

func normalizeCurrency(raw string) (domain.NormalizedValue, error) {
	if strings.Contains(raw, "%") {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	unit := ""
	rest := raw

	for _, symbol := range symbolOrder {
		if idx := strings.Index(rest, symbol); idx >= 0 {
			unit = currencySymbols[symbol]
			rest = strings.Replace(rest, symbol, " ", 1)
			break
		}
	}
	if unit == "" {
		upper := strings.ToUpper(rest)
		for _, code := range currencyCodes {
			if idx := strings.Index(upper, code); idx >= 0 {
				unit = code
				rest = rest[:idx] + " " + rest[idx+len(code):]
				break
			}
		}
	}

	number, ok := parseScaledNumber(rest)
	if !ok {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	text := formatNumber(number)
	if unit != "" {
		text += " " + unit
	}
	return domain.NormalizedValue{
		Kind:   domain.KindCurrency,
		Number: number,
		Unit:   unit,
		Text:   text,
	}, nil
}

func normalizePercent(raw string) (domain.NormalizedValue, error) {
	rest := strings.ReplaceAll(raw, "%", " ")
	rest = strings.ReplaceAll(strings.ToLower(rest), "percent", " ")

	if hasCurrencyMarker(raw) {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	number, ok := parseScaledNumber(rest)
	if !ok {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	return domain.NormalizedValue{
		Kind:   domain.KindPercent,
		Number: number,
		Unit:   "%",
		Text:   formatNumber(number) + "%",
	}, nil
}

func normalizeDate(raw string) (domain.NormalizedValue, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.NormalizedValue{
				Kind: domain.KindDate,
				Date: t,
				Text: t.Format("2006-01-02"),
			}, nil
		}
	}
	return domain.NormalizedValue{}, errTypeMismatch
}

func normalizeCount(raw string) (domain.NormalizedValue, error) {
	if strings.Contains(raw, "%") || hasCurrencyMarker(raw) {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	number, ok := parseScaledNumber(raw)
	if !ok {
		return domain.NormalizedValue{}, errTypeMismatch
	}

	return domain.NormalizedValue{
		Kind:   domain.KindCount,
		Number: number,
		Text:   formatNumber(number),
	}, nil
}

// hasCurrencyMarker reports whether the raw value carries a currency
// symbol or code.
func hasCurrencyMarker(raw string) bool {
	for symbol := range currencySymbols {
		if strings.Contains(raw, symbol) {
			return true
		}
	}
	upper := strings.ToUpper(raw)
	for _, code := range currencyCodes {
		for _, field := range strings.Fields(upper) {
			if field == code {
				return true
			}
		}
	}
	return false
}

// parseScaledNumber parses a number possibly carrying thousands
// separators, a parenthesised negative, and a magnitude word
// ("12.5 million", "(1,234)", "3.1bn").
func parseScaledNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	scale := 1.0
	for word, factor := range scaleWords {
		if strings.HasSuffix(strings.ToLower(s), word) {
			head := strings.TrimSpace(s[:len(s)-len(word)])
			// Only treat the suffix as a scale when what precedes it
			// is itself numeric ("6 million" yes, "column" no).
			if _, err := strconv.ParseFloat(head, 64); err == nil {
				if factor > scale {
					scale = factor
					s = head
				}
			}
		}
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}

	n *= scale
	if negative {
		n = -n
	}
	return n, true
}

// formatNumber renders a float without trailing zero noise.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
