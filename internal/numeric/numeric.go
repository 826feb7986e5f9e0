// Package numeric cleans raw extracted tokens ("$1,234", "(500)", "2.3M")
// into signed values with currency and unit hints. Everything here is
// deterministic and side-effect-free; this stage is never delegated to the
// labeler.
package numeric

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"finspread/internal/common"
)

// Value is a normalized numeric token.
type Value struct {
	Amount       float64
	CurrencyHint string // ISO code when inferable from a symbol, else ""
	UnitHint     string // "percent", "thousands", "millions", "billions", or ""
}

// String renders the value in the canonical representation Normalize
// accepts, making Normalize idempotent on its own output.
func (v Value) String() string {
	return strconv.FormatFloat(v.Amount, 'f', -1, 64)
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₹": "INR",
}

var unitScale = map[string]float64{
	"k":  1e3,
	"m":  1e6,
	"mm": 1e6,
	"bn": 1e9,
	"b":  1e9,
}

var unitNames = map[string]string{
	"k":  "thousands",
	"m":  "millions",
	"mm": "millions",
	"bn": "billions",
	"b":  "billions",
}

var reDigit = regexp.MustCompile(`\d`)

// reUnitSuffix matches a trailing scale marker after the numeric body.
var reUnitSuffix = regexp.MustCompile(`(?i)(k|mm|m|bn|b)$`)

// Normalize parses a raw token into a signed value. It strips currency
// symbols and thousands separators, treats parentheses as negative
// magnitude, scales trailing k/M/bn markers, and strips percent signs
// while preserving the numeric value. Tokens with no digits fail with
// common.ErrNotNumeric.
func Normalize(raw string) (Value, error) {
	text := strings.TrimSpace(raw)
	if text == "" || !reDigit.MatchString(text) {
		return Value{}, fmt.Errorf("%w: %q", common.ErrNotNumeric, raw)
	}

	var out Value

	// Parentheses mark negative magnitude.
	negative := false
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		negative = true
		text = text[1 : len(text)-1]
		text = strings.TrimSpace(text)
	}

	// Currency symbols and codes.
	for sym, iso := range currencySymbols {
		if strings.Contains(text, sym) {
			out.CurrencyHint = iso
			text = strings.ReplaceAll(text, sym, "")
		}
	}
	text = strings.TrimSpace(text)

	// Percent preserves the value.
	if strings.HasSuffix(text, "%") {
		out.UnitHint = "percent"
		text = strings.TrimSuffix(text, "%")
		text = strings.TrimSpace(text)
	}

	// Unicode minus and explicit sign.
	text = strings.ReplaceAll(text, "−", "-")
	if strings.HasPrefix(text, "-") {
		negative = !negative
		text = text[1:]
	}

	// Thousands separators and stray whitespace.
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, " ", "")

	// Trailing scale marker.
	scale := 1.0
	if m := reUnitSuffix.FindString(text); m != "" {
		body := text[:len(text)-len(m)]
		// Only treat it as a unit when the remainder still parses;
		// "3m" scales, "m3" does not reach here.
		if _, err := strconv.ParseFloat(body, 64); err == nil {
			key := strings.ToLower(m)
			scale = unitScale[key]
			if out.UnitHint == "" {
				out.UnitHint = unitNames[key]
			}
			text = body
		}
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", common.ErrNotNumeric, raw)
	}

	out.Amount = f * scale
	if negative {
		out.Amount = -out.Amount
	}
	return out, nil
}

// IsNumeric reports whether raw normalizes cleanly.
func IsNumeric(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
