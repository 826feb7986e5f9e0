package numeric

import (
	"errors"
	"testing"

	"finspread/internal/common"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		want     float64
		currency string
		unit     string
	}{
		{name: "plain integer", raw: "1234", want: 1234},
		{name: "thousands separators", raw: "1,234,567", want: 1234567},
		{name: "currency symbol", raw: "$1,234", want: 1234, currency: "USD"},
		{name: "currency and decimals", raw: "$1,234.56", want: 1234.56, currency: "USD"},
		{name: "euro symbol", raw: "€500", want: 500, currency: "EUR"},
		{name: "parentheses negative", raw: "(500)", want: -500},
		{name: "parentheses with currency", raw: "($1,234)", want: -1234, currency: "USD"},
		{name: "explicit minus", raw: "-42.5", want: -42.5},
		{name: "unicode minus", raw: "−42.5", want: -42.5},
		{name: "double negative cancels", raw: "(-500)", want: 500},
		{name: "thousands marker", raw: "12k", want: 12000, unit: "thousands"},
		{name: "millions marker", raw: "2.3M", want: 2300000, unit: "millions"},
		{name: "billions marker", raw: "1.5bn", want: 1500000000, unit: "billions"},
		{name: "percent preserved", raw: "12.5%", want: 12.5, unit: "percent"},
		{name: "negative millions", raw: "(3.5M)", want: -3500000, unit: "millions"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw)
			if err != nil {
				t.Fatalf("Normalize(%q) failed: %v", tc.raw, err)
			}
			if got.Amount != tc.want {
				t.Errorf("Normalize(%q) amount = %v, want %v", tc.raw, got.Amount, tc.want)
			}
			if got.CurrencyHint != tc.currency {
				t.Errorf("Normalize(%q) currency = %q, want %q", tc.raw, got.CurrencyHint, tc.currency)
			}
			if got.UnitHint != tc.unit {
				t.Errorf("Normalize(%q) unit = %q, want %q", tc.raw, got.UnitHint, tc.unit)
			}
		})
	}
}

func TestNormalizeRejectsNonNumeric(t *testing.T) {
	for _, raw := range []string{"", "   ", "-", "—", "n/a", "N/A", "nil", "total", "$"} {
		if _, err := Normalize(raw); !errors.Is(err, common.ErrNotNumeric) {
			t.Errorf("Normalize(%q) error = %v, want ErrNotNumeric", raw, err)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"$1,234.56", "(500)", "2.3M", "12.5%", "−42", "1,234,567"}
	for _, raw := range inputs {
		first, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", raw, err)
		}
		second, err := Normalize(first.String())
		if err != nil {
			t.Fatalf("re-normalizing %q (from %q) failed: %v", first.String(), raw, err)
		}
		if second.Amount != first.Amount {
			t.Errorf("Normalize not idempotent for %q: %v != %v", raw, second.Amount, first.Amount)
		}
	}
}
