// Package period canonicalizes the reporting-period labels that appear as
// financial statement column headers. Raw headers come in many shapes
// ("FY2023", "Q1 2024", "Year Ended December 31, 2023", a bare "2023");
// alignment maps each onto one canonical key so fields from different
// statements land in the same column.
package period

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"finspread/internal/common"
)

// PeriodType distinguishes annual from quarterly columns.
type PeriodType string

const (
	Annual    PeriodType = "annual"
	Quarterly PeriodType = "quarterly"
)

// Key is a canonical reporting period.
type Key struct {
	Type       PeriodType
	FiscalYear int
	Quarter    int // 1..4 when Type == Quarterly, else 0

	// Ambiguous marks keys inferred from a bare calendar year with no
	// fiscal-year-end context. They are kept, never silently resolved;
	// the confidence engine discounts fields attached to them.
	Ambiguous bool
}

// String renders the canonical form: "FY2023" or "Q1-2024".
func (k Key) String() string {
	if k.Type == Quarterly {
		return fmt.Sprintf("Q%d-%d", k.Quarter, k.FiscalYear)
	}
	return fmt.Sprintf("FY%d", k.FiscalYear)
}

// sortRank orders keys: fiscal year ascending, quarters in order, the
// annual column after Q4 of the same year.
func (k Key) sortRank() int {
	r := k.FiscalYear * 10
	if k.Type == Quarterly {
		return r + k.Quarter
	}
	return r + 5
}

// Less reports the total order used for display and roll-forward checks.
func (k Key) Less(other Key) bool { return k.sortRank() < other.sortRank() }

// Alignment maps each raw header to its canonical key.
type Alignment struct {
	ByRaw map[string]Key
	// Keys holds the distinct canonical keys in ascending period order.
	Keys []Key
}

var (
	reFiscalYear = regexp.MustCompile(`(?i)^(?:fy|fiscal(?:\s+year)?)\s*'?(\d{2,4})$`)
	reBareYear   = regexp.MustCompile(`^(\d{4})$`)
	reQuarter    = regexp.MustCompile(`(?i)^q([1-4])\s*[-/ ]?\s*(?:fy)?'?(\d{2,4})$`)
	reQuarterRev = regexp.MustCompile(`(?i)^([1-4])q\s*'?(\d{2,4})$`)
	reYearEnded  = regexp.MustCompile(`(?i)^(?:(?:fiscal\s+)?years?\s+end(?:ed|ing)|twelve\s+months\s+end(?:ed|ing)|as\s+of|at)\s+(.+)$`)
	reQtrEnded   = regexp.MustCompile(`(?i)^three\s+months\s+end(?:ed|ing)\s+(.+)$`)
	reMonthDay   = regexp.MustCompile(`(?i)^(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})$`)
	reDateNum    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

// Align parses every raw header and returns the combined alignment.
// Duplicate raws collapsing onto one key is normal (the same column header
// appears on all three statements). An empty input or a header that parses
// to nothing fails with common.ErrInvalidInput.
func Align(raws []string) (Alignment, error) {
	if len(raws) == 0 {
		return Alignment{}, fmt.Errorf("%w: no period headers", common.ErrInvalidInput)
	}
	out := Alignment{ByRaw: make(map[string]Key, len(raws))}
	seen := make(map[string]struct{})
	for _, raw := range raws {
		key, err := Parse(raw)
		if err != nil {
			return Alignment{}, fmt.Errorf("period header %q: %w", raw, err)
		}
		out.ByRaw[raw] = key
		canon := key.String()
		if _, dup := seen[canon]; !dup {
			seen[canon] = struct{}{}
			out.Keys = append(out.Keys, key)
		}
	}
	sort.Slice(out.Keys, func(i, j int) bool { return out.Keys[i].Less(out.Keys[j]) })
	return out, nil
}

// Parse canonicalizes a single raw period header.
func Parse(raw string) (Key, error) {
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, ".:;")
	text = reWhitespace.ReplaceAllString(text, " ")
	if text == "" {
		return Key{}, fmt.Errorf("%w: empty period header", common.ErrInvalidInput)
	}

	if m := reFiscalYear.FindStringSubmatch(text); m != nil {
		return Key{Type: Annual, FiscalYear: expandYear(m[1])}, nil
	}
	if m := reQuarter.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		return Key{Type: Quarterly, FiscalYear: expandYear(m[2]), Quarter: q}, nil
	}
	if m := reQuarterRev.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		return Key{Type: Quarterly, FiscalYear: expandYear(m[2]), Quarter: q}, nil
	}
	if m := reYearEnded.FindStringSubmatch(text); m != nil {
		year, _, err := parseDate(m[1])
		if err != nil {
			return Key{}, err
		}
		return Key{Type: Annual, FiscalYear: year}, nil
	}
	if m := reQtrEnded.FindStringSubmatch(text); m != nil {
		year, month, err := parseDate(m[1])
		if err != nil {
			return Key{}, err
		}
		return Key{Type: Quarterly, FiscalYear: year, Quarter: (month-1)/3 + 1}, nil
	}
	if m := reMonthDay.FindStringSubmatch(text); m != nil {
		// A bare month-day-year header is a balance sheet "as of" date.
		year, _ := strconv.Atoi(m[3])
		return Key{Type: Annual, FiscalYear: year}, nil
	}
	if reDateNum.MatchString(text) {
		year, _, err := parseDate(text)
		if err != nil {
			return Key{}, err
		}
		return Key{Type: Annual, FiscalYear: year}, nil
	}
	if m := reBareYear.FindStringSubmatch(text); m != nil {
		// No fiscal-year-end context: keep it, flag it, let the
		// confidence engine discount downstream fields.
		year, _ := strconv.Atoi(m[1])
		return Key{Type: Annual, FiscalYear: year, Ambiguous: true}, nil
	}

	return Key{}, fmt.Errorf("%w: unrecognized period header", common.ErrInvalidInput)
}

// parseDate extracts (year, month) from a date tail like
// "December 31, 2023" or "3/31/2024".
func parseDate(tail string) (int, int, error) {
	tail = strings.TrimSpace(tail)
	if m := reMonthDay.FindStringSubmatch(tail); m != nil {
		year, _ := strconv.Atoi(m[3])
		return year, monthNumbers[strings.ToLower(m[1])], nil
	}
	if m := reDateNum.FindStringSubmatch(tail); m != nil {
		year, _ := strconv.Atoi(m[3])
		month, _ := strconv.Atoi(m[1])
		if month < 1 || month > 12 {
			return 0, 0, fmt.Errorf("%w: month out of range in %q", common.ErrInvalidInput, tail)
		}
		return year, month, nil
	}
	return 0, 0, fmt.Errorf("%w: unparseable date %q", common.ErrInvalidInput, tail)
}

// expandYear turns a two-digit year into the 2000s.
func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if y < 100 {
		y += 2000
	}
	return y
}

// Previous returns the immediately preceding period of the same type,
// used by the cash-flow roll-forward check.
func (k Key) Previous() Key {
	prev := k
	if k.Type == Quarterly {
		if k.Quarter == 1 {
			prev.Quarter = 4
			prev.FiscalYear--
		} else {
			prev.Quarter--
		}
		return prev
	}
	prev.FiscalYear--
	return prev
}
