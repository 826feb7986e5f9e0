// Package taxonomy maps free-text financial line-item labels onto a fixed
// set of canonical concepts. The alias table is static data (taxonomy.yaml)
// so it is testable and extensible without touching pipeline code; matching
// is deterministic.
package taxonomy

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"gopkg.in/yaml.v2"

	"finspread/constants"
	"finspread/internal/common"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// DefaultFloor is the minimum fuzzy-match confidence before the mapper
// refuses to guess and returns an AmbiguousMatchError instead.
const DefaultFloor = 0.8

// prefixConfidence is assigned when a label starts with a known alias.
const prefixConfidence = 0.9

// Match is a resolved canonical label with its provenance.
type Match struct {
	Canonical  string
	Statement  constants.StatementType
	Method     string // "xbrl_tag" | "exact" | "prefix" | "fuzzy"
	Confidence float64
}

// Candidate is one scored alternative inside an AmbiguousMatchError.
type Candidate struct {
	Canonical string
	Statement constants.StatementType
	Score     float64
}

// AmbiguousMatchError reports that no candidate cleared the confidence
// floor; it carries the top-k alternatives so callers can surface them
// instead of guessing.
type AmbiguousMatchError struct {
	RawLabel   string
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous taxonomy match for %q (%d candidates)", e.RawLabel, len(e.Candidates))
}

func (e *AmbiguousMatchError) Unwrap() error { return common.ErrAmbiguousMatch }

type xbrlEntry struct {
	Label     string `yaml:"label"`
	Statement string `yaml:"statement"`
}

type tableData struct {
	IncomeStatement map[string]string    `yaml:"income_statement"`
	BalanceSheet    map[string]string    `yaml:"balance_sheet"`
	CashFlow        map[string]string    `yaml:"cash_flow"`
	XBRLTags        map[string]xbrlEntry `yaml:"xbrl_tags"`
}

type aliasSet struct {
	statement constants.StatementType
	aliases   map[string]string
	keys      []string // sorted, for deterministic iteration
}

// Mapper resolves raw labels against the embedded alias table.
type Mapper struct {
	sets  []aliasSet
	xbrl  map[string]Match
	floor float64
}

// NewMapper loads the embedded table. floor <= 0 selects DefaultFloor.
func NewMapper(floor float64) (*Mapper, error) {
	if floor <= 0 {
		floor = DefaultFloor
	}
	var data tableData
	if err := yaml.Unmarshal(taxonomyYAML, &data); err != nil {
		return nil, fmt.Errorf("parse taxonomy table: %w", err)
	}

	m := &Mapper{floor: floor, xbrl: make(map[string]Match, len(data.XBRLTags))}
	for _, s := range []struct {
		stmt    constants.StatementType
		aliases map[string]string
	}{
		{constants.StatementIncome, data.IncomeStatement},
		{constants.StatementBalance, data.BalanceSheet},
		{constants.StatementCashFlow, data.CashFlow},
	} {
		// Alias keys are normalized on load so lookups and table entries
		// share one canonical form. First writer wins on collisions, in
		// sorted raw-key order, so loading is deterministic.
		raw := make([]string, 0, len(s.aliases))
		for k := range s.aliases {
			raw = append(raw, k)
		}
		sort.Strings(raw)
		aliases := make(map[string]string, len(s.aliases))
		for _, k := range raw {
			nk := NormalizeLabel(k)
			if nk == "" {
				continue
			}
			if _, exists := aliases[nk]; !exists {
				aliases[nk] = s.aliases[k]
			}
		}
		keys := make([]string, 0, len(aliases))
		for k := range aliases {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m.sets = append(m.sets, aliasSet{statement: s.stmt, aliases: aliases, keys: keys})
	}
	for tag, e := range data.XBRLTags {
		m.xbrl[tag] = Match{
			Canonical:  e.Label,
			Statement:  constants.StatementType(e.Statement),
			Method:     "xbrl_tag",
			Confidence: 1.0,
		}
	}
	return m, nil
}

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reFootnote = regexp.MustCompile(`\s*\(\d+\)\s*$`)
	reTrailNum = regexp.MustCompile(`\s*\d+$`)
)

// NormalizeLabel lowercases, strips punctuation noise and footnote
// references, and collapses whitespace.
func NormalizeLabel(label string) string {
	n := strings.ToLower(strings.TrimSpace(label))
	n = reFootnote.ReplaceAllString(n, "")
	n = reSpaces.ReplaceAllString(n, " ")
	for _, ch := range []string{",", ".", ":", "$", "(", ")"} {
		n = strings.ReplaceAll(n, ch, "")
	}
	n = reTrailNum.ReplaceAllString(n, "")
	return strings.Trim(n, "-_ ")
}

var stopWords = map[string]struct{}{
	"and": {}, "the": {}, "of": {}, "or": {}, "in": {}, "for": {},
	"to": {}, "from": {}, "at": {}, "on": {}, "by": {}, "net": {}, "total": {},
}

var reTokenSplit = regexp.MustCompile(`[\s&/\-_]+`)

func tokenize(label string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range reTokenSplit.Split(strings.ToLower(label), -1) {
		if t == "" {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		tokens[t] = struct{}{}
	}
	return tokens
}

// tokenOverlap is a Jaccard score over meaningful tokens.
func tokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Map resolves rawLabel to a canonical label. hint narrows the search to a
// single statement's aliases when the caller already knows the statement;
// StatementUnknown searches all three in income/balance/cash-flow order.
//
// Matching order: XBRL element tag, exact alias, alias prefix, fuzzy.
// A fuzzy score below the floor returns *AmbiguousMatchError with the
// top-3 candidates; the caller must surface it, never guess.
func (m *Mapper) Map(rawLabel string, hint constants.StatementType) (Match, error) {
	// XBRL element names arrive CamelCase, possibly namespaced.
	tag := strings.TrimSpace(rawLabel)
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		tag = tag[i+1:]
	}
	if match, ok := m.xbrl[tag]; ok {
		if hint == constants.StatementUnknown || hint == "" || hint == match.Statement {
			return match, nil
		}
	}

	normalized := NormalizeLabel(rawLabel)
	if normalized == "" {
		return Match{}, fmt.Errorf("%w: empty label", common.ErrMissingRequiredField)
	}
	sets := m.setsFor(hint)

	// Exact.
	for _, s := range sets {
		if canonical, ok := s.aliases[normalized]; ok {
			return Match{Canonical: canonical, Statement: s.statement, Method: "exact", Confidence: 1.0}, nil
		}
	}

	// Prefix.
	for _, s := range sets {
		for _, key := range s.keys {
			if strings.HasPrefix(normalized, key) {
				return Match{
					Canonical:  s.aliases[key],
					Statement:  s.statement,
					Method:     "prefix",
					Confidence: prefixConfidence,
				}, nil
			}
		}
	}

	// Fuzzy: token overlap blended with edit-distance similarity.
	labelTokens := tokenize(normalized)
	var candidates []Candidate
	for _, s := range sets {
		for _, key := range s.keys {
			score := tokenOverlap(labelTokens, tokenize(key))
			if sim := levenshtein.Similarity(normalized, key, nil); sim > score {
				score = sim
			}
			if score <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				Canonical: s.aliases[key],
				Statement: s.statement,
				Score:     score,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Canonical < candidates[j].Canonical
	})
	candidates = dedupeCandidates(candidates)

	if len(candidates) > 0 && candidates[0].Score >= m.floor {
		best := candidates[0]
		return Match{
			Canonical:  best.Canonical,
			Statement:  best.Statement,
			Method:     "fuzzy",
			Confidence: best.Score,
		}, nil
	}

	topK := candidates
	if len(topK) > 3 {
		topK = topK[:3]
	}
	return Match{}, &AmbiguousMatchError{RawLabel: rawLabel, Candidates: topK}
}

func (m *Mapper) setsFor(hint constants.StatementType) []aliasSet {
	for _, s := range m.sets {
		if s.statement == hint {
			return []aliasSet{s}
		}
	}
	return m.sets
}

func dedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, ok := seen[c.Canonical]; ok {
			continue
		}
		seen[c.Canonical] = struct{}{}
		out = append(out, c)
	}
	return out
}
