package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column is a canonical field a variant reads from the header row.
type Column struct {
	Name     string
	Required bool
}

// Matcher locates a canonical column among the header cells. It returns
// the header index or -1.
type Matcher interface {
	Match(column string, headers []string) int
}

// ExactMatcher compares trimmed headers case-insensitively.
type ExactMatcher struct{}

func (ExactMatcher) Match(column string, headers []string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			return i
		}
	}
	return -1
}

// AliasMatcher accepts known alternative spellings of a column, typically
// headers that went through a lossy encoding round trip.
type AliasMatcher map[string][]string

func (a AliasMatcher) Match(column string, headers []string) int {
	for _, alias := range a[column] {
		if i := (ExactMatcher{}).Match(alias, headers); i >= 0 {
			return i
		}
	}
	return -1
}

// NormalizedMatcher compares headers after folding diacritics and removing
// whitespace and periods, so "Pr. Público" matches "PR PUBLICO".
type NormalizedMatcher struct{}

func (NormalizedMatcher) Match(column string, headers []string) int {
	want := normalizeKey(column)
	for i, h := range headers {
		if normalizeKey(h) == want {
			return i
		}
	}
	return -1
}

func normalizeKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '.' {
			return -1
		}
		return r
	}, folded)
	return strings.ToUpper(folded)
}

// resolveColumns maps each column to a header index by trying the matchers
// in order. Unresolved optional columns are absent from the result.
func resolveColumns(columns []Column, headers []string, matchers []Matcher) (map[string]int, error) {
	index := make(map[string]int, len(columns))
	var missing []string
	for _, col := range columns {
		found := -1
		for _, m := range matchers {
			if found = m.Match(col.Name, headers); found >= 0 {
				break
			}
		}
		switch {
		case found >= 0:
			index[col.Name] = found
		case col.Required:
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		return nil, missingColumnsError(missing)
	}
	return index, nil
}

// Row gives access to one data row by canonical column name.
type Row struct {
	Number int
	cells  []string
	index  map[string]int
}

// Get returns the trimmed cell for a column, or "" when the column was not
// found or the row is short.
func (r Row) Get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}
