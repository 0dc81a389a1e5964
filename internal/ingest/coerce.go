package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var levelPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// parsePrice turns the first comma into a decimal point and reads the
// longest numeric prefix. Anything unparseable, negative or infinite is 0,
// so "1.234,56" yields 1.234 and "$10" yields 0.
func parsePrice(raw string) float64 {
	v, ok := parseNumericPrefix(strings.Replace(raw, ",", ".", 1))
	if !ok || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// parseNumericPrefix reads an optionally signed decimal with an optional
// exponent from the start of s, ignoring whatever follows it.
func parseNumericPrefix(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	var b strings.Builder
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		b.WriteByte(s[i])
		i++
	}

	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intPart := s[start:i]

	var fracPart string
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracPart = s[i+1 : j]
		if intPart != "" || fracPart != "" {
			i = j
		}
	}
	if intPart == "" && fracPart == "" {
		return 0, false
	}

	if intPart == "" {
		intPart = "0"
	}
	b.WriteString(intPart)
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		sign := ""
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			sign = s[j : j+1]
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > expStart {
			b.WriteByte('e')
			b.WriteString(sign)
			b.WriteString(s[expStart:j])
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// parseIVA reports whether the tax code marks the reduced rate.
func parseIVA(raw string) bool {
	return strings.TrimSpace(raw) == "2"
}

// parseLevel accepts only plain non-negative decimals and truncates them.
func parseLevel(raw string) *int {
	raw = strings.TrimSpace(raw)
	if !levelPattern.MatchString(raw) {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v > math.MaxInt32 {
		return nil
	}
	level := int(v)
	return &level
}

func optionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
