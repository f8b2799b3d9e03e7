package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TransformID names one of the built-in custom transforms.
type TransformID string

const (
	TransformNone         TransformID = ""
	TransformCurrency     TransformID = "currency"
	TransformDayMonthYear TransformID = "dmy-date"
)

// TransformFunc converts raw text into a value or fails.
type TransformFunc func(raw string) (any, error)

// transforms is the closed set of custom transforms. Rules refer to them by id.
var transforms = map[TransformID]TransformFunc{
	TransformCurrency: func(raw string) (any, error) {
		return ParseCurrency(raw)
	},
	TransformDayMonthYear: func(raw string) (any, error) {
		return ParseDayMonthYear(raw)
	},
}

// Transforms lists the ids of the built-in transforms.
func Transforms() []TransformID {
	return []TransformID{TransformCurrency, TransformDayMonthYear}
}

// ParseCurrency converts currency-formatted text such as "$1,234.56" to a
// float. Dollar, euro and pound signs and thousands separators are removed;
// accounting parentheses "(12.50)" mean negative. Anything else that is not
// a plain number is rejected.
func ParseCurrency(s string) (float64, error) {
	orig := s
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if s == "" {
		return 0, fmt.Errorf("invalid currency amount %q: no digits", orig)
	}
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid currency amount %q", orig)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid currency amount %q: %w", orig, err)
	}
	if negative {
		f = -f
	}
	return f, nil
}

// ParseDayMonthYear converts a day/month/year date such as "25/12/2023"
// into the canonical timestamp "2023-12-25T00:00:00". Out-of-range days
// and months are rejected.
func ParseDayMonthYear(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("2/1/2006", s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, want dd/mm/yyyy: %w", s, err)
	}
	return t.Format(CanonicalTimestamp), nil
}
