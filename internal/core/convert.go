package core

// convert.go turns raw field text into typed values.
//
// Each field name resolves to a Rule: a primitive FieldType, optionally a
// named custom transform from a fixed set, and a strictness flag. Transforms
// always fail loudly. Primitive conversions are lenient by default: a value
// that does not parse is kept as its trimmed raw text, which keeps dirty
// deliveries flowing at the price of type safety. Strict rules (or a strict
// Decoder) turn those failures into KindConversion errors instead.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CanonicalTimestamp is the layout every timestamp value is rendered in.
const CanonicalTimestamp = "2006-01-02T15:04:05"

// FieldType is the primitive type of a field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInteger
	FieldFloat
	FieldTimestamp
)

var fieldTypeNames = map[FieldType]string{
	FieldText:      "text",
	FieldInteger:   "integer",
	FieldFloat:     "float",
	FieldTimestamp: "timestamp",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	switch s {
	case "int", "integer":
		*t = FieldInteger
		return nil
	case "float", "number", "numeric":
		*t = FieldFloat
		return nil
	case "datetime", "timestamp", "date":
		*t = FieldTimestamp
		return nil
	case "", "text", "str", "string":
		*t = FieldText
		return nil
	}
	return fmt.Errorf("unknown field type %q", s)
}

// Rule is the conversion strategy for one field.
type Rule struct {
	Type      FieldType   `yaml:"type" json:"type"`
	Transform TransformID `yaml:"transform,omitempty" json:"transform,omitempty"`
	Strict    bool        `yaml:"strict,omitempty" json:"strict,omitempty"`
}

// ConversionRegistry maps field names to rules. Fields without a rule are
// lenient text.
type ConversionRegistry struct {
	rules map[string]Rule
}

// NewConversionRegistry returns an empty registry.
func NewConversionRegistry() *ConversionRegistry {
	return &ConversionRegistry{rules: make(map[string]Rule)}
}

// Register sets the rule for a field. The transform must be one of the
// built-in transforms.
func (c *ConversionRegistry) Register(field string, rule Rule) error {
	if field == "" {
		return fmt.Errorf("conversion rule needs a field name")
	}
	if _, ok := fieldTypeNames[rule.Type]; !ok {
		return fmt.Errorf("field %q: unknown type %d", field, rule.Type)
	}
	if rule.Transform != TransformNone {
		if _, ok := transforms[rule.Transform]; !ok {
			return fmt.Errorf("field %q: unknown transform %q", field, rule.Transform)
		}
	}
	c.rules[field] = rule
	return nil
}

// Resolve returns the rule for a field.
func (c *ConversionRegistry) Resolve(field string) Rule {
	if c == nil {
		return Rule{Type: FieldText}
	}
	if rule, ok := c.rules[field]; ok {
		return rule
	}
	return Rule{Type: FieldText}
}

// Rules returns a copy of the registered rules.
func (c *ConversionRegistry) Rules() map[string]Rule {
	out := make(map[string]Rule, len(c.rules))
	for k, v := range c.rules {
		out[k] = v
	}
	return out
}

// Convert applies the field's rule to raw. strict forces primitive failures
// to be reported even when the rule itself is lenient.
func (c *ConversionRegistry) Convert(l Layout, field, raw string, strict bool) (any, error) {
	rule := c.Resolve(field)

	if rule.Transform != TransformNone {
		v, err := transforms[rule.Transform](raw)
		if err != nil {
			return nil, &Error{Kind: KindCustomTransform, Field: field, Value: raw, Err: err}
		}
		return v, nil
	}

	v, err := convertPrimitive(l, rule.Type, raw)
	if err == nil {
		return v, nil
	}
	if strict || rule.Strict {
		return nil, &Error{Kind: KindConversion, Field: field, Value: raw, Err: err}
	}
	return strings.TrimSpace(raw), nil
}

func convertPrimitive(l Layout, t FieldType, raw string) (any, error) {
	switch t {
	case FieldInteger:
		return ParseInteger(raw)
	case FieldFloat:
		return ParseFloat(raw, l.DecimalSeparator)
	case FieldTimestamp:
		return ParseTimestamp(raw, l.DateFormat)
	default:
		return raw, nil
	}
}

// ParseInteger parses a base-10 integer, ignoring surrounding whitespace.
func ParseInteger(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid integer: empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// ParseFloat parses a decimal number. With a decimal separator other than
// ".", dots are read as thousands separators.
func ParseFloat(s, decimalSep string) (float64, error) {
	s = strings.TrimSpace(s)
	if decimalSep != "" && decimalSep != "." {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, decimalSep, ".")
	}
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}

type timestampLayout struct {
	layout string
	zoned  bool
}

// Layouts tried when a layout declares no date format. Slash-separated
// day/month orders are deliberately absent: they are ambiguous.
var defaultTimestampLayouts = []timestampLayout{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
	{"2006/01/02", false},
	{"2006.01.02", false},
	{"20060102", false},
	{"Jan 2, 2006", false},
	{"2 Jan 2006", false},
}

// ParseTimestamp parses s with the strftime-style format, or with the
// default layouts when format is empty, and returns the canonical form.
func ParseTimestamp(s, format string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("invalid date: empty")
	}

	if format != "" {
		layout, err := StrftimeToLayout(format)
		if err != nil {
			return "", err
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return "", fmt.Errorf("invalid date %q for format %q", s, format)
		}
		return t.Format(CanonicalTimestamp), nil
	}

	for _, tl := range defaultTimestampLayouts {
		t, err := time.Parse(tl.layout, s)
		if err != nil {
			continue
		}
		if tl.zoned {
			return t.Format(time.RFC3339), nil
		}
		return t.Format(CanonicalTimestamp), nil
	}
	return "", fmt.Errorf("invalid date %q", s)
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// StrftimeToLayout converts a strftime-style format such as "%d/%m/%Y"
// into a Go time layout.
func StrftimeToLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("date format %q ends with %%", format)
		}
		i++
		repl, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("date format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(repl)
	}
	return b.String(), nil
}
