package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Span is a fixed-width column: rune offsets, start inclusive, end exclusive.
type Span struct {
	Start int `yaml:"start" json:"start" validate:"gte=0"`
	End   int `yaml:"end" json:"end" validate:"gtfield=Start"`
}

// Layout describes how the lines of one file family split into fields.
// Exactly one of Delimiter and Columns is set.
type Layout struct {
	ID      string   `yaml:"id" json:"id" validate:"required"`
	Pattern string   `yaml:"pattern" json:"pattern" validate:"required"`
	Fields  []string `yaml:"fields" json:"fields" validate:"required,min=1,dive,required"`

	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty" validate:"omitempty,len=1"`
	Columns   []Span `yaml:"columns,omitempty" json:"columns,omitempty" validate:"dive"`

	Encoding  string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	SkipLines int    `yaml:"skip_lines,omitempty" json:"skip_lines,omitempty" validate:"gte=0"`

	// IgnoreExtraValues drops values past the last field instead of failing
	// the file, for feeds that end every line with a delimiter.
	IgnoreExtraValues bool `yaml:"ignore_extra_values,omitempty" json:"ignore_extra_values,omitempty"`

	// DecimalSeparator replaces "." when parsing floats (e.g. "," for 1234,5).
	DecimalSeparator string `yaml:"decimal_separator,omitempty" json:"decimal_separator,omitempty" validate:"omitempty,len=1"`

	// DateFormat is a strftime-style format for timestamp fields (e.g. %Y-%m-%d).
	DateFormat string `yaml:"date_format,omitempty" json:"date_format,omitempty"`
}

// FixedWidth reports whether the layout slices lines by column spans.
func (l Layout) FixedWidth() bool {
	return len(l.Columns) > 0
}

// Field is one named value of a record.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered field list. It encodes as a JSON object whose keys
// keep their order.
type Fields []Field

// MarshalJSON implements json.Marshaler.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers decode as json.Number
// so integers survive a staging round trip unchanged.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// Record is one decoded line.
type Record struct {
	Line   int    `json:"line"`
	Fields Fields `json:"fields"`
}

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// StagedArtifact is the decoded form of one source file, waiting to be persisted.
type StagedArtifact struct {
	Source     string    `json:"source"`
	SourcePath string    `json:"source_path"`
	Layout     string    `json:"layout"`
	Checksum   string    `json:"checksum"`
	DecodedAt  time.Time `json:"decoded_at"`
	Records    []Record  `json:"records"`
}
