package core

import (
	"errors"
	"testing"
)

// ----------------------------------------------------------------------------
// ParseCurrency Tests
// ----------------------------------------------------------------------------

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		// Valid
		{name: "dollar with thousands", input: "$1,234.56", want: 1234.56},
		{name: "plain number", input: "99.5", want: 99.5},
		{name: "euro sign", input: "€1234.56", want: 1234.56},
		{name: "pound sign", input: "£1234.56", want: 1234.56},
		{name: "accounting negative", input: "($12.50)", want: -12.5},
		{name: "leading minus", input: "-$3", want: -3},
		{name: "surrounding whitespace", input: "  $7.00 ", want: 7},

		// Invalid
		{name: "letters after symbol", input: "$abc", wantErr: true},
		{name: "only symbol", input: "$", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrency(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCurrency(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCurrency(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCurrency(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDayMonthYear Tests
// ----------------------------------------------------------------------------

func TestParseDayMonthYear(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "25/12/2023", want: "2023-12-25T00:00:00"},
		{input: "1/2/2024", want: "2024-02-01T00:00:00"},
		{input: "29/02/2024", want: "2024-02-29T00:00:00"},
		{input: "32/01/2023", wantErr: true},
		{input: "12/13/2023", wantErr: true},
		{input: "29/02/2023", wantErr: true},
		{input: "2023-12-25", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDayMonthYear(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDayMonthYear(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDayMonthYear(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Primitive Parser Tests
// ----------------------------------------------------------------------------

func TestParseInteger(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "42", want: 42},
		{input: " -7 ", want: -7},
		{input: "+3", want: 3},
		{input: "4.5", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseInteger(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInteger(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInteger(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		sep     string
		want    float64
		wantErr bool
	}{
		{name: "dot decimal", input: "12.5", want: 12.5},
		{name: "explicit dot", input: "12.5", sep: ".", want: 12.5},
		{name: "comma decimal", input: "12,5", sep: ",", want: 12.5},
		{name: "comma decimal with thousands", input: "1.234,5", sep: ",", want: 1234.5},
		{name: "scientific", input: "1e3", want: 1000},
		{name: "comma without separator", input: "12,5", wantErr: true},
		{name: "garbage", input: "n/a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloat(tt.input, tt.sep)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFloat(%q, %q) error = %v, wantErr %v", tt.input, tt.sep, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFloat(%q, %q) = %v, want %v", tt.input, tt.sep, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  string
		want    string
		wantErr bool
	}{
		{name: "iso date", input: "2024-03-01", want: "2024-03-01T00:00:00"},
		{name: "iso datetime space", input: "2024-03-01 10:20:30", want: "2024-03-01T10:20:30"},
		{name: "rfc3339 keeps zone", input: "2024-03-01T10:20:30Z", want: "2024-03-01T10:20:30Z"},
		{name: "compact", input: "20240301", want: "2024-03-01T00:00:00"},
		{name: "strftime format", input: "01/03/2024", format: "%d/%m/%Y", want: "2024-03-01T00:00:00"},
		{name: "strftime with time", input: "2024-03-01 07:05", format: "%Y-%m-%d %H:%M", want: "2024-03-01T07:05:00"},
		{name: "ambiguous slashes rejected", input: "01/03/2024", wantErr: true},
		{name: "format mismatch", input: "2024-03-01", format: "%d/%m/%Y", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q, %q) error = %v, wantErr %v", tt.input, tt.format, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTimestamp(%q, %q) = %q, want %q", tt.input, tt.format, got, tt.want)
			}
		})
	}
}

func TestStrftimeToLayout(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "%Y-%m-%d", want: "2006-01-02"},
		{format: "%d/%m/%y %H:%M:%S", want: "02/01/06 15:04:05"},
		{format: "100%%", want: "100%"},
		{format: "%Q", wantErr: true},
		{format: "%", wantErr: true},
	}

	for _, tt := range tests {
		got, err := StrftimeToLayout(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("StrftimeToLayout(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("StrftimeToLayout(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ConversionRegistry Tests
// ----------------------------------------------------------------------------

func TestConversionRegistry_Convert(t *testing.T) {
	conv := NewConversionRegistry()
	mustRegister := func(field string, r Rule) {
		t.Helper()
		if err := conv.Register(field, r); err != nil {
			t.Fatalf("Register(%q): %v", field, err)
		}
	}
	mustRegister("id", Rule{Type: FieldInteger})
	mustRegister("monto", Rule{Type: FieldFloat, Transform: TransformCurrency})
	mustRegister("fecha", Rule{Type: FieldTimestamp, Transform: TransformDayMonthYear})
	mustRegister("codigo", Rule{Type: FieldInteger, Strict: true})

	layout := Layout{ID: "t", DecimalSeparator: ","}

	tests := []struct {
		name     string
		field    string
		raw      string
		strict   bool
		want     any
		wantKind ErrorKind
	}{
		{name: "integer", field: "id", raw: "12", want: int64(12)},
		{name: "lenient integer keeps trimmed text", field: "id", raw: " x1 ", want: "x1"},
		{name: "strict decoder rejects integer", field: "id", raw: "x1", strict: true, wantKind: KindConversion},
		{name: "strict rule rejects", field: "codigo", raw: "x1", wantKind: KindConversion},
		{name: "currency transform", field: "monto", raw: "$1,234.56", want: 1234.56},
		{name: "currency transform fails", field: "monto", raw: "$abc", wantKind: KindCustomTransform},
		{name: "date transform", field: "fecha", raw: "25/12/2023", want: "2023-12-25T00:00:00"},
		{name: "date transform fails", field: "fecha", raw: "2023-12-25", wantKind: KindCustomTransform},
		{name: "unknown field stays text", field: "nombre", raw: " Ana ", want: " Ana "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.Convert(layout, tt.field, tt.raw, tt.strict)
			if tt.wantKind != "" {
				if KindOf(err) != tt.wantKind {
					t.Fatalf("Convert() error = %v, want kind %s", err, tt.wantKind)
				}
				var e *Error
				if errors.As(err, &e) && (e.Field != tt.field || e.Value != tt.raw) {
					t.Errorf("error names field %q value %q, want %q %q", e.Field, e.Value, tt.field, tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Convert() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConversionRegistry_RegisterRejectsUnknownTransform(t *testing.T) {
	conv := NewConversionRegistry()
	if err := conv.Register("x", Rule{Transform: "rot13"}); err == nil {
		t.Error("expected error for unknown transform")
	}
	if err := conv.Register("", Rule{}); err == nil {
		t.Error("expected error for empty field name")
	}
	if err := conv.Register("x", Rule{Type: FieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestConversionRegistry_NilResolvesText(t *testing.T) {
	var conv *ConversionRegistry
	if got := conv.Resolve("anything"); got.Type != FieldText {
		t.Errorf("Resolve on nil registry = %v, want text", got.Type)
	}
}

func TestFieldType_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    FieldType
		wantErr bool
	}{
		{in: "int", want: FieldInteger},
		{in: "Float", want: FieldFloat},
		{in: "date", want: FieldTimestamp},
		{in: "", want: FieldText},
		{in: "blob", wantErr: true},
	}
	for _, tt := range tests {
		var ft FieldType
		err := ft.UnmarshalText([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("UnmarshalText(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && ft != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, ft, tt.want)
		}
	}
}
