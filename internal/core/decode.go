package core

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Decoder turns the text of one file into records according to a layout.
type Decoder struct {
	Conversions *ConversionRegistry

	// Strict reports primitive conversion failures instead of keeping raw text.
	Strict bool

	// Now stamps staged artifacts. Defaults to time.Now.
	Now func() time.Time
}

// NewDecoder creates a decoder using the given conversion rules.
func NewDecoder(conversions *ConversionRegistry, strict bool) *Decoder {
	return &Decoder{Conversions: conversions, Strict: strict, Now: time.Now}
}

// Decode reads every line of r and returns one record per non-blank data
// line. A file with only skipped or blank lines yields an empty slice.
// The first failing line aborts the whole file.
func (d *Decoder) Decode(l Layout, r io.Reader) ([]Record, error) {
	enc, err := lookupEncoding(l.Encoding)
	if err != nil {
		return nil, &Error{Kind: KindEncoding, Err: err}
	}

	lr := bufio.NewReader(openText(r, enc))
	records := []Record{}
	lineNo := 0

	for {
		line, readErr := lr.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, &Error{Kind: KindEncoding, Line: lineNo + 1, Err: readErr}
		}
		if line == "" && readErr == io.EOF {
			break
		}
		lineNo++

		if enc == nil && !utf8.ValidString(line) {
			return nil, &Error{Kind: KindEncoding, Line: lineNo, Err: fmt.Errorf("invalid utf-8")}
		}
		if enc != nil && strings.ContainsRune(line, utf8.RuneError) {
			return nil, &Error{Kind: KindEncoding, Line: lineNo, Err: fmt.Errorf("bytes not valid in %s", l.Encoding)}
		}

		if lineNo > l.SkipLines {
			rec, err := d.decodeLine(l, line, lineNo)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				records = append(records, *rec)
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	return records, nil
}

// decodeLine returns nil for blank lines.
func (d *Decoder) decodeLine(l Layout, line string, lineNo int) (*Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	var values []string
	if l.FixedWidth() {
		// Column offsets count from the first non-blank character.
		values = sliceColumns(trimmed, l.Columns)
	} else {
		values = strings.Split(trimmed, l.Delimiter)
	}

	if len(values) > len(l.Fields) && l.IgnoreExtraValues {
		values = values[:len(l.Fields)]
	}
	if len(values) != len(l.Fields) {
		return nil, &Error{
			Kind: KindFieldCountMismatch,
			Line: lineNo,
			Err:  fmt.Errorf("expected %d fields, got %d", len(l.Fields), len(values)),
		}
	}

	rec := &Record{Line: lineNo, Fields: make(Fields, len(l.Fields))}
	for i, name := range l.Fields {
		v, err := d.Conversions.Convert(l, name, values[i], d.Strict)
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.Line = lineNo
			}
			return nil, err
		}
		rec.Fields[i] = Field{Name: name, Value: v}
	}
	return rec, nil
}

// sliceColumns cuts line at rune offsets. Spans past the end of the line
// produce empty values.
func sliceColumns(line string, spans []Span) []string {
	runes := []rune(line)
	out := make([]string, len(spans))
	for i, sp := range spans {
		start, end := min(sp.Start, len(runes)), min(sp.End, len(runes))
		out[i] = strings.TrimSpace(string(runes[start:end]))
	}
	return out
}

// DecodeFile decodes the file at path into a staged artifact. The
// checksum covers the raw bytes as delivered.
func (d *Decoder) DecodeFile(l Layout, path string) (*StagedArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	records, err := d.Decode(l, io.TeeReader(f, h))
	if err != nil {
		return nil, WithFile(err, filepath.Base(path))
	}
	// Drain whatever the decoder did not need so the checksum is complete.
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	return &StagedArtifact{
		Source:     filepath.Base(path),
		SourcePath: path,
		Layout:     l.ID,
		Checksum:   hex.EncodeToString(h.Sum(nil)),
		DecodedAt:  now().UTC(),
		Records:    records,
	}, nil
}
