package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and the delimiter/columns exclusivity.
func (l Layout) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("layout %q: %w", l.ID, err)
	}

	hasDelim := l.Delimiter != ""
	hasCols := len(l.Columns) > 0
	switch {
	case hasDelim && hasCols:
		return fmt.Errorf("layout %q: delimiter and columns are mutually exclusive", l.ID)
	case !hasDelim && !hasCols:
		return fmt.Errorf("layout %q: one of delimiter or columns is required", l.ID)
	case hasCols && len(l.Columns) != len(l.Fields):
		return fmt.Errorf("layout %q: %d columns for %d fields", l.ID, len(l.Columns), len(l.Fields))
	}

	if _, err := lookupEncoding(l.Encoding); err != nil {
		return fmt.Errorf("layout %q: %w", l.ID, err)
	}
	return nil
}

type registeredLayout struct {
	layout  Layout
	pattern *regexp.Regexp
}

// LayoutRegistry holds the layouts known to the process, in registration
// order. It is populated at startup and read-only afterwards.
type LayoutRegistry struct {
	layouts []registeredLayout
	byID    map[string]int
}

// NewLayoutRegistry returns an empty registry.
func NewLayoutRegistry() *LayoutRegistry {
	return &LayoutRegistry{byID: make(map[string]int)}
}

// Register validates and adds a layout. The pattern must match the whole
// base file name.
func (r *LayoutRegistry) Register(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if _, exists := r.byID[l.ID]; exists {
		return fmt.Errorf("layout already registered: %s", l.ID)
	}

	re, err := regexp.Compile(`^(?:` + l.Pattern + `)$`)
	if err != nil {
		return fmt.Errorf("layout %q: bad pattern: %w", l.ID, err)
	}

	l.Fields = append([]string(nil), l.Fields...)
	l.Columns = append([]Span(nil), l.Columns...)

	r.byID[l.ID] = len(r.layouts)
	r.layouts = append(r.layouts, registeredLayout{layout: l, pattern: re})
	return nil
}

// RegisterAll registers each layout and reports every failure together.
func (r *LayoutRegistry) RegisterAll(layouts []Layout) error {
	var errs []error
	for _, l := range layouts {
		if err := r.Register(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a layout by id.
func (r *LayoutRegistry) Get(id string) (Layout, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Layout{}, false
	}
	return r.layouts[i].layout, true
}

// All returns every layout in registration order.
func (r *LayoutRegistry) All() []Layout {
	out := make([]Layout, len(r.layouts))
	for i, rl := range r.layouts {
		out[i] = rl.layout
	}
	return out
}

// Len returns the number of registered layouts.
func (r *LayoutRegistry) Len() int {
	return len(r.layouts)
}

// Classify selects the layout for a file name. Only the base name is
// matched; the first registered pattern that matches wins. It never
// touches the filesystem.
func (r *LayoutRegistry) Classify(filename string) (Layout, error) {
	base := filepath.Base(filename)
	for _, rl := range r.layouts {
		if rl.pattern.MatchString(base) {
			return rl.layout, nil
		}
	}
	return Layout{}, &Error{Kind: KindUnrecognizedFileType, File: base}
}

// Matches returns the ids of every layout whose pattern matches filename.
// More than one id means the registry is misconfigured.
func (r *LayoutRegistry) Matches(filename string) []string {
	base := filepath.Base(filename)
	var ids []string
	for _, rl := range r.layouts {
		if rl.pattern.MatchString(base) {
			ids = append(ids, rl.layout.ID)
		}
	}
	return ids
}

// Describe renders a one-line summary of a layout for operators.
func Describe(l Layout) string {
	split := fmt.Sprintf("delimiter %q", l.Delimiter)
	if l.FixedWidth() {
		spans := make([]string, len(l.Columns))
		for i, c := range l.Columns {
			spans[i] = fmt.Sprintf("%d-%d", c.Start, c.End)
		}
		split = "columns " + strings.Join(spans, ",")
	}
	enc := l.Encoding
	if enc == "" {
		enc = "utf-8"
	}
	return fmt.Sprintf("%s: /%s/ %s, %s, skip %d, fields %s",
		l.ID, l.Pattern, split, enc, l.SkipLines, strings.Join(l.Fields, ","))
}
