package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures by how the pipeline reacts to them.
type ErrorKind string

const (
	// Fatal for the run.
	KindConnection  ErrorKind = "connection"
	KindPersistence ErrorKind = "persistence"

	// Per file; the file is kept for the next run.
	KindTransfer        ErrorKind = "transfer"
	KindTransferTimeout ErrorKind = "transfer_timeout"
	KindExtraction      ErrorKind = "extraction"

	// Per file decode failures.
	KindUnrecognizedFileType ErrorKind = "unrecognized_file_type"
	KindFieldCountMismatch   ErrorKind = "field_count_mismatch"
	KindEncoding             ErrorKind = "encoding"
	KindCustomTransform      ErrorKind = "custom_transform"
	KindConversion           ErrorKind = "conversion"
)

// Fatal reports whether errors of this kind abort the whole run.
func (k ErrorKind) Fatal() bool {
	return k == KindConnection || k == KindPersistence
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrConnection           = &Error{Kind: KindConnection}
	ErrPersistence          = &Error{Kind: KindPersistence}
	ErrTransfer             = &Error{Kind: KindTransfer}
	ErrTransferTimeout      = &Error{Kind: KindTransferTimeout}
	ErrExtraction           = &Error{Kind: KindExtraction}
	ErrUnrecognizedFileType = &Error{Kind: KindUnrecognizedFileType}
	ErrFieldCountMismatch   = &Error{Kind: KindFieldCountMismatch}
	ErrEncoding             = &Error{Kind: KindEncoding}
	ErrCustomTransform      = &Error{Kind: KindCustomTransform}
	ErrConversion           = &Error{Kind: KindConversion}
)

// Error is the single error type of the ingestion core. The optional fields
// locate the failure: which file, which line, which field and raw value.
type Error struct {
	Kind  ErrorKind
	File  string
	Line  int
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.File != "" {
		fmt.Fprintf(&b, " in %s", e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.File == "" && t.Line == 0 && t.Field == "" && t.Err == nil
}

// NewError wraps err with a kind and the file it concerns.
func NewError(kind ErrorKind, file string, err error) *Error {
	return &Error{Kind: kind, File: file, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithFile returns err annotated with file when it is an *Error lacking one.
func WithFile(err error, file string) error {
	var e *Error
	if errors.As(err, &e) && e.File == "" {
		cp := *e
		cp.File = file
		return &cp
	}
	return err
}
