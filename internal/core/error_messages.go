package core

// error_messages.go maps failures to operator-facing messages with support codes.
//
// Codes appear in structured log entries ("code" attribute) and in run reports
// so an operator can look up what happened and what to do about it.
//
// # Ingestion Errors (by kind)
//
//	CON001 - Connection: transfer channel could not be established; run halted
//	XFR001 - Transfer: remote file could not be copied; kept remotely for next run
//	XFR002 - Transfer timeout: copy exceeded TRANSFER_TIMEOUT; kept remotely
//	EXT001 - Extraction: archive could not be expanded; archive kept locally
//	DEC001 - Unrecognized file type: no layout pattern matches the file name
//	DEC002 - Field count mismatch: a line split into the wrong number of fields
//	DEC003 - Encoding: bytes are invalid for the layout's declared encoding
//	DEC004 - Custom transform: a field transform rejected its input
//	DEC005 - Conversion: strict primitive conversion failed
//	PST001 - Persistence: store unavailable or insert failed; run halted
//
// # Foreign Errors (by pattern)
//
// Errors not produced by this package are matched case-insensitively with
// strings.Contains; the first matching pattern wins:
//
//	DB001 - duplicate key
//	DB004 - connection refused
//	DB005 - connection reset
//	DB006 - timeout
//	DB007 - deadlock
//	RUN001 - context canceled
//	RUN002 - context deadline exceeded
//	RUN003 - run already in progress
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check the logged technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides operator-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[ErrorKind]UserMessage{
	KindConnection: {
		Message: "Could not connect to the remote file server",
		Action:  "Check SFTP_HOST, credentials and network reachability",
		Code:    "CON001",
	},
	KindTransfer: {
		Message: "A remote file could not be copied",
		Action:  "The file stays on the server and is retried next run",
		Code:    "XFR001",
	},
	KindTransferTimeout: {
		Message: "A remote file copy timed out",
		Action:  "Raise TRANSFER_TIMEOUT or check bandwidth; the file is retried next run",
		Code:    "XFR002",
	},
	KindExtraction: {
		Message: "An archive could not be expanded",
		Action:  "Inspect the archive in the raw directory; it is retried next run",
		Code:    "EXT001",
	},
	KindUnrecognizedFileType: {
		Message: "No layout matches the file name",
		Action:  "Register a layout pattern for this file family",
		Code:    "DEC001",
	},
	KindFieldCountMismatch: {
		Message: "A line has the wrong number of fields",
		Action:  "Check the delimiter and the layout field list",
		Code:    "DEC002",
	},
	KindEncoding: {
		Message: "The file contains bytes invalid for its encoding",
		Action:  "Check the layout encoding against the delivered file",
		Code:    "DEC003",
	},
	KindCustomTransform: {
		Message: "A field value was rejected by its transform",
		Action:  "Fix the source value or the field's conversion rule",
		Code:    "DEC004",
	},
	KindConversion: {
		Message: "A field value could not be converted to its type",
		Action:  "Fix the source value or disable STRICT_CONVERSION",
		Code:    "DEC005",
	},
	KindPersistence: {
		Message: "Records could not be written to the database",
		Action:  "Check database availability; staged files are kept for the next run",
		Code:    "PST001",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check the ingested_files log for an earlier run of this file",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Check the configured timeouts",
			Code:    "RUN002",
		},
	},
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "A run is already in progress",
			Action:  "Wait for it to finish; GET /status shows its progress",
			Code:    "RUN003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-friendly message.
// Errors carrying a core kind map by kind; anything else is matched against
// the known patterns, falling back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var e *Error
	if errors.As(err, &e) {
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// ErrorCode is shorthand for MapError(err).Code.
func ErrorCode(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
