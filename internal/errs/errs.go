// Package errs provides the structured error type used across the
// ingestion and query packages, grounded on the teacher repository's
// pkg/errors.AppError: a single typed error carrying a stable code, a
// component/operation pair for log correlation, an optional cause,
// and a severity that callers use to decide whether an error is
// recoverable.
package errs

import (
	"fmt"
	"runtime"
	"time"
)

// Severity classifies how serious an error is, mirroring the
// teacher's pkg/errors severities.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error codes, one per error kind in spec.md §7.
const (
	CodeQueryParse      = "QUERY_PARSE_FAILED"
	CodeUnmatchedLeave  = "ZONE_UNMATCHED_LEAVE"
	CodeIngestProtocol  = "INGEST_PROTOCOL_VIOLATION"
	CodeSourceParse     = "SOURCE_PARSE_ERROR"
	CodeRebuildOverflow = "ZONE_REBUILD_WINDOW_WARNING"
)

// TraceError is the structured error type returned or logged by the
// ingestion and query packages.
type TraceError struct {
	Code      string
	Component string
	Operation string
	Message   string
	Cause     error
	Severity  Severity
	Timestamp time.Time
	Location  string
}

// New builds a TraceError, capturing the caller's file:line the same
// way the teacher's errors.New does.
func New(code, component, operation, message string) *TraceError {
	_, file, line, _ := runtime.Caller(1)
	return &TraceError{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Location:  fmt.Sprintf("%s:%d", file, line),
	}
}

func (e *TraceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

func (e *TraceError) Unwrap() error { return e.Cause }

func (e *TraceError) Wrap(cause error) *TraceError {
	e.Cause = cause
	return e
}

func (e *TraceError) WithSeverity(s Severity) *TraceError {
	e.Severity = s
	return e
}

// Fatal panics with a TraceError of SeverityCritical. Reserved for the
// structural programmer errors spec.md §7 calls out as fail-fast:
// nested beginEventBatch, insert outside a batch.
func Fatal(code, component, operation, message string) {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	panic(err)
}
