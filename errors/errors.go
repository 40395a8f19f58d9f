package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // engine loading
	PhaseContext  Phase = "context"  // context create/destroy
	PhaseRequest  Phase = "request"  // request dispatch and results
	PhaseCallback Phase = "callback" // native-to-Go response delivery
	PhaseConfig   Phase = "config"   // configuration parsing
	PhaseDecode   Phase = "decode"   // result envelope decoding
	PhaseRegister Phase = "register" // in-process function registration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindNotFound      Kind = "not_found"
	KindUnsupported   Kind = "unsupported"
	KindStaleHandle   Kind = "stale_handle"
	KindBusy          Kind = "busy"
	KindClosed        Kind = "closed"
	KindDuplicate     Kind = "duplicate"
	KindNative        Kind = "native"
	KindPanic         Kind = "panic"
	KindMissingExport Kind = "missing_export"
	KindRegistration  Kind = "registration"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Function string
	Detail   string
	Data     json.RawMessage
	Code     int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Function != "" {
		b.WriteString(" in ")
		b.WriteString(e.Function)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Function sets the engine function name the error relates to
func (b *Builder) Function(name string) *Builder {
	b.err.Function = name
	return b
}

// Code sets the native error code
func (b *Builder) Code(code int) *Builder {
	b.err.Code = code
	return b
}

// Data attaches the raw native error data
func (b *Builder) Data(data json.RawMessage) *Builder {
	b.err.Data = data
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// StaleHandle creates an error for a handle that was never issued or was already destroyed
func StaleHandle(phase Phase, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("handle %#x is not live", handle),
		Value:  handle,
	}
}

// Busy creates an error for a resource that is in use
func Busy(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBusy,
		Detail: detail,
	}
}

// Closed creates an error for operations after shutdown
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Duplicate creates an error for a request id that is already in flight
func Duplicate(phase Phase, requestID uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("request id %d already in flight", requestID),
		Value:  requestID,
	}
}

// Native creates an error reported by the engine
func Native(phase Phase, function string, code int, message string, data json.RawMessage) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNative,
		Function: function,
		Code:     code,
		Detail:   message,
		Data:     data,
	}
}

// Panic creates an error from a recovered panic value
func Panic(phase Phase, v any) *Error {
	if err, ok := v.(error); ok {
		return &Error{
			Phase:  phase,
			Kind:   KindPanic,
			Detail: "recovered panic",
			Cause:  err,
			Value:  v,
		}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: fmt.Sprintf("recovered panic: %v", v),
		Value:  v,
	}
}

// Registration creates a function registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:    PhaseRegister,
		Kind:     KindRegistration,
		Function: name,
		Detail:   "register function",
		Cause:    cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates an engine loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// MissingExportsError is returned when a loaded engine lacks required entry points
type MissingExportsError struct {
	Source  string
	Symbols []string
}

// NewMissingExportsError creates an error listing the unresolved symbols of source
func NewMissingExportsError(source string, symbols []string) *MissingExportsError {
	return &MissingExportsError{
		Source:  source,
		Symbols: append([]string(nil), symbols...),
	}
}

func (e *MissingExportsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[load] missing_export: no symbols specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: missing %d engine symbol(s):", e.Source, len(e.Symbols))
	for _, s := range e.Symbols {
		b.WriteString("\n  - ")
		b.WriteString(s)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingExportsError:
		return true
	case *Error:
		return t.Phase == PhaseLoad && t.Kind == KindMissingExport
	}
	return false
}
