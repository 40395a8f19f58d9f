// Package errors provides structured error types for the tonbridge module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the function name, the native error code and data when the
// engine reported the failure, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRequest, errors.KindNative).
//		Function("crypto.sha256").
//		Code(23).
//		Detail("invalid params: missing field `data`").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StaleHandle(errors.PhaseContext, h)
//	err := errors.Duplicate(errors.PhaseRequest, 42)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
