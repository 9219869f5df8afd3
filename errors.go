package nettle

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport core's error taxonomy (§7). Each
// covers a class of condition rather than one specific call site; callers
// should match with [errors.Is].
var (
	// ErrInvalidRefCount is returned by Retain when the observed count is
	// <= 0 or would overflow, and by Release when it would go below zero.
	// Reference-count mistakes are always returned as errors rather than
	// silently ignored: they are programmer errors, not transport
	// conditions.
	ErrInvalidRefCount = errors.New("nettle: invalid reference count")

	// ErrCapacityExceeded is returned when a buffer would have to grow
	// past its maxCapacity, or when a pool rejects an entry because it is
	// full.
	ErrCapacityExceeded = errors.New("nettle: capacity exceeded")

	// ErrClosedResource is returned for an operation attempted on a closed
	// channel, a released buffer, or a terminated executor.
	ErrClosedResource = errors.New("nettle: resource is closed")

	// ErrCancelled is returned when a future/promise cancellation is
	// observed by a caller awaiting it.
	ErrCancelled = errors.New("nettle: operation cancelled")

	// ErrProtocolViolation covers programmer errors in API sequencing,
	// e.g. calling finish twice on a promise combiner, or setSuccess on an
	// already-completed promise.
	ErrProtocolViolation = errors.New("nettle: protocol violation")
)

// IOError wraps a transport-level error with the underlying OS cause
// attached, per §7's "I/O failure" category.
type IOError struct {
	Op    string
	Cause error
}

// PanicError wraps a recovered panic value as an error, letting
// [Executor.safeExecute] and friends fold an arbitrary panic into the
// same error-propagation path as any other task failure.
type PanicError struct {
	Value any
	Stack []byte
}

func (e PanicError) Error() string {
	return fmt.Sprintf("nettle: panic: %v", e.Value)
}

// ProtocolError covers §7 "Protocol/State violation" conditions: API
// sequencing mistakes such as calling Finish twice on a [PromiseCombiner]
// or SetSuccess on an already-completed [Promise].
type ProtocolError struct {
	Op      string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("nettle: protocol violation: %s", e.Message)
	}
	return fmt.Sprintf("nettle: protocol violation in %s: %s", e.Op, e.Message)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// AggregateError collects multiple causes into one error, e.g. when a
// [Group] operation fails against more than one member channel.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "nettle: aggregate error (empty)"
	}
	s := fmt.Sprintf("nettle: %d error(s) occurred", len(e.Errors))
	for _, err := range e.Errors {
		s += "; " + err.Error()
	}
	return s
}

func (e *IOError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("nettle: i/o error: %v", e.Cause)
	}
	return fmt.Sprintf("nettle: i/o error during %s: %v", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain.
//
// If the panic Value is not an error (e.g., a string or other type),
// returns nil.
//
// Example:
//
//	// If a function panics with an error
//	panicErr := PanicError{Value: io.EOF}
//
//	// We can check if it wraps a specific error
//	if errors.Is(panicErr, io.EOF) {
//	    // This will match
//	}
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateErrorCause returns the first error in the Errors slice, if any.
// This is provided for ES2022 .cause compatibility where you might want
// to access a primary underlying cause.
//
// Returns nil if Errors is empty.
func (e *AggregateError) AggregateErrorCause() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap returns the errors slice for multi-error unwrapping (Go 1.20+).
// This enables [errors.Is] and [errors.As] to check against all errors
// in the aggregate.
//
// Example:
//
//	aggErr := &AggregateError{
//	    Errors: []error{io.EOF, io.ErrUnexpectedEOF},
//	}
//
//	// Both of these will return true:
//	errors.Is(aggErr, io.EOF)
//	errors.Is(aggErr, io.ErrUnexpectedEOF)
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is implements custom error matching for AggregateError.
// Returns true if target is an AggregateError (regardless of contents).
// Matching against the contained errors is left to errors.Is, which
// reaches them through Unwrap.
func (e *AggregateError) Is(target error) bool {
	// Check if target is an AggregateError type
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// TimeoutError is the §7 "Timeout" category: a connect deadline
// (CONNECT_TIMEOUT_MILLIS) or a user-scheduled deadline elapsed before the
// operation completed.
type TimeoutError struct {
	Op    string
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("nettle: timeout: %v", e.Cause)
	}
	return fmt.Sprintf("nettle: %s timed out: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
