package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes used across docshift. Automated handlers key off the code;
// Msg, Op and Err carry the operator-facing detail.
const (
	EInternal = "internal error"
	EInvalid  = "invalid"   // validation failed
	ENotFound = "not found" // resource or index absent
	EConflict = "conflict"  // action cannot be performed

	// EChainIntegrity marks structural problems in the migration graph:
	// no root, multiple roots, missing parent, fork, duplicate id.
	// Always raised at chain build time, never during apply.
	EChainIntegrity = "chain integrity"

	// ESchemaDrift marks declared schema deltas which do not reconcile
	// between adjacent migration units.
	ESchemaDrift = "schema drift"

	// ESimulation marks a unit whose operations fail when dry-run against
	// the in-memory model.
	ESimulation = "simulation"

	// EHistoryWrite marks a history record write which failed after the
	// structural change already succeeded. Operators must not blindly
	// retry a run that failed with this code.
	EHistoryWrite = "history write"

	// EIrreversible marks a rollback attempted past a lossy transform
	// without an explicit force override.
	EIrreversible = "irreversible migration"
)

// Error is the error struct of docshift.
//
// Errors may have error codes, human-readable messages,
// and a logical stack trace.
//
// The Code targets automated handlers so that recovery can occur.
// Msg is used by the system operator to help diagnose and fix the problem.
// Op and Err chain errors together in a logical stack trace to
// further help operators.
//
// To create a simple error,
//
//	&Error{
//	    Code: ENotFound,
//	}
//
// To show where the error happens, add Op.
//
//	&Error{
//	    Code: ENotFound,
//	    Op: "migration.BuildChain",
//	}
//
// To show an error with a unpredictable value, add the value in Msg.
//
//	&Error{
//	    Code: EConflict,
//	    Msg: fmt.Sprintf("collection with name %s already exists", name),
//	}
//
// To show an error wrapped with another error.
//
//	&Error{
//	    Code: EInternal,
//	    Err: err,
//	}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Errorf constructs an error with the provided code and a formatted message.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the root error, if available; otherwise returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return EInternal
	}

	if e == nil {
		return ""
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise returns an empty string.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return ""
	}

	if e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the message of the error, if available; otherwise returns
// a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "An internal error has occurred."
	}

	if e == nil {
		return ""
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}
