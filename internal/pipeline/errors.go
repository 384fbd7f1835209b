// Package pipeline defines the error taxonomy shared by every pipeline
// stage, so the DLQ Funnel can recognize recoverable failures by kind rather
// than by type-switching on each stage's concrete error type.
package pipeline

import "fmt"

// ErrorKind names a recognized pipeline failure mode (spec §7).
type ErrorKind string

const (
	MissingMessageSchema   ErrorKind = "MissingMessageSchema"
	MissingHeader          ErrorKind = "MissingHeader"
	UnknownOperation       ErrorKind = "UnknownOperation"
	SchemaNotFound         ErrorKind = "SchemaNotFound"
	SchemaInvalid          ErrorKind = "SchemaInvalid"
	DecodeError            ErrorKind = "DecodeError"
	TypeMismatch           ErrorKind = "TypeMismatch"
	NullNotAllowedForUnion ErrorKind = "NullNotAllowedForUnion"
	NoSuitableUnionBranch  ErrorKind = "NoSuitableUnionBranch"
	ExpectedMap            ErrorKind = "ExpectedMap"
	ExpectedList           ErrorKind = "ExpectedList"
	DecimalTypeMismatch    ErrorKind = "DecimalTypeMismatch"
	BytesTypeMismatch      ErrorKind = "BytesTypeMismatch"
	UnsupportedRecordType  ErrorKind = "UnsupportedRecordType"
	SchemaValidationError  ErrorKind = "SchemaValidationError"
	TransformError         ErrorKind = "TransformError"
	EncodeError            ErrorKind = "EncodeError"
	ProduceError           ErrorKind = "ProduceError"
	ProcessingTimeout      ErrorKind = "ProcessingTimeout"
	DlqProduceError        ErrorKind = "DlqProduceError"
	CommitError            ErrorKind = "CommitError"
)

// Error wraps a recognized pipeline failure with its kind, so a single
// type-assertion at the DLQ boundary recovers both without the stage having
// to know about DLQ routing itself.
type Error struct {
	Kind ErrorKind
	Err  error
}

func New(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError type-asserts err into a *Error, the only kind of error the DLQ
// Funnel recognizes and routes; anything else is treated as a programming
// error (spec §9 open question, resolved: narrow the catch set).
func AsError(err error) (*Error, bool) {
	pe, ok := err.(*Error)
	return pe, ok
}
