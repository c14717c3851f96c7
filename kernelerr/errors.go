// Package kernelerr defines the closed set of error kinds the relational
// mapping kernel propagates to callers. The core never retries and never
// swallows an error; every public operation that can fail returns one of
// these (or wraps a driver error in DbError).
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the spec's closed error categories a Error
// instance belongs to.
type Kind string

const (
	KindMapping                     Kind = "MappingError"
	KindNoJoinPath                  Kind = "NoJoinPath"
	KindUnsupportedFilter           Kind = "UnsupportedFilter"
	KindUnsupportedEncryptedPredicate Kind = "UnsupportedEncryptedPredicate"
	KindNotFound                    Kind = "NotFound"
	KindNoRows                      Kind = "NoRows"
	KindMoreThanOne                 Kind = "MoreThanOne"
	KindConstraintViolation         Kind = "ConstraintViolation"
	KindNotNullViolation            Kind = "NotNullViolation"
	KindUniqueViolation             Kind = "UniqueViolation"
	KindCancelled                   Kind = "Cancelled"
	KindInvalidContextState         Kind = "InvalidContextState"
	KindDbError                     Kind = "DbError"
)

// Error is the concrete error type for every kernel-raised failure.
// Table/column/SQL context is attached where known; secret or encrypted
// values are never placed here (see Trace policy in package dbcontext).
type Error struct {
	Kind    Kind
	Message string
	// SQL and ParamTypes are populated for DbError/constraint-kind failures so
	// callers (and trace logs) can see what was executed. ParamTypes carries
	// only type names, never the bound values.
	SQL        string
	ParamTypes []string
	// EngineCode carries the underlying driver's native error code, when
	// the driver exposes one, for DbError and constraint kinds.
	EngineCode string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, kernelerr.NotFound) style sentinel checks by
// comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// sentinel instances usable with errors.Is(err, kernelerr.NotFound)
var (
	NotFound                      = &Error{Kind: KindNotFound}
	NoRows                        = &Error{Kind: KindNoRows}
	MoreThanOne                   = &Error{Kind: KindMoreThanOne}
	Cancelled                     = &Error{Kind: KindCancelled}
	InvalidContextState           = &Error{Kind: KindInvalidContextState}
	UnsupportedEncryptedPredicate = &Error{Kind: KindUnsupportedEncryptedPredicate}
)

func Mapping(format string, args ...any) *Error {
	return New(KindMapping, fmt.Sprintf(format, args...))
}

func NoJoinPath(format string, args ...any) *Error {
	return New(KindNoJoinPath, fmt.Sprintf(format, args...))
}

func UnsupportedFilter(dialectName, fn string) *Error {
	return New(KindUnsupportedFilter, fmt.Sprintf("no filter function %q registered for dialect %q", fn, dialectName))
}

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidContextState, fmt.Sprintf(format, args...))
}

// ConstraintViolation, NotNullViolation, and UniqueViolation classify a
// driver-reported write failure more specifically than a bare DbError,
// once the dialect has recognised the underlying engine code.
func ConstraintViolation(sql string, params []any, engineCode string, err error) *Error {
	return &Error{Kind: KindConstraintViolation, SQL: sql, ParamTypes: typeNames(params), EngineCode: engineCode, Err: err}
}

func NotNullViolation(sql string, params []any, engineCode string, err error) *Error {
	return &Error{Kind: KindNotNullViolation, SQL: sql, ParamTypes: typeNames(params), EngineCode: engineCode, Err: err}
}

func UniqueViolation(sql string, params []any, engineCode string, err error) *Error {
	return &Error{Kind: KindUniqueViolation, SQL: sql, ParamTypes: typeNames(params), EngineCode: engineCode, Err: err}
}

// DbError wraps an opaque driver failure, preserving SQL text and
// parameter type names (never values) for diagnostics, per the
// propagation policy: trace output never includes secret values.
func DbError(sql string, params []any, engineCode string, err error) *Error {
	return &Error{
		Kind:       KindDbError,
		SQL:        sql,
		ParamTypes: typeNames(params),
		EngineCode: engineCode,
		Err:        err,
	}
}

func typeNames(params []any) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = fmt.Sprintf("%T", p)
	}
	return names
}
