// Package apperror defines the failure kinds a settlement can end with.
// Every kind maps to a stable string that is persisted with FAILED records,
// a retryable flag for clients, and an HTTP status.
package apperror

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindNotConfirmed        Kind = "NOT_CONFIRMED"
	KindMismatch            Kind = "MISMATCH"
	KindLedgerError         Kind = "LEDGER_ERROR"
	KindOracleUnavailable   Kind = "ORACLE_UNAVAILABLE"
	KindUnsupportedCurrency Kind = "UNSUPPORTED_CURRENCY"
	KindSubmitError         Kind = "SUBMIT_ERROR"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindInProgress          Kind = "IN_PROGRESS"
	KindAlreadySettled      Kind = "ALREADY_SETTLED"
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindStale               Kind = "STALE"
	KindInternal            Kind = "INTERNAL"
)

var kinds = map[Kind]struct {
	retryable bool
	status    int
}{
	KindNotFound:            {true, http.StatusNotFound},
	KindNotConfirmed:        {true, http.StatusAccepted},
	KindMismatch:            {false, http.StatusUnprocessableEntity},
	KindLedgerError:         {true, http.StatusBadGateway},
	KindOracleUnavailable:   {true, http.StatusServiceUnavailable},
	KindUnsupportedCurrency: {false, http.StatusBadRequest},
	KindSubmitError:         {false, http.StatusBadGateway},
	KindInsufficientFunds:   {false, http.StatusServiceUnavailable},
	KindInProgress:          {true, http.StatusConflict},
	KindAlreadySettled:      {false, http.StatusConflict},
	KindInvalidRequest:      {false, http.StatusBadRequest},
	KindStale:               {false, http.StatusGatewayTimeout},
	KindInternal:            {false, http.StatusInternalServerError},
}

// Retryable reports whether the same request may succeed later without any
// change on the client side.
func (k Kind) Retryable() bool {
	return kinds[k].retryable
}

func (k Kind) HTTPStatus() int {
	if v, ok := kinds[k]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind maps a persisted kind string back to a Kind. Unknown values
// become KindInternal.
func ParseKind(s string) Kind {
	k := Kind(s)
	if _, ok := kinds[k]; ok {
		return k
	}
	return KindInternal
}

// FinalNote is appended to the message of an error read back from a FAILED
// settlement.
const FinalNote = "settlement is final, operator reconciliation required"

type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Final is set when the error comes from a settlement that can no longer
	// change, so repeating the request returns the same error.
	Final bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Finalize marks err as the stored outcome of a FAILED settlement. Errors
// without a kind are finalized as KindInternal.
func Finalize(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return &Error{Kind: KindInternal, Message: "internal error; " + FinalNote, Cause: err, Final: true}
	}
	if appErr.Final {
		return appErr
	}
	final := *appErr
	final.Message = appErr.Message + "; " + FinalNote
	final.Final = true
	return &final
}

func IsFinal(err error) bool {
	var appErr *Error
	return stderrors.As(err, &appErr) && appErr.Final
}

// Retryable reports whether repeating the request that produced err may
// succeed. Final errors never are, whatever their kind.
func Retryable(err error) bool {
	return err != nil && KindOf(err).Retryable() && !IsFinal(err)
}

// HTTPStatusOf is the status a handler answers err with. A final error never
// answers 202, since nothing is left pending.
func HTTPStatusOf(err error) int {
	status := KindOf(err).HTTPStatus()
	if status == http.StatusAccepted && IsFinal(err) {
		return http.StatusConflict
	}
	return status
}

// KindOf returns the kind carried by err, or KindInternal for errors that do
// not carry one. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the client facing message of err. Internal errors never
// leak their cause.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
