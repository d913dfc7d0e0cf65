// Package errors defines the AppError taxonomy surfaced at the HTTP boundary.
package errors

import (
	"fmt"
	"net/http"
)

// Kind names one bucket of the service error taxonomy.
type Kind string

const (
	KindAuthMissing      Kind = "AuthMissing"
	KindAuthInvalid      Kind = "AuthInvalid"
	KindForbidden        Kind = "Forbidden"
	KindNotFound         Kind = "NotFound"
	KindValidation       Kind = "Validation"
	KindRateLimited      Kind = "RateLimited"
	KindUpstreamTransient Kind = "UpstreamTransient"
	KindUpstreamFatal    Kind = "UpstreamFatal"
	KindPartialIngest    Kind = "Ingestion.PartialContent"
	KindInternal         Kind = "Internal"
)

// AppError is the single error type handlers and services pass up to the
// recovery middleware, which renders it as {success:false, detail}.
type AppError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	RequestID  string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

func new_(kind Kind, status int, msg string, cause error) *AppError {
	return &AppError{Kind: kind, Message: msg, HTTPStatus: status, cause: cause}
}

func NewAuthMissingError(msg string) *AppError {
	return new_(KindAuthMissing, http.StatusUnauthorized, msg, nil)
}

func NewAuthInvalidError(msg string) *AppError {
	return new_(KindAuthInvalid, http.StatusUnauthorized, msg, nil)
}

func NewForbiddenError(msg string) *AppError {
	return new_(KindForbidden, http.StatusForbidden, msg, nil)
}

func NewNotFoundError(msg string) *AppError {
	return new_(KindNotFound, http.StatusNotFound, msg, nil)
}

func NewBadRequestError(msg string) *AppError {
	return new_(KindValidation, http.StatusUnprocessableEntity, msg, nil)
}

func NewRateLimitedError(msg string, retryAfterSeconds int) *AppError {
	e := new_(KindRateLimited, http.StatusTooManyRequests, msg, nil)
	e.RetryAfter = retryAfterSeconds
	return e
}

func NewUpstreamError(msg string, fatal bool, cause error) *AppError {
	kind := KindUpstreamTransient
	if fatal {
		kind = KindUpstreamFatal
	}
	return new_(kind, http.StatusBadGateway, msg, cause)
}

func NewInternalServerError(msg string, cause error) *AppError {
	return new_(KindInternal, http.StatusInternalServerError, msg, cause)
}

// AsAppError extracts an *AppError from err, wrapping unknown errors as Internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return NewInternalServerError("unexpected error", err)
}
