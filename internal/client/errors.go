package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	KindInvalidFormat    ErrorKind = "invalid_format"
	KindTooLarge         ErrorKind = "too_large"
	KindUnsupportedMedia ErrorKind = "unsupported_media"
	KindServerError      ErrorKind = "server_error"
	KindTimeout          ErrorKind = "timeout"
	KindConnection       ErrorKind = "connection"
	KindUnknown          ErrorKind = "unknown"
)

// APIError is returned for every failed backend call. Message is safe to
// show to the user.
type APIError struct {
	Kind    ErrorKind
	Status  int // zero for transport failures
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

const (
	msgInvalidFormat    = "invalid file format"
	msgTooLarge         = "file too large, the maximum size is 10MB"
	msgUnsupportedMedia = "file format not supported, use PDF, PNG, JPG or TIFF"
	msgServerError      = "the analysis server failed, try again later"
	msgTimeout          = "request timed out, the document may be too large"
	msgConnection       = "could not connect to the backend, check that it is running"
	msgUnknown          = "unknown backend error"
)

// errorBody covers both error shapes the backends produce: FastAPI's
// {"detail": ...} and {"errors": [{"message": ...}]}.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func detailMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Errors) > 0 && eb.Errors[0].Message != "" {
		return eb.Errors[0].Message
	}
	var detail string
	if err := json.Unmarshal(eb.Detail, &detail); err == nil {
		return strings.TrimSpace(detail)
	}
	return ""
}

// statusError maps a non-2xx backend response to an APIError.
func statusError(status int, body []byte) *APIError {
	detail := detailMessage(body)

	e := &APIError{Status: status}
	switch status {
	case http.StatusBadRequest:
		e.Kind, e.Message = KindInvalidFormat, msgInvalidFormat
		if detail != "" {
			e.Message = detail
		}
	case http.StatusRequestEntityTooLarge:
		e.Kind, e.Message = KindTooLarge, msgTooLarge
	case http.StatusUnsupportedMediaType:
		e.Kind, e.Message = KindUnsupportedMedia, msgUnsupportedMedia
	case http.StatusInternalServerError:
		e.Kind, e.Message = KindServerError, msgServerError
	default:
		e.Kind, e.Message = KindUnknown, msgUnknown
		if detail != "" {
			e.Message = detail
		}
	}
	return e
}

// transportError maps a failure of http.Client.Do to an APIError.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Message: msgTimeout, Err: err}
	}
	return &APIError{Kind: KindConnection, Message: msgConnection, Err: err}
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// SchemaMismatchError is returned when a 2xx response body does not have the
// shape the caller relies on.
type SchemaMismatchError struct {
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("response schema mismatch at %s: %s", e.Field, e.Reason)
}
