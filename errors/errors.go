package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is the stable error identifier sent to clients in acks and error events.
type Code string

const (
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeValidation   Code = "VALIDATION"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeTransientIO  Code = "TRANSIENT_IO"
	CodeInternal     Code = "INTERNAL"
)

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrHandlerPanic = fmt.Errorf("handler panic")
	ErrEmptyWords   = fmt.Errorf("no words have been found")

	// Connection and credentials
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")

	// Payloads
	ErrValidation       = fmt.Errorf("validation failed")
	ErrUnknownEvent     = fmt.Errorf("unknown event")
	ErrForbidden        = fmt.Errorf("not a participant of this chat")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
	ErrUnsupportedMedia = fmt.Errorf("unsupported media type")

	// Lookups
	ErrChatNotFound    = fmt.Errorf("chat not found")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrUserNotFound    = fmt.Errorf("user not found")

	// Storage
	ErrChatExists  = fmt.Errorf("chat already exists")
	ErrTransientIO = fmt.Errorf("storage temporarily unavailable")

	// Connections
	ErrSlowConsumer     = fmt.Errorf("connection cannot keep up")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrShuttingDown     = fmt.Errorf("server is shutting down")
)

// Validation wraps a validation failure with a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transient marks a storage failure as retryable by the caller.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientIO, err)
}

// CodeOf maps any error of the taxonomy, wrapped or not, to its client code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, ErrUnauthorized), goerrors.Is(err, ErrInvalidCredentials):
		return CodeUnauthorized
	case goerrors.Is(err, ErrValidation), goerrors.Is(err, ErrUnknownEvent),
		goerrors.Is(err, ErrInvalidPassword), goerrors.Is(err, ErrUnsupportedMedia):
		return CodeValidation
	case goerrors.Is(err, ErrForbidden):
		return CodeForbidden
	case goerrors.Is(err, ErrChatNotFound), goerrors.Is(err, ErrMessageNotFound),
		goerrors.Is(err, ErrUserNotFound):
		return CodeNotFound
	case goerrors.Is(err, ErrUserAlreadyExists), goerrors.Is(err, ErrChatExists):
		return CodeConflict
	case goerrors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case goerrors.Is(err, ErrTransientIO), goerrors.Is(err, ErrShuttingDown):
		return CodeTransientIO
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error to the status used by the REST layer.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch CodeOf(err) {
	case CodeUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case CodeValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case CodeForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case CodeConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case CodeRateLimited:
		return status.Error(codes.ResourceExhausted, err.Error())
	case CodeTransientIO:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// Is is a shortcut so callers importing this package don't need the standard one.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// FromCode rebuilds an error received from the server so callers can match it with Is.
func FromCode(code Code, message string) error {
	var sentinel error
	switch code {
	case CodeUnauthorized:
		sentinel = ErrUnauthorized
	case CodeValidation:
		sentinel = ErrValidation
	case CodeForbidden:
		sentinel = ErrForbidden
	case CodeNotFound:
		sentinel = ErrChatNotFound
	case CodeConflict:
		sentinel = ErrChatExists
	case CodeRateLimited:
		sentinel = ErrRateLimited
	case CodeTransientIO:
		sentinel = ErrTransientIO
	default:
		return fmt.Errorf("%s: %s", CodeInternal, message)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
