// Package apperror defines the structured error type shared by services,
// middleware and handlers, and the single mapping from error kind to HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

// Authentication failures.
const (
	KindUnknown Kind = iota
	KindMissingHeader
	KindMalformedHeader
	KindInvalidSignature
	KindMalformedToken
	KindExpired
	KindUnknownSubject
	KindInvalidCredentials

	// Validation failures.
	KindInvalidCharacters
	KindDuplicateStepOrder
	KindEmptySteps
	KindUnsupportedMedia
	KindInvalidInput

	// Conflicts on unique user attributes.
	KindUsernameTaken
	KindEmailTaken

	// Authorization failures.
	KindNotOwner

	// Storage failures.
	KindDbFailure
	KindFileIoFailure
	KindNotFound
	KindCorrupt
)

// Category groups kinds the way they are reported to clients.
type Category string

// Error categories.
const (
	CategoryAuth          Category = "AuthError"
	CategoryValidation    Category = "ValidationError"
	CategoryConflict      Category = "ConflictError"
	CategoryAuthorization Category = "AuthorizationError"
	CategoryStorage       Category = "StorageError"
	CategoryInternal      Category = "InternalError"
)

type kindInfo struct {
	code     string
	category Category
	status   int
}

var kinds = map[Kind]kindInfo{
	KindMissingHeader:      {"MISSING_HEADER", CategoryAuth, http.StatusUnauthorized},
	KindMalformedHeader:    {"MALFORMED_HEADER", CategoryAuth, http.StatusUnauthorized},
	KindInvalidSignature:   {"INVALID_SIGNATURE", CategoryAuth, http.StatusUnauthorized},
	KindMalformedToken:     {"MALFORMED_TOKEN", CategoryAuth, http.StatusUnauthorized},
	KindExpired:            {"TOKEN_EXPIRED", CategoryAuth, http.StatusUnauthorized},
	KindUnknownSubject:     {"UNKNOWN_SUBJECT", CategoryAuth, http.StatusUnauthorized},
	KindInvalidCredentials: {"INVALID_CREDENTIALS", CategoryAuth, http.StatusUnauthorized},

	KindInvalidCharacters:  {"INVALID_CHARACTERS", CategoryValidation, http.StatusBadRequest},
	KindDuplicateStepOrder: {"DUPLICATE_STEP_ORDER", CategoryValidation, http.StatusBadRequest},
	KindEmptySteps:         {"EMPTY_STEPS", CategoryValidation, http.StatusBadRequest},
	KindUnsupportedMedia:   {"UNSUPPORTED_MEDIA", CategoryValidation, http.StatusBadRequest},
	KindInvalidInput:       {"INVALID_INPUT", CategoryValidation, http.StatusBadRequest},

	KindUsernameTaken: {"USERNAME_TAKEN", CategoryConflict, http.StatusConflict},
	KindEmailTaken:    {"EMAIL_TAKEN", CategoryConflict, http.StatusConflict},

	KindNotOwner: {"NOT_OWNER", CategoryAuthorization, http.StatusUnauthorized},

	KindDbFailure:     {"DB_FAILURE", CategoryStorage, http.StatusInternalServerError},
	KindFileIoFailure: {"FILE_IO_FAILURE", CategoryStorage, http.StatusInternalServerError},
	KindNotFound:      {"NOT_FOUND", CategoryStorage, http.StatusNotFound},
	KindCorrupt:       {"CORRUPT", CategoryStorage, http.StatusInternalServerError},
}

var unknownInfo = kindInfo{"INTERNAL_ERROR", CategoryInternal, http.StatusInternalServerError}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return unknownInfo
}

// Code returns the stable machine-readable code of the kind.
func (k Kind) Code() string { return k.info().code }

// Category returns the client-facing category of the kind.
func (k Kind) Category() Category { return k.info().category }

// Status returns the HTTP status the kind is rendered with.
func (k Kind) Status() int { return k.info().status }

// String implements fmt.Stringer.
func (k Kind) String() string { return k.Code() }

// Error is the application error. Message is safe to show to clients;
// Err carries the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Unwrap returns the internal cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// match with errors.Is(err, apperror.New(apperror.KindNotOwner, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an Error without an internal cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error carrying an internal cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status returns the HTTP status for err. Unknown errors map to 500.
func Status(err error) int {
	return KindOf(err).Status()
}

// Response is the JSON error body written to clients.
type Response struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// ToResponse renders err for clients. Internal causes are never included.
func ToResponse(err error) Response {
	var appErr *Error
	if errors.As(err, &appErr) {
		return Response{
			Error:       string(appErr.Kind.Category()),
			Description: appErr.Message,
			Code:        appErr.Kind.Code(),
		}
	}
	return Response{
		Error:       string(CategoryInternal),
		Description: "An internal error occurred",
		Code:        unknownInfo.code,
	}
}
