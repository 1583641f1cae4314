package errors

import (
	"errors"
	"fmt"
	"strings"
)

// WireKind is the discriminator carried by every error that crosses a
// process boundary.
const WireKind = "DAppConnectorAPIError"

// AppError represents a wallet-level error with a taxonomy code
type AppError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Detail string `json:"-"`
	cause  error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any *AppError carrying the same code, so predefined values
// work as errors.Is targets.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes that may cross a process boundary
const (
	ErrCodeInvalidRequest     = "InvalidRequest"
	ErrCodeDisconnected       = "Disconnected"
	ErrCodePermissionRejected = "PermissionRejected"
	ErrCodeRejected           = "Rejected"
	ErrCodeInternalError      = "InternalError"
)

// Local error codes. These never appear on the wire; ToWire downgrades them.
const (
	ErrCodeCrypto         = "CryptoError"
	ErrCodeStorage        = "StorageError"
	ErrCodeInvalidConfig  = "InvalidConfig"
	ErrCodeNotImplemented = "NotImplemented"
)

// Predefined errors
var (
	ErrDisconnected = &AppError{
		Code:   ErrCodeDisconnected,
		Reason: "Disconnected.",
	}

	ErrInternal = &AppError{
		Code:   ErrCodeInternalError,
		Reason: "Internal error.",
	}

	ErrNotConnected = &AppError{
		Code:   ErrCodeDisconnected,
		Reason: "Not connected.",
	}
)

// New creates a new AppError
func New(code, reason string) *AppError {
	return &AppError{Code: code, Reason: reason}
}

// Wrap creates a new AppError that keeps cause for errors.Is/As and logging.
func Wrap(code, reason string, cause error) *AppError {
	e := &AppError{Code: code, Reason: reason, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// InvalidRequest creates an invalid request error
func InvalidRequest(reason string) *AppError {
	return New(ErrCodeInvalidRequest, reason)
}

// Disconnected creates a disconnected error with a specific reason
func Disconnected(reason string) *AppError {
	return New(ErrCodeDisconnected, reason)
}

// PermissionRejected names the methods the user did not grant
func PermissionRejected(denied []string) *AppError {
	return &AppError{
		Code:   ErrCodePermissionRejected,
		Reason: fmt.Sprintf("Permission rejected for: %s", strings.Join(denied, ", ")),
	}
}

// Crypto creates a cryptographic failure error (AEAD authentication, KDF)
func Crypto(reason string, cause error) *AppError {
	return Wrap(ErrCodeCrypto, reason, cause)
}

// Storage creates a storage error for malformed or missing records
func Storage(reason string, cause error) *AppError {
	return Wrap(ErrCodeStorage, reason, cause)
}

// InvalidConfig creates a configuration error
func InvalidConfig(reason string) *AppError {
	return New(ErrCodeInvalidConfig, reason)
}

// NotImplemented creates an error for operations the backend does not provide
func NotImplemented(reason string) *AppError {
	return New(ErrCodeNotImplemented, reason)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

// IsWireCode reports whether code may be sent to an untrusted caller verbatim.
func IsWireCode(code string) bool {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeDisconnected, ErrCodePermissionRejected,
		ErrCodeRejected, ErrCodeInternalError:
		return true
	}
	return false
}

// WireError is the serialized error shape sent across process boundaries.
type WireError struct {
	Kind   string `json:"kind"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is lets callers test a received WireError against predefined AppErrors.
func (e *WireError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToWire converts any error into the boundary shape. Errors that are not
// AppErrors with a wire code are downgraded to an opaque InternalError.
func ToWire(err error) *WireError {
	var wireErr *WireError
	if errors.As(err, &wireErr) && wireErr.Kind == WireKind && IsWireCode(wireErr.Code) {
		return wireErr
	}
	if appErr, ok := IsAppError(err); ok && IsWireCode(appErr.Code) {
		return &WireError{Kind: WireKind, Code: appErr.Code, Reason: appErr.Reason}
	}
	return &WireError{Kind: WireKind, Code: ErrCodeInternalError, Reason: ErrInternal.Reason}
}

// FromWire turns a received WireError back into an AppError.
func FromWire(w *WireError) *AppError {
	if w == nil {
		return ErrInternal
	}
	return New(w.Code, w.Reason)
}
