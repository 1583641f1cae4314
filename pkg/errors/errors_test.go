package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without detail",
			err: &AppError{
				Code:   ErrCodeInvalidRequest,
				Reason: "Unknown method 'foo'.",
			},
			expected: "InvalidRequest: Unknown method 'foo'.",
		},
		{
			name: "error with detail",
			err: &AppError{
				Code:   ErrCodeStorage,
				Reason: "Failed to parse encrypted state blob.",
				Detail: "unexpected end of JSON input",
			},
			expected: "StorageError: Failed to parse encrypted state blob. (unexpected end of JSON input)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestPermissionRejected(t *testing.T) {
	err := PermissionRejected([]string{"signData", "makeTransfer"})

	assert.Equal(t, ErrCodePermissionRejected, err.Code)
	assert.Contains(t, err.Reason, "signData")
	assert.Contains(t, err.Reason, "makeTransfer")
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("cipher: message authentication failed")
	err := Crypto("AES-GCM decrypt failed.", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Detail)
	assert.True(t, HasCode(err, ErrCodeCrypto))
}

func TestIsAppError(t *testing.T) {
	t.Run("direct AppError", func(t *testing.T) {
		appErr, ok := IsAppError(InvalidRequest("bad"))
		require.True(t, ok)
		assert.Equal(t, ErrCodeInvalidRequest, appErr.Code)
	})

	t.Run("wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("load state: %w", Storage("missing", nil))
		appErr, ok := IsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeStorage, appErr.Code)
	})

	t.Run("plain error", func(t *testing.T) {
		appErr, ok := IsAppError(errors.New("boom"))
		assert.False(t, ok)
		assert.Nil(t, appErr)
	})
}

func TestErrorsIs_MatchesByCode(t *testing.T) {
	assert.ErrorIs(t, Disconnected("channel closed"), ErrDisconnected)
	assert.NotErrorIs(t, InvalidRequest("x"), ErrDisconnected)
}

func TestToWire(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantReason string
	}{
		{
			name:       "wire code passes through",
			err:        InvalidRequest("Session origin/network mismatch."),
			wantCode:   ErrCodeInvalidRequest,
			wantReason: "Session origin/network mismatch.",
		},
		{
			name:       "permission rejection passes through",
			err:        PermissionRejected([]string{"signData"}),
			wantCode:   ErrCodePermissionRejected,
			wantReason: "Permission rejected for: signData",
		},
		{
			name:       "local code is downgraded",
			err:        Crypto("AES-GCM decrypt failed.", errors.New("auth failed")),
			wantCode:   ErrCodeInternalError,
			wantReason: "Internal error.",
		},
		{
			name:       "plain error is downgraded",
			err:        errors.New("dial tcp 127.0.0.1:7400: connection refused"),
			wantCode:   ErrCodeInternalError,
			wantReason: "Internal error.",
		},
		{
			name:       "received wire error passes through",
			err:        fmt.Errorf("relay: %w", &WireError{Kind: WireKind, Code: ErrCodeDisconnected, Reason: "Not connected."}),
			wantCode:   ErrCodeDisconnected,
			wantReason: "Not connected.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ToWire(tt.err)
			assert.Equal(t, WireKind, w.Kind)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantReason, w.Reason)
		})
	}
}

func TestWireError_Is(t *testing.T) {
	w := &WireError{Kind: WireKind, Code: ErrCodeDisconnected, Reason: "Disconnected."}
	assert.ErrorIs(t, w, ErrDisconnected)
	assert.Equal(t, ErrCodeDisconnected, FromWire(w).Code)
}
