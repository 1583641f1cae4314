package types

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// RPCRequest is sent by an untrusted caller over its channel. ID is
// assigned by the caller and unique among that channel's pending requests.
type RPCRequest struct {
	ID        uint64            `json:"id"`
	Origin    string            `json:"origin"`
	NetworkID string            `json:"networkId"`
	Method    Method            `json:"method"`
	Params    []json.RawMessage `json:"params"`
}

// RPCResponse is the tagged reply for exactly one RPCRequest.
type RPCResponse struct {
	ID     uint64               `json:"id"`
	OK     bool                 `json:"ok"`
	Result json.RawMessage      `json:"result,omitempty"`
	Error  *apperrors.WireError `json:"error,omitempty"`
}

// Param decodes positional parameter i into v.
func (r *RPCRequest) Param(i int, v any) error {
	if i >= len(r.Params) {
		return apperrors.InvalidRequest(fmt.Sprintf("Missing parameter %d for '%s'.", i, r.Method))
	}
	if err := json.Unmarshal(r.Params[i], v); err != nil {
		return apperrors.InvalidRequest(fmt.Sprintf("Invalid parameter %d for '%s'.", i, r.Method))
	}
	return nil
}

// NewRequest builds a request, encoding each param as JSON.
func NewRequest(id uint64, origin, networkID string, method Method, params ...any) (*RPCRequest, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode param %d: %w", i, err)
		}
		raw = append(raw, b)
	}
	return &RPCRequest{
		ID:        id,
		Origin:    origin,
		NetworkID: networkID,
		Method:    method,
		Params:    raw,
	}, nil
}

// Success builds an ok response. A nil result is sent as JSON null.
func Success(id uint64, result any) RPCResponse {
	b, err := json.Marshal(result)
	if err != nil {
		return Failure(id, fmt.Errorf("failed to encode result: %w", err))
	}
	return RPCResponse{ID: id, OK: true, Result: b}
}

// Failure builds an error response, downgrading non-wire errors.
func Failure(id uint64, err error) RPCResponse {
	return RPCResponse{ID: id, OK: false, Error: apperrors.ToWire(err)}
}

// Permission prompt message kinds
const (
	KindPermissionRequest  = "permission-request"
	KindPermissionResponse = "permission-response"
)

// PermissionRequestMsg describes an open prompt shown to the user.
type PermissionRequestMsg struct {
	Kind      string   `json:"kind"`
	RequestID string   `json:"requestId"`
	Origin    string   `json:"origin"`
	Methods   []string `json:"methods"`
}

// PermissionResponseMsg is the prompt surface's answer.
type PermissionResponseMsg struct {
	Kind      string   `json:"kind"`
	RequestID string   `json:"requestId"`
	Granted   []string `json:"granted"`
}
