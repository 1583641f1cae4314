package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

func TestServer_AnswerFlow(t *testing.T) {
	surface := newOpenedSurface()
	c := NewCoordinator(WithSurface(surface))
	srv := httptest.NewServer(NewServer(c, nil).Handler())
	defer srv.Close()

	res := request(c, context.Background(), "getDustAddress", "signData")
	p := surface.next(t)

	resp, err := http.Get(srv.URL + "/prompts")
	require.NoError(t, err)
	var listed []types.PermissionRequestMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed, 1)
	assert.Equal(t, p.RequestID, listed[0].RequestID)
	assert.Equal(t, types.KindPermissionRequest, listed[0].Kind)

	body, _ := json.Marshal(types.PermissionResponseMsg{
		Kind:      types.KindPermissionResponse,
		RequestID: p.RequestID,
		Granted:   []string{"getDustAddress"},
	})
	resp, err = http.Post(srv.URL+"/prompts/"+p.RequestID, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	r := wait(t, res)
	assert.Equal(t, []string{"getDustAddress"}, r.granted)

	// A second answer finds nothing.
	resp, err = http.Post(srv.URL+"/prompts/"+p.RequestID, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Close(t *testing.T) {
	surface := newOpenedSurface()
	c := NewCoordinator(WithSurface(surface))
	srv := httptest.NewServer(NewServer(c, nil).Handler())
	defer srv.Close()

	res := request(c, context.Background(), "signData")
	p := surface.next(t)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/prompts/"+p.RequestID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, wait(t, res).granted)
}

func TestServer_RejectsBadAnswers(t *testing.T) {
	surface := newOpenedSurface()
	c := NewCoordinator(WithSurface(surface))
	h := NewServer(c, map[string]http.Handler{
		"GET /metrics": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}).Handler()

	request(c, context.Background(), "signData")
	p := surface.next(t)
	defer c.WindowClosed(p.RequestID)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"wrong kind", `{"kind":"permission-request","granted":["signData"]}`, http.StatusBadRequest},
		{"mismatched id", `{"kind":"permission-response","requestId":"other","granted":[]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prompts/"+p.RequestID, bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/"+p.RequestID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deadline"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Len(t, c.Pending(), 1, "bad answers leave the prompt open")
}
