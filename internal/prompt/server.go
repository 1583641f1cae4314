package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/akshaybapat6365/dark-wallet/internal/middleware"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Server is the HTTP prompt surface. A UI polls GET /prompts, shows each
// one, then answers with POST or closes it with DELETE.
type Server struct {
	coordinator *Coordinator
	extra       map[string]http.Handler
	httpServer  *http.Server
}

// NewServer creates a prompt surface for c. extra mounts additional
// handlers, e.g. "/metrics".
func NewServer(c *Coordinator, extra map[string]http.Handler) *Server {
	return &Server{coordinator: c, extra: extra}
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /prompts", s.handleList)
	mux.HandleFunc("GET /prompts/{id}", s.handleGet)
	mux.Handle("POST /prompts/{id}", middleware.LimitBody(http.HandlerFunc(s.handleAnswer)))
	mux.HandleFunc("DELETE /prompts/{id}", s.handleClose)

	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}

	return middleware.Logging(mux)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("prompt surface listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type promptView struct {
	types.PermissionRequestMsg
	Deadline time.Time `json:"deadline"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Pending())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, deadline, ok := s.coordinator.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "prompt not found"})
		return
	}
	writeJSON(w, http.StatusOK, promptView{PermissionRequestMsg: msg, Deadline: deadline})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var msg types.PermissionResponseMsg
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if msg.Kind != types.KindPermissionResponse {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be permission-response"})
		return
	}
	if msg.RequestID != "" && msg.RequestID != id {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requestId does not match path"})
		return
	}

	if !s.coordinator.Answer(id, msg.Granted) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "prompt not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !s.coordinator.WindowClosed(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "prompt not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// LogSurface announces each prompt in the log with the URL a UI should
// fetch. It never fails.
func LogSurface(baseURL string) Surface {
	return SurfaceFunc(func(ctx context.Context, p types.PermissionRequestMsg) error {
		slog.InfoContext(ctx, "permission prompt opened",
			"prompt_id", p.RequestID,
			"origin", p.Origin,
			"methods", p.Methods,
			"url", baseURL+"/prompts/"+p.RequestID,
		)
		return nil
	})
}
