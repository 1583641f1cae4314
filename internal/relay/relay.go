// Package relay routes connector RPCs from untrusted gateways to the
// execution host. Each websocket channel is bound to one origin and network
// by its first request; later requests for anything else are refused
// without being forwarded.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
	"github.com/akshaybapat6365/dark-wallet/internal/hostlink"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/middleware"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Rejection reasons recorded in metrics
const (
	RejectOrigin    = "origin"
	RejectMismatch  = "mismatch"
	RejectRate      = "rate"
	RejectMalformed = "malformed"
	RejectHost      = "host"
)

// Forwarder delivers one request to the execution host and returns its
// reply. *hostlink.Client is the production Forwarder.
type Forwarder interface {
	Call(ctx context.Context, req *types.RPCRequest) (types.RPCResponse, error)
}

// Router accepts gateway channels and forwards their requests.
type Router struct {
	cfg       *config.Config
	forwarder Forwarder
	metrics   *metrics.Metrics

	upgrader websocket.Upgrader

	// connLimiter is keyed by client IP, msgLimiter by channel id.
	connLimiter *middleware.RateLimiter
	msgLimiter  *middleware.RateLimiter

	mu       sync.Mutex
	channels map[*channel]struct{}
	closing  bool
	inflight sync.WaitGroup

	httpServer *http.Server
}

// New returns a router forwarding through fwd. m may be nil.
func New(cfg *config.Config, fwd Forwarder, m *metrics.Metrics) *Router {
	r := &Router{
		cfg:         cfg,
		forwarder:   fwd,
		metrics:     m,
		connLimiter: middleware.NewRateLimiter(cfg.RelayRate, cfg.RelayBurst),
		msgLimiter:  middleware.NewRateLimiter(cfg.RelayRate, cfg.RelayBurst),
		channels:    make(map[*channel]struct{}),
	}
	r.connLimiter.OnReject = func(*http.Request) { m.RelayRejected(RejectRate) }
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}
	return r
}

func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if r.cfg.OriginAllowed(origin) {
		return true
	}
	r.metrics.RelayRejected(RejectOrigin)
	logger.Warn(req.Context(), "relay origin refused", "origin", origin, "remote", middleware.ClientIP(req))
	return false
}

// Handler returns the relay routes: the websocket endpoint, health and
// metrics.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", r.connLimiter.Limit(http.HandlerFunc(r.handleWS)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics.Handler())
	}
	return middleware.Logging(mux)
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	closing := r.closing
	r.mu.Unlock()
	if closing {
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn(req.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{
		id:              uuid.NewString(),
		conn:            conn,
		handshakeOrigin: req.Header.Get("Origin"),
		cancel:          cancel,
	}
	ch.ctx = logger.WithChannelID(ctx, ch.id)

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	r.channels[ch] = struct{}{}
	r.mu.Unlock()

	r.metrics.ChannelOpened()
	logger.Info(ch.ctx, "relay channel opened", "remote", middleware.ClientIP(req), "origin", ch.handshakeOrigin)

	go r.keepalive(ch)
	r.readLoop(ch)
}

// readLoop reads until the gateway goes away, then drops the channel and
// its session binding.
func (r *Router) readLoop(ch *channel) {
	defer r.drop(ch)

	ch.conn.SetReadLimit(hostlink.MaxFrameSize)
	_ = ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	ch.conn.SetPongHandler(func(string) error {
		return ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug(ch.ctx, "relay channel read failed", "error", err)
			}
			return
		}
		r.handleMessage(ch, data)
	}
}

func (r *Router) handleMessage(ch *channel, data []byte) {
	var req types.RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.metrics.RelayRejected(RejectMalformed)
		r.reply(ch, types.Failure(req.ID, apperrors.InvalidRequest("Malformed request.")))
		return
	}

	ctx := logger.WithRequestID(ch.ctx, req.ID)

	sess, ok := ch.bind(Session{Origin: req.Origin, NetworkID: req.NetworkID})
	if !ok {
		r.metrics.RelayRejected(RejectMismatch)
		logger.Warn(ctx, "relay session mismatch",
			"bound_origin", sess.Origin,
			"bound_network", sess.NetworkID,
			"origin", req.Origin,
			"network_id", req.NetworkID,
		)
		r.reply(ch, types.Failure(req.ID, apperrors.InvalidRequest("Session origin/network mismatch.")))
		return
	}

	if !r.msgLimiter.Allow(ch.id) {
		r.metrics.RelayRejected(RejectRate)
		r.reply(ch, types.Failure(req.ID, apperrors.InvalidRequest("Too many requests.")))
		return
	}

	// Requests on one channel complete independently of each other.
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.reply(ch, r.forward(ctx, &req))
	}()
}

// forward always produces a reply. A host that cannot be reached or fails
// mid-call becomes an InternalError.
func (r *Router) forward(ctx context.Context, req *types.RPCRequest) types.RPCResponse {
	resp, err := r.forwarder.Call(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			r.metrics.RelayRejected(RejectHost)
			logger.Error(ctx, "host call failed", "method", req.Method, "error", err)
		}
		return types.Failure(req.ID, apperrors.ErrInternal)
	}
	resp.ID = req.ID
	if !resp.OK {
		if resp.Error == nil {
			return types.Failure(req.ID, apperrors.ErrInternal)
		}
		resp.Error = apperrors.ToWire(resp.Error)
	}
	return resp
}

func (r *Router) reply(ch *channel, resp types.RPCResponse) {
	if err := ch.write(resp); err != nil && ch.ctx.Err() == nil {
		logger.Debug(ch.ctx, "relay reply failed", "id", resp.ID, "error", err)
	}
}

func (r *Router) keepalive(ch *channel) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ch.ctx.Done():
			return
		case <-ticker.C:
			if err := ch.ping(); err != nil {
				ch.conn.Close()
				return
			}
		}
	}
}

func (r *Router) drop(ch *channel) {
	r.mu.Lock()
	_, ok := r.channels[ch]
	delete(r.channels, ch)
	r.mu.Unlock()
	if !ok {
		return
	}

	ch.cancel()
	ch.conn.Close()
	r.msgLimiter.Forget(ch.id)
	r.metrics.ChannelClosed()
	logger.Info(ch.ctx, "relay channel closed")
}

// Channels returns the number of open channels.
func (r *Router) Channels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Serve serves on ln until Shutdown.
func (r *Router) Serve(ln net.Listener) error {
	r.httpServer = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info(context.Background(), "relay listening", "addr", ln.Addr().String())
	err := r.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting, closes every channel and waits for in-flight
// forwards or ctx.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	channels := make([]*channel, 0, len(r.channels))
	for ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	var err error
	if r.httpServer != nil {
		err = r.httpServer.Shutdown(ctx)
	}
	for _, ch := range channels {
		_ = ch.closeFrame("relay shutting down")
		r.drop(ch)
	}
	r.connLimiter.Close()
	r.msgLimiter.Close()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
