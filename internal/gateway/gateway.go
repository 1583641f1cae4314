// Package gateway is the untrusted side of the relay channel. A Gateway
// numbers its requests, matches each reply to its caller, and rejects every
// outstanding call with Disconnected when the channel goes away.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

const writeWait = 10 * time.Second

type result struct {
	resp types.RPCResponse
	err  error
}

// Gateway is one channel to the relay for a fixed origin and network.
type Gateway struct {
	conn      *websocket.Conn
	origin    string
	networkID string

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan result
	closed  bool

	done chan struct{}
}

// Dial opens a channel to the relay at url. The Origin header is set to
// origin so the relay can check it against its allow list.
func Dial(ctx context.Context, url, origin, networkID string) (*Gateway, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}
	return newGateway(conn, origin, networkID), nil
}

func newGateway(conn *websocket.Conn, origin, networkID string) *Gateway {
	g := &Gateway{
		conn:      conn,
		origin:    origin,
		networkID: networkID,
		pending:   make(map[uint64]chan result),
		done:      make(chan struct{}),
	}
	go g.readLoop()
	return g
}

// Origin is the origin every request is sent under.
func (g *Gateway) Origin() string { return g.origin }

// NetworkID is the network every request is sent for.
func (g *Gateway) NetworkID() string { return g.networkID }

// Pending returns the number of calls awaiting a reply.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Done is closed once the channel is torn down.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// Call sends method with params and decodes the result into out, which may
// be nil. A failed reply is returned as an *apperrors.AppError.
func (g *Gateway) Call(ctx context.Context, out any, method types.Method, params ...any) error {
	id := g.nextID.Add(1)
	req, err := types.NewRequest(id, g.origin, g.networkID, method, params...)
	if err != nil {
		return apperrors.InvalidRequest(err.Error())
	}

	ch := make(chan result, 1)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return apperrors.ErrDisconnected
	}
	g.pending[id] = ch
	g.mu.Unlock()

	if err := g.write(req); err != nil {
		g.forget(id)
		g.teardown()
		return apperrors.ErrDisconnected
	}

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// A reply that arrives later finds no entry and is dropped.
		g.forget(id)
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}
	if !res.resp.OK {
		return apperrors.FromWire(res.resp.Error)
	}
	if out == nil || len(res.resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (g *Gateway) write(req *types.RPCRequest) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return g.conn.WriteJSON(req)
}

func (g *Gateway) forget(id uint64) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Gateway) readLoop() {
	defer g.teardown()
	for {
		var resp types.RPCResponse
		if err := g.conn.ReadJSON(&resp); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug(context.Background(), "gateway read failed", "error", err)
			}
			return
		}

		g.mu.Lock()
		ch, ok := g.pending[resp.ID]
		delete(g.pending, resp.ID)
		g.mu.Unlock()
		if ok {
			ch <- result{resp: resp}
		}
	}
}

// teardown rejects every pending call with Disconnected. Entries leave the
// map under the lock, so each caller is resolved at most once.
func (g *Gateway) teardown() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	pending := g.pending
	g.pending = make(map[uint64]chan result)
	g.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: apperrors.ErrDisconnected}
	}
	_ = g.conn.Close()
	close(g.done)
}

// Close tears the channel down. Pending calls fail with Disconnected.
func (g *Gateway) Close() error {
	g.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = g.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	g.writeMu.Unlock()

	g.teardown()
	<-g.done
	return nil
}
