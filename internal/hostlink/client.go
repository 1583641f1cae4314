package hostlink

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

const (
	defaultCallTimeout = 5 * time.Minute
	defaultLaunchWait  = 15 * time.Second
)

// Client sends one RPC per connection to the execution host.
type Client struct {
	dialer      Dialer
	launcher    *Launcher
	callTimeout time.Duration
	launchWait  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLauncher starts the host through l when it cannot be reached.
func WithLauncher(l *Launcher) Option {
	return func(c *Client) { c.launcher = l }
}

// WithCallTimeout bounds a call whose context has no deadline. Calls can
// wait on a permission prompt, so the default is generous.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithLaunchWait bounds how long a call retries after launching the host.
func WithLaunchWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.launchWait = d
		}
	}
}

// NewClient returns a client that reaches the host through d.
func NewClient(d Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:      d,
		callTimeout: defaultCallTimeout,
		launchWait:  defaultLaunchWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call forwards req and returns the host's response. Errors mean the link
// failed; a wallet-level failure comes back as a response with OK false.
func (c *Client) Call(ctx context.Context, req *types.RPCRequest) (types.RPCResponse, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return types.RPCResponse{}, fmt.Errorf("failed to reach host (%s): %w", c.dialer.Transport(), err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.callTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return types.RPCResponse{}, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock the read when ctx ends before the host answers.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WriteFrame(conn, req); err != nil {
		return types.RPCResponse{}, err
	}
	var resp types.RPCResponse
	if err := ReadFrame(conn, &resp); err != nil {
		if ctx.Err() != nil {
			return types.RPCResponse{}, ctx.Err()
		}
		return types.RPCResponse{}, err
	}
	if resp.ID != req.ID {
		return types.RPCResponse{}, fmt.Errorf("response id %d does not match request id %d", resp.ID, req.ID)
	}
	return resp, nil
}

// connect dials the host. When the first dial fails and a launcher is set,
// the host is started and dialed again with backoff until launchWait.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.Dial(ctx)
	if err == nil || c.launcher == nil {
		return conn, err
	}

	if lerr := c.launcher.Ensure(ctx); lerr != nil {
		return nil, fmt.Errorf("%w (launch: %v)", err, lerr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.launchWait)
	defer cancel()

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("host did not come up: %w", err)
		case <-time.After(backoff):
		}
		conn, err = c.dialer.Dial(waitCtx)
		if err == nil {
			return conn, nil
		}
		backoff = min(backoff*2, time.Second)
	}
}
