//go:build linux

package hostlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// dialVsock connects to cid:port. The connect runs non-blocking so ctx and
// timeout can cut it short; I/O afterwards is blocking.
func dialVsock(ctx context.Context, cid, port uint32, timeout time.Duration) (net.Conn, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set non-blocking: %w", err)
	}

	remote := &unix.SockaddrVM{CID: cid, Port: port}
	if err := unix.Connect(fd, remote); err != nil {
		if err != unix.EINPROGRESS {
			unix.Close(fd)
			return nil, fmt.Errorf("vsock connect failed: %w", err)
		}
		if err := awaitConnect(ctx, fd, timeout); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set blocking: %w", err)
	}
	return &vsockConn{fd: fd, local: vsockAddr{cid: unix.VMADDR_CID_ANY}, remote: vsockAddr{cid: cid, port: port}}, nil
}

func awaitConnect(ctx context.Context, fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("vsock connect timeout")
		}

		// Poll in short slices so cancellation is noticed promptly.
		slice := min(remaining, 100*time.Millisecond)
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, max(int(slice.Milliseconds()), 1))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll failed: %w", err)
		}
		if n == 0 {
			continue
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return fmt.Errorf("getsockopt failed: %w", err)
		}
		if soErr != 0 {
			return fmt.Errorf("vsock connect error: %w", unix.Errno(soErr))
		}
		return nil
	}
}

// listenVsock accepts connections on port from any CID.
func listenVsock(port uint32) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrVM{CID: unix.VMADDR_CID_ANY, Port: port}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("vsock bind failed: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("vsock listen failed: %w", err)
	}
	return &vsockListener{fd: fd, addr: vsockAddr{cid: unix.VMADDR_CID_ANY, port: port}}, nil
}

type vsockListener struct {
	fd   int
	addr vsockAddr

	once sync.Once
}

func (l *vsockListener) Accept() (net.Conn, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if errors.Is(err, unix.EBADF) || errors.Is(err, unix.EINVAL) {
				return nil, net.ErrClosed
			}
			return nil, fmt.Errorf("vsock accept failed: %w", err)
		}
		remote := vsockAddr{}
		if vm, ok := sa.(*unix.SockaddrVM); ok {
			remote = vsockAddr{cid: vm.CID, port: vm.Port}
		}
		return &vsockConn{fd: nfd, local: l.addr, remote: remote}, nil
	}
}

// Close shuts the socket down first so a blocked Accept returns.
func (l *vsockListener) Close() error {
	var err error
	l.once.Do(func() {
		_ = unix.Shutdown(l.fd, unix.SHUT_RDWR)
		err = unix.Close(l.fd)
	})
	return err
}

func (l *vsockListener) Addr() net.Addr {
	return l.addr
}

// vsockConn is a blocking net.Conn over a raw vsock descriptor. Deadlines
// map onto SO_RCVTIMEO and SO_SNDTIMEO.
type vsockConn struct {
	fd     int
	local  vsockAddr
	remote vsockAddr
}

func (c *vsockConn) Read(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err != nil {
		return 0, wrapIOError(err)
	}
	if n == 0 && len(b) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *vsockConn) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(c.fd, b[written:])
		if err != nil {
			return written, wrapIOError(err)
		}
		written += n
	}
	return written, nil
}

func (c *vsockConn) Close() error {
	return unix.Close(c.fd)
}

func (c *vsockConn) LocalAddr() net.Addr  { return c.local }
func (c *vsockConn) RemoteAddr() net.Addr { return c.remote }

func (c *vsockConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *vsockConn) SetReadDeadline(t time.Time) error {
	return c.setTimeout(unix.SO_RCVTIMEO, t)
}

func (c *vsockConn) SetWriteDeadline(t time.Time) error {
	return c.setTimeout(unix.SO_SNDTIMEO, t)
}

// setTimeout converts an absolute deadline. A zero timeval disables the
// timeout, so a deadline already in the past becomes the smallest one.
func (c *vsockConn) setTimeout(opt int, t time.Time) error {
	var tv unix.Timeval
	if !t.IsZero() {
		tv = unix.NsecToTimeval(max(time.Until(t), time.Microsecond).Nanoseconds())
	}
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, opt, &tv)
}

func wrapIOError(err error) error {
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return fmt.Errorf("vsock i/o timeout: %w", err)
	}
	return err
}

type vsockAddr struct {
	cid  uint32
	port uint32
}

func (a vsockAddr) Network() string { return "vsock" }
func (a vsockAddr) String() string  { return fmt.Sprintf("%d:%d", a.cid, a.port) }

var (
	_ net.Conn     = (*vsockConn)(nil)
	_ net.Listener = (*vsockListener)(nil)
)
