// Package hostlink carries connector RPCs from the relay to the execution
// host over a framed stream. The host listens on TCP for local use or on
// vsock when it runs inside an enclave.
package hostlink

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

const defaultDialTimeout = 5 * time.Second

// Dialer opens one stream to the execution host.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)

	// Transport names the link, "tcp" or "vsock".
	Transport() string
}

// TCPDialer reaches a host listening on a TCP address.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

// Dial connects to Addr.
func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: orDefault(d.Timeout)}
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

// Transport returns "tcp".
func (d *TCPDialer) Transport() string {
	return config.TransportTCP
}

// VsockDialer reaches a host inside an enclave over AF_VSOCK.
type VsockDialer struct {
	CID     uint32
	Port    uint32
	Timeout time.Duration
}

// Dial connects to CID:Port.
func (d *VsockDialer) Dial(ctx context.Context) (net.Conn, error) {
	return dialVsock(ctx, d.CID, d.Port, orDefault(d.Timeout))
}

// Transport returns "vsock".
func (d *VsockDialer) Transport() string {
	return config.TransportVsock
}

// NewDialer picks the dialer for cfg.HostTransport.
func NewDialer(cfg *config.Config) (Dialer, error) {
	switch cfg.HostTransport {
	case config.TransportTCP:
		return &TCPDialer{Addr: cfg.HostAddr}, nil
	case config.TransportVsock:
		if cfg.HostVsockCID == 0 {
			return nil, apperrors.InvalidConfig("DW_HOST_VSOCK_CID is required for the vsock transport")
		}
		return &VsockDialer{CID: cfg.HostVsockCID, Port: cfg.HostVsockPort}, nil
	default:
		return nil, apperrors.InvalidConfig(fmt.Sprintf("unsupported host transport: %s", cfg.HostTransport))
	}
}

// Listen opens the host side of the link for cfg.HostTransport. A vsock
// host accepts from any CID on DW_HOST_VSOCK_PORT.
func Listen(cfg *config.Config) (net.Listener, error) {
	switch cfg.HostTransport {
	case config.TransportTCP:
		return net.Listen("tcp", cfg.HostAddr)
	case config.TransportVsock:
		return listenVsock(cfg.HostVsockPort)
	default:
		return nil, apperrors.InvalidConfig(fmt.Sprintf("unsupported host transport: %s", cfg.HostTransport))
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultDialTimeout
	}
	return d
}

var (
	_ Dialer = (*TCPDialer)(nil)
	_ Dialer = (*VsockDialer)(nil)
)
