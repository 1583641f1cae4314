//go:build !linux

package hostlink

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"
)

func dialVsock(context.Context, uint32, uint32, time.Duration) (net.Conn, error) {
	return nil, fmt.Errorf("vsock is only supported on Linux (current OS: %s)", runtime.GOOS)
}

func listenVsock(uint32) (net.Listener, error) {
	return nil, fmt.Errorf("vsock is only supported on Linux (current OS: %s)", runtime.GOOS)
}
