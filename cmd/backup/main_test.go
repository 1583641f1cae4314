package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshaybapat6365/dark-wallet/internal/hostlink"
)

func TestEnsureHostStopped(t *testing.T) {
	t.Run("refuses while the host answers", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()

		err = ensureHostStopped(context.Background(), &hostlink.TCPDialer{Addr: ln.Addr().String(), Timeout: time.Second})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution host is running (tcp)")
	})

	t.Run("proceeds when nothing listens", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		err = ensureHostStopped(context.Background(), &hostlink.TCPDialer{Addr: addr, Timeout: time.Second})
		assert.NoError(t, err)
	})
}

func TestRun_RequiresOneSubcommand(t *testing.T) {
	assert.Error(t, run(nil))
	assert.NoError(t, run([]string{"--help"}))
}
