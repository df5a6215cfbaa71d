package listener

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_AcceptsConnections(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1", 0, 16)
	require.NoError(t, err)
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, addr.Port)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestListen_AddressInUse(t *testing.T) {
	first, err := Listen(context.Background(), "127.0.0.1", 0, 16)
	require.NoError(t, err)
	defer first.Close()

	port := first.Addr().(*net.TCPAddr).Port
	_, err = Listen(context.Background(), "127.0.0.1", port, 16)
	assert.Error(t, err)
}

func TestListen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Listen(ctx, "127.0.0.1", 0, 16)
	assert.Error(t, err)
}

func TestListen_BadHost(t *testing.T) {
	_, err := Listen(context.Background(), "no such host.invalid", 0, 16)
	assert.Error(t, err)
}
