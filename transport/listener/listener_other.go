//go:build !linux

package listener

import (
	"context"
	"fmt"
	"net"
)

// Listen opens a TCP listener on host:port. The backlog is left to the
// operating system on this platform.
func Listen(ctx context.Context, host string, port, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}
