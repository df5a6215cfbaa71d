//go:build linux

package listener

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen opens a TCP listener on host:port with the given accept backlog.
// The socket is created by hand because net.Listen always uses the system
// default backlog.
func Listen(ctx context.Context, host string, port, backlog int) (net.Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %w", err)
	}

	domain, sa, err := sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	// FileListener dups the descriptor, so the original is closed either way
	file := os.NewFile(uintptr(fd), "tcp:"+addr.String())
	defer file.Close()

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	return ln, nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if addr.IP == nil {
		return unix.AF_INET, &unix.SockaddrInet4{Port: addr.Port}, nil
	}

	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}

	ip6 := addr.IP.To16()
	if ip6 == nil {
		return 0, nil, fmt.Errorf("unsupported address %s", addr)
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip6)
	if addr.Zone != "" {
		iface, err := net.InterfaceByName(addr.Zone)
		if err != nil {
			return 0, nil, fmt.Errorf("unknown zone %q: %w", addr.Zone, err)
		}
		sa.ZoneId = uint32(iface.Index)
	}
	return unix.AF_INET6, sa, nil
}
