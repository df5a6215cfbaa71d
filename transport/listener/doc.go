// Package listener opens the relay's TCP listener with a configurable
// accept backlog. On linux the socket is built with golang.org/x/sys/unix
// so the backlog reaches listen(2); elsewhere the platform default applies.
package listener
