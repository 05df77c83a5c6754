//go:build unix

package performance

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// errnoName returns the symbolic name of a socket errno, e.g. "EHOSTUNREACH".
func errnoName(errno syscall.Errno) string {
	return unix.ErrnoName(errno)
}
