//go:build !unix

package performance

import "syscall"

// errnoName has no symbolic table outside unix; callers fall back to the message.
func errnoName(syscall.Errno) string {
	return ""
}
