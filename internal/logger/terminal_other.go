//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd

package logger

// isTerminal always reports false; colors stay off on other platforms.
func isTerminal(uintptr) bool {
	return false
}
