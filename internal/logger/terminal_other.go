//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package logger

// IsTerminal reports whether fd refers to a terminal. Always false here.
func IsTerminal(uintptr) bool { return false }
