//go:build !linux && !darwin

package logger

// isTerminal conservatively disables color on platforms without a
// terminal probe.
func isTerminal(fd uintptr) bool {
	return false
}
