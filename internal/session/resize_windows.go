//go:build windows

package session

import "os"

// watchResize is a no-op on Windows; there is no SIGWINCH to forward.
func watchResize(ptmx *os.File) func() {
	return func() {}
}
