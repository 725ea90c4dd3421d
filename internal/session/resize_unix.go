//go:build !windows

package session

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
)

// watchResize propagates window-size changes from the controlling terminal
// to the PTY until the returned stop function is called.
func watchResize(ptmx *os.File) func() {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)

	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()

	return func() {
		signal.Stop(winch)
		close(winch)
	}
}
