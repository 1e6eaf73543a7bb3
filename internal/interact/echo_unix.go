//go:build linux || darwin || freebsd || netbsd || openbsd

package interact

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// terminalEcho returns a switch for the ECHO flag of in, or nil when in is
// not a terminal. Canonical mode stays on so input is still read line by line.
func terminalEcho(in io.Reader) func(on bool) error {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	fd := int(f.Fd())

	var (
		mu    sync.Mutex
		saved *term.State
		depth int
	)
	return func(on bool) error {
		mu.Lock()
		defer mu.Unlock()

		if on {
			if depth == 0 {
				return nil
			}
			depth--
			if depth > 0 {
				return nil
			}
			err := term.Restore(fd, saved)
			saved = nil
			return err
		}

		if depth > 0 {
			depth++
			return nil
		}
		state, err := term.GetState(fd)
		if err != nil {
			return err
		}
		termios, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
		if err != nil {
			return err
		}
		termios.Lflag &^= unix.ECHO
		if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, termios); err != nil {
			return err
		}
		saved = state
		depth = 1
		return nil
	}
}
