//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package interact

import "io"

func terminalEcho(in io.Reader) func(on bool) error {
	return nil
}
