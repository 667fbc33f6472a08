//go:build linux

// TCGETS/TCSETS are Linux ioctl numbers; other unix hosts expose the same
// termios semantics under TIOCGETA/TIOCSETA instead, so this file is
// restricted to the platform the USB cable backend is primarily used on.
package cable

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mzec/jtagprog/internal/jtagerr"
)

// RawTerminal puts the host's controlling terminal into raw mode for the
// duration of a UART passthrough session (-t), and restores it on
// Restore. Grounded on Daedaluz-goserial/port_linux.go's
// Termios.MakeRaw() bit-twiddling, applied here to the user's tty rather
// than to the cable (the FTDI USB bulk channel this package drives has no
// POSIX tty node of its own to configure).
type RawTerminal struct {
	fd   int
	orig unix.Termios
}

// MakeRaw switches fd (typically int(os.Stdin.Fd())) into raw mode.
func MakeRaw(fd int) (*RawTerminal, error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, jtagerr.Wrap(jtagerr.CableIO, "get terminal attributes", err)
	}
	raw := *orig
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, jtagerr.Wrap(jtagerr.CableIO, "set terminal attributes", err)
	}
	return &RawTerminal{fd: fd, orig: *orig}, nil
}

// Restore puts the terminal back into its original mode.
func (r *RawTerminal) Restore() error {
	return jtagerr.Wrap(jtagerr.CableIO, "restore terminal attributes",
		unix.IoctlSetTermios(r.fd, unix.TCSETS, &r.orig))
}

// RunTerminal relays bytes between the host terminal (stdin/stdout) and
// the cable in UART mode until EOF or a read error, implementing the -t
// passthrough. The cable must already be in ModeUART.
func RunTerminal(c Cable) error {
	term, err := MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer term.Restore()

	errCh := make(chan error, 2)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := c.Write(buf[:n]); werr != nil {
					errCh <- werr
					return
				}
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()
	go func() {
		buf := make([]byte, 256)
		for {
			if err := c.Read(buf); err != nil {
				errCh <- err
				return
			}
			if _, err := os.Stdout.Write(buf); err != nil {
				errCh <- err
				return
			}
		}
	}()

	err = <-errCh
	if err == io.EOF {
		return nil
	}
	return err
}
