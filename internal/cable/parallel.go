//go:build freebsd

package cable

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/txrx"
)

// FreeBSD's ppbus(4) ioctls (<dev/ppbus/ppi.h>), computed the way
// sys/ioccom.h's _IOW/_IOR macros do, for a single-byte (u_int8_t)
// argument — ujprog.c only ever used these three on its "USE_PPI" path
// and nothing else, grounded on its setup_ppi()/shutdown_ppi()/commit_ppi().
const (
	iocIn     = 0x80000000
	iocOut    = 0x40000000
	iocGroupP = 'P' << 8

	ppiSetData   = iocIn | (1 << 16) | iocGroupP | 2  // PPISDATA
	ppiSetStatus = iocIn | (1 << 16) | iocGroupP | 3  // PPISSTATUS
	ppiGetStatus = iocOut | (1 << 16) | iocGroupP | 4 // PPIGSTATUS
)

// ParallelCable drives a /dev/ppiN device directly via ioctl, for hosts
// where no USB cable is present. Grounded on Daedaluz-goserial/ioctl_linux.go's
// ioctl-wrapping idiom, using golang.org/x/sys/unix instead of the
// daedaluz/goioctl module (not part of the retrieved pack) for the raw
// ioctl syscalls.
type ParallelCable struct {
	path string
	fd   int
}

// NewParallelCable returns an unopened ParallelCable for the given device
// node (e.g. "/dev/ppi0").
func NewParallelCable(path string) *ParallelCable {
	return &ParallelCable{path: path}
}

func (p *ParallelCable) Open() error {
	fd, err := unix.Open(p.path, unix.O_RDWR, 0)
	if err != nil {
		return jtagerr.Wrap(jtagerr.NoCable, fmt.Sprintf("open %s", p.path), err)
	}
	p.fd = fd

	var c byte
	if err := unix.IoctlSetInt(fd, ppiSetData, int(c)); err != nil {
		unix.Close(fd)
		return jtagerr.Wrap(jtagerr.NoCable, "PPISDATA", err)
	}
	if err := unix.IoctlSetInt(fd, ppiSetStatus, int(c)); err != nil {
		unix.Close(fd)
		return jtagerr.Wrap(jtagerr.NoCable, "PPISSTATUS", err)
	}
	status, err := unix.IoctlGetInt(fd, ppiGetStatus)
	if err != nil {
		unix.Close(fd)
		return jtagerr.Wrap(jtagerr.NoCable, "PPIGSTATUS", err)
	}
	if status&0xb6 != 0x06 {
		unix.Close(fd)
		return jtagerr.New(jtagerr.NoCable, "parallel port in unexpected state: %#02x", status)
	}
	return nil
}

func (p *ParallelCable) Close() error {
	// Pull TCK low so the next run doesn't incidentally pulse it.
	_ = unix.IoctlSetInt(p.fd, ppiSetData, 0)
	return jtagerr.Wrap(jtagerr.CableIO, "close", unix.Close(p.fd))
}

// SetMode is a no-op: the parallel port has no
// dedicated bit-bang/UART firmware mode to switch, unlike the USB cable.
func (p *ParallelCable) SetMode(mode Mode, ledBit byte) error {
	return nil
}

func (p *ParallelCable) Write(b []byte) error {
	for _, v := range b {
		if err := unix.IoctlSetInt(p.fd, ppiSetData, int(v)); err != nil {
			return jtagerr.Wrap(jtagerr.CableIO, "PPISDATA write", err)
		}
	}
	return nil
}

// Read samples PPIGSTATUS once per requested byte, mirroring ujprog.c's
// commit_ppi() SYNC-mode sampling (one status read per TX byte on even
// indices).
func (p *ParallelCable) Read(b []byte) error {
	for i := range b {
		v, err := unix.IoctlGetInt(p.fd, ppiGetStatus)
		if err != nil {
			return jtagerr.Wrap(jtagerr.CableIO, "PPIGSTATUS read", err)
		}
		b[i] = byte(v)
	}
	return nil
}

func (p *ParallelCable) SetLatency(ms int) error { return nil }
func (p *ParallelCable) SetBaud(baud int) error  { return nil }

func (p *ParallelCable) Pins() txrx.Pins {
	return txrx.Pins{TMS: PPITMS, TDI: PPITDI, TCK: PPITCK, TDO: PPITDO}
}

func (p *ParallelCable) SyncChunk() int {
	return txrx.SyncChunkUnix
}

var _ Cable = (*ParallelCable)(nil)
