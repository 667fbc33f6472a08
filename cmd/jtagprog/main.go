// jtagprog loads an SVF or JEDEC (.jed) file over a bit-bang JTAG cable,
// in the spirit of ujprog's -j/-c/-t flags.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/mzec/jtagprog/internal/cable"
	"github.com/mzec/jtagprog/internal/jed"
	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/session"
	"github.com/mzec/jtagprog/internal/svf"
)

func mainImpl() error {
	debug := flag.Bool("d", false, "print every SVF/JED-derived statement before executing it")
	quiet := flag.Bool("s", false, "silent: suppress the progress indicator")
	term := flag.Bool("t", false, "enter UART passthrough after programming completes")
	cableKind := flag.String("c", "usb", "cable: usb or ppi")
	target := flag.String("j", "sram", "JED programming target: sram or flash")
	baud := flag.Int("b", 115200, "UART passthrough baud rate")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("usage: jtagprog [-t] [-d] [-s] [-c usb|ppi] [-j sram|flash] [-b baud] <file>")
	}
	path := flag.Arg(0)

	c, err := openCable(*cableKind)
	if err != nil {
		return err
	}

	sess, err := session.New(c, *debug, *quiet)
	if err != nil && strings.EqualFold(*cableKind, "usb") {
		// The USB cable did not open: fall back to the parallel port
		// where that backend is built.
		if pc, perr := newParallelCable(); perr == nil {
			c = pc
			sess, err = session.New(c, *debug, *quiet)
		}
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return jtagerr.Wrap(jtagerr.BadSVF, "read "+path, err)
	}
	lines := strings.Split(string(data), "\n")

	program := lines
	if strings.EqualFold(filepathExt(path), ".jed") {
		tgt := jed.TargetSRAM
		if strings.EqualFold(*target, "flash") {
			tgt = jed.TargetFlash
		}
		out, err := jed.Translate(lines, tgt)
		if err != nil {
			return err
		}
		program = strings.Split(out, "\n")
	}

	interp := svf.NewInterpreter(sess)
	if err := interp.Run(program); err != nil {
		return err
	}
	sess.Finish()

	if *term {
		if err := sess.SetSync(false); err != nil {
			return err
		}
		if err := c.SetBaud(*baud); err != nil {
			return err
		}
		if err := c.SetMode(cable.ModeUART, 0); err != nil {
			return err
		}
		return cable.RunTerminal(c)
	}
	return nil
}

func openCable(kind string) (cable.Cable, error) {
	switch strings.ToLower(kind) {
	case "usb":
		return cable.NewUSBCable(), nil
	case "ppi":
		return newParallelCable()
	default:
		return nil, jtagerr.New(jtagerr.EInval, "unknown cable kind %q", kind)
	}
}

func filepathExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "jtagprog: %s\n", err)
		os.Exit(1)
	}
}
