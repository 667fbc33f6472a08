//go:build !freebsd

package main

import (
	"github.com/mzec/jtagprog/internal/cable"
	"github.com/mzec/jtagprog/internal/jtagerr"
)

func newParallelCable() (cable.Cable, error) {
	return nil, jtagerr.New(jtagerr.NoCable, "parallel port cable is only supported on freebsd")
}
