//go:build freebsd

package main

import "github.com/mzec/jtagprog/internal/cable"

func newParallelCable() (cable.Cable, error) {
	return cable.NewParallelCable("/dev/ppi0"), nil
}
