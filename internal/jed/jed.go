// Package jed translates a JEDEC (.jed) fuse map into the equivalent SVF
// program, the way ujprog.c's exec_jedec_file() does, so the result can be
// fed straight into internal/svf.
package jed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mzec/jtagprog/internal/jtagerr"
)

// Target selects whether the generated SVF program configures the part's
// SRAM or programs its flash, per ujprog.c's JED_TGT_SRAM/JED_TGT_FLASH.
type Target int

const (
	TargetSRAM Target = iota
	TargetFlash
)

// Device describes one supported Lattice part, preserved field-for-field
// from ujprog.c's jed_devices[] table.
type Device struct {
	Name      string
	ID        uint32
	PinCount  int
	Fuses     int
	RowWidth  int
	AddrLen   int
}

// Devices is the set of parts this translator recognises.
var Devices = []Device{
	{Name: "LFXP2-5E-5TQFP144", ID: 0x01299043, PinCount: 144, Fuses: 1236476, RowWidth: 638, AddrLen: 1938},
	{Name: "LFXP2-5E-6TQFP144", ID: 0x01299043, PinCount: 144, Fuses: 1236476, RowWidth: 638, AddrLen: 1938},
	{Name: "LFXP2-5E-7TQFP144", ID: 0x01299043, PinCount: 144, Fuses: 1236476, RowWidth: 638, AddrLen: 1938},
	{Name: "LFXP2-8E-5TQFP144", ID: 0x0129A043, PinCount: 144, Fuses: 1954736, RowWidth: 772, AddrLen: 2532},
	{Name: "LFXP2-8E-6TQFP144", ID: 0x0129A043, PinCount: 144, Fuses: 1954736, RowWidth: 772, AddrLen: 2532},
	{Name: "LFXP2-8E-7TQFP144", ID: 0x0129A043, PinCount: 144, Fuses: 1954736, RowWidth: 772, AddrLen: 2532},
}

func deviceByName(name string) (Device, bool) {
	for _, d := range Devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}

// parseState walks the same state progression as ujprog.c's enum
// jed_states, validating that each record type only appears where the
// file format allows it.
type parseState int

const (
	stInit parseState = iota
	stPackKnown
	stSizeKnown
	stProgInitiated
	stFuses
	stFusesDone
	stSEDCRC
	stHaveSEDCRC
)

// Translate converts the JEDEC records in lines (already split on newline,
// with any trailing CR stripped) into an SVF program for the device named
// by the file's NOTE DEVICE NAME record and the given target.
// Grounded line-for-line on ujprog.c's exec_jedec_file().
func Translate(lines []string, target Target) (string, error) {
	var out strings.Builder
	state := stInit
	var dev Device
	haveDev := false
	var sedCRC string
	lCount := 0

	// Records are '*'-terminated and may span multiple input lines; like
	// the original, accumulate into rec until a '*' closes it, with the
	// 'L' directive (start of a fuse/CRC block) resetting the accumulator
	// without itself being '*'-terminated.
	var rec strings.Builder
	flushFuses := func(fuseBits string) error {
		if !haveDev {
			return jtagerr.New(jtagerr.BadBitstream, "fuse data precedes NOTE DEVICE NAME")
		}
		fmt.Fprintf(&out, "\n\n! Program Fuse Map\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (21);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-002 SEC;\n")
		if target == TargetSRAM {
			fmt.Fprintf(&out, "SIR\t8\tTDI  (67);\n")
		}

		pos := 0
		for row := 1; row <= dev.AddrLen; row++ {
			if target == TargetFlash {
				fmt.Fprintf(&out, "SIR\t8\tTDI  (67);\n")
			}
			if pos+dev.RowWidth > len(fuseBits) {
				return jtagerr.New(jtagerr.BadBitstream, "fuse map shorter than addr_len*row_width")
			}
			rowBits := fuseBits[pos : pos+dev.RowWidth]
			pos += dev.RowWidth
			hex, err := bitsToHex(rowBits)
			if err != nil {
				return err
			}
			fmt.Fprintf(&out, "! Shift in Data Row = %d\n", row)
			fmt.Fprintf(&out, "SDR\t%d\tTDI  (%s);\n", dev.RowWidth, hex)
			if target == TargetFlash {
				fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
				fmt.Fprintf(&out, "SIR\t8\tTDI  (52);\n")
				fmt.Fprintf(&out, "SDR\t1\tTDI  (0)\n")
				fmt.Fprintf(&out, "\t\tTDO  (1);\n")
			} else {
				fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK;\n")
			}
		}
		if pos != len(fuseBits) {
			return jtagerr.New(jtagerr.BadBitstream, "fuse map longer than addr_len*row_width")
		}
		return nil
	}

	emitProgInit := func() {
		fmt.Fprintf(&out, "\n\n! Check the IDCODE\n\n")
		fmt.Fprintf(&out, "STATE\tRESET;\n")
		fmt.Fprintf(&out, "STATE\tIDLE;\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (16);\n")
		fmt.Fprintf(&out, "SDR\t32\tTDI  (FFFFFFFF)\n")
		fmt.Fprintf(&out, "\t\tTDO  (%08X)\n", dev.ID)
		fmt.Fprintf(&out, "\t\tMASK (FFFFFFFF);\n")

		if target == TargetSRAM {
			fmt.Fprintf(&out, "\n\n! Program Bscan register\n\n")
			fmt.Fprintf(&out, "SIR\t8\tTDI  (1C);\n")
			fmt.Fprintf(&out, "STATE\tDRPAUSE;\n")
			fmt.Fprintf(&out, "STATE\tIDLE;\n")

			fmt.Fprintf(&out, "\n\n! Enable SRAM programming mode\n\n")
			fmt.Fprintf(&out, "SIR\t8\tTDI  (55);\n")
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")

			fmt.Fprintf(&out, "\n\n! Erase the device\n\n")
			fmt.Fprintf(&out, "SIR\t8\tTDI  (03);\n")
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
			return
		}

		fmt.Fprintf(&out, "\n\n! Enable XPROGRAM mode\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (35);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")

		fmt.Fprintf(&out, "\n\n! Check the Key Protection fuses\n\n")
		for _, mask := range []string{"10", "40", "04"} {
			fmt.Fprintf(&out, "SIR\t8\tTDI  (B2);\n")
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
			fmt.Fprintf(&out, "SDR\t8\tTDI  (00)\n")
			fmt.Fprintf(&out, "\t\tTDO  (00)\n")
			fmt.Fprintf(&out, "\t\tMASK (%s);\n", mask)
		}

		fmt.Fprintf(&out, "\n\n! Erase the device\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (03);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.20E+002 SEC;\n")

		fmt.Fprintf(&out, "SIR\t8\tTDI  (52);\n")
		fmt.Fprintf(&out, "SDR\t1\tTDI  (0)\n")
		fmt.Fprintf(&out, "\t\tTDO  (1);\n")

		fmt.Fprintf(&out, "SIR\t8\tTDI  (B2);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
		fmt.Fprintf(&out, "SDR\t8\tTDI  (00)\n")
		fmt.Fprintf(&out, "\t\tTDO  (00)\n")
		fmt.Fprintf(&out, "\t\tMASK (01);\n")
	}

	emitUserSig := func(userCode string) {
		fmt.Fprintf(&out, "\n\n! Program USERCODE\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (1A);\n")
		fmt.Fprintf(&out, "SDR\t32\tTDI  (%s);\n", userCode)
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-002 SEC;\n")

		if target == TargetFlash {
			fmt.Fprintf(&out, "\n\n! Read the status bit;\n\n")
			fmt.Fprintf(&out, "SIR\t8\tTDI  (B2);\n")
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
			fmt.Fprintf(&out, "SDR\t8\tTDI  (00)\n")
			fmt.Fprintf(&out, "\t\tTDO  (00)\n")
			fmt.Fprintf(&out, "\t\tMASK (01);\n")
		}

		fmt.Fprintf(&out, "\n\n! Program and Verify 32 bits SED_CRC\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (45);\n")
		fmt.Fprintf(&out, "SDR\t32\tTDI  (%s);\n", sedCRC)
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-002 SEC;\n")

		fmt.Fprintf(&out, "SIR\t8\tTDI  (44);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")

		fmt.Fprintf(&out, "SDR\t32\tTDI  (00000000)\n")
		fmt.Fprintf(&out, "\t\tTDO  (%s);\n", sedCRC)

		fmt.Fprintf(&out, "SIR\t8\tTDI  (B2);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
		fmt.Fprintf(&out, "SDR\t8\tTDI  (00)\n")
		fmt.Fprintf(&out, "\t\tTDO  (00)\n")
		fmt.Fprintf(&out, "\t\tMASK (01);\n")

		fmt.Fprintf(&out, "\n\n! Program DONE bit\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (2F);\n")
		if target == TargetFlash {
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t2.00E-001 SEC;\n")
		} else {
			fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK;\n")
		}
		fmt.Fprintf(&out, "SIR\t8\tTDI  (B2);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
		fmt.Fprintf(&out, "SDR\t8\tTDI  (00)\n")
		fmt.Fprintf(&out, "\t\tTDO  (02)\n")
		fmt.Fprintf(&out, "\t\tMASK (03);\n")

		if target == TargetFlash {
			fmt.Fprintf(&out, "\n\n! Verify DONE bit\n\n")
			fmt.Fprintf(&out, "SIR\t8\tTDI  (B2)\n")
			fmt.Fprintf(&out, "\t\tTDO  (FF)\n")
			fmt.Fprintf(&out, "\t\tMASK (04);\n")
		}

		fmt.Fprintf(&out, "\n\n! Exit the programming mode\n\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (1E);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t2.00E-003 SEC;\n")
		fmt.Fprintf(&out, "SIR\t8\tTDI  (FF);\n")
		fmt.Fprintf(&out, "RUNTEST\tIDLE\t3 TCK\t1.00E-003 SEC;\n")
		fmt.Fprintf(&out, "STATE\tRESET;\n")
	}

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			continue
		}

		// An "L" directive starts a new fuse/CRC block and is never
		// itself '*'-terminated.
		if line[0] == 'L' {
			if state < stProgInitiated {
				return "", jtagerr.New(jtagerr.BadBitstream, "L record before programming was initiated")
			}
			lCount++
			if lCount > 2 {
				return "", jtagerr.New(jtagerr.BadBitstream, "too many L records")
			}
			if state == stProgInitiated {
				state = stFuses
			} else {
				state = stSEDCRC
			}
			rec.Reset()
			continue
		}

		rec.WriteString(line)
		if !strings.HasSuffix(rec.String(), "*") {
			continue
		}
		record := strings.TrimSuffix(rec.String(), "*")
		rec.Reset()

		if state == stSEDCRC {
			var err error
			sedCRC, err = bitsToHex(record)
			if err != nil {
				return "", err
			}
			if len(sedCRC) != 8 {
				return "", jtagerr.New(jtagerr.BadBitstream, "SED_CRC fuse string has unexpected length")
			}
			state = stHaveSEDCRC
		}

		if state == stFuses {
			if err := flushFuses(record); err != nil {
				return "", err
			}
			state = stFusesDone
		}

		switch {
		case strings.HasPrefix(record, "NOTE DEVICE NAME:"):
			name := strings.TrimSpace(strings.TrimPrefix(record, "NOTE DEVICE NAME:"))
			d, ok := deviceByName(name)
			if !ok {
				return "", jtagerr.New(jtagerr.UnsupportedTarget, "bitstream for unsupported target: %s", name)
			}
			dev, haveDev = d, true
		case strings.HasPrefix(record, "N") && state == stInit:
			fmt.Fprintf(&out, "! %s\n", record)

		case strings.HasPrefix(record, "QP"):
			n, err := strconv.Atoi(strings.TrimPrefix(record, "QP"))
			if err != nil || !haveDev || state != stInit || dev.PinCount != n {
				return "", jtagerr.New(jtagerr.BadBitstream, "invalid QP record")
			}
			state = stPackKnown
		case strings.HasPrefix(record, "QF"):
			n, err := strconv.Atoi(strings.TrimPrefix(record, "QF"))
			if err != nil || !haveDev || state != stPackKnown || dev.Fuses != n {
				return "", jtagerr.New(jtagerr.BadBitstream, "invalid QF record")
			}
			state = stSizeKnown

		case strings.HasPrefix(record, "F"):
			if state != stSizeKnown {
				return "", jtagerr.New(jtagerr.BadBitstream, "F record out of sequence")
			}
			state = stProgInitiated
			emitProgInit()

		case strings.HasPrefix(record, "UH"):
			if state != stHaveSEDCRC {
				return "", jtagerr.New(jtagerr.BadBitstream, "UH record out of sequence")
			}
			emitUserSig(strings.TrimPrefix(record, "UH"))
		}
	}

	return out.String(), nil
}

// bitsToHex packs a string of '0'/'1' characters into an LSB-nibble-first
// hex-ASCII encoding, matching ujprog.c's 4-bits-at-a-time packing loop
// (bits read from the string high-index-first).
func bitsToHex(bits string) (string, error) {
	n := len(bits)
	nibbles := (n + 3) / 4
	out := make([]byte, nibbles)
	val := 0
	j := 0
	for i := n; i > 0; i-- {
		switch bits[i-1] {
		case '1':
			val = val<<1 | 1
		case '0':
			val = val << 1
		default:
			return "", jtagerr.New(jtagerr.BadBitstream, "non-binary character %q in fuse data", bits[i-1])
		}
		if (i-1)%4 == 0 {
			out[j] = hexDigit(val)
			j++
			val = 0
		}
	}
	// When n isn't a multiple of 4, the final (i-1)%4==0 boundary still
	// falls out of the loop above on its own — e.g. for n=638 the first
	// flush lands after only 2 bits — so no separate short-nibble flush
	// is needed here.
	return string(out[:j]), nil
}

func hexDigit(v int) byte {
	v &= 0xf
	if v < 10 {
		return '0' + byte(v)
	}
	return 'A' + byte(v-10)
}
