// Package command parses the external command stream (spec §6): one memory
// access per line, read or write, instruction or data, word or byte sized,
// against a 64-bit virtual address.
package command

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tinyrange/memsim/internal/simerr"
)

// Order is the direction of a memory access.
type Order int

const (
	Read Order = iota
	Write
)

func (o Order) String() string {
	if o == Write {
		return "W"
	}
	return "R"
}

// Kind distinguishes an instruction fetch from a data access, and for data
// accesses, a byte from a word.
type Kind int

const (
	Instruction Kind = iota
	DataWord
	DataByte
)

func (k Kind) String() string {
	switch k {
	case Instruction:
		return "I"
	case DataWord:
		return "D W"
	default:
		return "D B"
	}
}

// Command is one parsed line of the command stream.
type Command struct {
	Order     Order
	Kind      Kind
	WriteData uint32 // valid only when Order == Write
	VAddr     uint64
}

// Program is a growable list of commands read from a stream.
type Program struct {
	Lines []Command
}

// Parse reads every command line from r, validating each against spec §6's
// grammar and constraints (instructions may not be writes; write-byte
// values must fit in a byte). A blank or whitespace-only line is skipped.
func Parse(r io.Reader) (*Program, error) {
	prog := &Program{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("command line %d: %w", lineNo, err)
		}
		prog.Lines = append(prog.Lines, cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, simerr.Wrap(simerr.IO, err, "reading command stream")
	}
	prog.Shrink()
	return prog, nil
}

// Shrink reclaims any spare capacity append left behind, the Go
// equivalent of the original parser's final program_shrink realloc.
func (p *Program) Shrink() {
	if cap(p.Lines) == len(p.Lines) {
		return
	}
	trimmed := make([]Command, len(p.Lines))
	copy(trimmed, p.Lines)
	p.Lines = trimmed
}

func parseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Command{}, simerr.New(simerr.BadParameter, "expected at least an order and access type, got %q", line)
	}

	order, err := parseOrder(fields[0])
	if err != nil {
		return Command{}, err
	}

	rest := fields[1:]
	kind, writeData, rest, err := parseAccess(order, rest)
	if err != nil {
		return Command{}, err
	}

	if len(rest) != 1 {
		return Command{}, simerr.New(simerr.BadParameter, "expected a single @0x<vaddr> token, got %q", line)
	}
	vaddr, err := parseVAddr(rest[0])
	if err != nil {
		return Command{}, err
	}

	return Command{Order: order, Kind: kind, WriteData: writeData, VAddr: vaddr}, nil
}

func parseOrder(tok string) (Order, error) {
	switch tok {
	case "R":
		return Read, nil
	case "W":
		return Write, nil
	default:
		return 0, simerr.New(simerr.BadParameter, "unknown order %q, expected R or W", tok)
	}
}

func parseAccess(order Order, fields []string) (Kind, uint32, []string, error) {
	if len(fields) == 0 {
		return 0, 0, nil, simerr.New(simerr.BadParameter, "missing access type")
	}
	switch fields[0] {
	case "I":
		if order == Write {
			return 0, 0, nil, simerr.New(simerr.BadParameter, "instructions may not be writes")
		}
		return Instruction, 0, fields[1:], nil
	case "D":
		if len(fields) < 2 {
			return 0, 0, nil, simerr.New(simerr.BadParameter, "missing data width after D")
		}
		var kind Kind
		var maxDigits int
		switch fields[1] {
		case "W":
			kind, maxDigits = DataWord, 8
		case "B":
			kind, maxDigits = DataByte, 2
		default:
			return 0, 0, nil, simerr.New(simerr.BadParameter, "unknown data width %q, expected W or B", fields[1])
		}
		rest := fields[2:]
		if order != Write {
			return kind, 0, rest, nil
		}
		if len(rest) == 0 {
			return 0, 0, nil, simerr.New(simerr.BadParameter, "write command missing data value")
		}
		value, err := parseHexValue(rest[0], maxDigits)
		if err != nil {
			return 0, 0, nil, err
		}
		return kind, value, rest[1:], nil
	default:
		return 0, 0, nil, simerr.New(simerr.BadParameter, "unknown access type %q, expected I or D", fields[0])
	}
}

func parseHexValue(tok string, maxDigits int) (uint32, error) {
	digits, ok := strings.CutPrefix(tok, "0x")
	if !ok {
		return 0, simerr.New(simerr.BadParameter, "data value %q must start with 0x", tok)
	}
	if len(digits) == 0 || len(digits) > maxDigits {
		return 0, simerr.New(simerr.WrongSize, "data value %q must have 1-%d hex digits", tok, maxDigits)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, simerr.Wrap(simerr.BadParameter, err, "parsing data value %q", tok)
	}
	return uint32(v), nil
}

func parseVAddr(tok string) (uint64, error) {
	hex, ok := strings.CutPrefix(tok, "@0x")
	if !ok {
		return 0, simerr.New(simerr.BadParameter, "address token %q must start with @0x", tok)
	}
	if len(hex) != 16 {
		return 0, simerr.New(simerr.WrongSize, "address %q must have exactly 16 hex digits", tok)
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, simerr.Wrap(simerr.BadParameter, err, "parsing address %q", tok)
	}
	return v, nil
}

// String renders a Command back in the external command-stream format.
func (c Command) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ", c.Order)
	switch c.Kind {
	case Instruction:
		b.WriteString("I")
	case DataWord:
		b.WriteString("D W")
		if c.Order == Write {
			fmt.Fprintf(&b, " 0x%X", c.WriteData)
		}
	case DataByte:
		b.WriteString("D B")
		if c.Order == Write {
			fmt.Fprintf(&b, " 0x%02X", c.WriteData)
		}
	}
	fmt.Fprintf(&b, " @0x%016X", c.VAddr)
	return b.String()
}
