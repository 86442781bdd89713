// memsim-tlb-hier brings up a memory image and resolves a command stream's
// virtual addresses through the hierarchical TLB (component C4: 16-line
// L1-I/L1-D backed by a 64-line L2), printing a hit/miss verdict per
// command and a final dump of all three tables.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/command"
	"github.com/tinyrange/memsim/internal/dump"
	"github.com/tinyrange/memsim/internal/memimg"
	"github.com/tinyrange/memsim/internal/simerr"
	"github.com/tinyrange/memsim/internal/tlbhier"
)

func main() {
	dumpFile := flag.String("dump", "", "raw memory dump file")
	descFile := flag.String("description", "", "memory description file")
	commandsFile := flag.String("commands", "", "command stream file")
	tlbDumpPrefix := flag.String("dump-tlb-prefix", "", "write the final L1-I/L1-D/L2 state to <prefix>.{l1i,l1d,l2}.txt")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*dumpFile, *descFile, *commandsFile, *tlbDumpPrefix, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "memsim-tlb-hier: %v\n", err)
		os.Exit(simerr.ExitCode(err))
	}
}

func accessFor(kind command.Kind) tlbhier.Access {
	if kind == command.Instruction {
		return tlbhier.Instruction
	}
	return tlbhier.Data
}

func run(dumpFile, descFile, commandsFile, tlbDumpPrefix string, out *os.File) error {
	if (dumpFile == "") == (descFile == "") {
		return simerr.New(simerr.BadParameter, "exactly one of -dump or -description is required")
	}
	if commandsFile == "" {
		return simerr.New(simerr.BadParameter, "-commands is required")
	}

	var img *memimg.Image
	var err error
	if dumpFile != "" {
		img, err = memimg.FromDump(dumpFile)
	} else {
		img, err = memimg.FromDescription(descFile)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(commandsFile)
	if err != nil {
		return simerr.Wrap(simerr.IO, err, "opening command stream %s", commandsFile)
	}
	defer f.Close()

	prog, err := command.Parse(f)
	if err != nil {
		return err
	}

	h := tlbhier.New()
	for i, cmd := range prog.Lines {
		v := addr.VirtualFromUint64(cmd.VAddr)
		phys, hit, err := tlbhier.Search(h, img, accessFor(cmd.Kind), v)
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
		}
		verdict := "miss"
		if hit {
			verdict = "hit"
		}
		fmt.Fprintf(out, "%d: %s -> phys 0x%08X (%s)\n", i+1, cmd, phys.Uint32(), verdict)
	}

	if tlbDumpPrefix != "" {
		levels := []struct {
			suffix  string
			entries []tlbhier.Entry
		}{
			{"l1i", h.L1I[:]},
			{"l1d", h.L1D[:]},
			{"l2", h.L2[:]},
		}
		for _, lvl := range levels {
			path := tlbDumpPrefix + "." + lvl.suffix + ".txt"
			df, err := os.Create(path)
			if err != nil {
				return simerr.Wrap(simerr.IO, err, "creating TLB dump %s", path)
			}
			err = dump.TLBHierarchyLevel(df, lvl.entries)
			df.Close()
			if err != nil {
				return simerr.Wrap(simerr.IO, err, "writing TLB dump %s", path)
			}
		}
	}
	return nil
}
