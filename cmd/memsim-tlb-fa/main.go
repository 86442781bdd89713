// memsim-tlb-fa brings up a memory image and resolves a command stream's
// virtual addresses through the 128-entry fully-associative TLB (component
// C3), printing a hit/miss verdict per command and a final TLB dump.
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
	"github.com/tinyrange/memsim/internal/tlbfa"
)

func main() {
	dumpFile := flag.String("dump", "", "raw memory dump file")
	descFile := flag.String("description", "", "memory description file")
	commandsFile := flag.String("commands", "", "command stream file")
	tlbDumpFile := flag.String("dump-tlb", "", "write the final TLB state to this file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*dumpFile, *descFile, *commandsFile, *tlbDumpFile, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "memsim-tlb-fa: %v\n", err)
		os.Exit(simerr.ExitCode(err))
	}
}

func run(dumpFile, descFile, commandsFile, tlbDumpFile string, out *os.File) error {
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

	tlb := tlbfa.New()
	for i, cmd := range prog.Lines {
		v := addr.VirtualFromUint64(cmd.VAddr)
		phys, hit, err := tlbfa.Search(tlb, img, v)
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
		}
		verdict := "miss"
		if hit {
			verdict = "hit"
		}
		fmt.Fprintf(out, "%d: %s -> phys 0x%08X (%s)\n", i+1, cmd, phys.Uint32(), verdict)
	}

	if tlbDumpFile != "" {
		df, err := os.Create(tlbDumpFile)
		if err != nil {
			return simerr.Wrap(simerr.IO, err, "creating TLB dump %s", tlbDumpFile)
		}
		defer df.Close()
		if err := dump.TLBFullyAssoc(df, tlb); err != nil {
			return simerr.Wrap(simerr.IO, err, "writing TLB dump %s", tlbDumpFile)
		}
	}
	return nil
}
