// memsim-cache brings up a memory image and drives a command stream
// through the two-level cache hierarchy (component C5). Each command's
// virtual address is resolved with a direct page walk (no TLB sits in
// front of the cache here), mirroring the original simulator's cache test
// driver, which page-walks every access itself.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/cache"
	"github.com/tinyrange/memsim/internal/command"
	"github.com/tinyrange/memsim/internal/dump"
	"github.com/tinyrange/memsim/internal/memimg"
	"github.com/tinyrange/memsim/internal/pagewalk"
	"github.com/tinyrange/memsim/internal/simerr"
)

func main() {
	dumpFile := flag.String("dump", "", "raw memory dump file")
	descFile := flag.String("description", "", "memory description file")
	commandsFile := flag.String("commands", "", "command stream file")
	cacheDumpPrefix := flag.String("dump-cache-prefix", "", "write the final L1-I/L1-D/L2 state to <prefix>.{l1i,l1d,l2}.txt")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*dumpFile, *descFile, *commandsFile, *cacheDumpPrefix, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "memsim-cache: %v\n", err)
		os.Exit(simerr.ExitCode(err))
	}
}

func accessFor(kind command.Kind) cache.Access {
	if kind == command.Instruction {
		return cache.Instruction
	}
	return cache.Data
}

func run(dumpFile, descFile, commandsFile, cacheDumpPrefix string, out *os.File) error {
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

	h := cache.New()
	for i, cmd := range prog.Lines {
		v := addr.VirtualFromUint64(cmd.VAddr)
		phys, err := pagewalk.Walk(img, v)
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
		}
		access := accessFor(cmd.Kind)

		if cmd.Order == command.Write {
			switch cmd.Kind {
			case command.DataByte:
				if err := h.WriteByte(img, phys.Uint32(), byte(cmd.WriteData)); err != nil {
					return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
				}
			default:
				if err := h.WriteWord(img, phys.Uint32(), cmd.WriteData); err != nil {
					return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
				}
			}
			fmt.Fprintf(out, "%d: %s -> phys 0x%08X, written\n", i+1, cmd, phys.Uint32())
			continue
		}

		switch cmd.Kind {
		case command.DataByte:
			b, err := h.ReadByte(img, access, phys.Uint32())
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
			}
			fmt.Fprintf(out, "%d: %s -> phys 0x%08X, byte 0x%02X\n", i+1, cmd, phys.Uint32(), b)
		default:
			w, err := h.ReadWord(img, access, phys.Uint32())
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
			}
			fmt.Fprintf(out, "%d: %s -> phys 0x%08X, word 0x%08X\n", i+1, cmd, phys.Uint32(), w)
		}
	}

	if cacheDumpPrefix != "" {
		kinds := []struct {
			suffix string
			kind   cache.Kind
		}{
			{"l1i", cache.L1I},
			{"l1d", cache.L1D},
			{"l2", cache.L2},
		}
		for _, k := range kinds {
			path := cacheDumpPrefix + "." + k.suffix + ".txt"
			df, err := os.Create(path)
			if err != nil {
				return simerr.Wrap(simerr.IO, err, "creating cache dump %s", path)
			}
			err = dump.Cache(df, h, k.kind)
			df.Close()
			if err != nil {
				return simerr.Wrap(simerr.IO, err, "writing cache dump %s", path)
			}
		}
	}
	return nil
}
