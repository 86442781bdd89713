// memsim is the combined driver: it brings up a memory image from a YAML
// run configuration, resolves every command's virtual address through the
// configured TLB variant, then services the access through the cache
// hierarchy, end to end (spec §2's full pipeline: command stream -> C1
// virtual address -> C3 or C4 TLB -> C5 cache -> C6 memory, with C2's page
// walker underneath whichever TLB misses).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/cache"
	"github.com/tinyrange/memsim/internal/command"
	"github.com/tinyrange/memsim/internal/config"
	"github.com/tinyrange/memsim/internal/dump"
	"github.com/tinyrange/memsim/internal/memimg"
	"github.com/tinyrange/memsim/internal/simerr"
	"github.com/tinyrange/memsim/internal/tlbfa"
	"github.com/tinyrange/memsim/internal/tlbhier"
)

func main() {
	configPath := flag.String("config", "", "run configuration YAML file")
	initTemplate := flag.String("init", "", "write a starter run configuration to this path and exit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *initTemplate != "" {
		if err := config.WriteTemplate(*initTemplate, config.Run{}); err != nil {
			fmt.Fprintf(os.Stderr, "memsim: %v\n", err)
			os.Exit(simerr.ExitCode(err))
		}
		return
	}

	if err := run(*configPath, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "memsim: %v\n", err)
		os.Exit(simerr.ExitCode(err))
	}
}

// resolver abstracts over the two TLB variants so the pipeline loop below
// doesn't need to know which one is configured.
type resolver interface {
	resolve(kind command.Kind, v addr.Virtual) (addr.Physical, bool, error)
}

type faResolver struct {
	tlb *tlbfa.TLB
	mem *memimg.Image
}

func (r faResolver) resolve(_ command.Kind, v addr.Virtual) (addr.Physical, bool, error) {
	return tlbfa.Search(r.tlb, r.mem, v)
}

type hierResolver struct {
	h   *tlbhier.Hierarchy
	mem *memimg.Image
}

func (r hierResolver) resolve(kind command.Kind, v addr.Virtual) (addr.Physical, bool, error) {
	access := tlbhier.Instruction
	if kind != command.Instruction {
		access = tlbhier.Data
	}
	return tlbhier.Search(r.h, r.mem, access, v)
}

func cacheAccessFor(kind command.Kind) cache.Access {
	if kind == command.Instruction {
		return cache.Instruction
	}
	return cache.Data
}

func run(configPath string, out *os.File) error {
	if configPath == "" {
		return simerr.New(simerr.BadParameter, "-config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var img *memimg.Image
	if cfg.Memory.DumpFile != "" {
		img, err = memimg.FromDump(cfg.Memory.DumpFile)
	} else {
		img, err = memimg.FromDescription(cfg.Memory.DescriptionFile)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.Commands)
	if err != nil {
		return simerr.Wrap(simerr.IO, err, "opening command stream %s", cfg.Commands)
	}
	defer f.Close()

	prog, err := command.Parse(f)
	if err != nil {
		return err
	}

	var res resolver
	var fa *tlbfa.TLB
	var hier *tlbhier.Hierarchy
	if cfg.TLB.Kind == config.TLBHierarchical {
		hier = tlbhier.New()
		res = hierResolver{h: hier, mem: img}
	} else {
		fa = tlbfa.New()
		res = faResolver{tlb: fa, mem: img}
	}
	ch := cache.New()

	for i, cmd := range prog.Lines {
		v := addr.VirtualFromUint64(cmd.VAddr)
		phys, tlbHit, err := res.resolve(cmd.Kind, v)
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
		}
		access := cacheAccessFor(cmd.Kind)

		var result string
		if cmd.Order == command.Write {
			switch cmd.Kind {
			case command.DataByte:
				err = ch.WriteByte(img, phys.Uint32(), byte(cmd.WriteData))
			default:
				err = ch.WriteWord(img, phys.Uint32(), cmd.WriteData)
			}
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
			}
			result = "written"
		} else {
			switch cmd.Kind {
			case command.DataByte:
				b, err := ch.ReadByte(img, access, phys.Uint32())
				if err != nil {
					return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
				}
				result = fmt.Sprintf("byte 0x%02X", b)
			default:
				w, err := ch.ReadWord(img, access, phys.Uint32())
				if err != nil {
					return fmt.Errorf("command %d (%s): %w", i+1, cmd, err)
				}
				result = fmt.Sprintf("word 0x%08X", w)
			}
		}

		tlbVerdict := "miss"
		if tlbHit {
			tlbVerdict = "hit"
		}
		fmt.Fprintf(out, "%d: %s -> phys 0x%08X, tlb %s, %s\n", i+1, cmd, phys.Uint32(), tlbVerdict, result)

		if cfg.Trace {
			if err := traceState(out, fa, hier, ch); err != nil {
				return err
			}
		}
	}

	if cfg.Dump.TLB != "" {
		if err := dumpTLB(cfg.Dump.TLB, fa, hier); err != nil {
			return err
		}
	}
	if cfg.Dump.Cache != "" {
		if err := dumpCache(cfg.Dump.Cache, ch); err != nil {
			return err
		}
	}
	return nil
}

func traceState(out *os.File, fa *tlbfa.TLB, hier *tlbhier.Hierarchy, ch *cache.Hierarchy) error {
	fmt.Fprintln(out, "-- trace --")
	if fa != nil {
		if err := dump.TLBFullyAssoc(out, fa); err != nil {
			return err
		}
	} else {
		if err := dump.TLBHierarchyLevel(out, hier.L1I[:]); err != nil {
			return err
		}
		if err := dump.TLBHierarchyLevel(out, hier.L1D[:]); err != nil {
			return err
		}
		if err := dump.TLBHierarchyLevel(out, hier.L2[:]); err != nil {
			return err
		}
	}
	if err := dump.Cache(out, ch, cache.L1I); err != nil {
		return err
	}
	if err := dump.Cache(out, ch, cache.L1D); err != nil {
		return err
	}
	return dump.Cache(out, ch, cache.L2)
}

func dumpTLB(path string, fa *tlbfa.TLB, hier *tlbhier.Hierarchy) error {
	df, err := os.Create(path)
	if err != nil {
		return simerr.Wrap(simerr.IO, err, "creating TLB dump %s", path)
	}
	defer df.Close()

	if fa != nil {
		return dump.TLBFullyAssoc(df, fa)
	}
	if err := dump.TLBHierarchyLevel(df, hier.L1I[:]); err != nil {
		return err
	}
	if err := dump.TLBHierarchyLevel(df, hier.L1D[:]); err != nil {
		return err
	}
	return dump.TLBHierarchyLevel(df, hier.L2[:])
}

func dumpCache(path string, ch *cache.Hierarchy) error {
	df, err := os.Create(path)
	if err != nil {
		return simerr.Wrap(simerr.IO, err, "creating cache dump %s", path)
	}
	defer df.Close()

	if err := dump.Cache(df, ch, cache.L1I); err != nil {
		return err
	}
	if err := dump.Cache(df, ch, cache.L1D); err != nil {
		return err
	}
	return dump.Cache(df, ch, cache.L2)
}
