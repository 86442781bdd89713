package dump

import (
	"strings"
	"testing"

	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/cache"
	"github.com/tinyrange/memsim/internal/memimg"
	"github.com/tinyrange/memsim/internal/pagewalk"
	"github.com/tinyrange/memsim/internal/tlbfa"
)

func TestCacheDumpHasOneLinePerWay(t *testing.T) {
	mem := memimg.New(1 << 16)
	h := cache.New()
	if _, err := h.ReadWord(mem, cache.Instruction, 0x40); err != nil {
		t.Fatalf("ReadWord: %v", err)
	}

	var b strings.Builder
	if err := Cache(&b, h, cache.L1I); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != cache.L1Lines*cache.L1Ways {
		t.Fatalf("got %d lines, want %d", len(lines), cache.L1Lines*cache.L1Ways)
	}

	foundValid := false
	for _, l := range lines {
		if strings.HasPrefix(l, "0/4: 1,") {
			foundValid = true
		}
	}
	if !foundValid {
		t.Fatalf("expected a valid entry at way 0, line 4; got:\n%s", b.String())
	}
}

func TestTLBFullyAssocDumpFormat(t *testing.T) {
	tlb := tlbfa.New()
	mem := make(fakeMem, 0x20000)
	putPTE(mem, 0, 0x1000)
	putPTE(mem, 0x1000, 0x2000)
	putPTE(mem, 0x2000, 0x3000)
	putPTE(mem, 0x3000, 0x10000)

	v, _ := addr.NewVirtual(0, 0, 0, 0, 0)
	if _, _, err := tlbfa.Search(tlb, mem, v); err != nil {
		t.Fatalf("Search: %v", err)
	}

	var b strings.Builder
	if err := TLBFullyAssoc(&b, tlb); err != nil {
		t.Fatalf("TLBFullyAssoc: %v", err)
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != tlbfa.Lines {
		t.Fatalf("got %d lines, want %d", len(lines), tlbfa.Lines)
	}

	var validLines, invalidLines int
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "1; "):
			validLines++
			if !strings.Contains(l, "00010;") {
				t.Fatalf("valid line has unexpected phys page num: %q", l)
			}
		case l == "0; --------; -----;":
			invalidLines++
		default:
			t.Fatalf("unexpected dump line: %q", l)
		}
	}
	if validLines != 1 {
		t.Fatalf("got %d valid lines, want 1", validLines)
	}
	if invalidLines != tlbfa.Lines-1 {
		t.Fatalf("got %d invalid lines, want %d", invalidLines, tlbfa.Lines-1)
	}
}

type fakeMem []byte

func putPTE(m fakeMem, off uint32, v uint32) {
	m[off], m[off+1], m[off+2], m[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func (m fakeMem) PTEAt(dirBase uint32, index uint16) (uint32, error) {
	off := dirBase + uint32(index)*4
	return uint32(m[off]) | uint32(m[off+1])<<8 | uint32(m[off+2])<<16 | uint32(m[off+3])<<24, nil
}

var _ pagewalk.Memory = fakeMem(nil)
