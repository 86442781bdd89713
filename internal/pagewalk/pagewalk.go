// Package pagewalk implements the four-level page walk (PGD→PUD→PMD→PTE)
// that both TLB variants fall back to on a miss (spec §4.2). It consults
// neither cache nor TLB state.
package pagewalk

import (
	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/simerr"
)

// Memory is the minimal surface the walker needs from backing memory: read
// a page-table entry (a 32-bit physical byte address) at directory base
// dirBase, entry index.
type Memory interface {
	PTEAt(dirBase uint32, index uint16) (uint32, error)
}

func readAlignedBase(mem Memory, dirBase uint32, index uint16, what string) (uint32, error) {
	base, err := mem.PTEAt(dirBase, index)
	if err != nil {
		return 0, err
	}
	if base%addr.PageSize != 0 {
		return 0, simerr.New(simerr.BadParameter, "%s base 0x%x is not %d-byte aligned", what, base, addr.PageSize)
	}
	return base, nil
}

// Walk translates a virtual address to a physical address by walking the
// four page-directory levels rooted at directory base 0.
func Walk(mem Memory, v addr.Virtual) (addr.Physical, error) {
	pudBase, err := readAlignedBase(mem, 0, v.PGD, "pud")
	if err != nil {
		return addr.Physical{}, err
	}
	pmdBase, err := readAlignedBase(mem, pudBase, v.PUD, "pmd")
	if err != nil {
		return addr.Physical{}, err
	}
	pteBase, err := readAlignedBase(mem, pmdBase, v.PMD, "pte")
	if err != nil {
		return addr.Physical{}, err
	}
	page, err := readAlignedBase(mem, pteBase, v.PTE, "page")
	if err != nil {
		return addr.Physical{}, err
	}
	return addr.NewPhysical(page, uint32(v.Offset))
}
