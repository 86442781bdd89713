// Package addr implements the virtual and physical address types of the
// simulated memory hierarchy: a 64-bit virtual address split
// 16|9|9|9|9|12 (reserved|PGD|PUD|PMD|PTE|offset), and a 32-bit physical
// address split 20|12 (page number|offset).
package addr

import (
	"fmt"

	"github.com/tinyrange/memsim/internal/simerr"
)

// Field widths, in bits, for each level of the virtual address.
const (
	PageOffsetBits = 12
	PTEBits        = 9
	PMDBits        = 9
	PUDBits        = 9
	PGDBits        = 9

	PageSize = 1 << PageOffsetBits // 4 KiB

	// VirtPageNumBits is the width of the concatenated PGD|PUD|PMD|PTE
	// virtual page number.
	VirtPageNumBits = PTEBits + PMDBits + PUDBits + PGDBits // 36

	PhysPageNumBits = 20
	PhysAddrBits    = PhysPageNumBits + PageOffsetBits // 32
)

// Virtual is a decoded 64-bit virtual address.
type Virtual struct {
	PGD    uint16
	PUD    uint16
	PMD    uint16
	PTE    uint16
	Offset uint16
}

// Physical is a decoded 32-bit physical address.
type Physical struct {
	PageNum uint32 // 20-bit physical page number
	Offset  uint32 // 12-bit page offset
}

func fitsBits(v uint16, bits uint) bool {
	return v>>bits == 0
}

// NewVirtual builds a Virtual address from its five field values, failing
// with simerr.BadParameter if any field doesn't fit its documented width.
func NewVirtual(pgd, pud, pmd, pte, offset uint16) (Virtual, error) {
	switch {
	case !fitsBits(pgd, PGDBits):
		return Virtual{}, simerr.New(simerr.BadParameter, "pgd entry 0x%x exceeds %d bits", pgd, PGDBits)
	case !fitsBits(pud, PUDBits):
		return Virtual{}, simerr.New(simerr.BadParameter, "pud entry 0x%x exceeds %d bits", pud, PUDBits)
	case !fitsBits(pmd, PMDBits):
		return Virtual{}, simerr.New(simerr.BadParameter, "pmd entry 0x%x exceeds %d bits", pmd, PMDBits)
	case !fitsBits(pte, PTEBits):
		return Virtual{}, simerr.New(simerr.BadParameter, "pte entry 0x%x exceeds %d bits", pte, PTEBits)
	case !fitsBits(offset, PageOffsetBits):
		return Virtual{}, simerr.New(simerr.BadParameter, "page offset 0x%x exceeds %d bits", offset, PageOffsetBits)
	}
	return Virtual{PGD: pgd, PUD: pud, PMD: pmd, PTE: pte, Offset: offset}, nil
}

// VirtualFromUint64 decodes a Virtual address from a 64-bit word, discarding
// the top 16 reserved bits.
func VirtualFromUint64(v uint64) Virtual {
	return Virtual{
		Offset: uint16(v) & (1<<PageOffsetBits - 1),
		PTE:    uint16(v>>PageOffsetBits) & (1<<PTEBits - 1),
		PMD:    uint16(v>>(PageOffsetBits+PTEBits)) & (1<<PMDBits - 1),
		PUD:    uint16(v>>(PageOffsetBits+PTEBits+PMDBits)) & (1<<PUDBits - 1),
		PGD:    uint16(v>>(PageOffsetBits+PTEBits+PMDBits+PUDBits)) & (1<<PGDBits - 1),
	}
}

// VirtualPageNumber returns the 36-bit concatenation PGD|PUD|PMD|PTE.
func (v Virtual) VirtualPageNumber() uint64 {
	n := uint64(v.PGD)
	n = (n << PUDBits) | uint64(v.PUD)
	n = (n << PMDBits) | uint64(v.PMD)
	n = (n << PTEBits) | uint64(v.PTE)
	return n
}

// Uint64 projects the Virtual address back to its packed 64-bit form.
func (v Virtual) Uint64() uint64 {
	return (v.VirtualPageNumber() << PageOffsetBits) | uint64(v.Offset)
}

// String renders the documented hex format for a virtual address.
func (v Virtual) String() string {
	return fmt.Sprintf("PGD=0x%X; PUD=0x%X; PMD=0x%X; PTE=0x%X; offset=0x%X",
		v.PGD, v.PUD, v.PMD, v.PTE, v.Offset)
}

// NewPhysical builds a Physical address from a 4 KiB-aligned page base and a
// 12-bit offset, failing with simerr.BadParameter if the base is misaligned
// or the offset overflows.
func NewPhysical(pageBase uint32, offset uint32) (Physical, error) {
	if offset>>PageOffsetBits != 0 {
		return Physical{}, simerr.New(simerr.BadParameter, "page offset 0x%x exceeds %d bits", offset, PageOffsetBits)
	}
	if pageBase%PageSize != 0 {
		return Physical{}, simerr.New(simerr.BadParameter, "page base 0x%x is not %d-byte aligned", pageBase, PageSize)
	}
	return Physical{PageNum: pageBase >> PageOffsetBits, Offset: offset}, nil
}

// Uint32 projects the Physical address back to its packed 32-bit form.
func (p Physical) Uint32() uint32 {
	return (p.PageNum << PageOffsetBits) | p.Offset
}

// String renders the documented hex format for a physical address.
func (p Physical) String() string {
	return fmt.Sprintf("page num=0x%X; offset=0x%X", p.PageNum, p.Offset)
}
