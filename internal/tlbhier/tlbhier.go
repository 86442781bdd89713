// Package tlbhier implements the hierarchical, direct-mapped TLB (spec
// §4.4, component C4): two 16-line L1 TLBs (instruction and data) backed by
// a 64-line L2 TLB. A full miss installs the new mapping into both L2 and
// the access's L1; before that, the other-kind L1 entry that still maps the
// VPN being evicted from L2 is invalidated.
package tlbhier

import (
	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/pagewalk"
)

const (
	L1Lines     = 16
	L1LinesBits = 4
	L2Lines     = 64
	L2LinesBits = 6
)

// Access distinguishes an instruction fetch from a data access, selecting
// which L1 table participates.
type Access int

const (
	Instruction Access = iota
	Data
)

// Entry is one direct-mapped TLB line.
type Entry struct {
	Valid       bool
	Tag         uint64
	PhysPageNum uint32
}

// Hierarchy bundles the two L1 tables and the shared L2 table.
type Hierarchy struct {
	L1I [L1Lines]Entry
	L1D [L1Lines]Entry
	L2  [L2Lines]Entry
}

// New returns a flushed hierarchy.
func New() *Hierarchy { return &Hierarchy{} }

// Flush zeroes every entry in all three tables.
func (h *Hierarchy) Flush() {
	*h = Hierarchy{}
}

func l1Lookup(table *[L1Lines]Entry, vpn uint64) (addr.Physical, uint16, bool) {
	idx := uint16(vpn & (L1Lines - 1))
	tag := vpn >> L1LinesBits
	e := &table[idx]
	if e.Valid && e.Tag == tag {
		return addr.Physical{PageNum: e.PhysPageNum}, idx, true
	}
	return addr.Physical{}, idx, false
}

func l2Lookup(h *Hierarchy, vpn uint64) (addr.Physical, uint16, bool) {
	idx := uint16(vpn & (L2Lines - 1))
	tag := vpn >> L2LinesBits
	e := &h.L2[idx]
	if e.Valid && e.Tag == tag {
		return addr.Physical{PageNum: e.PhysPageNum}, idx, true
	}
	return addr.Physical{}, idx, false
}

func (h *Hierarchy) l1Table(access Access) *[L1Lines]Entry {
	if access == Instruction {
		return &h.L1I
	}
	return &h.L1D
}

func (h *Hierarchy) otherL1Table(access Access) *[L1Lines]Entry {
	if access == Instruction {
		return &h.L1D
	}
	return &h.L1I
}

func insertL1(table *[L1Lines]Entry, vpn uint64, phys addr.Physical) {
	idx := vpn & (L1Lines - 1)
	table[idx] = Entry{Valid: true, Tag: vpn >> L1LinesBits, PhysPageNum: phys.PageNum}
}

// invalidate implements spec §4.4's cross-kind exclusivity step: when a new
// mapping is about to overwrite L2 line i2, the *other*-kind L1 entry that
// would reconstruct to the VPN being evicted from L2 must be invalidated.
func invalidate(h *Hierarchy, access Access, vpn uint64) {
	i2 := uint16(vpn & (L2Lines - 1))
	oldTag := h.L2[i2].Tag
	oldVPN := (uint64(oldTag) << L2LinesBits) | uint64(i2)

	other := h.otherL1Table(access)
	i1 := vpn & (L1Lines - 1)
	e := &other[i1]
	reconstructed := (uint64(e.Tag) << L1LinesBits) | i1
	if e.Valid && reconstructed == oldVPN {
		e.Valid = false
	}
}

// Search resolves vaddr for the given access kind, probing L1 then L2
// before falling back to a page walk. On an L2 hit the mapping is promoted
// into the corresponding L1 (overwriting whatever occupied that index). On
// a full miss, both L2 and the corresponding L1 receive the new mapping
// after the invalidation step runs. Returns (phys, hit, error); hit is true
// iff the access was serviced without a page walk.
func Search(h *Hierarchy, mem pagewalk.Memory, access Access, vaddr addr.Virtual) (addr.Physical, bool, error) {
	vpn := vaddr.VirtualPageNumber()
	l1 := h.l1Table(access)

	if phys, _, ok := l1Lookup(l1, vpn); ok {
		phys.Offset = uint32(vaddr.Offset)
		return phys, true, nil
	}

	if phys, _, ok := l2Lookup(h, vpn); ok {
		insertL1(l1, vpn, phys)
		phys.Offset = uint32(vaddr.Offset)
		return phys, true, nil
	}

	phys, err := pagewalk.Walk(mem, vaddr)
	if err != nil {
		return addr.Physical{}, false, err
	}

	invalidate(h, access, vpn)

	i2 := vpn & (L2Lines - 1)
	h.L2[i2] = Entry{Valid: true, Tag: vpn >> L2LinesBits, PhysPageNum: phys.PageNum}
	insertL1(l1, vpn, phys)

	return phys, false, nil
}
