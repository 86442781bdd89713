// Package tlbfa implements the 128-entry fully-associative TLB (spec §4.3,
// component C3), with LRU tracked via an auxiliary access-order list
// (internal/replace) rather than per-entry age bits.
package tlbfa

import (
	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/pagewalk"
	"github.com/tinyrange/memsim/internal/replace"
)

// Lines is the number of entries in the fully-associative TLB.
const Lines = 128

// Entry is one fully-associative TLB line.
type Entry struct {
	Valid       bool
	Tag         uint64 // full 36-bit virtual page number
	PhysPageNum uint32 // 20-bit physical page number
}

// TLB is the 128-entry fully-associative TLB.
type TLB struct {
	entries [Lines]Entry
	order   replace.List
}

// New returns a flushed TLB with its access-order list seeded front-to-back
// with line indices 0..Lines-1 (an arbitrary but fixed initial eviction
// order, since every line starts invalid).
func New() *TLB {
	t := &TLB{}
	for i := uint32(0); i < Lines; i++ {
		t.order.PushBack(i)
	}
	return t
}

// Flush zeroes every entry, leaving the access-order list untouched (it
// only orders line indices, not their validity).
func (t *TLB) Flush() {
	for i := range t.entries {
		t.entries[i] = Entry{}
	}
}

// Entries returns the TLB's lines in storage order (not access order), for
// dumping.
func (t *TLB) Entries() []Entry { return t.entries[:] }

// Hit scans the access-order list from most- to least-recently-used,
// looking for a valid entry whose tag matches vaddr's virtual page number.
// On a hit it refreshes LRU order and returns the resulting physical
// address.
func (t *TLB) Hit(vaddr addr.Virtual) (addr.Physical, bool) {
	vpn := vaddr.VirtualPageNumber()
	var found addr.Physical
	hit := false
	t.order.ReverseEach(func(n *replace.Node) bool {
		e := &t.entries[n.Value]
		if e.Valid && e.Tag == vpn {
			found = addr.Physical{PageNum: e.PhysPageNum, Offset: uint32(vaddr.Offset)}
			t.order.MoveBack(n)
			hit = true
			return false
		}
		return true
	})
	return found, hit
}

// Search resolves vaddr, consulting the TLB first and falling back to a
// page walk on a miss. On a miss it installs a new entry at the current
// least-recently-used line and returns (phys, false, nil); on a hit it
// returns (phys, true, nil).
func Search(t *TLB, mem pagewalk.Memory, vaddr addr.Virtual) (addr.Physical, bool, error) {
	if phys, ok := t.Hit(vaddr); ok {
		return phys, true, nil
	}

	phys, err := pagewalk.Walk(mem, vaddr)
	if err != nil {
		return addr.Physical{}, false, err
	}

	victim := t.order.Front()
	idx := victim.Value
	t.entries[idx] = Entry{Valid: true, Tag: vaddr.VirtualPageNumber(), PhysPageNum: phys.PageNum}
	t.order.MoveBack(victim)
	return phys, false, nil
}
