// Package cache implements the two-level, exclusive cache hierarchy (spec
// §4.5, component C5): 4-way L1-I/L1-D backed by an 8-way L2 victim cache,
// write-through to backing memory, write-allocate on a write miss, and
// per-set LRU aging under the two distinct update rules the original
// simulator uses (§4.5.5).
package cache

import (
	"github.com/tinyrange/memsim/internal/simerr"
)

const (
	WordsPerLine = 4
	LineBytes    = WordsPerLine * 4

	L1Ways  = 4
	L1Lines = 64

	L2Ways  = 8
	L2Lines = 512
)

// Kind selects which of the three physical tables an access or dump targets.
type Kind int

const (
	L1I Kind = iota
	L1D
	L2
)

func (k Kind) String() string {
	switch k {
	case L1I:
		return "L1-ICACHE"
	case L1D:
		return "L1-DCACHE"
	case L2:
		return "L2-CACHE"
	default:
		return "unknown"
	}
}

// Access distinguishes an instruction fetch from a data access, selecting
// which L1 table a read or write probes first.
type Access int

const (
	Instruction Access = iota
	Data
)

// Entry is one way of one set, in any of the three tables.
type Entry struct {
	Valid bool
	Age   uint8
	Tag   uint32
	Line  [WordsPerLine]uint32
}

// Memory is the backing store the cache reads lines from and writes lines
// to on write-through.
type Memory interface {
	ReadLine(off uint32) ([WordsPerLine]uint32, error)
	WriteLine(off uint32, line [WordsPerLine]uint32) error
}

// Hierarchy is the L1-I/L1-D/L2 cache hierarchy.
type Hierarchy struct {
	l1i [L1Lines][L1Ways]Entry
	l1d [L1Lines][L1Ways]Entry
	l2  [L2Lines][L2Ways]Entry
}

// New returns a flushed hierarchy.
func New() *Hierarchy { return &Hierarchy{} }

// Flush clears every valid bit, tag, age, and data word in all three
// tables.
func (h *Hierarchy) Flush() { *h = Hierarchy{} }

func wordSel(phys uint32) uint32 { return (phys >> 2) & 0x3 }
func l1Index(phys uint32) uint32 { return (phys >> 4) & 0x3F }
func l2Index(phys uint32) uint32 { return (phys >> 4) & 0x1FF }
func l1Tag(phys uint32) uint32   { return phys >> 10 }
func l2Tag(phys uint32) uint32   { return phys >> 13 }

func (h *Hierarchy) l1Set(access Access, index uint32) *[L1Ways]Entry {
	if access == Instruction {
		return &h.l1i[index]
	}
	return &h.l1d[index]
}

// ageOnHit applies spec §4.5.5's "update on hit/refresh" rule: every way
// whose age is strictly less than maxAge (the hit way's age just before
// this update) is bumped, then the hit way's age is reset to zero. The
// caller supplies maxAge explicitly because the hit way's data (and age)
// may already have been overwritten by the time aging runs, as happens
// when a way is evicted and immediately refilled.
func ageOnHit(set []Entry, way int, maxAge uint8) {
	for i := range set {
		if set[i].Age < maxAge {
			set[i].Age++
		}
	}
	set[way].Age = 0
}

// ageOnInsert applies spec §4.5.5's "update on insert into a previously
// invalid way" rule: every way whose age is below ways-1 is bumped, so ages
// saturate at ways-1, then the inserted way's age is reset to zero.
func ageOnInsert(set []Entry, way int) {
	ways := len(set)
	for i := range set {
		if int(set[i].Age) < ways-1 {
			set[i].Age++
		}
	}
	set[way].Age = 0
}

// findWay returns the index of the entry in set whose valid bit is set and
// whose tag matches, or -1.
func findWay(set []Entry, tag uint32) int {
	for i := range set {
		if set[i].Valid && set[i].Tag == tag {
			return i
		}
	}
	return -1
}

// victimWay returns the way with the maximal age, ties broken by the
// lowest index, or the first invalid way if one exists.
func victimWay(set []Entry) int {
	for i := range set {
		if !set[i].Valid {
			return i
		}
	}
	victim := 0
	for i := range set {
		if set[i].Age > set[victim].Age {
			victim = i
		}
	}
	return victim
}

// demoteToL2 inserts evicted into L2 at i2 under physTag (the victim's L2
// tag, derived from its reconstructed physical line address), evicting an
// L2 line if necessary (invalid-way-first, else LRU).
func (h *Hierarchy) demoteToL2(evicted Entry, physTag uint32, i2 uint32) {
	set := h.l2[i2][:]
	way := victimWay(set)
	wasValid, oldAge := set[way].Valid, set[way].Age
	set[way] = Entry{Valid: true, Tag: physTag, Line: evicted.Line}
	if wasValid {
		ageOnHit(set, way, oldAge)
	} else {
		ageOnInsert(set, way)
	}
}

// insertL1 installs entry into the L1 set at index, evicting and demoting
// the current LRU victim to L2 if no invalid way is available.
func (h *Hierarchy) insertL1(access Access, index uint32, tag uint32, line [WordsPerLine]uint32) int {
	set := h.l1Set(access, index)[:]
	way := victimWay(set)
	wasValid, oldAge := set[way].Valid, set[way].Age
	if wasValid {
		// Reconstruct the victim's line-aligned physical address from its
		// L1 tag and set index, then re-derive its home in L2.
		victimPhys := (set[way].Tag << 10) | (index << 4)
		h.demoteToL2(set[way], l2Tag(victimPhys), l2Index(victimPhys))
	}
	set[way] = Entry{Valid: true, Tag: tag, Line: line}
	if wasValid {
		ageOnHit(set, way, oldAge)
	} else {
		ageOnInsert(set, way)
	}
	return way
}

// promoteFromL2 moves the line at L2 way `way` of set i2 into the
// corresponding L1 set, invalidating the L2 entry (exclusivity).
func (h *Hierarchy) promoteFromL2(access Access, i2 uint32, way int) [WordsPerLine]uint32 {
	e := h.l2[i2][way]
	h.l2[i2][way] = Entry{}

	physLineAddr := (e.Tag << 13) | (i2 << 4)
	h.insertL1(access, l1Index(physLineAddr), l1Tag(physLineAddr), e.Line)
	return e.Line
}

func fetchMiss(mem Memory, phys uint32) ([WordsPerLine]uint32, error) {
	line, err := mem.ReadLine(phys &^ 0xF)
	if err != nil {
		return [WordsPerLine]uint32{}, err
	}
	return line, nil
}

// ReadWord implements spec §4.5.1.
func (h *Hierarchy) ReadWord(mem Memory, access Access, phys uint32) (uint32, error) {
	ws := wordSel(phys)
	i1 := l1Index(phys)
	t1 := l1Tag(phys)
	set := h.l1Set(access, i1)[:]

	if way := findWay(set, t1); way >= 0 {
		ageOnHit(set, way, set[way].Age)
		return set[way].Line[ws], nil
	}

	i2 := l2Index(phys)
	t2 := l2Tag(phys)
	l2set := h.l2[i2][:]
	if way := findWay(l2set, t2); way >= 0 {
		line := h.promoteFromL2(access, i2, way)
		return line[ws], nil
	}

	line, err := fetchMiss(mem, phys)
	if err != nil {
		return 0, err
	}
	h.insertL1(access, i1, t1, line)
	return line[ws], nil
}

// ReadByte implements spec §4.5.2.
func (h *Hierarchy) ReadByte(mem Memory, access Access, phys uint32) (byte, error) {
	word, err := h.ReadWord(mem, access, phys&^0x3)
	if err != nil {
		return 0, err
	}
	shift := 8 * (phys % 4)
	return byte(word >> shift), nil
}

// WriteWord implements spec §4.5.3: writes always target L1-D, are
// write-through to backing memory, and write-allocate on a miss.
func (h *Hierarchy) WriteWord(mem Memory, phys uint32, word uint32) error {
	ws := wordSel(phys)
	i1 := l1Index(phys)
	t1 := l1Tag(phys)
	set := h.l1d[i1][:]

	if way := findWay(set, t1); way >= 0 {
		set[way].Line[ws] = word
		if err := mem.WriteLine(phys&^0xF, set[way].Line); err != nil {
			return simerr.Wrap(simerr.IO, err, "write-through at 0x%x", phys)
		}
		ageOnHit(set, way, set[way].Age)
		return nil
	}

	i2 := l2Index(phys)
	t2 := l2Tag(phys)
	l2set := h.l2[i2][:]
	if way := findWay(l2set, t2); way >= 0 {
		line := l2set[way].Line
		line[ws] = word
		if err := mem.WriteLine(phys&^0xF, line); err != nil {
			return simerr.Wrap(simerr.IO, err, "write-through at 0x%x", phys)
		}
		l2set[way] = Entry{}
		h.insertL1(Data, i1, t1, line)
		return nil
	}

	line, err := fetchMiss(mem, phys)
	if err != nil {
		return err
	}
	line[ws] = word
	if err := mem.WriteLine(phys&^0xF, line); err != nil {
		return simerr.Wrap(simerr.IO, err, "write-through at 0x%x", phys)
	}
	h.insertL1(Data, i1, t1, line)
	return nil
}

// WriteByte implements spec §4.5.4.
func (h *Hierarchy) WriteByte(mem Memory, phys uint32, value byte) error {
	wordAddr := phys &^ 0x3
	word, err := h.ReadWord(mem, Data, wordAddr)
	if err != nil {
		return err
	}
	shift := 8 * (phys % 4)
	mask := uint32(0xFF) << shift
	word = (word &^ mask) | (uint32(value) << shift)
	return h.WriteWord(mem, wordAddr, word)
}

// Entries returns a read-only view of one table's sets, for dumping.
func (h *Hierarchy) Entries(kind Kind) [][]Entry {
	switch kind {
	case L1I:
		out := make([][]Entry, L1Lines)
		for i := range h.l1i {
			out[i] = h.l1i[i][:]
		}
		return out
	case L1D:
		out := make([][]Entry, L1Lines)
		for i := range h.l1d {
			out[i] = h.l1d[i][:]
		}
		return out
	default:
		out := make([][]Entry, L2Lines)
		for i := range h.l2 {
			out[i] = h.l2[i][:]
		}
		return out
	}
}
