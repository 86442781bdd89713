// Package dump renders cache and TLB state as human-readable text (spec
// §4.5.6/§4.4/§6), grounded on the exact column layout of
// original_source/test-tlb_hrchy.c's print_all_tlb_entries macro for TLBs,
// and on spec §6's "way/line: v, age, tag, (w0 w1 w2 w3)" template for
// caches.
package dump

import (
	"fmt"
	"io"

	"github.com/tinyrange/memsim/internal/cache"
	"github.com/tinyrange/memsim/internal/tlbfa"
	"github.com/tinyrange/memsim/internal/tlbhier"
)

// Cache writes one line per way/line pair of the given table. Invalid
// entries render with placeholder dashes instead of data.
func Cache(w io.Writer, h *cache.Hierarchy, kind cache.Kind) error {
	for line, set := range h.Entries(kind) {
		for way, e := range set {
			var err error
			if e.Valid {
				_, err = fmt.Fprintf(w, "%d/%d: %d, %d, %06X, (%08X %08X %08X %08X)\n",
					way, line, 1, e.Age, e.Tag, e.Line[0], e.Line[1], e.Line[2], e.Line[3])
			} else {
				_, err = fmt.Fprintf(w, "%d/%d: %d, -, ------, (-------- -------- -------- --------)\n", way, line, 0)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// TLBFullyAssoc writes one line per entry of a fully-associative TLB, in
// the original simulator's "v; tag; phy_page_num;" layout.
func TLBFullyAssoc(w io.Writer, t *tlbfa.TLB) error {
	for _, e := range t.Entries() {
		if err := tlbLine(w, e.Valid, e.Tag, e.PhysPageNum); err != nil {
			return err
		}
	}
	return nil
}

// TLBHierarchyLevel writes one line per entry of a single hierarchical TLB
// table (L1-I, L1-D, or L2).
func TLBHierarchyLevel(w io.Writer, entries []tlbhier.Entry) error {
	for _, e := range entries {
		if err := tlbLine(w, e.Valid, e.Tag, e.PhysPageNum); err != nil {
			return err
		}
	}
	return nil
}

func tlbLine(w io.Writer, valid bool, tag uint64, physPageNum uint32) error {
	var err error
	if valid {
		_, err = fmt.Fprintf(w, "%d; %08X; %05X;\n", 1, tag, physPageNum)
	} else {
		_, err = fmt.Fprintf(w, "%d; --------; -----;\n", 0)
	}
	return err
}
