// Package memimg implements the flat, byte-addressable backing memory that
// both the page walker and the cache hierarchy read and write: the
// simulator's physical memory. It supports two bring-up modes (a raw dump
// file, or a description file naming page directories and data pages) per
// spec §4.6.
package memimg

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/memsim/internal/addr"
	"github.com/tinyrange/memsim/internal/pagewalk"
	"github.com/tinyrange/memsim/internal/simerr"
)

// progressBarThreshold is the minimum number of data pages a description
// load must place before a progress bar is drawn (see SPEC_FULL.md §1.6).
const progressBarThreshold = 64

// Image is the flat backing memory shared by every component. Physical
// addresses are plain byte offsets into Data.
type Image struct {
	Data []byte
}

// New allocates a zeroed image of the given size.
func New(size int) *Image {
	return &Image{Data: make([]byte, size)}
}

func (m *Image) boundsCheck(off uint32, n int) error {
	if int(off)+n > len(m.Data) || int(off) < 0 {
		return simerr.New(simerr.WrongAddress, "offset 0x%x length %d exceeds image size %d", off, n, len(m.Data))
	}
	return nil
}

// ReadUint32 reads a little-endian word at a byte offset.
func (m *Image) ReadUint32(off uint32) (uint32, error) {
	if err := m.boundsCheck(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.Data[off : off+4]), nil
}

// WriteUint32 writes a little-endian word at a byte offset.
func (m *Image) WriteUint32(off uint32, v uint32) error {
	if err := m.boundsCheck(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.Data[off:off+4], v)
	return nil
}

// ReadByte reads a single byte at a byte offset.
func (m *Image) ReadByte(off uint32) (byte, error) {
	if err := m.boundsCheck(off, 1); err != nil {
		return 0, err
	}
	return m.Data[off], nil
}

// WriteByte writes a single byte at a byte offset.
func (m *Image) WriteByte(off uint32, v byte) error {
	if err := m.boundsCheck(off, 1); err != nil {
		return err
	}
	m.Data[off] = v
	return nil
}

// ReadLine reads the 16-byte (4-word) cache line containing off, rounding
// the offset down to the line boundary.
func (m *Image) ReadLine(off uint32) ([4]uint32, error) {
	base := off &^ 0xF
	var line [4]uint32
	for i := range line {
		w, err := m.ReadUint32(base + uint32(i*4))
		if err != nil {
			return line, err
		}
		line[i] = w
	}
	return line, nil
}

// WriteLine writes a 16-byte (4-word) cache line at a line-aligned offset.
func (m *Image) WriteLine(off uint32, line [4]uint32) error {
	base := off &^ 0xF
	for i, w := range line {
		if err := m.WriteUint32(base+uint32(i*4), w); err != nil {
			return err
		}
	}
	return nil
}

// PTEAt implements pagewalk.Memory: the page walker reads page-table
// entries as 32-bit words indexed by a byte directory base and an entry
// index (spec §4.2).
func (m *Image) PTEAt(dirBase uint32, index uint16) (uint32, error) {
	return m.ReadUint32(dirBase + uint32(index)*4)
}

var _ pagewalk.Memory = (*Image)(nil)

// FromDump reads an entire image verbatim from a binary dump file.
func FromDump(filename string) (*Image, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, simerr.Wrap(simerr.IO, err, "reading dump file %s", filename)
	}
	slog.Debug("memimg: loaded dump", "file", filename, "bytes", len(data))
	return &Image{Data: data}, nil
}

// FromDescription builds an image from a description file: a header line
// giving the total byte size, a PGD page file, N translation page files
// each paired with a physical offset, and arbitrarily many data pages each
// paired with the virtual address at which they are placed (spec §4.6).
func FromDescription(filename string) (*Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, simerr.Wrap(simerr.IO, err, "opening description file %s", filename)
	}
	defer f.Close()

	dir := filepath.Dir(filename)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	readLine := func(what string) (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", simerr.Wrap(simerr.IO, err, "reading %s", what)
			}
			return "", simerr.New(simerr.EndOfFile, "unexpected end of file reading %s", what)
		}
		return strings.TrimSpace(sc.Text()), nil
	}

	sizeLine, err := readLine("total memory size")
	if err != nil {
		return nil, err
	}
	size, err := strconv.ParseUint(sizeLine, 0, 64)
	if err != nil {
		return nil, simerr.Wrap(simerr.BadParameter, err, "parsing total memory size %q", sizeLine)
	}
	img := New(int(size))

	pgdFile, err := readLine("PGD page filename")
	if err != nil {
		return nil, err
	}
	if err := loadPageAt(img, filepath.Join(dir, pgdFile), 0); err != nil {
		return nil, err
	}

	countLine, err := readLine("translation page count")
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(countLine, 0, 32)
	if err != nil {
		return nil, simerr.Wrap(simerr.BadParameter, err, "parsing translation page count %q", countLine)
	}

	for i := uint64(0); i < n; i++ {
		line, err := readLine("translation page entry")
		if err != nil {
			return nil, err
		}
		offsetStr, name, err := splitTwo(line)
		if err != nil {
			return nil, err
		}
		off, err := strconv.ParseUint(offsetStr, 0, 32)
		if err != nil {
			return nil, simerr.Wrap(simerr.BadParameter, err, "parsing translation page offset %q", offsetStr)
		}
		if off%addr.PageSize != 0 {
			return nil, simerr.New(simerr.BadParameter, "translation page offset 0x%x is not page-aligned", off)
		}
		if err := loadPageAt(img, filepath.Join(dir, name), uint32(off)); err != nil {
			return nil, err
		}
	}

	var dataLines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		dataLines = append(dataLines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, simerr.Wrap(simerr.IO, err, "reading data page list")
	}

	bar := newBar(len(dataLines))
	for _, line := range dataLines {
		vaddrStr, name, err := splitTwo(line)
		if err != nil {
			return nil, err
		}
		vraw, err := strconv.ParseUint(vaddrStr, 0, 64)
		if err != nil {
			return nil, simerr.Wrap(simerr.BadParameter, err, "parsing data page virtual address %q", vaddrStr)
		}
		v := addr.VirtualFromUint64(vraw)
		phys, err := pagewalk.Walk(img, v)
		if err != nil {
			return nil, fmt.Errorf("walking data page vaddr 0x%x: %w", vraw, err)
		}
		if err := loadPageAt(img, filepath.Join(dir, name), phys.PageNum<<addr.PageOffsetBits); err != nil {
			return nil, err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	slog.Info("memimg: loaded description", "file", filename, "bytes", size, "translation_pages", n, "data_pages", len(dataLines))
	return img, nil
}

func newBar(n int) *progressbar.ProgressBar {
	if n < progressBarThreshold || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription("loading data pages"),
		progressbar.OptionSetWriter(os.Stderr),
	)
}

func splitTwo(line string) (a, b string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", simerr.New(simerr.BadParameter, "expected two fields, got %q", line)
	}
	return fields[0], fields[1], nil
}

func loadPageAt(img *Image, filename string, offset uint32) error {
	if offset%addr.PageSize != 0 {
		return simerr.New(simerr.BadParameter, "page offset 0x%x is not %d-byte aligned", offset, addr.PageSize)
	}
	f, err := os.Open(filename)
	if err != nil {
		return simerr.Wrap(simerr.IO, err, "opening page file %s", filename)
	}
	defer f.Close()

	if err := img.boundsCheck(offset, addr.PageSize); err != nil {
		return err
	}
	n, err := io.ReadFull(f, img.Data[offset:offset+addr.PageSize])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return simerr.Wrap(simerr.IO, err, "reading page file %s", filename)
	}
	if n != addr.PageSize {
		return simerr.New(simerr.IO, "page file %s is %d bytes, expected exactly %d", filename, n, addr.PageSize)
	}
	// A page file must be exactly one page: reading one byte past the
	// expected size should yield io.EOF, not more data.
	var extra [1]byte
	if m, _ := f.Read(extra[:]); m != 0 {
		return simerr.New(simerr.BadParameter, "page file %s is larger than %d bytes", filename, addr.PageSize)
	}
	return nil
}
