// Package page implements the forward page walk: seeking to each page,
// classifying it by its type bitfield, and parsing its subheader pointer
// table so the metadata builder and row decoder can each pull out the
// fragments they care about.
package page

import (
	"io"

	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/header"
	"github.com/sasreader/sas7bdat/internal/errs"
)

// Pointer is one resolved subheader-pointer-table entry.
type Pointer struct {
	Offset           int
	Length           int
	Compression      format.SubheaderCompression
	IsCompressedData bool
}

// Subheader is a subheader payload sliced out of a page buffer, tagged with
// its resolved signature.
type Subheader struct {
	Signature format.SubheaderSignature
	Data      []byte
}

// Page is one decoded page: its kind, raw buffer, row count and the raw
// pointer table. Pointers is every entry in the pointer table regardless of
// compression byte; the row decoder needs the compressed/truncated entries
// that the metadata-oriented Subheaders() view filters out.
type Page struct {
	Index          int64
	Kind           format.PageKind
	Buffer         []byte
	RowCount       uint16
	SubheaderCount uint16
	Pointers       []Pointer
	HeaderSize     int
	PointerSize    int

	sigSize   int
	eng       endian.EndianEngine
	uses64    bool
	bigEndian bool
}

// Subheaders returns the subset of Pointers that are uncompressed, in
// bounds, and long enough to carry a signature, sliced and signature-tagged
// for the metadata builder.
func (p *Page) Subheaders() []Subheader {
	subs := make([]Subheader, 0, len(p.Pointers))
	for _, ptr := range p.Pointers {
		if ptr.Length == 0 || ptr.Compression != format.SubheaderUncompressed {
			continue
		}
		end := ptr.Offset + ptr.Length
		if ptr.Offset < 0 || end > len(p.Buffer) {
			continue
		}
		data := p.Buffer[ptr.Offset:end]
		if len(data) < p.sigSize {
			continue
		}
		sig := format.SubheaderSignature(endian.ReadU32(p.eng, data))
		if p.uses64 && p.bigEndian && uint32(sig) == 0xFFFFFFFF && len(data) >= 8 {
			sig = format.SubheaderSignature(endian.ReadU32(p.eng, data[4:]))
		}
		subs = append(subs, Subheader{Signature: sig, Data: data})
	}
	return subs
}

// Scanner walks pages of a SAS7BDAT/SAS7BCAT stream in forward order.
type Scanner struct {
	r      io.ReadSeeker
	h      *header.Header
	eng    endian.EndianEngine
	buf    []byte
	index  int64
}

// New creates a Scanner starting at page 0.
func New(r io.ReadSeeker, h *header.Header) *Scanner {
	return &Scanner{
		r:   r,
		h:   h,
		eng: h.Engine(),
		buf: make([]byte, h.PageSize),
	}
}

// Next reads and classifies the next page, or returns (nil, io.EOF) once
// every page declared in the header has been visited.
func (s *Scanner) Next() (*Page, error) {
	if s.index >= int64(s.h.PageCount) {
		return nil, io.EOF
	}
	offset := int64(s.h.DataOffset) + s.index*int64(s.h.PageSize)
	if _, err := s.r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		return nil, errs.Corrupted(errs.SectionPage(s.index), "short read for page body: %v", err)
	}

	phs := s.h.PageHeaderSize
	rawType := endian.ReadU16(s.eng, s.buf[phs-8:])
	kind := format.ClassifyPage(rawType)

	rowCount := endian.ReadU16(s.eng, s.buf[phs-6:])
	subCount := endian.ReadU16(s.eng, s.buf[phs-4:])

	p := &Page{
		Index:          s.index,
		Kind:           kind,
		Buffer:         s.buf,
		RowCount:       rowCount,
		SubheaderCount: subCount,
		HeaderSize:     phs,
		PointerSize:    s.h.SubheaderPointerSize,
		sigSize:        s.h.SubheaderSignatureSize,
		eng:            s.eng,
		uses64:         s.h.Uses64Bit,
		bigEndian:      s.h.Endianness != format.EndianLittle,
	}
	s.index++

	if kind == format.PageComp || kind == format.PageCompTable {
		return p, nil
	}

	pointers, err := s.parsePointerTable(p)
	if err != nil {
		return nil, err
	}
	p.Pointers = pointers
	return p, nil
}

// parsePointerTable walks the subheader pointer table immediately following
// the page header. Clamps the declared subheader count to what physically
// fits rather than reading out of bounds.
func (s *Scanner) parsePointerTable(p *Page) ([]Pointer, error) {
	phs := s.h.PageHeaderSize
	pointerSize := s.h.SubheaderPointerSize

	maxPointers := 0
	if len(p.Buffer) > phs {
		maxPointers = (len(p.Buffer) - phs) / pointerSize
	}
	count := int(p.SubheaderCount)
	if count > maxPointers {
		count = maxPointers
	}

	pointers := make([]Pointer, 0, count)
	cursor := phs
	for i := 0; i < count; i++ {
		if cursor+pointerSize > len(p.Buffer) {
			break
		}
		ptr, err := s.parsePointer(p.Buffer[cursor : cursor+pointerSize])
		cursor += pointerSize
		if err != nil {
			return nil, err
		}
		pointers = append(pointers, ptr)
	}
	return pointers, nil
}

// parsePointer decodes one subheader-pointer-table entry according to the
// header's 32/64-bit addressing mode.
func (s *Scanner) parsePointer(raw []byte) (Pointer, error) {
	if s.h.Uses64Bit {
		if len(raw) < 18 {
			return Pointer{}, errs.Corrupted(errs.SectionHeader(), "64-bit subheader pointer too short")
		}
		offset := endian.ReadU64(s.eng, raw[0:8])
		length := endian.ReadU64(s.eng, raw[8:16])
		return Pointer{
			Offset:           int(offset),
			Length:           int(length),
			Compression:      format.SubheaderCompression(raw[16]),
			IsCompressedData: raw[17] != 0,
		}, nil
	}
	if len(raw) < 10 {
		return Pointer{}, errs.Corrupted(errs.SectionHeader(), "32-bit subheader pointer too short")
	}
	offset := endian.ReadU32(s.eng, raw[0:4])
	length := endian.ReadU32(s.eng, raw[4:8])
	return Pointer{
		Offset:           int(offset),
		Length:           int(length),
		Compression:      format.SubheaderCompression(raw[8]),
		IsCompressedData: raw[9] != 0,
	}, nil
}

// Reset rewinds the scanner back to page 0.
func (s *Scanner) Reset() { s.index = 0 }
