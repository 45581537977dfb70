// Package catalog parses the companion .sas7bcat value-label catalog: an
// index of "XLSR" block pointers scanned out of the early pages, followed
// by chained label-text blocks that decode into named LabelSets the
// Reader facade merges onto matching variables.
package catalog

import (
	"io"

	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/header"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
)

// firstIndexPage is the page (0-based) holding the catalog's fixed-stride
// index of block pointers; pages before it carry no useful index entries.
const firstIndexPage = 1

// uselessLeadingPages is the number of pages, counting from firstIndexPage,
// that never carry "XLSR" markers and can be skipped by the scan.
const uselessLeadingPages = 3

// Catalog is a parsed .sas7bcat file: zero or more named value-label sets.
type Catalog struct {
	LabelSets map[string]metadata.LabelSet
}

// Parse reads a full .sas7bcat catalog from r, which must support Seek (the
// index scan and block-chain walk each revisit earlier offsets).
func Parse(r io.ReadSeeker) (*Catalog, error) {
	h, err := header.Parse(r)
	if err != nil {
		return nil, err
	}
	if !h.IsCatalog {
		return nil, errs.InvalidMetadata("file is not a SAS7BCAT catalog")
	}
	dec, err := charset.Resolve(h.Metadata.CharsetCode)
	if err != nil {
		return nil, err
	}

	pointers, err := buildIndex(r, h)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{LabelSets: map[string]metadata.LabelSet{}}
	for _, ptr := range pointers {
		block, err := readChainedBlock(r, h, ptr)
		if err != nil {
			return nil, err
		}
		set, ok, err := parseBlock(block, h.Engine(), dec)
		if err != nil {
			return nil, err
		}
		if ok {
			cat.LabelSets[set.Name] = set
		}
	}
	return cat, nil
}

// blockPointer locates one chained label block's first segment.
type blockPointer struct {
	page uint32
	pos  uint32
}

// indexLayout is the set of fixed offsets the index-page scan uses to find
// "XLSR" markers, derived from the header's pad-alignment and addressing
// width exactly as the row/subheader layouts are.
type indexLayout struct {
	entryStride        int
	indexStartOffset   int
	objectMarkerOffset int
}

func newIndexLayout(h *header.Header) indexLayout {
	pad := 0
	if h.HasPad4 {
		pad = 4
	}
	l := indexLayout{
		entryStride:        212 + pad,
		indexStartOffset:   856 + 2*pad,
		objectMarkerOffset: 50 + pad,
	}
	if h.Uses64Bit {
		l.entryStride += 72
		l.indexStartOffset += 144
		l.objectMarkerOffset += 24
	}
	return l
}

// buildIndex scans the catalog's index pages for "XLSR" block markers and
// returns their deduplicated, sorted block pointers.
func buildIndex(r io.ReadSeeker, h *header.Header) ([]blockPointer, error) {
	layout := newIndexLayout(h)
	eng := h.Engine()

	seen := map[uint64]blockPointer{}
	for i := int64(firstIndexPage + uselessLeadingPages); i < int64(h.PageCount); i++ {
		page, err := readPage(r, h, i)
		if err != nil {
			return nil, err
		}
		augmentIndex(page, layout, eng, h.Uses64Bit, seen)
	}

	out := make([]blockPointer, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sortPointers(out)
	return out, nil
}

func sortPointers(ptrs []blockPointer) {
	for i := 1; i < len(ptrs); i++ {
		for j := i; j > 0; j-- {
			a, b := ptrs[j-1], ptrs[j]
			if a.page < b.page || (a.page == b.page && a.pos <= b.pos) {
				break
			}
			ptrs[j-1], ptrs[j] = ptrs[j], ptrs[j-1]
		}
	}
}

func readPage(r io.ReadSeeker, h *header.Header, index int64) ([]byte, error) {
	offset := int64(h.DataOffset) + index*int64(h.PageSize)
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, h.PageSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errs.Corrupted(errs.SectionPage(index), "short read scanning catalog index page: %v", err)
	}
	return buf, nil
}

// augmentIndex walks one page's fixed-stride entry table looking for the
// "XLSR" magic at offset 16 of each entry, paired with an 'O' object marker
// byte; on a match it decodes the (page, pos) block pointer and records it.
func augmentIndex(page []byte, layout indexLayout, eng endian.EndianEngine, uses64 bool, seen map[uint64]blockPointer) {
	for cursor := layout.indexStartOffset; cursor+layout.entryStride <= len(page); cursor += layout.entryStride {
		entry := page[cursor : cursor+layout.entryStride]
		if len(entry) < 20 || string(entry[16:20]) != "XLSR" {
			continue
		}
		if layout.objectMarkerOffset >= len(entry) || entry[layout.objectMarkerOffset] != 'O' {
			continue
		}

		var p blockPointer
		if uses64 {
			if len(entry) < 36 {
				continue
			}
			p.page = uint32(endian.ReadU32(eng, entry[20:24]))
			p.pos = uint32(endian.ReadU32(eng, entry[32:36]))
		} else {
			if len(entry) < 28 {
				continue
			}
			p.page = uint32(endian.ReadU32(eng, entry[20:24]))
			p.pos = uint32(endian.ReadU32(eng, entry[24:28]))
		}
		key := uint64(p.page)<<32 | uint64(p.pos)
		seen[key] = p
	}
}
