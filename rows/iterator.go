package rows

import (
	"io"

	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/page"
)

// Row is one decoded record: one Value per column, in column order.
type Row struct {
	Values []Value
}

// Decoder turns a fixed-width row buffer into a Row according to a
// resolved column table.
type Decoder struct {
	eng          endian.EndianEngine
	littleEndian bool
	columns      []metadata.ColumnInfo
	dec          *charset.Decoder
}

// NewDecoder builds a Decoder for the given column layout. littleEndian
// must match the file's declared byte order; it governs how a numeric
// column shorter than 8 bytes is zero-extended to a full double.
func NewDecoder(eng endian.EndianEngine, littleEndian bool, columns []metadata.ColumnInfo, dec *charset.Decoder) *Decoder {
	return &Decoder{eng: eng, littleEndian: littleEndian, columns: columns, dec: dec}
}

// DecodeRow slices buf according to each column's offset/width and decodes
// every cell. buf must be at least as long as the row layout requires.
func (d *Decoder) DecodeRow(buf []byte) (Row, error) {
	values := make([]Value, len(d.columns))
	for i, col := range d.columns {
		end := col.Offset + col.Width
		if end > len(buf) {
			return Row{}, errs.Corrupted(errs.SectionColumn(i), "column extends past row buffer (offset %d, width %d, row length %d)", col.Offset, col.Width, len(buf))
		}
		cell := buf[col.Offset:end]

		switch col.Kind {
		case format.ColumnCharacter:
			values[i] = DecodeString(d.dec.DecodeString(cell))
		default:
			raw, err := decodeNumericCell(d.eng, d.littleEndian, cell)
			if err != nil {
				return Row{}, errs.Corrupted(errs.SectionColumn(i), "%v", err)
			}
			values[i] = DecodeNumeric(raw, col.NumericKind, len(cell))
		}
	}
	return Row{Values: values}, nil
}

// decodeNumericCell widens a numeric column's raw storage (SAS numeric
// columns may be stored in anywhere from 3 to 8 bytes, right- or
// left-justified depending on byte order) into a float64.
func decodeNumericCell(eng endian.EndianEngine, littleEndian bool, cell []byte) (float64, error) {
	if len(cell) == 8 {
		return endian.ReadF64(eng, cell), nil
	}
	if len(cell) == 0 || len(cell) > 8 {
		return 0, errs.Allocation("numeric column width %d out of range", len(cell))
	}
	var padded [8]byte
	// A shortened numeric column stores its bytes in the same position
	// they would occupy within a full 8-byte double of the file's declared
	// byte order: little-endian files place them at the low end, big-endian
	// files at the high end.
	if littleEndian {
		copy(padded[:len(cell)], cell)
	} else {
		copy(padded[8-len(cell):], cell)
	}
	return endian.ReadF64(eng, padded[:]), nil
}

// Iterator walks every data row of a SAS7BDAT file across however many
// pages it spans, decompressing RLE/RDC-compressed page bodies and the
// implicit (uncompressed) data region of Mix/Data pages alike.
type Iterator struct {
	scanner *page.Scanner
	decoder *Decoder

	rowLength   int
	compression format.RowCompression
	totalRows   uint64
	rowsPerPage int
	vendor      format.Vendor

	pending     [][]byte // raw, decompressed row buffers from the current page, not yet emitted
	emittedRows uint64
	exhausted   bool
}

// NewIterator creates an Iterator reading from scanner, decoding rows with
// decoder according to the dataset's declared row length and compression.
// totalRows and rowsPerPage come from the row-size subheader and bound how
// many rows an implicit (pointer-less) data region is allowed to yield;
// vendor governs the StatTransfer-specific Mix-page alignment quirk.
func NewIterator(scanner *page.Scanner, decoder *Decoder, rowLength int, compression format.RowCompression, totalRows uint64, rowsPerPage int, vendor format.Vendor) *Iterator {
	return &Iterator{
		scanner:     scanner,
		decoder:     decoder,
		rowLength:   rowLength,
		compression: compression,
		totalRows:   totalRows,
		rowsPerPage: rowsPerPage,
		vendor:      vendor,
	}
}

// Next returns the next decoded row, or (Row{}, io.EOF) once every page has
// been consumed. Progress is revertible: if decoding a row fails, the row
// stays on pending, emittedRows is not advanced, and the iterator is marked
// exhausted, so the error is returned once and later calls return io.EOF.
func (it *Iterator) Next() (Row, error) {
	if it.exhausted {
		return Row{}, io.EOF
	}
	for len(it.pending) == 0 {
		if it.exhausted {
			return Row{}, io.EOF
		}
		if it.totalRows != 0 && it.emittedRows >= it.totalRows {
			it.exhausted = true
			return Row{}, io.EOF
		}
		if err := it.fetchNextPage(); err != nil {
			it.exhausted = true
			return Row{}, err
		}
	}
	raw := it.pending[0]
	row, err := it.decoder.DecodeRow(raw)
	if err != nil {
		it.exhausted = true
		return Row{}, err
	}
	it.pending = it.pending[1:]
	it.emittedRows++
	return row, nil
}

// fetchNextPage advances the scanner to the next row-bearing page and
// stages its decompressed row buffers in it.pending.
func (it *Iterator) fetchNextPage() error {
	p, err := it.scanner.Next()
	if err == io.EOF {
		it.exhausted = true
		return nil
	}
	if err != nil {
		return err
	}

	switch p.Kind {
	case format.PageComp, format.PageCompTable:
		return it.stageCompressedPage(p)
	case format.PageData, format.PageMix:
		return it.stageDataPage(p)
	default:
		return nil // pure metadata page, no rows
	}
}

// stageCompressedPage handles Comp and CompTable pages. These carry no row
// data of their own; the scanner doesn't even parse a pointer table for
// them, since their body is opaque control structure specific to the
// compression engine rather than a subheader-pointer layout.
func (it *Iterator) stageCompressedPage(p *page.Page) error {
	return nil
}

// stageDataPage handles Data and Mix pages: it walks the raw pointer table,
// routing each entry by its literal compression byte, and falls back to an
// implicit (uncompressed) data region when no pointer entry yielded a row.
func (it *Iterator) stageDataPage(p *page.Page) error {
	sawPointerRows := false
	for _, ptr := range p.Pointers {
		row, ok, err := it.decompressPointer(ptr, p.Buffer)
		if err != nil {
			return err
		}
		if ok {
			it.pending = append(it.pending, row)
			sawPointerRows = true
		}
	}
	if sawPointerRows {
		return nil
	}
	return it.stageImplicitRegion(p)
}

// decompressPointer resolves one subheader-pointer-table entry into a row
// buffer, or (nil, false, nil) if the entry doesn't carry row data (e.g. a
// metadata subheader interleaved on a Mix page).
func (it *Iterator) decompressPointer(ptr page.Pointer, buffer []byte) ([]byte, bool, error) {
	if ptr.Length == 0 {
		return nil, false, nil
	}
	end := ptr.Offset + ptr.Length
	if ptr.Offset < 0 || end > len(buffer) {
		return nil, false, errs.Corrupted(errs.SectionRow(0), "subheader pointer out of bounds")
	}
	data := buffer[ptr.Offset:end]

	switch ptr.Compression {
	case format.SubheaderTruncated:
		return nil, false, nil
	case format.SubheaderCompressed:
		row, err := it.decompress(data)
		if err != nil {
			return nil, false, err
		}
		return row, true, nil
	default: // SubheaderUncompressed
		if !ptr.IsCompressedData || len(data) < it.rowLength {
			return nil, false, nil
		}
		row := make([]byte, it.rowLength)
		copy(row, data[:it.rowLength])
		return row, true, nil
	}
}

func (it *Iterator) decompress(data []byte) ([]byte, error) {
	switch it.compression {
	case format.RowCompressionRLE:
		return decompressRLE(data, it.rowLength)
	case format.RowCompressionRDC:
		return decompressRDC(data, it.rowLength)
	default:
		if len(data) < it.rowLength {
			return nil, errs.Corrupted(errs.SectionRow(0), "compressed row shorter than declared row length with no compression scheme declared")
		}
		row := make([]byte, it.rowLength)
		copy(row, data[:it.rowLength])
		return row, nil
	}
}

// stageImplicitRegion handles the common case where a Data/Mix page simply
// packs RowCount fixed-width rows back to back after the page header (and,
// on Mix pages, after the metadata subheaders), with no pointer-table entry
// describing each row individually.
func (it *Iterator) stageImplicitRegion(p *page.Page) error {
	if p.RowCount == 0 {
		return nil
	}

	limit := int(p.RowCount)
	if p.Kind == format.PageMix && it.rowsPerPage > 0 && it.rowsPerPage < limit {
		limit = it.rowsPerPage
	}
	if it.totalRows != 0 {
		remaining := it.totalRows - it.emittedRows - uint64(len(it.pending))
		if remaining < uint64(limit) {
			limit = int(remaining)
		}
	}
	if it.rowLength > 0 {
		if fit := (len(p.Buffer) - it.implicitDataStart(p)) / it.rowLength; fit < limit {
			limit = fit
		}
	}

	dataStart := it.implicitDataStart(p)
	cursor := dataStart
	for i := 0; i < limit; i++ {
		end := cursor + it.rowLength
		if end > len(p.Buffer) {
			break
		}
		row := make([]byte, it.rowLength)
		copy(row, p.Buffer[cursor:end])
		it.pending = append(it.pending, row)
		cursor = end
	}
	return nil
}

// implicitDataStart finds where the row-data region begins on a page with
// no (or an exhausted) pointer table: immediately after the last subheader
// pointer's payload, or after the page header if there were none, aligned
// up to the next 8-byte boundary. Mix pages that land on a 4-byte
// remainder after that alignment skip an additional 4 bytes, unless the
// producing vendor is StatTransfer and the word sitting at that position
// is neither zero nor four literal spaces (StatTransfer occasionally packs
// useful bytes into what every other producer leaves as padding).
func (it *Iterator) implicitDataStart(p *page.Page) int {
	start := p.HeaderSize
	for _, ptr := range p.Pointers {
		end := ptr.Offset + ptr.Length
		if end > start {
			start = end
		}
	}

	if rem := start % 8; rem != 0 {
		start += 8 - rem
	}

	if p.Kind == format.PageMix {
		if start+4 <= len(p.Buffer) {
			word := p.Buffer[start : start+4]
			isFourSpaces := word[0] == ' ' && word[1] == ' ' && word[2] == ' ' && word[3] == ' '
			isZero := word[0] == 0 && word[1] == 0 && word[2] == 0 && word[3] == 0
			skip := true
			if it.vendor == format.VendorStatTransfer && !isZero && !isFourSpaces {
				skip = false
			}
			if skip {
				start += 4
			}
		}
	}

	return start
}
