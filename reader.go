package sas7bdat

import (
	"io"
	"os"

	"github.com/sasreader/sas7bdat/batch"
	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/header"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/page"
	"github.com/sasreader/sas7bdat/rows"
	"github.com/sasreader/sas7bdat/sink"
)

// Reader is the top-level entry point: it holds the decoded header and
// resolved schema for one SAS7BDAT file and constructs fresh row
// iterators, projected iterators and columnar batchers on demand, each
// re-seeking the underlying reader to the start of the data region.
type Reader struct {
	r       io.ReadSeeker
	closer  io.Closer
	h       *header.Header
	parsed  *parseResult
	dec     *charset.Decoder
	batchIt *batch.Batcher
}

// Open opens path and parses its header and metadata.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := FromReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.closer = f
	return rd, nil
}

// FromReader parses header and metadata from r, which must already be
// positioned at (or seekable back to) offset 0.
func FromReader(r io.ReadSeeker) (*Reader, error) {
	h, err := header.Parse(r)
	if err != nil {
		return nil, err
	}
	if h.IsCatalog {
		return nil, errs.Unsupported("file is a SAS7BCAT catalog, not a SAS7BDAT dataset; open it with package catalog instead")
	}
	dec, err := charset.Resolve(h.Metadata.CharsetCode)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	parsed, err := parseMetadata(h, page.New(r, h))
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &Reader{r: r, h: h, parsed: parsed, dec: dec}, nil
}

// Close releases the underlying file, if Open (rather than FromReader)
// created this Reader.
func (rd *Reader) Close() error {
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}

// Metadata returns the dataset's resolved schema.
func (rd *Reader) Metadata() *metadata.DatasetMetadata {
	return &rd.parsed.Dataset
}

// newIterator builds a fresh row iterator from the start of the data
// region, sharing no state with any previously returned iterator.
func (rd *Reader) newIterator() (*rows.Iterator, error) {
	if _, err := rd.r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	scanner := page.New(rd.r, rd.h)
	decoder := rows.NewDecoder(rd.h.Engine(), rd.h.Endianness == format.EndianLittle, rd.parsed.Columns, rd.dec)
	return rows.NewIterator(scanner, decoder, rd.parsed.Rows.RowLength, rd.parsed.Rows.Compression,
		rd.parsed.Rows.TotalRows, rd.parsed.Rows.RowsPerPage, rd.parsed.Dataset.Vendor), nil
}

// Rows returns an Iterator over every row in dataset order.
func (rd *Reader) Rows() (*rows.Iterator, error) {
	return rd.newIterator()
}

// RowSelection configures a windowed and/or projected read: Skip rows are
// discarded before the first emitted row; Limit caps the number emitted
// (0 = unlimited); Columns, if non-empty, projects to just those column
// indices, in the given order.
type RowSelection struct {
	Skip    uint64
	Limit   uint64
	Columns []int
}

// HasProjection reports whether this selection names a column projection.
func (s RowSelection) HasProjection() bool { return len(s.Columns) > 0 }

// RowWindow applies a skip/limit window over an Iterator with no
// projection.
type RowWindow struct {
	it      *rows.Iterator
	skip    uint64
	limit   uint64
	skipped bool
	emitted uint64
}

// Next returns the next row within the window, or io.EOF once the limit
// (or the underlying iterator) is exhausted.
func (w *RowWindow) Next() (rows.Row, error) {
	if !w.skipped {
		for i := uint64(0); i < w.skip; i++ {
			if _, err := w.it.Next(); err != nil {
				w.skipped = true
				return rows.Row{}, err
			}
		}
		w.skipped = true
	}
	if w.limit != 0 && w.emitted >= w.limit {
		return rows.Row{}, io.EOF
	}
	row, err := w.it.Next()
	if err != nil {
		return rows.Row{}, err
	}
	w.emitted++
	return row, nil
}

// RowsWindowed builds a skip/limit window with no column projection.
// Selections that specify Columns must go through SelectWith instead.
func (rd *Reader) RowsWindowed(sel RowSelection) (*RowWindow, error) {
	if sel.HasProjection() {
		return nil, errs.InvalidMetadata("RowsWindowed does not support a column projection; use SelectWith")
	}
	it, err := rd.newIterator()
	if err != nil {
		return nil, err
	}
	return &RowWindow{it: it, skip: sel.Skip, limit: sel.Limit}, nil
}

// ProjectedRowIter decodes full rows and re-emits only the requested
// columns, in the order the caller listed them.
type ProjectedRowIter struct {
	it      *rows.Iterator
	indices []int
}

// Next returns the next row, containing exactly len(indices) values.
func (p *ProjectedRowIter) Next() (rows.Row, error) {
	row, err := p.it.Next()
	if err != nil {
		return rows.Row{}, err
	}
	out := make([]rows.Value, len(p.indices))
	for i, idx := range p.indices {
		out[i] = row.Values[idx]
	}
	return rows.Row{Values: out}, nil
}

// SelectColumns validates indices (non-empty, in range, duplicate-free)
// and returns an iterator that projects every row down to just those
// columns, in the given order.
func (rd *Reader) SelectColumns(indices []int) (*ProjectedRowIter, error) {
	if len(indices) == 0 {
		return nil, errs.InvalidMetadata("column projection must name at least one column")
	}
	count := rd.parsed.Dataset.ColumnCount
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= count {
			return nil, errs.InvalidMetadata("column index %d out of range [0, %d)", idx, count)
		}
		if seen[idx] {
			return nil, errs.InvalidMetadata("column index %d selected more than once", idx)
		}
		seen[idx] = true
	}
	it, err := rd.newIterator()
	if err != nil {
		return nil, err
	}
	return &ProjectedRowIter{it: it, indices: append([]int(nil), indices...)}, nil
}

// ProjectedRowWindow stacks a skip/limit window over a column projection.
type ProjectedRowWindow struct {
	inner   *ProjectedRowIter
	skip    uint64
	limit   uint64
	skipped bool
	emitted uint64
}

// Next returns the next projected row within the window.
func (w *ProjectedRowWindow) Next() (rows.Row, error) {
	if !w.skipped {
		for i := uint64(0); i < w.skip; i++ {
			if _, err := w.inner.Next(); err != nil {
				w.skipped = true
				return rows.Row{}, err
			}
		}
		w.skipped = true
	}
	if w.limit != 0 && w.emitted >= w.limit {
		return rows.Row{}, io.EOF
	}
	row, err := w.inner.Next()
	if err != nil {
		return rows.Row{}, err
	}
	w.emitted++
	return row, nil
}

// SelectWith resolves sel's projection (required) and stacks its skip/limit
// window on top.
func (rd *Reader) SelectWith(sel RowSelection) (*ProjectedRowWindow, error) {
	if !sel.HasProjection() {
		return nil, errs.InvalidMetadata("SelectWith requires a column projection; use RowsWindowed otherwise")
	}
	inner, err := rd.SelectColumns(sel.Columns)
	if err != nil {
		return nil, err
	}
	return &ProjectedRowWindow{inner: inner, skip: sel.Skip, limit: sel.Limit}, nil
}

// StreamInto drives sink's begin/write/finish lifecycle over every row.
func (rd *Reader) StreamInto(s sink.RowSink) error {
	if err := s.Begin(sink.Context{Metadata: &rd.parsed.Dataset, Columns: rd.parsed.Dataset.Variables}); err != nil {
		return err
	}
	it, err := rd.newIterator()
	if err != nil {
		return err
	}
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := s.WriteRow(row); err != nil {
			return err
		}
	}
	return s.Finish()
}

// StreamIntoColumnar drives a sink.ColumnarSink's begin/write/finish
// lifecycle, pulling batchSize rows at a time from a fresh batcher so each
// WriteBatch call sees a batch independent of the reader's own persistent
// NextColumnarBatch cursor.
func (rd *Reader) StreamIntoColumnar(s sink.ColumnarSink, batchSize int) error {
	if err := s.Begin(sink.Context{Metadata: &rd.parsed.Dataset, Columns: rd.parsed.Dataset.Variables}); err != nil {
		return err
	}
	it, err := rd.newIterator()
	if err != nil {
		return err
	}
	batcher := batch.NewBatcher(it, rd.parsed.Dataset.Variables)
	for {
		b, err := batcher.Next(batchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		werr := s.WriteBatch(b)
		b.Release()
		if werr != nil {
			return werr
		}
	}
	return s.Finish()
}

// NextColumnarBatch advances the reader's own persistent columnar cursor
// by up to n rows and returns the resulting batch; it returns (nil,
// io.EOF) once the dataset is exhausted. Successive calls continue from
// where the previous one left off, unlike Rows/SelectColumns which each
// start a fresh pass.
func (rd *Reader) NextColumnarBatch(n int) (*batch.Batch, error) {
	if rd.batchIt == nil {
		it, err := rd.newIterator()
		if err != nil {
			return nil, err
		}
		rd.batchIt = batch.NewBatcher(it, rd.parsed.Dataset.Variables)
	}
	return rd.batchIt.Next(n)
}
