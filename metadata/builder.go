package metadata

import (
	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/internal/textstore"
)

// RowInfo is the dataset-wide row layout resolved from the row-size
// subheader: the fixed row length, declared row count, rows-per-page, the
// resolved compression mode, and an optional dataset label.
type RowInfo struct {
	RowLength   int
	TotalRows   uint64
	RowsPerPage int
	Compression format.RowCompression
	FileLabel   string
	FileLabelRef textstore.Ref
}

// Builder aggregates subheader fragments (column-text, column-name,
// column-attributes, column-format, column-list) into a coherent column
// table. Subsequent fragments of the same kind append to later column
// indices via rolling counters, because a single column table can be split
// across many subheaders and many pages.
type Builder struct {
	Store *textstore.Store

	columns []ColumnInfo

	namesSeen   int
	attrsSeen   int
	formatsSeen int

	maxWidth int

	columnList []int16
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{Store: textstore.New()}
}

// EnsureColumn grows the column table so that index i is addressable,
// zero-initialising any newly created entries.
func (b *Builder) EnsureColumn(i int) *ColumnInfo {
	for len(b.columns) <= i {
		b.columns = append(b.columns, ColumnInfo{Index: len(b.columns)})
	}
	return &b.columns[i]
}

// NoteNameProcessed returns the next column index to attach a name to and
// advances the rolling counter.
func (b *Builder) NoteNameProcessed() int {
	idx := b.namesSeen
	b.namesSeen++
	return idx
}

// NoteAttrsProcessed returns the next column index to attach attributes to
// and advances the rolling counter.
func (b *Builder) NoteAttrsProcessed() int {
	idx := b.attrsSeen
	b.attrsSeen++
	return idx
}

// NoteFormatProcessed returns the next column index to attach a format to
// and advances the rolling counter.
func (b *Builder) NoteFormatProcessed() int {
	idx := b.formatsSeen
	b.formatsSeen++
	return idx
}

// UpdateMaxWidth tracks the widest column seen, for callers that want a
// quick upper bound without walking the whole table.
func (b *Builder) UpdateMaxWidth(width int) {
	if width > b.maxWidth {
		b.maxWidth = width
	}
}

// MaxWidth returns the widest column width observed so far.
func (b *Builder) MaxWidth() int { return b.maxWidth }

// AppendColumnList extends the column-list reordering vector. A SAS file
// may split the column-list subheader across fragments; fragments only
// ever extend the list, never overwrite an earlier prefix.
func (b *Builder) AppendColumnList(values []int16) {
	b.columnList = append(b.columnList, values...)
}

// Finalize resolves every column's text references and promotes numeric
// columns whose format names match a date/datetime/time pattern. It
// returns the text store, the finished column table, and the column-list
// vector (nil if none was present).
func (b *Builder) Finalize(dec *charset.Decoder) (*textstore.Store, []ColumnInfo, []int16, error) {
	for i := range b.columns {
		ci := &b.columns[i]
		if ci.Kind != format.ColumnNumeric || ci.FormatRef.IsEmpty() {
			continue
		}
		formatName, ok := b.Store.Resolve(ci.FormatRef, dec)
		if !ok {
			return nil, nil, nil, errs.InvalidMetadata("column %d: format reference out of bounds", i)
		}
		if formatName != "" {
			ci.NumericKind = InferNumericKind(formatName)
		}
	}
	var list []int16
	if len(b.columnList) > 0 {
		list = b.columnList
	}
	return b.Store, b.columns, list, nil
}
