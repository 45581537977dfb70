// Package parquetsink writes decoded SAS rows to an Apache Parquet file,
// one column plan per variable, flushing a row group once it has buffered
// either an explicit row count or an estimated byte budget.
package parquetsink

import (
	"fmt"
	"io"
	"math"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/lz4"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/sasreader/sas7bdat/batch"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/rows"
	"github.com/sasreader/sas7bdat/sink"
)

// sasEpochDayOffset and sasEpochSecondOffset translate a SAS days/seconds-
// since-1960-01-01 value into the Unix (1970-01-01) equivalent a batch's
// numeric column already carries in SAS units.
const (
	sasEpochDayOffset    = -3653
	sasEpochSecondOffset = sasEpochDayOffset * 86400
)

const (
	defaultRowGroupRows        = 8192
	defaultTargetRowGroupBytes = 256 * 1024 * 1024
	minAutoRowGroupRows        = 1024
	maxAutoRowGroupRows        = 131072
)

// Compression selects the column compression codec a Sink applies.
type Compression int

const (
	// CompressionZstd is the default: good ratio, moderate CPU cost.
	CompressionZstd Compression = iota
	// CompressionLZ4 favors write and scan speed over ratio.
	CompressionLZ4
	// CompressionNone disables column compression.
	CompressionNone
)

func (c Compression) codec() parquet.Compression {
	switch c {
	case CompressionLZ4:
		return &lz4.Codec{}
	case CompressionNone:
		return nil
	default:
		return &zstd.Codec{}
	}
}

// Option configures a Sink before Begin is called.
type Option func(*Sink)

// WithRowGroupSize fixes the number of rows buffered per row group,
// disabling the sink's automatic byte-budget estimate.
func WithRowGroupSize(n int) Option {
	return func(s *Sink) {
		s.rowGroupRows = n
		s.autoRowGroup = false
	}
}

// WithTargetRowGroupBytes sets the approximate uncompressed size a row
// group should reach before it is estimated to need flushing; it only
// takes effect while row-group sizing is automatic (the default).
func WithTargetRowGroupBytes(bytes int) Option {
	return func(s *Sink) {
		if bytes <= 0 {
			bytes = 1
		}
		s.targetRowGroupBytes = bytes
		s.autoRowGroup = true
	}
}

// WithCompression selects the column codec (default CompressionZstd).
func WithCompression(c Compression) Option {
	return func(s *Sink) { s.compression = c }
}

// columnShape classifies how a column's decoded values map onto the
// Parquet physical type its node was built with.
type columnShape int

const (
	shapeCharacter columnShape = iota
	shapeDouble
	shapeDate
	shapeDateTime
	shapeTime
)

// columnPlan carries the Parquet node and value-coercion rule for one
// SAS variable.
type columnPlan struct {
	name  string
	shape columnShape
	node  parquet.Node
}

func newColumnPlan(col metadata.Variable) *columnPlan {
	plan := &columnPlan{name: col.Name}

	switch {
	case col.Kind == format.ColumnCharacter:
		plan.shape = shapeCharacter
		plan.node = parquet.String()
	case col.NumericKind == format.NumericDate:
		plan.shape = shapeDate
		plan.node = parquet.Date()
	case col.NumericKind == format.NumericDateTime:
		plan.shape = shapeDateTime
		plan.node = parquet.Timestamp(parquet.Microsecond)
	case col.NumericKind == format.NumericTime:
		plan.shape = shapeTime
		plan.node = parquet.Time(parquet.Microsecond)
	default:
		plan.shape = shapeDouble
		plan.node = parquet.Leaf(parquet.DoubleType)
	}
	return plan
}

// convert maps a decoded cell to the Go value parquet-go expects for this
// column's logical type; a missing value always becomes nil, which the
// writer encodes as an unset optional field.
func (plan *columnPlan) convert(v rows.Value) (any, error) {
	if v.Kind == rows.KindMissing {
		return nil, nil
	}

	switch plan.shape {
	case shapeCharacter:
		return v.Text, nil
	case shapeDate:
		return int32(v.When.Unix() / 86400), nil
	case shapeDateTime:
		return v.When.UnixMicro(), nil
	case shapeTime:
		// Time-of-day is an elapsed duration, not a point on the Unix
		// timeline: no epoch adjustment, just whole microseconds.
		return v.Duration.Microseconds(), nil
	default:
		switch v.Kind {
		case rows.KindInt32, rows.KindInt64:
			return float64(v.Int), nil
		case rows.KindFloat, rows.KindDate, rows.KindDateTime, rows.KindTime:
			return v.Number, nil
		default:
			return nil, errs.Sink("parquet", fmt.Sprintf("column %q: unexpected value kind for numeric column", plan.name), nil)
		}
	}
}

// Sink writes rows into a Parquet file as they arrive, flushing a row
// group each time the buffered row count reaches rowGroupRows.
type Sink struct {
	lc *sink.Lifecycle

	out io.Writer

	rowGroupRows        int
	autoRowGroup        bool
	targetRowGroupBytes int
	compression         Compression

	writer  *parquet.GenericWriter[any]
	columns []*columnPlan

	rowsBuffered int
}

// New creates a Sink writing to w.
func New(w io.Writer, opts ...Option) *Sink {
	s := &Sink{
		lc:                  sink.NewLifecycle("parquet"),
		out:                 w,
		rowGroupRows:        defaultRowGroupRows,
		autoRowGroup:        true,
		targetRowGroupBytes: defaultTargetRowGroupBytes,
		compression:         CompressionZstd,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin builds the dynamic schema from ctx.Columns and opens the
// underlying Parquet writer.
func (s *Sink) Begin(ctx sink.Context) error {
	if err := s.lc.GuardBegin(); err != nil {
		return err
	}

	s.columns = make([]*columnPlan, len(ctx.Columns))
	group := make(parquet.Group, len(ctx.Columns))
	for i, col := range ctx.Columns {
		plan := newColumnPlan(col)
		s.columns[i] = plan
		group[col.Name] = parquet.Optional(plan.node)
	}
	schema := parquet.NewSchema("row", group)

	if s.autoRowGroup {
		s.rowGroupRows = estimateRowGroupRows(ctx, s.targetRowGroupBytes)
	}

	writerOpts := []parquet.WriterOption{schema}
	if codec := s.compression.codec(); codec != nil {
		writerOpts = append(writerOpts, parquet.Compression(codec))
	}
	s.writer = parquet.NewGenericWriter[any](s.out, writerOpts...)

	return nil
}

// WriteRow encodes row as one record keyed by column name and appends it
// to the current row group, flushing automatically once rowGroupRows is
// reached.
func (s *Sink) WriteRow(row rows.Row) error {
	if err := s.lc.GuardWrite(); err != nil {
		return err
	}
	if len(row.Values) != len(s.columns) {
		return errs.Sink("parquet", fmt.Sprintf("row has %d values, sink expects %d", len(row.Values), len(s.columns)), nil)
	}

	record := make(map[string]any, len(s.columns))
	for i, plan := range s.columns {
		v, err := plan.convert(row.Values[i])
		if err != nil {
			return err
		}
		record[plan.name] = v
	}

	if _, err := s.writer.Write([]any{record}); err != nil {
		return errs.Sink("parquet", "write row", err)
	}

	s.rowsBuffered++
	if s.rowsBuffered >= s.rowGroupRows {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return nil
}

var _ sink.ColumnarSink = (*Sink)(nil)

// WriteBatch encodes every row of b and flushes it as its own row group,
// bypassing the row-group-rows/byte-budget accumulation WriteRow uses:
// a caller driving the sink from columnar batches controls row-group
// boundaries simply by choosing how many rows each batch holds.
func (s *Sink) WriteBatch(b *batch.Batch) error {
	if err := s.lc.GuardWrite(); err != nil {
		return err
	}
	if len(b.Columns) != len(s.columns) {
		return errs.Sink("parquet", fmt.Sprintf("batch has %d columns, sink expects %d", len(b.Columns), len(s.columns)), nil)
	}

	records := make([]any, b.RowCount)
	for r := 0; r < b.RowCount; r++ {
		record := make(map[string]any, len(s.columns))
		for ci, plan := range s.columns {
			v, err := plan.convertBatchCell(&b.Columns[ci], r)
			if err != nil {
				return err
			}
			record[plan.name] = v
		}
		records[r] = record
	}

	if _, err := s.writer.Write(records); err != nil {
		return errs.Sink("parquet", "write batch", err)
	}
	s.rowsBuffered += b.RowCount
	return s.flush()
}

// convertBatchCell mirrors convert, but reads from a materialised
// ColumnBatch (per-column typed buffers) rather than a decoded rows.Value.
func (plan *columnPlan) convertBatchCell(col *batch.ColumnBatch, row int) (any, error) {
	if !col.Defined[row] {
		return nil, nil
	}

	if plan.shape == shapeCharacter {
		if col.Text.Dict != nil {
			return col.Text.Dict[col.Text.Codes[row]], nil
		}
		return col.Text.Values[row], nil
	}

	raw := col.Numbers[row]
	switch plan.shape {
	case shapeDate:
		return int32(raw) + sasEpochDayOffset, nil
	case shapeDateTime:
		return int64(math.Round(raw*1e6)) + int64(sasEpochSecondOffset)*1_000_000, nil
	case shapeTime:
		// raw is SAS seconds-since-midnight; time-of-day has no epoch to
		// adjust for, unlike the absolute DateTime case above.
		return int64(math.Round(raw * 1e6)), nil
	default:
		return raw, nil
	}
}

func (s *Sink) flush() error {
	if s.rowsBuffered == 0 {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return errs.Sink("parquet", "flush row group", err)
	}
	s.rowsBuffered = 0
	return nil
}

// Finish flushes any buffered rows and closes the Parquet writer,
// finalizing the file footer.
func (s *Sink) Finish() error {
	if err := s.lc.GuardFinish(); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.writer.Close(); err != nil {
		return errs.Sink("parquet", "close writer", err)
	}
	return nil
}

// estimateRowGroupRows mirrors a target-bytes row group estimate: it
// divides the byte budget by the dataset's approximate per-row storage
// width, then clamps to a sane row-count range and to the dataset's own
// row count when known.
func estimateRowGroupRows(ctx sink.Context, targetBytes int) int {
	approxRowBytes := 0
	for _, col := range ctx.Columns {
		approxRowBytes += col.StorageWidth
	}
	if approxRowBytes == 0 {
		approxRowBytes = 1
	}

	n := targetBytes / approxRowBytes
	if n < minAutoRowGroupRows {
		n = minAutoRowGroupRows
	} else if n > maxAutoRowGroupRows {
		n = maxAutoRowGroupRows
	}

	if ctx.Metadata != nil && ctx.Metadata.RowCount > 0 && ctx.Metadata.RowCount < uint64(n) {
		n = int(ctx.Metadata.RowCount)
	}
	return n
}
