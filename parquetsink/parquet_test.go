package parquetsink

import (
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sasreader/sas7bdat/batch"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/rows"
	"github.com/sasreader/sas7bdat/sink"
	"github.com/stretchr/testify/require"
)

func TestEstimateRowGroupRows_ClampsToMinimum(t *testing.T) {
	require := require.New(t)

	// S4: 64KiB target / 80-byte rows -> 819 raw, clamped up to the 1024 floor.
	ctx := sink.Context{Columns: []metadata.Variable{{StorageWidth: 80}}}
	n := estimateRowGroupRows(ctx, 64*1024)
	require.Equal(minAutoRowGroupRows, n)
}

func TestEstimateRowGroupRows_ClampsToMaximum(t *testing.T) {
	require := require.New(t)

	ctx := sink.Context{Columns: []metadata.Variable{{StorageWidth: 1}}}
	n := estimateRowGroupRows(ctx, 1<<30)
	require.Equal(maxAutoRowGroupRows, n)
}

func TestEstimateRowGroupRows_ClampsToDatasetRowCount(t *testing.T) {
	require := require.New(t)

	md := &metadata.DatasetMetadata{RowCount: 50}
	ctx := sink.Context{Metadata: md, Columns: []metadata.Variable{{StorageWidth: 8}}}
	n := estimateRowGroupRows(ctx, 1<<20)
	require.Equal(50, n)
}

func TestEstimateRowGroupRows_ZeroWidthColumnsDoesNotDivideByZero(t *testing.T) {
	require := require.New(t)

	// approxRowBytes floors to 1 when every column reports zero width, so
	// the estimate degenerates to targetBytes itself rather than panicking.
	ctx := sink.Context{Columns: []metadata.Variable{{StorageWidth: 0}}}
	n := estimateRowGroupRows(ctx, 2048)
	require.Equal(2048, n)
}

func TestConvertBatchCell_DateAndDateTime(t *testing.T) {
	require := require.New(t)

	datePlan := &columnPlan{name: "d", shape: shapeDate}
	dateCol := &batch.ColumnBatch{Defined: []bool{true}, Numbers: []float64{0}} // SAS epoch day 0
	v, err := datePlan.convertBatchCell(dateCol, 0)
	require.NoError(err)
	require.Equal(int32(sasEpochDayOffset), v)

	dtPlan := &columnPlan{name: "dt", shape: shapeDateTime}
	dtCol := &batch.ColumnBatch{Defined: []bool{true}, Numbers: []float64{0}} // SAS epoch itself
	v, err = dtPlan.convertBatchCell(dtCol, 0)
	require.NoError(err)
	require.Equal(int64(sasEpochSecondOffset)*1_000_000, v)
}

func TestConvertBatchCell_TimeHasNoEpochAdjustment(t *testing.T) {
	require := require.New(t)

	// 90000 SAS seconds is 25:00:00, a valid time-of-day past the 24h mark;
	// unlike DateTime, it carries no 1960->1970 epoch shift.
	plan := &columnPlan{name: "t", shape: shapeTime}
	col := &batch.ColumnBatch{Defined: []bool{true}, Numbers: []float64{90000}}
	v, err := plan.convertBatchCell(col, 0)
	require.NoError(err)
	require.Equal(int64(90000)*1_000_000, v)
}

func TestConvert_TimeHasNoEpochAdjustment(t *testing.T) {
	require := require.New(t)

	plan := &columnPlan{name: "t", shape: shapeTime}
	v, err := plan.convert(rows.Value{Kind: rows.KindTime, Duration: 25 * time.Hour})
	require.NoError(err)
	require.Equal(int64((25 * time.Hour).Microseconds()), v)
}

func TestNewColumnPlan_TimeUsesTimeLogicalType(t *testing.T) {
	require := require.New(t)

	plan := newColumnPlan(metadata.Variable{NumericKind: format.NumericTime})
	require.Equal(shapeTime, plan.shape)
	require.Equal(parquet.Time(parquet.Microsecond), plan.node)
}

func TestConvertBatchCell_MissingIsNil(t *testing.T) {
	require := require.New(t)

	plan := &columnPlan{name: "n", shape: shapeDouble}
	col := &batch.ColumnBatch{Defined: []bool{false}, Numbers: []float64{99}}
	v, err := plan.convertBatchCell(col, 0)
	require.NoError(err)
	require.Nil(v)
}

func TestConvertBatchCell_TextDictionary(t *testing.T) {
	require := require.New(t)

	plan := &columnPlan{name: "s", shape: shapeCharacter}
	col := &batch.ColumnBatch{
		Defined: []bool{true},
		Text: &batch.TextColumn{
			Dict:  []string{"hello"},
			Codes: []int32{0},
		},
	}
	v, err := plan.convertBatchCell(col, 0)
	require.NoError(err)
	require.Equal("hello", v)
}

func TestNewColumnPlan_Shapes(t *testing.T) {
	require := require.New(t)

	char := newColumnPlan(metadata.Variable{Kind: format.ColumnCharacter})
	require.Equal(shapeCharacter, char.shape)

	date := newColumnPlan(metadata.Variable{NumericKind: format.NumericDate})
	require.Equal(shapeDate, date.shape)

	num := newColumnPlan(metadata.Variable{NumericKind: format.NumericDouble})
	require.Equal(shapeDouble, num.shape)
}
