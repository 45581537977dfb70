// Package batch re-arranges consecutive decoded rows into per-column
// buffers: a dense typed vector plus a definition-level vector for each
// numeric column, and an adaptive dictionary-or-inline staging for
// character columns, so a sink that wants one column at a time (the
// Parquet plan, chiefly) doesn't have to re-walk row slices itself.
package batch

import (
	"io"

	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/hash"
	"github.com/sasreader/sas7bdat/internal/pool"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/rows"
)

// dictionaryCap bounds how many distinct byte sequences a character
// column's dictionary will hold before falling back to inline encoding.
const dictionaryCap = 2048

// cardinalitySampleRows is how many leading non-null rows are used to
// estimate a character column's cardinality before committing to a
// staging strategy for the rest of the batch.
const cardinalitySampleRows = 256

// cardinalityDisableThreshold is the unique/observed ratio above which
// dictionary staging is abandoned in favor of inline encoding.
const cardinalityDisableThreshold = 0.75

// ColumnBatch holds one column's materialised values for a Batch.
// Character columns populate Text; every numeric kind (Double, Date,
// DateTime, Time) populates Numbers, and the batcher never populates Ints.
// Defined marks which row indices are present (true) versus missing
// (false).
type ColumnBatch struct {
	Kind    format.NumericKind
	IsText  bool
	Defined []bool
	Numbers []float64
	Ints    []int64
	Text    *TextColumn

	release []func()
}

// Release returns any pooled storage this column borrowed back to its
// pool. Call it once the caller is done reading the batch.
func (c *ColumnBatch) Release() {
	for _, f := range c.release {
		f()
	}
	c.release = nil
}

// TextColumn is the adaptive UTF-8 staging result for one character
// column: either dictionary-encoded (Dict non-nil, Codes indexes into it)
// or inline (Values holds the decoded string per row), decided by
// cardinality sampled over the first rows of the batch.
type TextColumn struct {
	Dict   []string
	Codes  []int32 // valid only while Dict != nil
	Values []string
	dictIdx map[string]int32
}

// Batch is one window of decoded rows re-arranged column-major.
type Batch struct {
	RowCount int
	Columns  []ColumnBatch
}

// Release returns every column's pooled storage.
func (b *Batch) Release() {
	for i := range b.Columns {
		b.Columns[i].Release()
	}
}

// rowSource is the subset of *rows.Iterator that Batcher needs.
type rowSource interface {
	Next() (rows.Row, error)
}

// Batcher drives next_columnar_batch: repeated calls each advance the
// same underlying iterator by up to n more rows.
type Batcher struct {
	it        rowSource
	variables []metadata.Variable
	exhausted bool
}

// NewBatcher creates a Batcher pulling rows from it and describing each
// column according to variables (same order as rows.Row.Values).
func NewBatcher(it rowSource, variables []metadata.Variable) *Batcher {
	return &Batcher{it: it, variables: variables}
}

// Next collects up to n more rows and returns them re-arranged
// column-major, or (nil, io.EOF) if the underlying iterator was already
// exhausted before this call.
func (b *Batcher) Next(n int) (*Batch, error) {
	if b.exhausted {
		return nil, io.EOF
	}

	staged := make([]rows.Row, 0, n)
	for len(staged) < n {
		row, err := b.it.Next()
		if err == io.EOF {
			b.exhausted = true
			break
		}
		if err != nil {
			return nil, err
		}
		staged = append(staged, row)
	}
	if len(staged) == 0 {
		return nil, io.EOF
	}

	batch := &Batch{RowCount: len(staged), Columns: make([]ColumnBatch, len(b.variables))}
	for col := range b.variables {
		if b.variables[col].Kind == format.ColumnCharacter {
			batch.Columns[col] = materializeText(staged, col)
		} else {
			batch.Columns[col] = materializeNumeric(staged, col, b.variables[col].NumericKind)
		}
	}
	return batch, nil
}

func materializeNumeric(staged []rows.Row, col int, kind format.NumericKind) ColumnBatch {
	n := len(staged)
	numbers, releaseNumbers := pool.GetFloat64Slice(n)
	defined := make([]bool, n)

	for i, row := range staged {
		v := row.Values[col]
		if v.Kind == rows.KindMissing {
			continue
		}
		defined[i] = true
		switch v.Kind {
		case rows.KindDate, rows.KindDateTime, rows.KindTime:
			numbers[i] = v.Number
		default:
			numbers[i] = v.Number
			if v.Kind == rows.KindInt32 || v.Kind == rows.KindInt64 {
				numbers[i] = float64(v.Int)
			}
		}
	}

	return ColumnBatch{
		Kind:    kind,
		Defined: defined,
		Numbers: numbers,
		release: []func(){releaseNumbers},
	}
}

func materializeText(staged []rows.Row, col int) ColumnBatch {
	n := len(staged)
	defined := make([]bool, n)
	dict := make([]string, 0, dictionaryCap)
	dictIdx := make(map[string]int32, dictionaryCap)
	codes := make([]int32, n)
	values := make([]string, n)

	useDict := true
	sampled := 0
	unique := 0

	for i, row := range staged {
		v := row.Values[col]
		if v.Kind == rows.KindMissing {
			continue
		}
		defined[i] = true
		text := v.Text
		values[i] = text

		if !useDict {
			continue
		}

		if sampled < cardinalitySampleRows {
			sampled++
			if _, ok := dictIdx[text]; !ok {
				unique++
			}
			if sampled == cardinalitySampleRows && float64(unique)/float64(sampled) > cardinalityDisableThreshold {
				useDict = false
				continue
			}
		}

		id, ok := dictIdx[text]
		if !ok {
			if len(dict) >= dictionaryCap {
				useDict = false
				continue
			}
			id = int32(len(dict))
			dict = append(dict, text)
			dictIdx[text] = id
			// The dictionary is keyed by the string itself; hash.ID is
			// computed for each new entry and its result is discarded, so
			// no hash is stored on the TextColumn.
			_ = hash.ID(text)
		}
		codes[i] = id
	}

	tc := &TextColumn{Values: values}
	if useDict {
		tc.Dict = dict
		tc.Codes = codes
		tc.dictIdx = dictIdx
	}

	return ColumnBatch{IsText: true, Defined: defined, Text: tc}
}
