// Package sink defines the row-at-a-time output contract that
// package-level sinks (csvsink, parquetsink, or a caller's own
// implementation) satisfy: a strict begin/write/finish lifecycle driven
// by the Reader facade's StreamInto.
package sink

import (
	"github.com/sasreader/sas7bdat/batch"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/rows"
)

// Context carries the dataset-level information a sink needs at Begin
// time: the full resolved metadata plus the column table in output order
// (the same order rows.Row.Values uses, barring a projection upstream).
type Context struct {
	Metadata *metadata.DatasetMetadata
	Columns  []metadata.Variable
}

// RowSink receives one row at a time. Begin is called exactly once before
// any WriteRow; Finish is called exactly once after the last WriteRow (or
// immediately after Begin for an empty dataset). Calling WriteRow before
// Begin, calling Finish twice, or writing after Finish is a programming
// error and sinks should report it via errs.Sink rather than panicking.
type RowSink interface {
	Begin(ctx Context) error
	WriteRow(row rows.Row) error
	Finish() error
}

// ColumnarSink receives one columnar batch at a time, for callers that
// already hold rows re-arranged column-major (via package batch) and want
// to avoid a row-major round trip. It carries the same begin/write/finish
// lifecycle guarantees as RowSink: Begin exactly once before any
// WriteBatch, Finish exactly once after the last WriteBatch.
type ColumnarSink interface {
	Begin(ctx Context) error
	WriteBatch(b *batch.Batch) error
	Finish() error
}

// Lifecycle tracks begin/write/finish ordering so concrete sinks don't
// each reimplement the same state machine. Embed it and call its guard
// methods at the top of Begin/WriteRow/Finish.
type Lifecycle struct {
	name    string
	begun   bool
	finished bool
}

// NewLifecycle creates a Lifecycle that reports errors tagged with name
// (e.g. "csv", "parquet").
func NewLifecycle(name string) *Lifecycle {
	return &Lifecycle{name: name}
}

func (l *Lifecycle) GuardBegin() error {
	if l.begun {
		return errs.Sink(l.name, "begin called twice", nil)
	}
	l.begun = true
	return nil
}

func (l *Lifecycle) GuardWrite() error {
	if !l.begun {
		return errs.Sink(l.name, "write called before begin", nil)
	}
	if l.finished {
		return errs.Sink(l.name, "write called after finish", nil)
	}
	return nil
}

func (l *Lifecycle) GuardFinish() error {
	if !l.begun {
		return errs.Sink(l.name, "finish called before begin", nil)
	}
	if l.finished {
		return errs.Sink(l.name, "finish called twice", nil)
	}
	l.finished = true
	return nil
}
