// Package csvsink writes decoded rows out as delimiter-separated text:
// missing cells become empty fields, floats use Go's shortest round-trip
// formatting, and datetimes/times are rounded half-up to milliseconds
// with carry into the whole-seconds component.
package csvsink

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/s2"

	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/rows"
	"github.com/sasreader/sas7bdat/sink"
)

// Option configures a Sink before it is handed its first row.
type Option func(*Sink)

// WithDelimiter overrides the default comma, e.g. '\t' for TSV.
func WithDelimiter(d rune) Option {
	return func(s *Sink) { s.delimiter = d }
}

// WithHeader toggles the leading row of trimmed column names, written by
// default.
func WithHeader(write bool) Option {
	return func(s *Sink) { s.writeHeader = write }
}

// WithS2Compression wraps the sink's output stream in S2 (Snappy-family)
// compression. This is a whole-stream wrapper, not a Parquet column codec:
// S2's framing isn't a registered Parquet compression id, so it only makes
// sense here, around the sink's own io.Writer.
func WithS2Compression() Option {
	return func(s *Sink) { s.s2 = s2.NewWriter(s.rawOut) }
}

// Sink is a sink.RowSink that emits CSV/TSV text to an io.Writer.
type Sink struct {
	lc          *sink.Lifecycle
	rawOut      io.Writer
	s2          *s2.Writer
	w           *bufio.Writer
	delimiter   rune
	writeHeader bool
	columnCount int
}

var _ sink.RowSink = (*Sink)(nil)

// New creates a Sink writing to w, configured by opts.
func New(w io.Writer, opts ...Option) *Sink {
	s := &Sink{
		lc:          sink.NewLifecycle("csv"),
		rawOut:      w,
		delimiter:   ',',
		writeHeader: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.s2 != nil {
		s.w = bufio.NewWriter(s.s2)
	} else {
		s.w = bufio.NewWriter(w)
	}
	return s
}

func (s *Sink) Begin(ctx sink.Context) error {
	if err := s.lc.GuardBegin(); err != nil {
		return err
	}
	s.columnCount = len(ctx.Columns)
	if !s.writeHeader {
		return nil
	}
	for i, v := range ctx.Columns {
		if i > 0 {
			if err := s.w.WriteByte(byte(s.delimiter)); err != nil {
				return err
			}
		}
		if _, err := s.w.WriteString(strings.TrimRight(v.Name, " ")); err != nil {
			return err
		}
	}
	return s.w.WriteByte('\n')
}

func (s *Sink) WriteRow(row rows.Row) error {
	if err := s.lc.GuardWrite(); err != nil {
		return err
	}
	if len(row.Values) != s.columnCount {
		return errs.Sink("csv", "row has wrong column count", nil)
	}
	for i, v := range row.Values {
		if i > 0 {
			if err := s.w.WriteByte(byte(s.delimiter)); err != nil {
				return err
			}
		}
		field, err := encodeValue(v)
		if err != nil {
			return err
		}
		if _, err := s.w.WriteString(field); err != nil {
			return err
		}
	}
	return s.w.WriteByte('\n')
}

func (s *Sink) Finish() error {
	if err := s.lc.GuardFinish(); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.s2 != nil {
		return s.s2.Close()
	}
	return nil
}

// encodeValue renders one decoded cell as a CSV field, per §4.K of the
// value-encoding rules: missing is empty, numbers use their natural text
// form, temporal values are rounded half-up to milliseconds.
func encodeValue(v rows.Value) (string, error) {
	switch v.Kind {
	case rows.KindMissing:
		return "", nil
	case rows.KindFloat:
		return strconv.FormatFloat(v.Number, 'g', -1, 64), nil
	case rows.KindInt32, rows.KindInt64:
		return strconv.FormatInt(v.Int, 10), nil
	case rows.KindString:
		return v.Text, nil
	case rows.KindDate:
		return v.When.Format("2006-01-02"), nil
	case rows.KindDateTime:
		return formatDateTime(v.When), nil
	case rows.KindTime:
		return formatTimeOfDay(v.Duration), nil
	default:
		return "", errs.Sink("csv", "unrecognised value kind", nil)
	}
}

// formatDateTime rounds to the nearest millisecond (half-up), carrying
// into the whole-second component when rounding reaches exactly 1000ms,
// and only appends the fractional part when it is non-zero.
func formatDateTime(t time.Time) string {
	t, millis := roundToMillisecond(t)
	if millis == 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02 15:04:05") + "." + pad3(millis)
}

// formatTimeOfDay renders a SAS time-of-day duration as HH:MM:SS[.mmm],
// computing the clock fields by floor division of the elapsed seconds
// rather than formatting a calendar time.Time: a time-of-day duration can
// exceed 24 hours (a valid SAS value, e.g. "25:00:00"), and routing it
// through time.Time/time.Format would wrap it into the next day instead.
func formatTimeOfDay(d time.Duration) string {
	totalSeconds, millis := roundToMillisecondDuration(d)
	hours := totalSeconds / 3600
	rem := totalSeconds % 3600
	if rem < 0 {
		hours--
		rem += 3600
	}
	minutes := rem / 60
	seconds := rem % 60
	clock := fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	if millis == 0 {
		return clock
	}
	return clock + "." + pad3(millis)
}

// roundToMillisecond rounds t's sub-second component half-up to the
// nearest millisecond, carrying into the second (and beyond, via
// time.Time's own normalisation) when rounding reaches 1000ms.
func roundToMillisecond(t time.Time) (time.Time, int) {
	ns := t.Nanosecond()
	millis := (ns + 500_000) / 1_000_000
	t = t.Truncate(time.Second)
	if millis >= 1000 {
		return t.Add(time.Second), 0
	}
	return t, millis
}

// roundToMillisecondDuration mirrors roundToMillisecond for an elapsed
// duration: it rounds the sub-second component half-up to the nearest
// millisecond, carrying into the whole-seconds count, and returns the
// total whole seconds (unbounded, may exceed a day) plus the remaining
// 0-999 millisecond remainder.
func roundToMillisecondDuration(d time.Duration) (int64, int) {
	ns := d.Nanoseconds() + 500_000
	totalMillis := ns / 1_000_000
	if ns%1_000_000 < 0 {
		totalMillis--
	}
	seconds := totalMillis / 1000
	millis := int(totalMillis % 1000)
	if millis < 0 {
		seconds--
		millis += 1000
	}
	return seconds, millis
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
