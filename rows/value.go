// Package rows decompresses page bodies and decodes individual rows into
// typed values: the row-level RLE and binary (RDC) schemes SAS uses to
// compress data pages, and the numeric/character/date value model each
// column's bytes are interpreted through.
package rows

import (
	"math"
	"time"

	"github.com/sasreader/sas7bdat/format"
)

// ValueKind tags which field of Value is populated.
type ValueKind uint8

const (
	KindMissing ValueKind = iota
	KindFloat
	KindInt32
	KindInt64
	KindString
	KindDate
	KindDateTime
	KindTime
)

// Value is one decoded cell. Exactly one of Number/Int/Text/When/Duration
// is meaningful, selected by Kind; a Kind of KindMissing means the cell
// carries a missing value and Tag (if non-zero) names which of the 28
// missing values it is.
//
// KindTime is deliberately not represented as a When (calendar time.Time):
// a SAS time-of-day value is an elapsed duration since midnight that can
// legitimately exceed 24 hours (e.g. a shift-length or overtime duration
// stored as "25:00:00"), and wrapping it through a calendar date would lose
// that and silently roll it into the next day. Duration carries it instead.
type Value struct {
	Kind     ValueKind
	Number   float64
	Int      int64
	Text     string
	When     time.Time
	Duration time.Duration
	Tag      rune
}

// sasMissingTagShift isolates the mantissa byte SAS overloads to store a
// tagged-missing marker inside an IEEE-754 NaN payload: the byte at bits
// 40-47 of the raw 64-bit pattern, complemented. 0 decodes to '_'
// (system-missing-as-tag), 2..=27 decode to 'A'..'Z'; any other pattern is
// plain system-missing (reported as a zero rune).
const sasMissingTagShift = 40

func tagFromBits(bits uint64) (rune, bool) {
	if bits&0x7FF0000000000000 != 0x7FF0000000000000 {
		return 0, false // not a NaN pattern at all
	}
	upper := byte(bits >> sasMissingTagShift)
	tagByte := ^upper
	switch {
	case tagByte == 0:
		return '_', true
	case tagByte >= 2 && tagByte <= 27:
		return rune('A' + (tagByte - 2)), true
	default:
		return 0, true
	}
}

// DecodeNumeric interprets an 8-byte little/big-endian-already-normalized
// IEEE-754 double (raw is exactly 8 bytes, already byte-order-corrected by
// the caller) as a Value, applying the column's NumericKind to refine
// ordinary doubles into dates, datetimes or times. width is the column's
// declared storage width in bytes (before zero-extension to a full double)
// and governs the Double case's further promotion to Int32/Int64.
func DecodeNumeric(raw float64, kind format.NumericKind, width int) Value {
	bits := math.Float64bits(raw)
	if math.IsNaN(raw) {
		tag, ok := tagFromBits(bits)
		if !ok {
			tag = '_'
		}
		return Value{Kind: KindMissing, Tag: tag}
	}

	switch kind {
	case format.NumericDate:
		return Value{Kind: KindDate, When: sasDateToTime(raw), Number: raw}
	case format.NumericDateTime:
		return Value{Kind: KindDateTime, When: sasDateTimeToTime(raw), Number: raw}
	case format.NumericTime:
		return Value{Kind: KindTime, Duration: sasTimeOfDayToDuration(raw), Number: raw}
	default:
		return decodeDouble(raw, width)
	}
}

// decodeDouble applies the Double promotion rule: a value that round-trips
// losslessly through int64 is stored as Int32 (when its storage width could
// not possibly hold more than 32 bits of precision) or Int64, otherwise as
// Float.
func decodeDouble(raw float64, width int) Value {
	asInt := int64(raw)
	if float64(asInt) != raw {
		return Value{Kind: KindFloat, Number: raw}
	}
	if width <= 4 && asInt >= math.MinInt32 && asInt <= math.MaxInt32 {
		return Value{Kind: KindInt32, Int: asInt, Number: raw}
	}
	if width <= 8 {
		return Value{Kind: KindInt64, Int: asInt, Number: raw}
	}
	return Value{Kind: KindFloat, Number: raw}
}

// sasEpoch is 1960-01-01, the day and moment every SAS date and datetime
// value counts from; time-of-day values count from midnight instead.
var sasEpoch = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)

func sasDateToTime(days float64) time.Time {
	return sasEpoch.AddDate(0, 0, int(days))
}

func sasDateTimeToTime(seconds float64) time.Time {
	whole := math.Trunc(seconds)
	frac := seconds - whole
	return sasEpoch.Add(time.Duration(whole)*time.Second + time.Duration(math.Round(frac*1e9))*time.Nanosecond)
}

// sasTimeOfDayToDuration converts SAS seconds-since-midnight into an
// elapsed time.Duration with no calendar anchor: the value can exceed 24
// hours (a valid SAS time-of-day duration), which a calendar time.Time
// would silently wrap into the next day.
func sasTimeOfDayToDuration(seconds float64) time.Duration {
	whole := math.Trunc(seconds)
	frac := seconds - whole
	return time.Duration(whole)*time.Second + time.Duration(math.Round(frac*1e9))*time.Nanosecond
}

// DecodeString builds a KindString Value from already-decoded, already
// trimmed text. An empty string is a valid character value (SAS's
// character-missing convention is the empty string itself, not a distinct
// missing sentinel), so it is returned as KindString, not KindMissing.
func DecodeString(text string) Value {
	return Value{Kind: KindString, Text: text}
}

// IsCharacterMissing reports whether a character Value is SAS's
// empty-string missing convention. A blank character cell has Kind
// KindString, not KindMissing, so comparing Kind to KindMissing does not
// detect it.
func (v Value) IsCharacterMissing() bool {
	return v.Kind == KindString && v.Text == ""
}
