package rows

import (
	"math"
	"testing"
	"time"

	"github.com/sasreader/sas7bdat/format"
	"github.com/stretchr/testify/require"
)

// sasTaggedMissingBits builds the raw NaN bit pattern a SAS numeric column
// uses to encode a tagged-missing value: the byte at bits 40-47 holds the
// complement of (tag offset from 'A', shifted by 2), or the complement of 0
// for the plain '_' tag.
func sasTaggedMissingBits(tag rune) uint64 {
	const expAllOnes = 0x7FF0000000000000
	const fractionSeed = 1 // keep the NaN payload non-zero

	var tagByte byte
	switch tag {
	case '_':
		tagByte = 0
	default:
		tagByte = byte(tag-'A') + 2
	}
	upper := ^tagByte
	return expAllOnes | fractionSeed | uint64(upper)<<40
}

func TestDecodeNumeric_TaggedMissing(t *testing.T) {
	require := require.New(t)

	cases := []rune{'_', 'A', 'B', 'Z'}
	for _, tag := range cases {
		raw := math.Float64frombits(sasTaggedMissingBits(tag))
		v := DecodeNumeric(raw, format.NumericDouble, 8)
		require.Equal(KindMissing, v.Kind)
		require.Equal(tag, v.Tag)
	}
}

func TestDecodeNumeric_SystemMissingFallback(t *testing.T) {
	require := require.New(t)

	// Tag byte 30 (after complement) falls outside 0 and 2..27: system missing.
	const expAllOnes = 0x7FF0000000000000
	bits := expAllOnes | 1 | uint64(^byte(30))<<40
	v := DecodeNumeric(math.Float64frombits(bits), format.NumericDouble, 8)
	require.Equal(KindMissing, v.Kind)
	require.Equal(rune(0), v.Tag)
}

func TestDecodeNumeric_DateTimePromotion(t *testing.T) {
	require := require.New(t)

	// S3: format "DATETIME18." refines a Double column to DateTime; SAS
	// seconds 1_893_456_000.0 decodes to 2020-01-01T00:00:00Z.
	v := DecodeNumeric(1_893_456_000.0, format.NumericDateTime, 8)
	require.Equal(KindDateTime, v.Kind)
	require.True(v.When.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDecodeNumeric_DatePromotion(t *testing.T) {
	require := require.New(t)

	// Day 0 is the SAS epoch itself.
	v := DecodeNumeric(0, format.NumericDate, 8)
	require.Equal(KindDate, v.Kind)
	require.True(v.When.Equal(time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDecodeNumeric_TimePromotion(t *testing.T) {
	require := require.New(t)

	// 90000 seconds is 25:00:00, past the 24h mark; a time-of-day value
	// is an elapsed Duration, never a calendar time.Time, so it cannot
	// wrap back into [0,24).
	v := DecodeNumeric(90000, format.NumericTime, 8)
	require.Equal(KindTime, v.Kind)
	require.Equal(25*time.Hour, v.Duration)
	require.True(v.When.IsZero())
}

func TestDecodeNumeric_DoublePromotesToInt32(t *testing.T) {
	require := require.New(t)

	v := DecodeNumeric(1.0, format.NumericDouble, 4)
	require.Equal(KindInt32, v.Kind)
	require.Equal(int64(1), v.Int)
}

func TestDecodeNumeric_DoubleStaysFloatWhenFractional(t *testing.T) {
	require := require.New(t)

	v := DecodeNumeric(2.5, format.NumericDouble, 8)
	require.Equal(KindFloat, v.Kind)
	require.InDelta(2.5, v.Number, 1e-9)
}

func TestDecodeString_EmptyIsNotMissing(t *testing.T) {
	require := require.New(t)

	v := DecodeString("")
	require.Equal(KindString, v.Kind)
	require.True(v.IsCharacterMissing())
}
