package metadata

import (
	"testing"

	"github.com/sasreader/sas7bdat/format"
	"github.com/stretchr/testify/require"
)

func TestInferNumericKind(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name string
		want format.NumericKind
	}{
		{"DATETIME18.", format.NumericDateTime},
		{"datetime20.", format.NumericDateTime},
		{"E8601DT.", format.NumericDateTime},
		{"TIME8.", format.NumericTime},
		{"HHMM.", format.NumericTime},
		{"E8601TM.", format.NumericTime},
		{"DATE9.", format.NumericDate},
		{"YYMMDD10.", format.NumericDate},
		{"MONYY.", format.NumericDate},
		{"WEEKDATE.", format.NumericDate},
		{"YEAR4.", format.NumericDate},
		{"MINGUO.", format.NumericDate},
		{"BEST12.", format.NumericDouble},
		{"COMMA9.", format.NumericDouble},
		{"", format.NumericDouble},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(tc.want, InferNumericKind(tc.name))
		})
	}
}

func TestInferNumericKind_DatetimeBeatsTimeSuffix(t *testing.T) {
	require := require.New(t)

	// "DATETIME" contains "TIME" as a substring; the DateTime branch must
	// win since it is checked first.
	require.Equal(format.NumericDateTime, InferNumericKind("DATETIME20.3"))
}

func TestInferNumericKind_TrailingDotsStripped(t *testing.T) {
	require := require.New(t)

	require.Equal(format.NumericDate, InferNumericKind("DATE9..."))
}

func TestColumnKindFromTypeCode(t *testing.T) {
	require := require.New(t)

	k, ok := ColumnKindFromTypeCode(1)
	require.True(ok)
	require.Equal(format.ColumnNumeric, k)

	k, ok = ColumnKindFromTypeCode(2)
	require.True(ok)
	require.Equal(format.ColumnCharacter, k)

	_, ok = ColumnKindFromTypeCode(3)
	require.False(ok)
}
