package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyPage(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name string
		raw  uint16
		want PageKind
	}{
		{"meta", 0x0000, PageMeta},
		{"data", 0x0100, PageData},
		{"mix", 0x0200, PageMix},
		{"amd", 0x0400, PageAmd},
		{"meta2", 0x4000, PageMeta2},
		{"comp", 0x9000, PageComp},
		{"compTable", 0x8000, PageCompTable},
		{"unknownNonZero", 0x0300, PageUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(tc.want, ClassifyPage(tc.raw))
		})
	}
}

func TestClassifyPage_CompCheckedBeforeMaskedType(t *testing.T) {
	require := require.New(t)

	// 0x9000's low byte also falls in PageTypeMask's pageKindMeta range
	// (masked value 0x0000); the full-value Comp check must win.
	require.Equal(PageComp, ClassifyPage(0x9000))
}

func TestPageKind_IsMetaPage(t *testing.T) {
	require := require.New(t)

	require.True(PageMeta.IsMetaPage())
	require.True(PageMix.IsMetaPage())
	require.True(PageAmd.IsMetaPage())
	require.True(PageMeta2.IsMetaPage())
	require.False(PageData.IsMetaPage())
	require.False(PageComp.IsMetaPage())
}

func TestSubheaderSignature_Recognized(t *testing.T) {
	require := require.New(t)

	require.True(SigRowSize.Recognized())
	require.True(SigColumnList.Recognized())
	require.False(SubheaderSignature(0x12345678).Recognized())
}
