package metadata

import (
	"strings"

	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/internal/textstore"
)

// ColumnInfo is the runtime layout of one column as assembled by the
// metadata builder: its byte offset and width within a row, its refined
// kind, and the text-store references that resolve to its name/label/format
// once every column-text blob has been observed.
type ColumnInfo struct {
	Index        int
	Offset       int
	Width        int
	Kind         format.ColumnKind
	NumericKind  format.NumericKind
	FormatWidth  int
	FormatDecimals int
	NameRef      textstore.Ref
	LabelRef     textstore.Ref
	FormatRef    textstore.Ref
	Measure      format.Measure
	Alignment    format.Alignment
}

// ColumnKindFromTypeCode maps the raw column-attributes type byte to a
// ColumnKind, or reports false for anything other than 0x01/0x02.
func ColumnKindFromTypeCode(code byte) (format.ColumnKind, bool) {
	switch format.ColumnTypeCode(code) {
	case format.ColumnTypeNumeric:
		return format.ColumnNumeric, true
	case format.ColumnTypeCharacter:
		return format.ColumnCharacter, true
	default:
		return 0, false
	}
}

// InferNumericKind applies the date/datetime/time format-name pattern rules
// to refine a Numeric column's kind. formatName is upper-cased and has its
// trailing dots stripped before matching, mirroring SAS's own convention of
// writing format names with a trailing '.'.
func InferNumericKind(formatName string) format.NumericKind {
	name := strings.ToUpper(strings.TrimRight(formatName, "."))
	switch {
	case strings.Contains(name, "DATETIME"),
		strings.HasSuffix(name, "DT"),
		strings.HasPrefix(name, "E8601DT"),
		strings.HasPrefix(name, "B8601DT"):
		return format.NumericDateTime
	case strings.Contains(name, "TIME"),
		strings.HasSuffix(name, "TM"),
		strings.HasPrefix(name, "E8601TM"),
		strings.HasPrefix(name, "HHMM"):
		return format.NumericTime
	case strings.Contains(name, "DATE"),
		strings.Contains(name, "YY"),
		strings.Contains(name, "MON"),
		strings.Contains(name, "WEEK"),
		strings.Contains(name, "YEAR"),
		strings.Contains(name, "MINGUO"),
		strings.HasSuffix(name, "DA"),
		strings.HasPrefix(name, "E8601DA"),
		strings.HasPrefix(name, "B8601DA"):
		return format.NumericDate
	default:
		return format.NumericDouble
	}
}

// ApplyToVariable resolves ci's text references against store and populates
// v with the variable's public-facing fields. It is called once per column
// during metadata finalisation, by which point every column-text blob has
// been observed.
func (ci *ColumnInfo) ApplyToVariable(store *textstore.Store, dec *charset.Decoder, v *Variable) error {
	v.Kind = ci.Kind
	v.NumericKind = ci.NumericKind
	v.StorageWidth = ci.Width
	v.Measure = ci.Measure
	v.Alignment = ci.Alignment
	v.Decimals = ci.FormatDecimals
	v.DisplayWidth = ci.FormatWidth

	name, ok := store.Resolve(ci.NameRef, dec)
	if !ok {
		return errs.InvalidMetadata("column %d: name reference out of bounds", ci.Index)
	}
	v.Name = strings.TrimRight(name, " ")

	label, ok := store.Resolve(ci.LabelRef, dec)
	if !ok {
		return errs.InvalidMetadata("column %d: label reference out of bounds", ci.Index)
	}
	v.Label = label

	formatName, ok := store.Resolve(ci.FormatRef, dec)
	if !ok {
		return errs.InvalidMetadata("column %d: format reference out of bounds", ci.Index)
	}
	if formatName != "" {
		v.Format = &Format{Name: formatName, Width: ci.FormatWidth, Decimals: ci.FormatDecimals}
	}

	if v.Kind == format.ColumnNumeric && v.Format != nil {
		v.NumericKind = InferNumericKind(v.Format.Name)
		ci.NumericKind = v.NumericKind
	}

	return nil
}
