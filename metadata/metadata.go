// Package metadata holds the resolved, self-describing schema of a
// SAS7BDAT dataset: the DatasetMetadata and Variable types callers see
// through the reader facade, plus the missing-value policy model that
// Reader.ScanMissingPolicies (see package sas7bdat) populates.
package metadata

import (
	"time"

	"github.com/sasreader/sas7bdat/format"
)

// SasVersion is the parsed {major, minor, revision} release triple, e.g.
// 9.0401M6 decodes to {9, 4, 6}.
type SasVersion struct {
	Major    int
	Minor    int
	Revision int
}

// Timestamps holds the file's creation/modification moments as recovered
// from the header's four doubles (time, diff per field). A nil pointer
// means the stored value was non-finite or otherwise unrepresentable.
type Timestamps struct {
	Created  *time.Time
	Modified *time.Time
}

// Format is a SAS display/informat descriptor: {name, width, decimals}.
// The name drives the NumericKind refinement in package metadata's column
// info (date/datetime/time pattern matching) and value-label lookup.
type Format struct {
	Name     string
	Width    int
	Decimals int
}

// ValueType distinguishes whether a missing-value literal or label key is
// numeric or string typed.
type ValueType uint8

const (
	ValueTypeNumeric ValueType = iota
	ValueTypeString
)

// MissingLiteral is either a numeric or string bound of a missing-value
// range.
type MissingLiteral struct {
	Type   ValueType
	Number float64
	Text   string
}

// TaggedMissing is one observed tagged-missing value: tag is '_' or 'A'-'Z'
// (per the NaN-payload rule in package rows), or zero if the tag could not
// be determined (system missing masquerading as tagged).
type TaggedMissing struct {
	Tag     rune
	Literal float64
}

// MissingRange is an explicit missing-value range, numeric or string typed.
type MissingRange struct {
	Lower MissingLiteral
	Upper MissingLiteral
}

// MissingValuePolicy accumulates the ways a column's missing values have
// been observed or declared. After ScanMissingPolicies runs, the two
// slices are deduplicated: TaggedMissing entries by (tag, literal bit
// pattern), MissingRange entries by their bounds.
type MissingValuePolicy struct {
	SystemMissing bool
	TaggedMissing []TaggedMissing
	Ranges        []MissingRange
}

// Clone returns a deep copy suitable for independent mutation during a scan.
func (p MissingValuePolicy) Clone() MissingValuePolicy {
	out := MissingValuePolicy{SystemMissing: p.SystemMissing}
	out.TaggedMissing = append(out.TaggedMissing, p.TaggedMissing...)
	out.Ranges = append(out.Ranges, p.Ranges...)
	return out
}

// ValueKey identifies one entry of a value-label set: a numeric key, an
// integer key, a tagged-missing key, or a string key.
type ValueKey struct {
	Type    ValueType
	Number  float64
	Integer int32
	IsInt   bool
	Tag     rune
	IsTag   bool
	Text    string
}

// ValueLabel is one (key -> label) mapping within a LabelSet.
type ValueLabel struct {
	Key   ValueKey
	Label string
}

// LabelSet is a named collection of value labels loaded from a companion
// .sas7bcat catalog via AttachCatalog.
type LabelSet struct {
	Name      string
	ValueType ValueType
	Labels    []ValueLabel
}

// Variable describes one column of the dataset as exposed to callers: its
// declared name/label/format, storage kind and width, and missing-value
// policy. Variable.Index always equals its position in
// DatasetMetadata.Variables.
type Variable struct {
	Index        int
	Name         string
	Label        string
	Format       *Format
	Kind         format.ColumnKind
	NumericKind  format.NumericKind
	StorageWidth int
	Missing      MissingValuePolicy
	Measure      format.Measure
	Alignment    format.Alignment
	DisplayWidth int
	Decimals     int
	ValueLabels  string // name of the LabelSet in DatasetMetadata.LabelSets, if attached
}

// DatasetMetadata is the fully resolved schema of one SAS7BDAT dataset.
type DatasetMetadata struct {
	ColumnCount int
	RowCount    uint64
	Version     SasVersion
	Compression format.RowCompression
	Endianness  format.Endianness
	Timestamps  Timestamps
	TableName   string
	FileLabel   string
	CharsetCode byte
	Charset     string
	Vendor      format.Vendor
	Variables   []Variable
	LabelSets   map[string]LabelSet
	ColumnList  []int16
}
