// Package errs defines the error taxonomy used across the reader: a small
// set of structured error types that callers can match with errors.As,
// wrapping the underlying cause with errors.Unwrap support throughout.
package errs

import "fmt"

// Section names the part of the file a Corrupted error was raised against.
type Section struct {
	Name      string // "header", "page", "subheader", "row", "column", "decompression", "encoding"
	PageIndex int64
	RowIndex  int64
	ColIndex  int
	Signature uint32
	hasPage   bool
	hasRow    bool
	hasCol    bool
	hasSig    bool
}

func SectionHeader() Section { return Section{Name: "header"} }
func SectionEncoding() Section { return Section{Name: "encoding"} }

func SectionPage(index int64) Section {
	return Section{Name: "page", PageIndex: index, hasPage: true}
}

func SectionSubheader(pageIndex int64, signature uint32) Section {
	return Section{Name: "subheader", PageIndex: pageIndex, hasPage: true, Signature: signature, hasSig: true}
}

func SectionRow(index int64) Section {
	return Section{Name: "row", RowIndex: index, hasRow: true}
}

func SectionColumn(index int) Section {
	return Section{Name: "column", ColIndex: index, hasCol: true}
}

func SectionDecompression(pageIndex int64) Section {
	return Section{Name: "decompression", PageIndex: pageIndex, hasPage: true}
}

func (s Section) String() string {
	switch {
	case s.hasSig:
		return fmt.Sprintf("%s (page %d, signature 0x%08X)", s.Name, s.PageIndex, s.Signature)
	case s.hasPage:
		return fmt.Sprintf("%s (page %d)", s.Name, s.PageIndex)
	case s.hasRow:
		return fmt.Sprintf("%s (row %d)", s.Name, s.RowIndex)
	case s.hasCol:
		return fmt.Sprintf("%s (column %d)", s.Name, s.ColIndex)
	default:
		return s.Name
	}
}

// CorruptedError reports that a byte sequence did not match the expected
// format at a specific, named section of the file.
type CorruptedError struct {
	Section Section
	Details string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted SAS file while processing %s: %s", e.Section, e.Details)
}

func Corrupted(section Section, format string, args ...any) error {
	return &CorruptedError{Section: section, Details: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports a feature the reader declares it cannot handle.
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported SAS feature: %s", e.Feature)
}

func Unsupported(format string, args ...any) error {
	return &UnsupportedError{Feature: fmt.Sprintf(format, args...)}
}

// InvalidMetadataError reports a metadata self-consistency failure.
type InvalidMetadataError struct {
	Details string
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("invalid SAS metadata: %s", e.Details)
}

func InvalidMetadata(format string, args ...any) error {
	return &InvalidMetadataError{Details: fmt.Sprintf(format, args...)}
}

// EncodingError reports a failure to resolve or apply a character-set
// decoding.
type EncodingError struct {
	Encoding string
	Details  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error (%s): %s", e.Encoding, e.Details)
}

func Encoding(encoding, format string, args ...any) error {
	return &EncodingError{Encoding: encoding, Details: fmt.Sprintf(format, args...)}
}

// SinkError wraps a failure reported by a downstream sink (Parquet, CSV, or
// a caller-supplied implementation).
type SinkError struct {
	Sink    string
	Details string
	Cause   error
}

func (e *SinkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s sink error: %s: %v", e.Sink, e.Details, e.Cause)
	}
	return fmt.Sprintf("%s sink error: %s", e.Sink, e.Details)
}

func (e *SinkError) Unwrap() error { return e.Cause }

func Sink(sink, details string, cause error) error {
	return &SinkError{Sink: sink, Details: details, Cause: cause}
}

// AllocationError reports a failure to grow an internal buffer.
type AllocationError struct {
	Details string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: %s", e.Details)
}

func Allocation(format string, args ...any) error {
	return &AllocationError{Details: fmt.Sprintf(format, args...)}
}
