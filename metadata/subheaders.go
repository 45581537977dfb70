package metadata

import (
	"strings"

	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/internal/textstore"
)

// ParseColumnText handles signature 0xFFFFFFFD: it pushes the remainder of
// the subheader after the signature onto the text store as one opaque
// blob.
func ParseColumnText(b *Builder, data []byte, sigSize int, eng endian.EndianEngine) error {
	if len(data) < sigSize {
		return errs.Corrupted(errs.SectionSubheader(0, uint32(format.SigColumnText)), "column-text subheader shorter than signature")
	}
	b.Store.PushBlob(append([]byte(nil), data[sigSize:]...))
	return nil
}

const columnNameEntryWidth = 8

// ParseColumnName handles signature 0xFFFFFFFF: a run of fixed-width
// entries, each a text reference {blob_index u16, offset u16, length u16},
// one per column in declaration order.
func ParseColumnName(b *Builder, data []byte, sigSize int, eng endian.EndianEngine, uses64 bool) error {
	cursor := sigSize
	// The body begins after the signature and an 8-byte reserved gap when
	// the file is 64-bit addressed (sigSize already accounts for 4 vs 8).
	if uses64 {
		cursor += 8
	} else {
		cursor += 4
	}
	for cursor+columnNameEntryWidth+4 <= len(data) {
		entry := data[cursor : cursor+columnNameEntryWidth]
		idx := b.NoteNameProcessed()
		ci := b.EnsureColumn(idx)
		ci.NameRef = textstore.Ref{
			BlobIndex: uint32(endian.ReadU16(eng, entry[0:2])),
			Offset:    uint32(endian.ReadU16(eng, entry[2:4])),
			Length:    uint32(endian.ReadU16(eng, entry[4:6])),
		}
		cursor += columnNameEntryWidth
	}
	return nil
}

// ParseColumnAttrs handles signature 0xFFFFFFFC: per-column {offset, width,
// type-code, measure/alignment byte} entries. Layout differs between 32-
// and 64-bit addressing.
func ParseColumnAttrs(b *Builder, data []byte, sigSize int, eng endian.EndianEngine, uses64 bool) error {
	cursor := sigSize
	entrySize := 12
	if uses64 {
		entrySize = 16
	}
	cursor += 4 // reserved gap preceding the entry run in both widths
	for cursor+entrySize <= len(data) {
		entry := data[cursor : cursor+entrySize]
		idx := b.NoteAttrsProcessed()
		ci := b.EnsureColumn(idx)

		var offset, width uint64
		var typeCode byte
		var measureByte byte
		if uses64 {
			offset = endian.ReadU64(eng, entry[0:8])
			width = uint64(endian.ReadU32(eng, entry[8:12]))
			typeCode = entry[14]
			measureByte = entry[13]
		} else {
			offset = uint64(endian.ReadU32(eng, entry[0:4]))
			width = uint64(endian.ReadU32(eng, entry[4:8]))
			typeCode = entry[10]
			measureByte = entry[9]
		}

		kind, ok := ColumnKindFromTypeCode(typeCode)
		if !ok {
			return errs.Corrupted(errs.SectionColumn(idx), "unrecognised column type code %d", typeCode)
		}
		ci.Offset = int(offset)
		ci.Width = int(width)
		ci.Kind = kind
		ci.Measure = format.Measure(measureByte & 0x0F)
		ci.Alignment = format.Alignment(measureByte >> 4)
		b.UpdateMaxWidth(ci.Width)

		cursor += entrySize
	}
	return nil
}

const columnListHeaderLen = 20

// ParseColumnList handles signature 0xFFFFFFFE: a reordering vector of
// signed 16-bit indices. Only the 32-bit subheader-signature layout is
// supported, matching every known SAS7BDAT producer; 64-bit files are
// skipped rather than misparsed.
func ParseColumnList(b *Builder, data []byte, sigSize int, eng endian.EndianEngine, uses64 bool) error {
	if sigSize != 4 {
		return nil
	}
	if len(data) < columnListHeaderLen {
		return nil
	}
	listLen := int(endian.ReadU16(eng, data[18:20]))
	start := columnListHeaderLen
	end := start + listLen*2
	if end > len(data) {
		end = len(data) - (len(data)-start)%2
	}
	values := make([]int16, 0, (end-start)/2)
	for cursor := start; cursor+2 <= end; cursor += 2 {
		values = append(values, int16(endian.ReadU16(eng, data[cursor:cursor+2])))
	}
	b.AppendColumnList(values)
	return nil
}

// ParseColumnFormat handles signature 0xFFFFFBFE: per-column
// {format-width, format-decimals, format text ref, label text ref}.
func ParseColumnFormat(b *Builder, data []byte, eng endian.EndianEngine, uses64 bool) error {
	minLen := 46
	if uses64 {
		minLen = 58
	}
	if len(data) < minLen {
		return errs.Corrupted(errs.SectionSubheader(0, uint32(format.SigColumnFormat)), "column-format subheader shorter than %d bytes", minLen)
	}

	idx := b.NoteFormatProcessed()
	ci := b.EnsureColumn(idx)

	ci.FormatWidth = int(endian.ReadU16(eng, data[24:26]))
	ci.FormatDecimals = int(endian.ReadU16(eng, data[26:28]))

	var formatRefStart, labelRefStart int
	if uses64 {
		formatRefStart = 46
		labelRefStart = 52
	} else {
		formatRefStart = 34
		labelRefStart = 40
	}
	ci.FormatRef = textstore.Ref{
		BlobIndex: uint32(endian.ReadU16(eng, data[formatRefStart:formatRefStart+2])),
		Offset:    uint32(endian.ReadU16(eng, data[formatRefStart+2:formatRefStart+4])),
		Length:    uint32(endian.ReadU16(eng, data[formatRefStart+4:formatRefStart+6])),
	}
	ci.LabelRef = textstore.Ref{
		BlobIndex: uint32(endian.ReadU16(eng, data[labelRefStart:labelRefStart+2])),
		Offset:    uint32(endian.ReadU16(eng, data[labelRefStart+2:labelRefStart+4])),
		Length:    uint32(endian.ReadU16(eng, data[labelRefStart+4:labelRefStart+6])),
	}
	return nil
}

// ParseColumnSize handles signature 0xF6F6F6F6: the total column count.
func ParseColumnSize(data []byte, eng endian.EndianEngine, uses64 bool) (uint32, error) {
	minLen := 8
	if uses64 {
		minLen = 16
	}
	if len(data) < minLen {
		return 0, errs.Corrupted(errs.SectionSubheader(0, uint32(format.SigColumnSize)), "column-size subheader shorter than %d bytes", minLen)
	}
	if uses64 {
		return uint32(endian.ReadU64(eng, data[8:16])), nil
	}
	return endian.ReadU32(eng, data[4:8]), nil
}

// ParseRowSize handles signature 0xF7F7F7F7: row length, total rows,
// rows-per-page, and text references for the compression hint and file
// label that live at fixed negative offsets from the subheader's end.
func ParseRowSize(b *Builder, data []byte, sigSize int, eng endian.EndianEngine, uses64 bool) (RowInfo, error) {
	minLen := 190
	if uses64 {
		minLen = 250
	}
	if len(data) < minLen {
		return RowInfo{}, errs.Corrupted(errs.SectionSubheader(0, uint32(format.SigRowSize)), "row-size subheader shorter than %d bytes", minLen)
	}

	var rowLength, totalRows uint64
	var rowsPerPage uint64
	if uses64 {
		rowLength = endian.ReadU64(eng, data[40:48])
		totalRows = endian.ReadU64(eng, data[48:56])
		rowsPerPage = endian.ReadU64(eng, data[120:128])
	} else {
		rowLength = uint64(endian.ReadU32(eng, data[20:24]))
		totalRows = uint64(endian.ReadU32(eng, data[24:28]))
		rowsPerPage = uint64(endian.ReadU32(eng, data[60:64]))
	}

	fileLabelRefStart := len(data) - 130
	compressionRefStart := len(data) - 118
	fileLabelRef := textstore.Ref{
		BlobIndex: uint32(endian.ReadU16(eng, data[fileLabelRefStart:fileLabelRefStart+2])),
		Offset:    uint32(endian.ReadU16(eng, data[fileLabelRefStart+2:fileLabelRefStart+4])),
		Length:    uint32(endian.ReadU16(eng, data[fileLabelRefStart+4:fileLabelRefStart+6])),
	}
	compressionRef := textstore.Ref{
		BlobIndex: uint32(endian.ReadU16(eng, data[compressionRefStart:compressionRefStart+2])),
		Offset:    uint32(endian.ReadU16(eng, data[compressionRefStart+2:compressionRefStart+4])),
		Length:    uint32(endian.ReadU16(eng, data[compressionRefStart+4:compressionRefStart+6])),
	}

	// fileLabel is a placeholder decoded as raw bytes; parseMetadata
	// re-resolves FileLabelRef with the dataset's charset decoder. A ref
	// into a column-text blob that has not been pushed yet resolves to
	// empty here; parseMetadata calls ParseRowSize again once every blob
	// is in the store.
	fileLabelRaw, _ := b.Store.ResolveRaw(fileLabelRef)
	compressionRaw, _ := b.Store.ResolveRaw(compressionRef)
	fileLabel := string(fileLabelRaw)
	compressionText := strings.TrimRight(string(compressionRaw), "\x00 ")

	compression := format.RowCompressionNone
	switch compressionText {
	case "SASYZCRL":
		compression = format.RowCompressionRLE
	case "SASYZCR2":
		compression = format.RowCompressionRDC
	case "":
		compression = format.RowCompressionNone
	default:
		compression = format.RowCompressionUnknown
	}

	return RowInfo{
		RowLength:    int(rowLength),
		TotalRows:    totalRows,
		RowsPerPage:  int(rowsPerPage),
		Compression:  compression,
		FileLabel:    fileLabel,
		FileLabelRef: fileLabelRef,
	}, nil
}
