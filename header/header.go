// Package header decodes the fixed-layout SAS7BDAT/SAS7BCAT file header:
// the magic sentinel, endianness, 32/64-bit addressing mode, page geometry,
// timestamps and release string that every subsequent page-scan depends on.
package header

import (
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
)

const (
	alignOffset1           = 32
	alignOffset2           = 35
	alignMarker4Byte       = 0x33
	endianOffset           = 37
	charsetOffset          = 70
	tableNameOffset        = 92
	tableNameSize          = 32

	headerStartSize = 164
	headerEndSize   = 120

	minSize = 1024
	maxSize = 1 << 24

	pageHeaderSize32 = 24
	pageHeaderSize64 = 40

	subheaderPointerSize32 = 12
	subheaderPointerSize64 = 24

	subheaderSignatureSize32 = 4
	subheaderSignatureSize64 = 8

	// sasEpochOffsetSeconds is 1960-01-01T00:00:00Z expressed as seconds
	// relative to the Unix epoch (1970-01-01): -3653 days.
	sasEpochOffsetSeconds = -3653 * 86400
)

var (
	sas7bdatMagic = [32]byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0xc2, 0xea, 0x81, 0x60,
		0xb3, 0x14, 0x11, 0xcf, 0xbd, 0x92, 0x08, 0x00,
		0x09, 0xc7, 0x31, 0x8c, 0x18, 0x1f, 0x10, 0x11,
	}
	sas7bcatMagic = [32]byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0xc2, 0xea, 0x81, 0x63,
		0xb3, 0x14, 0x11, 0xcf, 0xbd, 0x92, 0x08, 0x00,
		0x09, 0xc7, 0x31, 0x8c, 0x18, 0x1f, 0x10, 0x11,
	}
)

var releasePattern = regexp.MustCompile(`^([1-9V])\.(\d{4})([MJ])(\d)$`)

// Header is the decoded SAS7BDAT (or SAS7BCAT) file header plus the layout
// constants every downstream page-scan uses.
type Header struct {
	Metadata metadata.DatasetMetadata

	Endianness  format.Endianness
	Uses64Bit   bool
	HasPad4     bool
	HeaderSize  uint32
	PageSize    uint32
	PageCount   uint64
	DataOffset  uint64

	PageHeaderSize        int
	SubheaderPointerSize  int
	SubheaderSignatureSize int

	IsCatalog bool
}

func engine(e format.Endianness) endian.EndianEngine {
	return endian.ForLittle(e == format.EndianLittle)
}

// Engine returns the byte-order engine matching the header's declared
// endianness.
func (h *Header) Engine() endian.EndianEngine { return engine(h.Endianness) }

// Parse decodes a SAS7BDAT or SAS7BCAT header from the start of r. r must be
// positioned at offset 0; Parse seeks within the header region as needed to
// reach the release-string trailer, whose offset depends on the declared
// header size.
func Parse(r io.ReadSeeker) (*Header, error) {
	// Read enough to cover the worst case (64-bit, 4-byte pad) fixed-offset
	// prefix in one shot; everything up to and including the page-count
	// field lives well within the first 256 bytes.
	buf := make([]byte, 256)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	buf = buf[:n]
	if len(buf) < 96 {
		return nil, errs.Corrupted(errs.SectionHeader(), "file too small to contain a SAS header")
	}

	magic := [32]byte{}
	copy(magic[:], buf[:32])
	isCatalog := false
	switch magic {
	case sas7bdatMagic:
		isCatalog = false
	case sas7bcatMagic:
		isCatalog = true
	default:
		return nil, errs.Corrupted(errs.SectionHeader(), "magic sentinel does not match SAS7BDAT or SAS7BCAT")
	}

	uses64 := buf[alignOffset1] == alignMarker4Byte
	hasPad4 := buf[alignOffset2] == alignMarker4Byte

	endianByte := buf[endianOffset]
	var end format.Endianness
	switch endianByte {
	case 0x00:
		end = format.EndianBig
	case 0x01:
		end = format.EndianLittle
	default:
		return nil, errs.Corrupted(errs.SectionHeader(), "endian flag byte is %d, want 0 or 1", endianByte)
	}
	eng := engine(end)

	charsetCode := buf[charsetOffset]

	tableName := strings.TrimRight(string(buf[tableNameOffset:tableNameOffset+tableNameSize]), "\x00 ")

	cursor := headerStartSize
	if hasPad4 {
		cursor += 4
	}
	if cursor+32 > len(buf) {
		return nil, errs.Corrupted(errs.SectionHeader(), "header too short for timestamp block")
	}

	creationTime := endian.ReadF64(eng, buf[cursor:])
	modTime := endian.ReadF64(eng, buf[cursor+8:])
	creationDiff := endian.ReadF64(eng, buf[cursor+16:])
	modDiff := endian.ReadF64(eng, buf[cursor+24:])
	cursor += 32

	created := convertSasTime(creationTime, creationDiff)
	modified := convertSasTime(modTime, modDiff)

	if cursor+4 > len(buf) {
		return nil, errs.Corrupted(errs.SectionHeader(), "header too short for header-size field")
	}
	headerSize := endian.ReadU32(eng, buf[cursor:])
	cursor += 4
	if headerSize < minSize || uint64(headerSize) > maxSize {
		return nil, errs.Corrupted(errs.SectionHeader(), "header size %d out of range [%d, %d]", headerSize, minSize, maxSize)
	}

	if cursor+4 > len(buf) {
		return nil, errs.Corrupted(errs.SectionHeader(), "header too short for page-size field")
	}
	pageSize := endian.ReadU32(eng, buf[cursor:])
	cursor += 4
	if pageSize < minSize || uint64(pageSize) > maxSize {
		return nil, errs.Corrupted(errs.SectionHeader(), "page size %d out of range [%d, %d]", pageSize, minSize, maxSize)
	}

	var pageCount uint64
	if uses64 {
		if cursor+8 > len(buf) {
			return nil, errs.Corrupted(errs.SectionHeader(), "header too short for 64-bit page-count field")
		}
		pageCount = endian.ReadU64(eng, buf[cursor:])
	} else {
		if cursor+4 > len(buf) {
			return nil, errs.Corrupted(errs.SectionHeader(), "header too short for 32-bit page-count field")
		}
		pageCount = uint64(endian.ReadU32(eng, buf[cursor:]))
	}
	if pageCount > maxSize {
		return nil, errs.Corrupted(errs.SectionHeader(), "page count %d exceeds maximum %d", pageCount, maxSize)
	}

	trailerStart := int64(headerSize) - headerEndSize
	release := ""
	if trailerStart >= 0 {
		trailerBuf := make([]byte, 8)
		if _, err := r.Seek(trailerStart, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, trailerBuf); err != nil {
			return nil, errs.Corrupted(errs.SectionHeader(), "header too short for release-string trailer")
		}
		release = strings.TrimRight(string(trailerBuf), "\x00 ")
	}
	version, vendor, err := parseRelease(release)
	if err != nil {
		return nil, err
	}

	pageHeaderSize := pageHeaderSize32
	pointerSize := subheaderPointerSize32
	sigSize := subheaderSignatureSize32
	if uses64 {
		pageHeaderSize = pageHeaderSize64
		pointerSize = subheaderPointerSize64
		sigSize = subheaderSignatureSize64
	}

	h := &Header{
		Endianness:             end,
		Uses64Bit:              uses64,
		HasPad4:                hasPad4,
		HeaderSize:             headerSize,
		PageSize:               pageSize,
		PageCount:              pageCount,
		DataOffset:             uint64(headerSize),
		PageHeaderSize:         pageHeaderSize,
		SubheaderPointerSize:   pointerSize,
		SubheaderSignatureSize: sigSize,
		IsCatalog:              isCatalog,
	}
	h.Metadata = metadata.DatasetMetadata{
		Version:     version,
		Endianness:  end,
		Vendor:      vendor,
		TableName:   tableName,
		CharsetCode: charsetCode,
		Timestamps:  metadata.Timestamps{Created: created, Modified: modified},
		LabelSets:   map[string]metadata.LabelSet{},
	}

	return h, nil
}

// convertSasTime turns a (time, diff) pair of SAS seconds-since-epoch
// doubles into an absolute UTC time, or nil if the value is non-finite.
func convertSasTime(value, diff float64) *time.Time {
	real := value - diff
	if math.IsNaN(real) || math.IsInf(real, 0) {
		return nil
	}
	seconds := int64(real) + sasEpochOffsetSeconds
	nanos := int64(math.Round((real - math.Trunc(real)) * 1e9))
	t := time.Unix(seconds, nanos).UTC()
	return &t
}

// parseRelease decodes the 8-byte release string, e.g. "9.0401M6" or a
// StatTransfer-forged "9.0000M0", into a SasVersion and vendor guess.
func parseRelease(release string) (metadata.SasVersion, format.Vendor, error) {
	if release == "" {
		return metadata.SasVersion{}, format.VendorOther, nil
	}
	m := releasePattern.FindStringSubmatch(release)
	if m == nil {
		return metadata.SasVersion{}, format.VendorOther, errs.Corrupted(errs.SectionHeader(), "malformed release string %q", release)
	}
	major := 9
	if m[1] != "V" {
		major, _ = strconv.Atoi(m[1])
	}
	minor, _ := strconv.Atoi(m[2])
	revision, _ := strconv.Atoi(m[4])

	vendor := format.VendorSAS
	if (major == 8 || major == 9) && minor == 0 && revision == 0 {
		vendor = format.VendorStatTransfer
	}

	return metadata.SasVersion{Major: major, Minor: minor, Revision: revision}, vendor, nil
}
