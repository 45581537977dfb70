package catalog

import (
	"io"
	"math"
	"strings"

	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/endian"
	"github.com/sasreader/sas7bdat/header"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
)

// chainHeaderSize is the fixed {next_page, next_pos, segment_len} prefix of
// every block segment.
const chainHeaderSize = 12

// readChainedBlock follows a block's next_page/next_pos/segment_len chain
// to completion, concatenating every segment's payload into one buffer.
// Pass one computes the chain's total length; pass two re-walks it and
// copies the actual bytes, avoiding unbounded growth from a malformed loop.
func readChainedBlock(r io.ReadSeeker, h *header.Header, start blockPointer) ([]byte, error) {
	eng := h.Engine()

	total := 0
	cursor := start
	visited := map[uint64]bool{}
	for {
		key := uint64(cursor.page)<<32 | uint64(cursor.pos)
		if visited[key] {
			break // chain loop; stop rather than spin forever
		}
		visited[key] = true

		page, err := readPage(r, h, int64(cursor.page))
		if err != nil {
			return nil, err
		}
		if int(cursor.pos)+chainHeaderSize > len(page) {
			return nil, errs.Corrupted(errs.SectionPage(int64(cursor.page)), "catalog block chain header out of bounds")
		}
		segHeader := page[cursor.pos : int(cursor.pos)+chainHeaderSize]
		nextPage := endian.ReadU32(eng, segHeader[0:4])
		nextPos := endian.ReadU32(eng, segHeader[4:8])
		segLen := int(endian.ReadU32(eng, segHeader[8:12]))
		total += segLen

		if nextPage == 0 && nextPos == 0 {
			break
		}
		cursor = blockPointer{page: nextPage, pos: nextPos}
	}

	out := make([]byte, 0, total)
	cursor = start
	visited = map[uint64]bool{}
	for {
		key := uint64(cursor.page)<<32 | uint64(cursor.pos)
		if visited[key] {
			break
		}
		visited[key] = true

		page, err := readPage(r, h, int64(cursor.page))
		if err != nil {
			return nil, err
		}
		segHeader := page[cursor.pos : int(cursor.pos)+chainHeaderSize]
		nextPage := endian.ReadU32(eng, segHeader[0:4])
		nextPos := endian.ReadU32(eng, segHeader[4:8])
		segLen := int(endian.ReadU32(eng, segHeader[8:12]))

		payloadStart := int(cursor.pos) + chainHeaderSize
		payloadEnd := payloadStart + segLen
		if payloadEnd > len(page) {
			payloadEnd = len(page)
		}
		if payloadStart < payloadEnd {
			out = append(out, page[payloadStart:payloadEnd]...)
		}

		if nextPage == 0 && nextPos == 0 {
			break
		}
		cursor = blockPointer{page: nextPage, pos: nextPos}
	}

	return out, nil
}

// basePayloadOffset is where a label block's value-count/name fields begin,
// after the block's own small header.
const basePayloadOffset = 106

// parseBlock decodes one assembled label-block byte stream into a named
// LabelSet, or (false) if the block declares zero used label entries (a
// placeholder block SAS sometimes leaves behind).
func parseBlock(data []byte, eng endian.EndianEngine, dec *charset.Decoder) (metadata.LabelSet, bool, error) {
	if len(data) < basePayloadOffset+20 {
		return metadata.LabelSet{}, false, nil
	}

	flags := data[8]
	isString := flags&0x01 != 0
	hasLongName := flags&0x20 != 0 || flags&0x80 != 0

	labelCountUsed := int(endian.ReadU16(eng, data[basePayloadOffset+2:basePayloadOffset+4]))
	if labelCountUsed == 0 {
		return metadata.LabelSet{}, false, nil
	}

	nameStart := basePayloadOffset + 10
	nameLen := 8
	if hasLongName {
		nameLen = 32
	}
	if nameStart+nameLen > len(data) {
		return metadata.LabelSet{}, false, nil
	}
	name := strings.TrimRight(dec.DecodeString(data[nameStart:nameStart+nameLen]), " ")

	valueType := metadata.ValueTypeNumeric
	if isString {
		valueType = metadata.ValueTypeString
	}

	labels, err := parseValueLabels(data[nameStart+nameLen:], labelCountUsed, eng, valueType, dec)
	if err != nil {
		return metadata.LabelSet{}, false, err
	}

	return metadata.LabelSet{Name: name, ValueType: valueType, Labels: labels}, true, nil
}

// valueEntrySize is the width of one value-key entry in the value-labels
// section: a 2-byte label-position index followed by a 30-byte key payload
// (numeric key bytes or a trailing string key, depending on the set's type).
const valueEntrySize = 32

// parseValueLabels performs the two-pass value/label decode: the first
// pass walks fixed-width value entries recording each one's label-position
// index; the second walks the label-text entries (2-byte length prefix,
// raw bytes) at those recorded positions to pair up keys with their label
// text.
func parseValueLabels(data []byte, count int, eng endian.EndianEngine, valueType metadata.ValueType, dec *charset.Decoder) ([]metadata.ValueLabel, error) {
	valuesEnd := count * valueEntrySize
	if valuesEnd > len(data) {
		valuesEnd = len(data) - (len(data) % valueEntrySize)
		count = valuesEnd / valueEntrySize
	}

	type pending struct {
		key      metadata.ValueKey
		labelPos uint16
	}
	entries := make([]pending, 0, count)
	for i := 0; i < count; i++ {
		entry := data[i*valueEntrySize : (i+1)*valueEntrySize]
		labelPos := endian.ReadU16(eng, entry[0:2])

		var key metadata.ValueKey
		if valueType == metadata.ValueTypeString {
			key = metadata.ValueKey{Type: metadata.ValueTypeString, Text: strings.TrimRight(dec.DecodeString(entry[16:32]), " ")}
		} else {
			raw := endian.ReadU64(eng, entry[22:30])
			key = decodeNumericKey(raw)
		}
		entries = append(entries, pending{key: key, labelPos: labelPos})
	}

	labelText := data[valuesEnd:]
	out := make([]metadata.ValueLabel, 0, count)
	for _, e := range entries {
		pos := int(e.labelPos)
		if pos+2 > len(labelText) {
			continue
		}
		length := int(endian.ReadU16(eng, labelText[pos:pos+2]))
		start := pos + 2
		end := start + length
		if end > len(labelText) {
			end = len(labelText)
		}
		label := dec.DecodeString(labelText[start:end])
		out = append(out, metadata.ValueLabel{Key: e.key, Label: label})
	}
	return out, nil
}

// decodeNumericKey reverses the complemented-bits encoding a catalog uses
// to store a numeric value-label key, including the tagged/system-missing
// sentinel pattern.
func decodeNumericKey(raw uint64) metadata.ValueKey {
	if raw|0xFF0000000000 == 0xFFFFFFFFFFFF {
		tag := decodeMissingTag(byte(raw >> 40))
		return metadata.ValueKey{Type: metadata.ValueTypeNumeric, IsTag: true, Tag: tag}
	}

	value := math.Float64frombits(raw)
	if value > 0 {
		value = math.Float64frombits(^raw)
	} else {
		value = -value
	}

	if asInt := int32(value); float64(asInt) == value {
		return metadata.ValueKey{Type: metadata.ValueTypeNumeric, Integer: asInt, IsInt: true, Number: value}
	}
	return metadata.ValueKey{Type: metadata.ValueTypeNumeric, Number: value}
}

func decodeMissingTag(tag byte) rune {
	if tag == 0 {
		return '_'
	}
	if tag >= 2 && tag <= 27 {
		return rune('A' + tag - 2)
	}
	return '.'
}
