package sas7bdat

import (
	"io"

	"github.com/sasreader/sas7bdat/charset"
	"github.com/sasreader/sas7bdat/format"
	"github.com/sasreader/sas7bdat/header"
	"github.com/sasreader/sas7bdat/internal/errs"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/page"
)

// pageSource is the subset of *page.Scanner that metadata parsing needs.
type pageSource interface {
	Next() (*page.Page, error)
}

// parseResult is everything parseMetadata resolves from the meta pages: the
// dataset's schema and its row layout.
type parseResult struct {
	Dataset metadata.DatasetMetadata
	Rows    metadata.RowInfo
	Columns []metadata.ColumnInfo
}

// parseMetadata walks every meta-bearing page from the start of the file,
// dispatching each recognized subheader to its parser and accumulating the
// result in a metadata.Builder, then resolves every column's text
// references and the dataset-level file label against the charset the
// header declared.
//
// An uncompressed, sufficiently long subheader whose signature is not
// recognized is silently skipped: such payloads appear on Mix pages where
// the data region begins immediately after the last metadata subheader, and
// the row decoder (not the metadata builder) is responsible for them.
func parseMetadata(h *header.Header, scanner pageSource) (*parseResult, error) {
	dec, err := charset.Resolve(h.Metadata.CharsetCode)
	if err != nil {
		return nil, err
	}

	b := metadata.NewBuilder()
	eng := h.Engine()

	var rowInfo metadata.RowInfo
	var rowSizeData []byte
	var columnCount uint32
	sawRowSize := false

	for {
		p, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !p.Kind.IsMetaPage() {
			continue
		}

		for _, sh := range p.Subheaders() {
			switch sh.Signature {
			case format.SigRowSize:
				info, err := metadata.ParseRowSize(b, sh.Data, h.SubheaderSignatureSize, eng, h.Uses64Bit)
				if err != nil {
					return nil, err
				}
				rowInfo = info
				rowSizeData = append([]byte(nil), sh.Data...)
				sawRowSize = true
			case format.SigColumnSize:
				count, err := metadata.ParseColumnSize(sh.Data, eng, h.Uses64Bit)
				if err != nil {
					return nil, err
				}
				columnCount = count
			case format.SigColumnText:
				if err := metadata.ParseColumnText(b, sh.Data, h.SubheaderSignatureSize, eng); err != nil {
					return nil, err
				}
			case format.SigColumnName:
				if err := metadata.ParseColumnName(b, sh.Data, h.SubheaderSignatureSize, eng, h.Uses64Bit); err != nil {
					return nil, err
				}
			case format.SigColumnAttrs:
				if err := metadata.ParseColumnAttrs(b, sh.Data, h.SubheaderSignatureSize, eng, h.Uses64Bit); err != nil {
					return nil, err
				}
			case format.SigColumnFormat:
				if err := metadata.ParseColumnFormat(b, sh.Data, eng, h.Uses64Bit); err != nil {
					return nil, err
				}
			case format.SigColumnList:
				if err := metadata.ParseColumnList(b, sh.Data, h.SubheaderSignatureSize, eng, h.Uses64Bit); err != nil {
					return nil, err
				}
			default:
				// Unrecognized subheader on a meta page: not metadata, ignore.
			}
		}
	}

	if !sawRowSize {
		return nil, errs.InvalidMetadata("no row-size subheader found")
	}
	// The row-size subheader's text refs may point into a column-text blob
	// pushed after it; parse it again now that every blob is in the store,
	// so the compression hint resolves.
	rowInfo, err = metadata.ParseRowSize(b, rowSizeData, h.SubheaderSignatureSize, eng, h.Uses64Bit)
	if err != nil {
		return nil, err
	}

	store, columns, columnList, err := b.Finalize(dec)
	if err != nil {
		return nil, err
	}
	if columnCount > 0 && int(columnCount) != len(columns) {
		return nil, errs.InvalidMetadata("column-size subheader declares %d columns, found %d", columnCount, len(columns))
	}

	fileLabel, ok := store.Resolve(rowInfo.FileLabelRef, dec)
	if !ok {
		return nil, errs.InvalidMetadata("file label reference out of bounds")
	}

	variables := make([]metadata.Variable, len(columns))
	for i := range columns {
		v := metadata.Variable{Index: i}
		if err := columns[i].ApplyToVariable(store, dec, &v); err != nil {
			return nil, err
		}
		variables[i] = v
	}

	dataset := h.Metadata
	dataset.ColumnCount = len(variables)
	dataset.RowCount = rowInfo.TotalRows
	dataset.Compression = rowInfo.Compression
	dataset.FileLabel = fileLabel
	dataset.Charset = string(dec.Label)
	dataset.Variables = variables
	dataset.ColumnList = columnList

	return &parseResult{Dataset: dataset, Rows: rowInfo, Columns: columns}, nil
}
