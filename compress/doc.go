// Package compress provides general-purpose byte-stream codecs behind a
// common Codec interface. The sinks in this module do not import it: the
// Parquet sink uses parquet-go's own codecs and the CSV sink uses
// klauspost/compress/s2 directly.
//
// # Overview
//
// The package supports four algorithms, selected via format.CompressionType:
//   - None: no compression
//   - Zstd: best ratio, moderate speed (klauspost/compress/zstd)
//   - S2: fast, Snappy-compatible-family codec (klauspost/compress/s2)
//   - LZ4: fast decompression (pierrec/lz4/v4)
//
// Zstd and LZ4 are also Parquet column codecs; package parquetsink offers
// them (or no compression) through parquet-go's own codec types, not
// through this package. S2 is not a Parquet codec; the CSV sink's optional
// whole-stream wrapper uses klauspost/compress/s2 directly.
//
// # Architecture
//
//	type Compressor interface {
//	    Compress(data []byte) ([]byte, error)
//	}
//
//	type Decompressor interface {
//	    Decompress(data []byte) ([]byte, error)
//	}
//
//	type Codec interface {
//	    Compressor
//	    Decompressor
//	}
//
// CreateCodec and GetCodec construct a Codec from a format.CompressionType.
//
// # Thread Safety
//
// All codec implementations are safe for concurrent use.
package compress
