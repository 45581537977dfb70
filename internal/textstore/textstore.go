// Package textstore holds the append-only blob storage that backs every
// name, label and format string the metadata builder resolves. Column-text
// subheaders push one blob each; every other subheader kind only ever
// records a (blob, offset, length) reference into this store, because the
// text itself may not have been observed yet when the reference is parsed.
package textstore

import "github.com/sasreader/sas7bdat/charset"

// Ref is a reference into a TextStore blob: (blob index, byte offset,
// byte length). A zero-length Ref always resolves to the empty string.
type Ref struct {
	BlobIndex uint32
	Offset    uint32
	Length    uint32
}

// Empty is the canonical zero reference.
var Empty = Ref{}

// IsEmpty reports whether the reference denotes an empty string.
func (r Ref) IsEmpty() bool { return r.Length == 0 }

// Store is an append-only sequence of text blobs. It does not cache
// resolved strings; callers that resolve the same Ref repeatedly should
// cache the result themselves.
type Store struct {
	blobs [][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// PushBlob appends a new blob and returns its index.
func (s *Store) PushBlob(data []byte) uint32 {
	s.blobs = append(s.blobs, data)
	return uint32(len(s.blobs) - 1)
}

// Blob returns the raw bytes of blob i, or nil if out of range.
func (s *Store) Blob(i uint32) []byte {
	if int(i) >= len(s.blobs) {
		return nil
	}
	return s.blobs[i]
}

// BlobCount returns the number of blobs pushed so far.
func (s *Store) BlobCount() int { return len(s.blobs) }

// Resolve dereferences ref against the stored blobs and decodes the result
// using dec. It returns ("", true) for an empty reference, ("", false) if
// the reference is out of bounds, and otherwise the decoded string.
func (s *Store) Resolve(ref Ref, dec *charset.Decoder) (string, bool) {
	if ref.IsEmpty() {
		return "", true
	}
	blob := s.Blob(ref.BlobIndex)
	if blob == nil {
		return "", false
	}
	start := int(ref.Offset)
	end := start + int(ref.Length)
	if start < 0 || end > len(blob) || start > end {
		return "", false
	}
	return dec.DecodeString(blob[start:end]), true
}

// ResolveRaw dereferences ref like Resolve but returns the untouched bytes
// with no charset decoding applied. It exists for the handful of fields
// (the compression-signature name in the row-size subheader) that are
// always plain ASCII and are read by ParseRowSize, which takes no charset
// decoder.
func (s *Store) ResolveRaw(ref Ref) ([]byte, bool) {
	if ref.IsEmpty() {
		return nil, true
	}
	blob := s.Blob(ref.BlobIndex)
	if blob == nil {
		return nil, false
	}
	start := int(ref.Offset)
	end := start + int(ref.Length)
	if start < 0 || end > len(blob) || start > end {
		return nil, false
	}
	return blob[start:end], true
}
