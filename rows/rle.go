package rows

import "github.com/sasreader/sas7bdat/internal/errs"

// decompressRLE expands one compressed row-data run produced by SAS's
// SASYZCRL row compressor into exactly rowLength bytes.
//
// Each control byte splits into a 4-bit opcode (high nibble) and a 4-bit
// length parameter (low nibble, "nib"). Opcode 3 is absent from the table
// and never appears in a well-formed stream; encountering it is corruption.
func decompressRLE(src []byte, rowLength int) ([]byte, error) {
	out := make([]byte, 0, rowLength)
	i := 0

	readByte := func() (byte, error) {
		if i >= len(src) {
			return 0, errs.Corrupted(errs.SectionDecompression(0), "RLE stream truncated")
		}
		b := src[i]
		i++
		return b, nil
	}
	copyLiteral := func(n int) error {
		if i+n > len(src) {
			return errs.Corrupted(errs.SectionDecompression(0), "RLE literal copy of %d bytes overruns input", n)
		}
		out = append(out, src[i:i+n]...)
		i += n
		return nil
	}
	fill := func(b byte, n int) {
		for k := 0; k < n; k++ {
			out = append(out, b)
		}
	}

	for i < len(src) && len(out) < rowLength {
		control, err := readByte()
		if err != nil {
			return nil, err
		}
		opcode := control >> 4
		nib := int(control & 0x0F)

		switch opcode {
		case 0:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			if err := copyLiteral(int(n) + 64 + nib*256); err != nil {
				return nil, err
			}
		case 1:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			if err := copyLiteral(int(n) + 4160 + nib*256); err != nil {
				return nil, err
			}
		case 2:
			if err := copyLiteral(nib + 96); err != nil {
				return nil, err
			}
		case 3:
			return nil, errs.Corrupted(errs.SectionDecompression(0), "RLE control byte uses absent opcode 3")
		case 4:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			b, err := readByte()
			if err != nil {
				return nil, err
			}
			fill(b, nib*256+int(n)+18)
		case 5:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			fill('@', nib*256+int(n)+17)
		case 6:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			fill(' ', nib*256+int(n)+17)
		case 7:
			n, err := readByte()
			if err != nil {
				return nil, err
			}
			fill(0x00, nib*256+int(n)+17)
		case 8:
			if err := copyLiteral(nib + 1); err != nil {
				return nil, err
			}
		case 9:
			if err := copyLiteral(nib + 17); err != nil {
				return nil, err
			}
		case 10:
			if err := copyLiteral(nib + 33); err != nil {
				return nil, err
			}
		case 11:
			if err := copyLiteral(nib + 49); err != nil {
				return nil, err
			}
		case 12:
			b, err := readByte()
			if err != nil {
				return nil, err
			}
			fill(b, nib+3)
		case 13:
			fill('@', nib+2)
		case 14:
			fill(' ', nib+2)
		case 15:
			fill(0x00, nib+2)
		}
	}

	if len(out) != rowLength {
		return nil, errs.Corrupted(errs.SectionDecompression(0), "RLE stream produced %d bytes, want %d", len(out), rowLength)
	}
	return out, nil
}
