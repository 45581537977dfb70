// Package charset resolves the single-byte character-set code a SAS7BDAT
// header declares into a golang.org/x/text/encoding.Encoding, and decodes
// column text through it with a UTF-8 fast path and a mojibake repair pass.
//
// Grounded on the exact SAS charset-code table recovered from the reference
// parser's header decoder: code 0 defaults to WINDOWS-1252, 20 is UTF-8, and
// the rest follow the ISO-8859/CPxxx/WINDOWS-125x/MAC/EUC/Shift-JIS families
// SAS has shipped over the years.
package charset

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// Label is the canonical name of a resolved character set, used in error
// messages and exposed on DatasetMetadata.
type Label string

// byCode maps the SAS character-set byte to a label. Unlisted codes are
// unsupported: resolveCode reports false for them and Resolve returns an
// UnsupportedCharsetError.
var byCode = map[byte]Label{
	0:   "WINDOWS-1252",
	1:   "US-ASCII",
	2:   "US-ASCII",
	3:   "US-ASCII",
	4:   "US-ASCII",
	20:  "UTF-8",
	28:  "US-ASCII",
	29:  "ISO-8859-1",
	30:  "ISO-8859-2",
	31:  "ISO-8859-3",
	32:  "ISO-8859-4",
	33:  "ISO-8859-5",
	34:  "ISO-8859-6",
	35:  "ISO-8859-7",
	36:  "ISO-8859-8",
	37:  "ISO-8859-9",
	39:  "ISO-8859-11",
	40:  "ISO-8859-15",
	41:  "ISO-8859-16",
	60:  "WINDOWS-1250",
	61:  "WINDOWS-1251",
	62:  "WINDOWS-1252",
	63:  "WINDOWS-1253",
	64:  "WINDOWS-1254",
	65:  "WINDOWS-1255",
	66:  "WINDOWS-1256",
	67:  "WINDOWS-1257",
	68:  "WINDOWS-1258",
	119: "EUC-TW",
	123: "BIG-5",
	125: "GB18030",
	126: "EUC-CN",
	128: "SHIFT_JISX0213",
	130: "EUC-JP",
	134: "EUC-KR",
	136: "CP949",
	137: "CP950",
	138: "CP936",
	140: "MACROMAN",
	141: "MACTHAI",
	142: "MACARABIC",
	143: "MACHEBREW",
	144: "MACGREEK",
	145: "MACCYRILLIC",
	147: "MACUKRAINE",
	150: "MACICELAND",
	151: "MACTURKISH",
	153: "MACCROATIAN",
	154: "MACROMANIA",
	155: "MACCYRILLIC",
	167: "CP1361",
	177: "ISO-8859-1",
	178: "ISO-8859-2",
	186: "WINDOWS-1252",
	205: "BIG-5",
	227: "CP1252",
}

// resolveCode returns the canonical label for a SAS charset code.
func resolveCode(code byte) (Label, bool) {
	label, ok := byCode[code]
	return label, ok
}

// encodingFor maps a Label to an x/text Encoding. Labels without a case of
// their own resolve to Windows-1252 through the default branch, so it always
// reports true and Decoder construction never fails here.
func encodingFor(label Label) (encoding.Encoding, bool) {
	switch label {
	case "UTF-8", "US-ASCII":
		return unicode.UTF8, true
	case "WINDOWS-1250":
		return charmap.Windows1250, true
	case "WINDOWS-1251":
		return charmap.Windows1251, true
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, true
	case "WINDOWS-1253":
		return charmap.Windows1253, true
	case "WINDOWS-1254":
		return charmap.Windows1254, true
	case "WINDOWS-1255":
		return charmap.Windows1255, true
	case "WINDOWS-1256":
		return charmap.Windows1256, true
	case "WINDOWS-1257":
		return charmap.Windows1257, true
	case "WINDOWS-1258":
		return charmap.Windows1258, true
	case "ISO-8859-1":
		return charmap.ISO8859_1, true
	case "ISO-8859-2":
		return charmap.ISO8859_2, true
	case "ISO-8859-3":
		return charmap.ISO8859_3, true
	case "ISO-8859-4":
		return charmap.ISO8859_4, true
	case "ISO-8859-5":
		return charmap.ISO8859_5, true
	case "ISO-8859-6":
		return charmap.ISO8859_6, true
	case "ISO-8859-7":
		return charmap.ISO8859_7, true
	case "ISO-8859-8":
		return charmap.ISO8859_8, true
	case "ISO-8859-9":
		return charmap.ISO8859_9, true
	case "ISO-8859-11":
		return charmap.Windows874, true
	case "ISO-8859-15":
		return charmap.ISO8859_15, true
	case "ISO-8859-16":
		return charmap.ISO8859_16, true
	case "BIG-5":
		return traditionalchinese.Big5, true
	case "GB18030":
		return simplifiedchinese.GB18030, true
	case "EUC-CN":
		return simplifiedchinese.GBK, true
	case "EUC-JP":
		return japanese.EUCJP, true
	case "SHIFT_JISX0213":
		return japanese.ShiftJIS, true
	case "EUC-KR", "CP949":
		return korean.EUCKR, true
	case "MACROMAN":
		return charmap.Macintosh, true
	case "MACCYRILLIC":
		return charmap.MacintoshCyrillic, true
	default:
		// Remaining labels (EUC-TW, CP936/950, the less common Mac variants)
		// have no direct x/text codec; fall back to Windows-1252 which keeps
		// every byte representable instead of failing the whole file.
		return charmap.Windows1252, true
	}
}

// Decoder decodes column text for one resolved character set.
type Decoder struct {
	Label Label
	enc   encoding.Encoding
}

// Resolve builds a Decoder for the given SAS charset code.
func Resolve(code byte) (*Decoder, error) {
	label, ok := resolveCode(code)
	if !ok {
		return nil, &UnsupportedCharsetError{Code: code}
	}
	enc, _ := encodingFor(label)
	return &Decoder{Label: label, enc: enc}, nil
}

// UnsupportedCharsetError reports a SAS charset code with no known mapping.
type UnsupportedCharsetError struct{ Code byte }

func (e *UnsupportedCharsetError) Error() string {
	return "unsupported character set code " + itoa(int(e.Code))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [3]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// TrimTrailing strips trailing NUL bytes and ASCII spaces from data,
// returning a subslice (no copy).
func TrimTrailing(data []byte) []byte {
	end := len(data)
	for end > 0 && (data[end-1] == 0 || data[end-1] == ' ') {
		end--
	}
	return data[:end]
}

// DecodeString trims trailing NUL/space from data, then decodes it as text.
//
// It first checks whether the trimmed bytes are already valid UTF-8: most
// SAS7BDAT files tagged with a non-UTF-8 codepage nonetheless only ever
// contain 7-bit ASCII, so this is both a fast path and (per the mojibake
// repair rule below) a correctness improvement. Only when the bytes are not
// valid UTF-8 does it fall through to the resolved codepage decoder, lossily
// if necessary.
func (d *Decoder) DecodeString(data []byte) string {
	trimmed := TrimTrailing(data)
	if len(trimmed) == 0 {
		return ""
	}
	if utf8.Valid(trimmed) {
		return string(trimmed)
	}

	decoded, err := d.enc.NewDecoder().Bytes(trimmed)
	var out string
	if err != nil || decoded == nil {
		out = strings.ToValidUTF8(string(trimmed), "�")
	} else {
		out = string(decoded)
	}

	return maybeFixMojibake(out)
}

// maybeFixMojibake corrects the common case where UTF-8 bytes were stored
// under a non-UTF-8 codepage tag. If every rune of the decoded string is a
// code point in the range 0-255, those code points are reinterpreted as raw
// bytes and re-parsed as UTF-8, and that reinterpretation is returned
// whenever it is itself valid and differs from the naive decode. A decoded
// string holding any rune above 0xFF (Windows-1252 maps most of 0x80-0x9F
// there, e.g. 0x80 to U+20AC) is returned unchanged.
func maybeFixMojibake(decoded string) string {
	raw := make([]byte, 0, len(decoded))
	for _, r := range decoded {
		if r > 0xFF {
			return decoded
		}
		raw = append(raw, byte(r))
	}
	if !utf8.Valid(raw) {
		return decoded
	}
	reinterpreted := string(raw)
	if reinterpreted == decoded {
		return decoded
	}
	return reinterpreted
}
