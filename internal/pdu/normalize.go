package pdu

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var ucs2 = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Normalized holds both renderings of a reassembled body.
type Normalized struct {
	Text   string
	Binary string
}

// Normalize renders body as hex and as text. Wide codings are decoded from
// UTF-16BE; anything undecodable is dropped.
func Normalize(body []byte, coding DataCoding) Normalized {
	n := Normalized{Binary: hex.EncodeToString(body)}
	if coding.Wide() {
		n.Text = decodeUCS2(body)
	} else {
		n.Text = string(body)
	}
	return n
}

func decodeUCS2(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out, err := ucs2.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(string(out), string(utf8.RuneError), "")
}
