package core

// streaming.go opens raw bytes as text in a layout's declared encoding.
//
// UTF-8 input is passed through after skipping a BOM (Windows exports carry
// one) and validated line by line by the decoder. Every other encoding is
// decoded to UTF-8 on the fly with golang.org/x/text; bytes the encoding
// cannot map come out as U+FFFD, which the decoder reports as KindEncoding.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Common spellings in delivery configs, resolved before the IANA index.
var encodingAliases = map[string]encoding.Encoding{
	"latin-1":      charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso8859-1":    charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"cp850":        charmap.CodePage850,
}

// lookupEncoding resolves an encoding name. A nil encoding means UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	if enc, ok := encodingAliases[n]; ok {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// openText wraps r so it yields UTF-8 text. A leading UTF-8 BOM is dropped.
func openText(r io.Reader, enc encoding.Encoding) io.Reader {
	br := bufio.NewReader(r)
	if enc == nil {
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return br
	}
	return transform.NewReader(br, enc.NewDecoder())
}
