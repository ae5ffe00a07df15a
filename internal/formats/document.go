package formats

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jask/moneyimport/internal/statement"
)

// Document is one uploaded file: the original bytes plus a UTF-8 rendition.
type Document struct {
	Filename string
	Raw      []byte
	Text     string
}

// NewDocument decodes raw into UTF-8. A byte order mark selects UTF-8 or
// UTF-16; otherwise invalid UTF-8 is read as Windows-1252, which is what most
// bank exports that are not UTF-8 actually are.
func NewDocument(filename string, raw []byte) (*Document, error) {
	fallback := unicode.UTF8.NewDecoder()
	if !utf8.Valid(raw) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	text, _, err := transform.Bytes(unicode.BOMOverride(fallback), raw)
	if err != nil {
		return nil, &statement.FileStructureError{Filename: filename, Reason: "cannot decode text", Err: err}
	}
	return &Document{Filename: filename, Raw: raw, Text: string(text)}, nil
}

// head returns at most n bytes of the decoded text.
func (d *Document) head(n int) string {
	if len(d.Text) <= n {
		return d.Text
	}
	return d.Text[:n]
}

func (d *Document) hasNUL() bool {
	return bytes.IndexByte([]byte(d.Text), 0) >= 0
}
