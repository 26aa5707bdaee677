package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"
)

// ErrTextExtraction means the bytes could not be parsed as a PDF.
var ErrTextExtraction = errors.New("pdf text extraction failed")

// Extractor turns PDF bytes into normalized text.
type Extractor struct{}

// Extract returns the normalized text of every page of data.
func (Extractor) Extract(data []byte) (string, error) {
	raw, err := ExtractText(data)
	if err != nil {
		return "", err
	}
	return Normalize(raw), nil
}

// ExtractText reads PDF bytes and returns the raw plain text of all pages in
// order using ledongthuc/pdf. Pages without text contribute nothing.
func ExtractText(data []byte) (text string, err error) {
	// The reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrTextExtraction, r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTextExtraction, err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrTextExtraction, page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// Normalize splits text into lines on every line break (CR, LF, CRLF,
// vertical tab, form feed, the file/group/record separators, NEL and the
// Unicode line and paragraph separators), collapses whitespace inside each
// line, trims it and drops blank lines.
func Normalize(text string) string {
	lines := strings.FieldsFunc(text, isLineBreak)
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
