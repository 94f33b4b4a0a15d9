package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// PDFExtractor pulls plain text out of PDF receipts locally, without calling
// an external OCR service. Only application/pdf input is supported.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

// Simple receipt heuristics: a labeled amount and a date anywhere in the text.
var (
	amountPattern = regexp.MustCompile(`(?i)(?:total|amount|sum)\s*:?\s*\$?\s*([0-9][0-9.,]*)`)
	datePattern   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
)

// Extract reads the whole PDF and returns its text plus any recognized
// receipt fields.
func (PDFExtractor) Extract(ctx context.Context, r io.Reader, contentType string) (*Result, error) {
	if contentType != "application/pdf" {
		return nil, fmt.Errorf("ocr: unsupported content type %q", contentType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}

	var builder strings.Builder
	total := doc.NumPage()
	readable := 0
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			// Keep going; a single unreadable page should not discard the rest.
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n")
		readable++
	}

	text := builder.String()
	res := &Result{
		Fields: map[string]string{},
		Text:   text,
	}
	if total > 0 {
		res.Confidence = float64(readable) / float64(total)
	}
	if m := amountPattern.FindStringSubmatch(text); m != nil {
		res.Fields["amount"] = m[1]
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		res.Fields["date"] = m[1]
	}
	return res, nil
}
