// Package extract reads plain text out of source documents.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Result is the text of one document plus what is known about its layout.
type Result struct {
	// Text is the raw extracted text, pages separated by a newline.
	Text string

	// PageCount is the number of pages in the document.
	PageCount int

	// Pages holds the raw text of each page; Pages[i] is page i+1. Pages
	// without content are empty strings. Text equals Pages joined by "\n".
	Pages []string
}

// PDFExtractor extracts text from PDF files. The zero value is ready to use
// and safe for concurrent use.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads the PDF at path and returns its text.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("extract: read file: %w", err)
	}
	return e.ExtractBytes(ctx, content)
}

// ExtractBytes extracts text from an in-memory PDF. Pages without content
// are skipped. The parser panics on some malformed inputs; those panics are
// returned as errors.
func (e *PDFExtractor) ExtractBytes(ctx context.Context, content []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("extract: malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("extract: open PDF: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Result{}, fmt.Errorf("extract: page %d: %w", i, err)
		}
		pages[i-1] = text
	}
	return Result{Text: strings.Join(pages, "\n"), PageCount: numPages, Pages: pages}, nil
}
