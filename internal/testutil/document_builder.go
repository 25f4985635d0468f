package testutil

import (
	"fmt"

	"github.com/hupe1980/invoicemesh/core"
)

// DocumentBuilder provides a fluent helper for constructing pre-processed
// documents in tests.
// Example:
//
//	doc := NewDocumentBuilder("factura.pdf").Text("FACTURA A ...").Pages(2).Quality(core.QualityHigh).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type DocumentBuilder struct {
	doc core.Document
}

// NewDocumentBuilder creates a PDF document builder with low quality and no content.
func NewDocumentBuilder(fileName string) *DocumentBuilder {
	return &DocumentBuilder{doc: core.Document{
		ID:       "doc-test",
		FileName: fileName,
		MimeType: "application/pdf",
		Quality:  core.Quality{Level: core.QualityLow},
	}}
}

// ID overrides the document ID (chainable).
func (b *DocumentBuilder) ID(id string) *DocumentBuilder { b.doc.ID = id; return b }

// MimeType sets the declared MIME type (chainable).
func (b *DocumentBuilder) MimeType(m string) *DocumentBuilder { b.doc.MimeType = m; return b }

// Text sets the extracted text and marks the document as having text (chainable).
func (b *DocumentBuilder) Text(t string) *DocumentBuilder {
	b.doc.Text = t
	b.doc.Quality.HasText = t != ""
	b.doc.Quality.TextChars = len([]rune(t))
	return b
}

// Pages appends n fake PNG pages (chainable).
func (b *DocumentBuilder) Pages(n int) *DocumentBuilder {
	for i := 0; i < n; i++ {
		num := len(b.doc.Pages) + 1
		b.doc.Pages = append(b.doc.Pages, core.Page{
			Number:   num,
			MimeType: "image/png",
			Data:     []byte(fmt.Sprintf("png-%d", num)),
		})
	}
	b.doc.Quality.Pages = len(b.doc.Pages)
	return b
}

// Quality sets the quality level (chainable).
func (b *DocumentBuilder) Quality(l core.QualityLevel) *DocumentBuilder {
	b.doc.Quality.Level = l
	return b
}

// Build returns a pointer to a copy of the built document.
func (b *DocumentBuilder) Build() *core.Document {
	d := b.doc
	d.Pages = append([]core.Page(nil), b.doc.Pages...)
	return &d
}
