// Package preprocess converts uploaded invoice files into page images plus
// extracted text and grades the result.
//
// PDFs are rasterized with pdftoppm (capped at MaxPages) and their text layer
// is read with pdftotext. Image uploads bypass rasterization and count as a
// single page; their text is optionally recovered with tesseract. Every
// failure degrades to the remaining channel: Process never returns an error.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/logging"
)

const (
	mimePDF = "application/pdf"
	mimePNG = "image/png"
)

// Options configures the Preprocessor.
type Options struct {
	Pdftotext string // binary name or absolute path; default "pdftotext"
	Pdftoppm  string // binary name or absolute path; default "pdftoppm"
	Tesseract string // binary name or absolute path; default "tesseract"

	TesseractLang string // default "eng+spa"
	DPI           int    // rasterization DPI, default 150
	MaxPages      int    // hard page cap, default 5
	HighTextChars int    // text length above which quality is high, default 500
	// EnableOCR runs tesseract on image uploads to recover a text channel.
	EnableOCR bool
	TempDir   string

	Runner Runner
	Cache  *Cache
	Logger logging.Logger
}

// Preprocessor turns raw uploads into core.Document values.
type Preprocessor struct {
	opts Options
}

// New creates a Preprocessor with defaults applied.
func New(optFns ...func(o *Options)) *Preprocessor {
	opts := Options{
		Pdftotext:     "pdftotext",
		Pdftoppm:      "pdftoppm",
		Tesseract:     "tesseract",
		TesseractLang: "eng+spa",
		DPI:           150,
		MaxPages:      5,
		HighTextChars: 500,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Runner == nil {
		opts.Runner = ExecRunner{Logger: opts.Logger}
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.HighTextChars <= 0 {
		opts.HighTextChars = 500
	}

	return &Preprocessor{opts: opts}
}

// MaxPages returns the configured page cap.
func (p *Preprocessor) MaxPages() int { return p.opts.MaxPages }

// Process converts fileBytes into a Document. Failures are recorded as
// warnings and lower the quality; they are never returned.
func (p *Preprocessor) Process(ctx context.Context, fileBytes []byte, mimeType, fileName string) *core.Document {
	start := time.Now()
	mimeType = DetectMimeType(fileBytes, mimeType, fileName)

	var key string
	if p.opts.Cache != nil && len(fileBytes) > 0 {
		key = Key(fileBytes, mimeType)
		if doc, ok := p.opts.Cache.Get(key); ok {
			doc.FileName = fileName
			p.opts.Logger.Debug("preprocess.cache.hit", "file", fileName, "pages", len(doc.Pages))
			return doc
		}
	}

	doc := &core.Document{FileName: fileName, MimeType: mimeType}

	var textErr, imgErr error
	switch {
	case len(fileBytes) == 0:
		textErr, imgErr = core.ErrEmptyDocument, core.ErrEmptyDocument
		doc.Warnings = append(doc.Warnings, core.ErrEmptyDocument.Error())
	case mimeType == mimePDF:
		textErr, imgErr = p.processPDF(ctx, fileBytes, doc)
	case strings.HasPrefix(mimeType, "image/"):
		doc.Pages = []core.Page{{Number: 1, MimeType: mimeType, Data: fileBytes}}
		if p.opts.EnableOCR {
			textErr = p.ocrImage(ctx, fileBytes, mimeType, doc)
		}
	default:
		textErr = fmt.Errorf("unsupported mime type %q", mimeType)
		imgErr = textErr
		doc.Warnings = append(doc.Warnings, textErr.Error())
	}

	doc.Quality = Classify(len([]rune(strings.TrimSpace(doc.Text))), len(doc.Pages), p.opts.HighTextChars)
	if textErr != nil && imgErr != nil && doc.Text == "" && len(doc.Pages) == 0 {
		doc.Quality.Level = core.QualityError
	}

	p.opts.Logger.Info("preprocess.done",
		"file", fileName,
		"mime", mimeType,
		"pages", len(doc.Pages),
		"text_chars", doc.Quality.TextChars,
		"quality", string(doc.Quality.Level),
		"scanned", doc.Quality.IsScanned,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if key != "" && doc.Quality.Level != core.QualityError {
		p.opts.Cache.Set(key, doc)
	}

	return doc
}

// processPDF fills text and page images; each returned error reports the
// failure of one channel.
func (p *Preprocessor) processPDF(ctx context.Context, fileBytes []byte, doc *core.Document) (textErr, imgErr error) {
	tmpDir, err := os.MkdirTemp(p.opts.TempDir, "invoicemesh-pp-*")
	if err != nil {
		doc.Warnings = append(doc.Warnings, "temp dir: "+err.Error())
		return err, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.opts.Logger.Warn("preprocess.cleanup.failed", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, fileBytes, 0o600); err != nil {
		doc.Warnings = append(doc.Warnings, "write input: "+err.Error())
		return err, err
	}

	text, textErr := p.pdfToText(ctx, in)
	if textErr != nil {
		doc.Warnings = append(doc.Warnings, "text extraction: "+textErr.Error())
	}
	doc.Text = text

	pages, imgErr := p.pdfToImages(ctx, in, tmpDir)
	if imgErr != nil {
		doc.Warnings = append(doc.Warnings, "rasterization: "+imgErr.Error())
	}
	doc.Pages = pages

	return textErr, imgErr
}

func (p *Preprocessor) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix -l <max> <path> -
	out, errb, err := p.opts.Runner.Run(ctx, p.opts.Pdftotext,
		"-layout", "-enc", "UTF-8", "-eol", "unix",
		"-l", strconv.Itoa(p.opts.MaxPages),
		path, "-")
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", p.opts.Pdftotext, err, strings.TrimSpace(string(errb)))
	}
	// pdftotext separates pages with form feeds.
	return strings.TrimSpace(strings.ReplaceAll(string(out), "\f", "\n")), nil
}

func (p *Preprocessor) pdfToImages(ctx context.Context, path, dir string) ([]core.Page, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r <dpi> -png -f 1 -l <max> <in.pdf> <dir/page>
	_, errb, err := p.opts.Runner.Run(ctx, p.opts.Pdftoppm,
		"-r", strconv.Itoa(p.opts.DPI), "-png",
		"-f", "1", "-l", strconv.Itoa(p.opts.MaxPages),
		path, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", p.opts.Pdftoppm, err, strings.TrimSpace(string(errb)))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, fmt.Errorf("%s produced no images", p.opts.Pdftoppm)
	}
	sortByPageNumber(matches)
	if len(matches) > p.opts.MaxPages {
		matches = matches[:p.opts.MaxPages]
	}

	pages := make([]core.Page, 0, len(matches))
	for i, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return pages, fmt.Errorf("read page %d: %w", i+1, err)
		}
		pages = append(pages, core.Page{Number: i + 1, MimeType: mimePNG, Data: data})
	}
	return pages, nil
}

func (p *Preprocessor) ocrImage(ctx context.Context, data []byte, mimeType string, doc *core.Document) error {
	tmpDir, err := os.MkdirTemp(p.opts.TempDir, "invoicemesh-ocr-*")
	if err != nil {
		doc.Warnings = append(doc.Warnings, "temp dir: "+err.Error())
		return err
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "input"+extensionFor(mimeType))
	if err := os.WriteFile(in, data, 0o600); err != nil {
		doc.Warnings = append(doc.Warnings, "write input: "+err.Error())
		return err
	}

	// tesseract <in> stdout -l <lang>
	out, errb, err := p.opts.Runner.Run(ctx, p.opts.Tesseract, in, "stdout", "-l", p.opts.TesseractLang)
	if err != nil {
		err = fmt.Errorf("%s: %w: %s", p.opts.Tesseract, err, strings.TrimSpace(string(errb)))
		doc.Warnings = append(doc.Warnings, "ocr: "+err.Error())
		return err
	}
	doc.Text = strings.TrimSpace(string(out))
	return nil
}

// sortByPageNumber orders pdftoppm outputs (page-1.png, page-2.png, ...,
// page-10.png) numerically; pdftoppm zero-pads inconsistently across versions.
func sortByPageNumber(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		idx := strings.LastIndex(base, "-")
		n, err := strconv.Atoi(base[idx+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}

// DetectMimeType trusts the declared type unless it is empty or generic,
// then falls back to magic bytes and the file extension.
func DetectMimeType(data []byte, declared, fileName string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return mimePDF
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return mimePNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".png":
		return mimePNG
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return declared
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
