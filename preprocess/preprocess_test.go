package preprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner emulates pdftotext, pdftoppm and tesseract.
type stubRunner struct {
	mu       sync.Mutex
	text     string
	textErr  error
	pages    int
	imgErr   error
	ocrText  string
	calls    []string
	lastArgs map[string][]string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	if s.lastArgs == nil {
		s.lastArgs = map[string][]string{}
	}
	s.lastArgs[name] = args

	switch name {
	case "pdftotext":
		if s.textErr != nil {
			return nil, []byte("syntax error"), s.textErr
		}
		return []byte(s.text), nil, nil
	case "pdftoppm":
		if s.imgErr != nil {
			return nil, []byte("render error"), s.imgErr
		}
		prefix := args[len(args)-1]
		for i := 1; i <= s.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte(fmt.Sprintf("png-%d", i)), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		return []byte(s.ocrText), nil, nil
	}
	return nil, nil, errors.New("unknown command")
}

func (s *stubRunner) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

var pdfBytes = []byte("%PDF-1.7 fake invoice")

func TestProcess_NativePDF(t *testing.T) {
	runner := &stubRunner{text: strings.Repeat("FACTURA A 0001-00001234 ", 40), pages: 2}
	p := New(func(o *Options) { o.Runner = runner })

	doc := p.Process(context.Background(), pdfBytes, "application/pdf", "factura.pdf")

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, []byte("png-1"), doc.Pages[0].Data)
	assert.Equal(t, core.QualityHigh, doc.Quality.Level)
	assert.True(t, doc.Quality.HasText)
	assert.False(t, doc.Quality.IsScanned)
	assert.Empty(t, doc.Warnings)
}

func TestProcess_PageCap(t *testing.T) {
	runner := &stubRunner{text: "short", pages: 12}
	p := New(func(o *Options) {
		o.Runner = runner
		o.MaxPages = 5
	})

	doc := p.Process(context.Background(), pdfBytes, "application/pdf", "long.pdf")

	require.Len(t, doc.Pages, 5)
	for i, pg := range doc.Pages {
		assert.Equal(t, i+1, pg.Number)
		assert.Equal(t, []byte(fmt.Sprintf("png-%d", i+1)), pg.Data)
	}
	assert.Contains(t, runner.lastArgs["pdftoppm"], "5")
}

func TestProcess_RasterizationFailureDegradesToText(t *testing.T) {
	runner := &stubRunner{text: strings.Repeat("x", 600), imgErr: errors.New("exit 1")}
	p := New(func(o *Options) { o.Runner = runner })

	doc := p.Process(context.Background(), pdfBytes, "application/pdf", "f.pdf")

	assert.Empty(t, doc.Pages)
	assert.Equal(t, core.QualityHigh, doc.Quality.Level)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "rasterization")
}

func TestProcess_TextFailureDegradesToImages(t *testing.T) {
	runner := &stubRunner{textErr: errors.New("exit 1"), pages: 1}
	p := New(func(o *Options) { o.Runner = runner })

	doc := p.Process(context.Background(), pdfBytes, "application/pdf", "scan.pdf")

	assert.Equal(t, "", doc.Text)
	assert.Len(t, doc.Pages, 1)
	assert.Equal(t, core.QualityMedium, doc.Quality.Level)
	assert.True(t, doc.Quality.IsScanned)
}

func TestProcess_BothChannelsFail(t *testing.T) {
	runner := &stubRunner{textErr: errors.New("boom"), imgErr: errors.New("boom")}
	p := New(func(o *Options) { o.Runner = runner })

	doc := p.Process(context.Background(), pdfBytes, "application/pdf", "broken.pdf")

	assert.Empty(t, doc.Pages)
	assert.Empty(t, doc.Text)
	assert.Equal(t, core.QualityError, doc.Quality.Level)
	assert.Len(t, doc.Warnings, 2)
}

func TestProcess_ImageBypassesRasterization(t *testing.T) {
	runner := &stubRunner{}
	p := New(func(o *Options) { o.Runner = runner })

	img := []byte("\x89PNG fake")
	doc := p.Process(context.Background(), img, "image/png", "ticket.png")

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, img, doc.Pages[0].Data)
	assert.Equal(t, "image/png", doc.Pages[0].MimeType)
	assert.Equal(t, core.QualityMedium, doc.Quality.Level)
	assert.Zero(t, runner.count("pdftoppm"))
	assert.Zero(t, runner.count("tesseract"))
}

func TestProcess_ImageOCR(t *testing.T) {
	runner := &stubRunner{ocrText: "TOTAL 1210,00"}
	p := New(func(o *Options) {
		o.Runner = runner
		o.EnableOCR = true
	})

	doc := p.Process(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00}, "", "photo.jpg")

	assert.Equal(t, "image/jpeg", doc.MimeType)
	assert.Equal(t, "TOTAL 1210,00", doc.Text)
	assert.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, runner.count("tesseract"))
}

func TestProcess_EmptyInput(t *testing.T) {
	p := New(func(o *Options) { o.Runner = &stubRunner{} })

	doc := p.Process(context.Background(), nil, "application/pdf", "empty.pdf")

	assert.Equal(t, core.QualityError, doc.Quality.Level)
	assert.Empty(t, doc.Pages)
}

func TestProcess_IdempotentClassification(t *testing.T) {
	runner := &stubRunner{text: strings.Repeat("IVA 21% ", 100), pages: 2}
	p := New(func(o *Options) { o.Runner = runner })

	first := p.Process(context.Background(), pdfBytes, "application/pdf", "a.pdf")
	second := p.Process(context.Background(), pdfBytes, "application/pdf", "a.pdf")

	require.Equal(t, core.QualityHigh, first.Quality.Level)
	require.NotEmpty(t, first.Pages)
	assert.Equal(t, first.Quality, second.Quality)
}

func TestProcess_CacheHitSkipsTools(t *testing.T) {
	cache, err := NewCache(1<<20, time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	runner := &stubRunner{text: strings.Repeat("y", 700), pages: 1}
	p := New(func(o *Options) {
		o.Runner = runner
		o.Cache = cache
	})

	first := p.Process(context.Background(), pdfBytes, "application/pdf", "a.pdf")
	cache.Wait()
	second := p.Process(context.Background(), pdfBytes, "application/pdf", "b.pdf")

	assert.Equal(t, first.Quality, second.Quality)
	assert.Equal(t, "b.pdf", second.FileName)
	assert.Equal(t, 1, runner.count("pdftoppm"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		chars   int
		images  int
		level   core.QualityLevel
		scanned bool
	}{
		{"native text", 900, 1, core.QualityHigh, false},
		{"text only", 501, 0, core.QualityHigh, false},
		{"scan", 20, 2, core.QualityMedium, true},
		{"boundary is not high", 500, 1, core.QualityMedium, false},
		{"nothing", 0, 0, core.QualityLow, false},
		{"little text no image", 120, 0, core.QualityLow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Classify(tt.chars, tt.images, 500)
			assert.Equal(t, tt.level, q.Level)
			assert.Equal(t, tt.scanned, q.IsScanned)
			assert.Equal(t, tt.chars > 0, q.HasText)
		})
	}
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType([]byte("%PDF-1.4"), "", "x"))
	assert.Equal(t, "application/pdf", DetectMimeType(nil, "application/octet-stream", "x.PDF"))
	assert.Equal(t, "image/png", DetectMimeType(nil, "image/png; charset=binary", ""))
	assert.Equal(t, "image/webp", DetectMimeType(nil, "", "scan.webp"))
}

func TestSortByPageNumber(t *testing.T) {
	paths := []string{"/t/page-10.png", "/t/page-2.png", "/t/page-1.png"}
	sortByPageNumber(paths)
	assert.Equal(t, []string{"/t/page-1.png", "/t/page-2.png", "/t/page-10.png"}, paths)
}
