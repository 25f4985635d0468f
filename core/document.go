package core

// QualityLevel grades how much usable signal a pre-processed document carries.
type QualityLevel string

const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
	QualityError  QualityLevel = "error"
)

// Quality is the pre-processor's classification of a document.
type Quality struct {
	HasText   bool         `json:"hasText"`
	IsScanned bool         `json:"isScanned"`
	Level     QualityLevel `json:"quality"`
	TextChars int          `json:"textChars"`
	Pages     int          `json:"pages"`
}

// Page is one rasterized page image, page 1 first.
type Page struct {
	Number   int    `json:"number"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// Document is the pre-processor output fed to the controller.
type Document struct {
	ID       string   `json:"id"`
	FileName string   `json:"fileName"`
	MimeType string   `json:"mimeType"`
	Pages    []Page   `json:"pages"`
	Text     string   `json:"-"`
	Quality  Quality  `json:"quality"`
	Warnings []string `json:"warnings,omitempty"`
}

// FirstPage returns the first page image when one exists.
func (d *Document) FirstPage() (Page, bool) {
	if d == nil || len(d.Pages) == 0 {
		return Page{}, false
	}
	return d.Pages[0], true
}
