package preprocess

import "github.com/hupe1980/invoicemesh/core"

// scannedCharsPerPage is the text density below which a document with page
// images is considered a scan.
const scannedCharsPerPage = 100

// Classify grades a document from its extracted text length and page image
// count. It is a pure function of its inputs.
//
//	text > highTextChars         => high
//	images present, little text  => medium
//	neither                      => low
func Classify(textChars, images, highTextChars int) core.Quality {
	q := core.Quality{
		HasText:   textChars > 0,
		TextChars: textChars,
		Pages:     images,
	}

	switch {
	case textChars > highTextChars:
		q.Level = core.QualityHigh
	case images > 0:
		q.Level = core.QualityMedium
	default:
		q.Level = core.QualityLow
	}

	if images > 0 && textChars/images < scannedCharsPerPage {
		q.IsScanned = true
	}

	return q
}
