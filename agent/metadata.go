package agent

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hupe1980/invoicemesh/core"
)

// MetadataConfidence is the fixed confidence of the metadata inference agent.
const MetadataConfidence = 60

var (
	reFacturaLetter = regexp.MustCompile(`(?i)factura[\s_\-]*(?:tipo[\s_\-]*)?([abcem])(?:[^a-z]|$)`)
	reCreditNote    = regexp.MustCompile(`(?i)nota[\s_\-]*(?:de[\s_\-]*)?cr[eé]dito`)
	reDebitNote     = regexp.MustCompile(`(?i)nota[\s_\-]*(?:de[\s_\-]*)?d[eé]bito`)
	reAfipNumber    = regexp.MustCompile(`(\d{4,5})[\-_](\d{8})`)
	reCUIT          = regexp.MustCompile(`(?:^|[^0-9])(\d{2})-?(\d{8})-?(\d)(?:[^0-9]|$)`)
)

// InferMetadata derives hints from the document's file name, MIME type and
// pre-processing quality without calling a completion backend.
func InferMetadata(doc *core.Document) core.ExtractedData {
	data := core.ExtractedData{}
	if doc == nil {
		return data
	}

	base := strings.TrimSuffix(filepath.Base(doc.FileName), filepath.Ext(doc.FileName))
	lower := strings.ToLower(base)

	switch {
	case reCreditNote.MatchString(base):
		data[core.FieldDocumentType] = "nota_credito"
	case reDebitNote.MatchString(base):
		data[core.FieldDocumentType] = "nota_debito"
	default:
		if m := reFacturaLetter.FindStringSubmatch(base); m != nil {
			data[core.FieldDocumentType] = "factura_" + strings.ToLower(m[1])
		} else if strings.Contains(lower, "proforma") {
			data[core.FieldDocumentType] = "proforma"
		} else if strings.Contains(lower, "invoice") {
			data[core.FieldDocumentType] = "commercial_invoice"
		} else if strings.Contains(lower, "recibo") || strings.Contains(lower, "receipt") {
			data[core.FieldDocumentType] = "recibo"
		}
	}

	if m := reAfipNumber.FindStringSubmatch(base); m != nil {
		data[core.FieldInvoiceNumber] = m[1] + "-" + m[2]
	}
	if m := reCUIT.FindStringSubmatch(base); m != nil && m[1] != "" {
		data[core.FieldIssuerTaxID] = m[1] + "-" + m[2] + "-" + m[3]
	}

	if strings.Contains(lower, "factura") || strings.Contains(lower, "afip") || data.Has(core.FieldIssuerTaxID) {
		data["originHint"] = "argentina"
	}

	data["sourceMimeType"] = doc.MimeType
	data["sourcePages"] = float64(len(doc.Pages))
	data["sourceQuality"] = string(doc.Quality.Level)
	data["scanned"] = doc.Quality.IsScanned

	return data
}
