package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// Well-known field names shared between prompt templates and the response
// parser.
const (
	FieldDocumentType   = "documentType"
	FieldDocumentOrigin = "documentOrigin"
	FieldCurrency       = "currency"
	FieldInvoiceNumber  = "invoiceNumber"
	FieldIssueDate      = "issueDate"
	FieldDueDate        = "dueDate"
	FieldIssuerName     = "issuerName"
	FieldIssuerTaxID    = "issuerTaxId"
	FieldClientName     = "clientName"
	FieldClientTaxID    = "clientTaxId"
	FieldSubtotal       = "subtotal"
	FieldTaxAmount      = "taxAmount"
	FieldTotalAmount    = "totalAmount"
	FieldLineItems      = "lineItems"
	FieldConfidence     = "confidence"
	FieldConflicts      = "conflicts"
)

// CriticalFields are the fields whose absence forces continuation past Stage 2.
var CriticalFields = []string{FieldTotalAmount, FieldInvoiceNumber, FieldIssuerName, FieldClientName}

// ExtractedData is the open field mapping produced by agents. Values are the
// JSON-decoded shapes: string, float64, bool, nil, []any (line items) or
// map[string]any.
type ExtractedData map[string]any

// Clone returns a deep copy so that callers can mutate the result freely.
func (d ExtractedData) Clone() ExtractedData {
	if d == nil {
		return ExtractedData{}
	}
	out := make(ExtractedData, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case ExtractedData:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Has reports whether the field carries a non-empty value.
func (d ExtractedData) Has(field string) bool {
	v, ok := d[field]
	return ok && !IsEmptyValue(v)
}

// String returns the field as a trimmed string, or "" when absent or not a string.
func (d ExtractedData) String(field string) string {
	s, _ := d[field].(string)
	return strings.TrimSpace(s)
}

// Keys returns the field names in sorted order.
func (d ExtractedData) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSON renders the mapping as indented JSON; used for refinement prompts.
func (d ExtractedData) JSON() string {
	if len(d) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MissingCritical returns the critical fields that are absent or empty.
func (d ExtractedData) MissingCritical() []string {
	var missing []string
	for _, f := range CriticalFields {
		if !d.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsEmptyValue reports whether v is null, a blank string or an empty
// collection. Zero numbers and false are real values.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case ExtractedData:
		return len(t) == 0
	default:
		return false
	}
}
