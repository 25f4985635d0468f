package agent

import (
	"testing"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferMetadata(t *testing.T) {
	tests := []struct {
		file    string
		docType any
		number  any
		origin  any
	}{
		{"Factura_A_0001-00001234.pdf", "factura_a", "0001-00001234", "argentina"},
		{"factura-tipo-b.pdf", "factura_b", nil, "argentina"},
		{"nota de credito 12.pdf", "nota_credito", nil, nil},
		{"ACME invoice 2024.pdf", "commercial_invoice", nil, nil},
		{"proforma_77.png", "proforma", nil, nil},
		{"scan.pdf", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data := InferMetadata(testutil.NewDocumentBuilder(tt.file).Build())
			assert.Equal(t, tt.docType, data[core.FieldDocumentType])
			assert.Equal(t, tt.number, data[core.FieldInvoiceNumber])
			assert.Equal(t, tt.origin, data["originHint"])
		})
	}
}

func TestInferMetadata_SourceFields(t *testing.T) {
	doc := testutil.NewDocumentBuilder("x.pdf").Pages(3).Quality(core.QualityMedium).Build()
	doc.Quality.IsScanned = true

	data := InferMetadata(doc)

	assert.Equal(t, "application/pdf", data["sourceMimeType"])
	assert.InDelta(t, 3.0, data["sourcePages"], 1e-9)
	assert.Equal(t, "medium", data["sourceQuality"])
	assert.Equal(t, true, data["scanned"])

	require.NotNil(t, InferMetadata(nil))
	assert.Empty(t, InferMetadata(nil))
}

func TestValidateData(t *testing.T) {
	violations, err := ValidateData(core.ExtractedData{
		core.FieldInvoiceNumber: "0001-00000001",
		core.FieldTotalAmount:   "1.210,50",
		core.FieldSubtotal:      1000.0,
		core.FieldLineItems:     []any{map[string]any{"description": "x"}},
		"extra":                 true,
	})
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = ValidateData(core.ExtractedData{
		core.FieldTotalAmount: true,
		core.FieldIssuerName:  42.0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, violations)
	for _, v := range violations {
		assert.Regexp(t, `^(totalAmount|issuerName): `, v)
	}
}
