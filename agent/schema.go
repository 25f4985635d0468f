package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	nullableString = map[string]any{"type": []any{"string", "null"}}
	amount         = map[string]any{
		"anyOf": []any{
			map[string]any{"type": "number"},
			map[string]any{"type": "string", "pattern": `^[^A-Za-z]*[0-9][^A-Za-z]*$`},
			map[string]any{"type": "null"},
		},
	}
)

// extractionSchema pins the JSON types of the well-known fields. Unknown
// fields are accepted untouched.
var extractionSchema = map[string]any{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type":    "object",
	"properties": map[string]any{
		core.FieldDocumentType:   nullableString,
		core.FieldDocumentOrigin: nullableString,
		core.FieldCurrency:       nullableString,
		core.FieldInvoiceNumber:  map[string]any{"type": []any{"string", "number", "null"}},
		core.FieldIssueDate:      nullableString,
		core.FieldDueDate:        nullableString,
		core.FieldIssuerName:     nullableString,
		core.FieldIssuerTaxID:    map[string]any{"type": []any{"string", "number", "null"}},
		core.FieldClientName:     nullableString,
		core.FieldClientTaxID:    map[string]any{"type": []any{"string", "number", "null"}},
		core.FieldSubtotal:       amount,
		core.FieldTaxAmount:      amount,
		core.FieldTotalAmount:    amount,
		core.FieldLineItems: map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "object"},
		},
	},
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	errSchema      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(extractionSchema)
		if err != nil {
			errSchema = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
			errSchema = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, errSchema = compiler.Compile("extraction.json")
	})
	return compiledSchema, errSchema
}

// ValidateData checks the field types of data and returns one message per
// violation, sorted. A nil result means data conforms.
func ValidateData(data core.ExtractedData) ([]string, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	// round-trip so that every value has the shape the validator expects
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}

	err = schema.Validate(v)
	if err == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []string
	collectViolations(ve, seen, &out)
	sort.Strings(out)

	return out, nil
}

func collectViolations(ve *jsonschema.ValidationError, seen map[string]struct{}, out *[]string) {
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if i := strings.IndexByte(field, '/'); i >= 0 {
			field = field[:i]
		}
		if field == "" {
			field = "$"
		}
		msg := field + ": " + ve.Message
		if _, dup := seen[msg]; !dup {
			seen[msg] = struct{}{}
			*out = append(*out, msg)
		}
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, seen, out)
	}
}
