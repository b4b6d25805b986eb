package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/contract-validator/internal/model"
)

// The schemas check structure and types only; value ranges are checked by
// ValidateContract and ValidateInvoice so both extractors report them the
// same way.
const contractSchema = `{
  "type": "object",
  "required": ["billableItems"],
  "properties": {
    "contractId": {"type": ["string", "null"]},
    "vendorName": {"type": ["string", "null"]},
    "effectiveDate": {"type": ["string", "null"]},
    "expirationDate": {"type": ["string", "null"]},
    "paymentTerms": {"type": ["string", "null"]},
    "penaltyClauses": {"type": ["array", "null"], "items": {"type": "string"}},
    "complianceRequirements": {"type": ["array", "null"], "items": {"type": "string"}},
    "confidence": {"type": "number"},
    "pageReferences": {"type": ["object", "null"], "additionalProperties": {"type": "integer"}},
    "billableItems": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description", "unitPrice"],
        "properties": {
          "description": {"type": "string"},
          "unitPrice": {"type": "number"},
          "unit": {"type": ["string", "null"]},
          "quantity": {"type": ["number", "null"]},
          "conditions": {"type": ["string", "null"]},
          "pageNumber": {"type": ["integer", "null"]},
          "confidence": {"type": ["number", "null"]}
        }
      }
    }
  }
}`

const invoiceSchema = `{
  "type": "object",
  "required": ["lineItems"],
  "properties": {
    "invoiceId": {"type": ["string", "null"]},
    "invoiceNumber": {"type": ["string", "null"]},
    "vendorName": {"type": ["string", "null"]},
    "invoiceDate": {"type": ["string", "null"]},
    "dueDate": {"type": ["string", "null"]},
    "totalAmount": {"type": ["number", "null"]},
    "confidence": {"type": "number"},
    "lineItems": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description", "quantity", "unitPrice"],
        "properties": {
          "description": {"type": "string"},
          "quantity": {"type": "number"},
          "unitPrice": {"type": "number"},
          "totalPrice": {"type": ["number", "null"]},
          "pageNumber": {"type": ["integer", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schemas    map[model.DocumentKind]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() (map[model.DocumentKind]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		sources := map[model.DocumentKind]string{
			model.DocumentContract: contractSchema,
			model.DocumentInvoice:  invoiceSchema,
		}
		out := make(map[model.DocumentKind]*jsonschema.Schema, len(sources))
		for kind, src := range sources {
			url := string(kind) + ".json"
			if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
				schemaErr = eris.Wrapf(err, "extract: add %s schema", kind)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				schemaErr = eris.Wrapf(err, "extract: compile %s schema", kind)
				return
			}
			out[kind] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

// checkSchema validates a raw JSON payload against the schema for kind.
// Any mismatch is a *ShapeError.
func checkSchema(kind model.DocumentKind, payload []byte) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return &ShapeError{Kind: kind, Violations: []string{"invalid JSON: " + err.Error()}}
	}

	if err := all[kind].Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ShapeError{Kind: kind, Violations: schemaViolations(ve)}
		}
		return eris.Wrapf(err, "extract: validate %s schema", kind)
	}
	return nil
}

// schemaViolations flattens the error tree to its leaves.
func schemaViolations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, schemaViolations(c)...)
	}
	return out
}
