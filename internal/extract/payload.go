package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/contract-validator/internal/model"
)

// cleanPayload isolates the JSON object in a model response: code fences are
// dropped and everything outside the outermost braces is trimmed. A
// top-level "error" member means the model refused the document.
func cleanPayload(kind model.DocumentKind, raw string) ([]byte, error) {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, &ShapeError{Kind: kind, Violations: []string{"response contains no JSON object"}}
	}
	payload := []byte(s[start : end+1])

	var probe struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &ShapeError{Kind: kind, Violations: []string{"invalid JSON: " + err.Error()}}
	}
	if reason := errorReason(probe.Error); reason != "" {
		return nil, &RejectedError{Kind: kind, Reason: reason}
	}
	return payload, nil
}

func errorReason(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	case bool:
		if e {
			return "error flag set"
		}
		return ""
	default:
		return fmt.Sprint(e)
	}
}

// decodeContract runs the schema check, decodes and validates.
func decodeContract(payload []byte) (*model.ContractData, error) {
	if err := checkSchema(model.DocumentContract, payload); err != nil {
		return nil, err
	}
	var c model.ContractData
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, &ShapeError{Kind: model.DocumentContract, Violations: []string{err.Error()}}
	}
	if err := ValidateContract(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// decodeInvoice runs the schema check, decodes and validates.
func decodeInvoice(payload []byte) (*model.InvoiceData, error) {
	if err := checkSchema(model.DocumentInvoice, payload); err != nil {
		return nil, err
	}
	var inv model.InvoiceData
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, &ShapeError{Kind: model.DocumentInvoice, Violations: []string{err.Error()}}
	}
	if err := ValidateInvoice(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
