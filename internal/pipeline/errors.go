package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/contract-validator/internal/model"
)

// Processing stages recorded on failed documents and DLQ entries.
const (
	StageRead    = "read"
	StageOCR     = "ocr"
	StageTokens  = "tokens"
	StageExtract = "extract"
	StageStore   = "store"
)

// ProcessingError reports that a document could not be turned into a stored
// record. It is distinct from a validation that found exceptions.
type ProcessingError struct {
	DocumentID string
	Stage      string
	Category   model.ErrorCategory
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("pipeline: document %s failed at %s (%s): %v", e.DocumentID, e.Stage, e.Category, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// AsProcessingError extracts a *ProcessingError from err's chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
