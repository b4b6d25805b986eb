package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/contract-validator/internal/model"
)

// ShapeError reports extracted data that does not have the shape the
// comparison core requires. It is a fault in the input, never a pricing
// finding, and retrying will not fix it.
type ShapeError struct {
	Kind       model.DocumentKind
	Violations []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("extract: invalid %s data: %s", e.Kind, strings.Join(e.Violations, "; "))
}

// IsShapeError reports whether err is or wraps a *ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// RejectedError is returned when the model declines to extract, typically
// because the document is not the expected kind.
type RejectedError struct {
	Kind   model.DocumentKind
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("extract: model rejected %s: %s", e.Kind, e.Reason)
}

type violations []string

func (v *violations) addf(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v violations) err(kind model.DocumentKind) error {
	if len(v) == 0 {
		return nil
	}
	return &ShapeError{Kind: kind, Violations: v}
}
