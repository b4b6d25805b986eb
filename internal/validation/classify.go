package validation

import (
	"fmt"

	"github.com/sells-group/contract-validator/internal/model"
)

// Classification is the verdict for one line item. Type is empty when the
// item is compliant.
type Classification struct {
	Type        model.ExceptionType
	Severity    model.Severity
	Variance    float64
	Percent     float64
	Description string
	Calculation model.VarianceCalculation
}

// Compliant reports whether no exception is raised.
func (c Classification) Compliant() bool {
	return c.Type == ""
}

// ClassifyUnmatched handles a line item with no usable contract term. The
// whole line total is unexplained spend.
func ClassifyUnmatched(line model.InvoiceLineItem, reason string) Classification {
	desc := fmt.Sprintf("Item %q not found in contract", line.Description)
	if reason != "" {
		desc = fmt.Sprintf("Item %q %s", line.Description, reason)
	}
	return Classification{
		Type:        model.ExceptionUnauthorizedItem,
		Severity:    model.SeverityWarning,
		Variance:    line.TotalPrice,
		Description: desc,
		Calculation: model.VarianceCalculation{
			InvoicePrice:    line.UnitPrice,
			Difference:      line.UnitPrice,
			Quantity:        line.Quantity,
			TotalOvercharge: line.TotalPrice,
		},
	}
}

// ClassifyMatched evaluates a matched line item under p.
func ClassifyMatched(line model.InvoiceLineItem, term model.BillableItem, p Policy) Classification {
	v := EvaluateVariance(line, term, p)
	if !v.Compliant {
		sev := model.SeverityWarning
		if v.Calculation.TotalOvercharge > p.CriticalOverchargeThreshold {
			sev = model.SeverityCritical
		}
		return Classification{
			Type:     model.ExceptionPriceMismatch,
			Severity: sev,
			Variance: v.Calculation.TotalOvercharge,
			Percent:  v.Percent,
			Description: fmt.Sprintf("Price exceeds contract by %.1f%% ($%.2f/unit)",
				v.Percent, v.Calculation.Difference),
			Calculation: v.Calculation,
		}
	}

	if p.CheckQuantityCaps && term.Quantity > 0 && line.Quantity > term.Quantity {
		excess := line.Quantity - term.Quantity
		calc := v.Calculation
		calc.Quantity = excess
		calc.TotalOvercharge = roundTo(excess*line.UnitPrice, 2)
		return Classification{
			Type:     model.ExceptionQuantityExceeded,
			Severity: model.SeverityWarning,
			Variance: calc.TotalOvercharge,
			Description: fmt.Sprintf("Quantity %g exceeds contracted %g %s",
				line.Quantity, term.Quantity, term.Unit),
			Calculation: calc,
		}
	}

	return Classification{Calculation: v.Calculation}
}
