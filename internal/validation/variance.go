package validation

import (
	"math"

	"github.com/sells-group/contract-validator/internal/model"
)

// Variance is the price comparison of one line item against its matched term.
type Variance struct {
	Calculation model.VarianceCalculation
	Percent     float64
	Compliant   bool
}

// diffPlaces only absorbs float noise in the unit price difference; the
// overcharge is rounded to cents after multiplying by quantity.
const diffPlaces = 9

// EvaluateVariance compares the invoice unit price to the contract unit
// price. The caller must not pass a term with a non-positive unit price.
func EvaluateVariance(line model.InvoiceLineItem, term model.BillableItem, p Policy) Variance {
	diff := roundTo(line.UnitPrice-term.UnitPrice, diffPlaces)
	v := Variance{
		Calculation: model.VarianceCalculation{
			ContractPrice: term.UnitPrice,
			InvoicePrice:  line.UnitPrice,
			Difference:    diff,
			Quantity:      line.Quantity,
		},
	}
	if diff <= p.PriceTolerance {
		v.Compliant = true
		return v
	}
	v.Percent = diff / term.UnitPrice * 100
	v.Calculation.TotalOvercharge = roundTo(diff*line.Quantity, 2)
	return v
}

// hasValidPrice reports whether a term's unit price can anchor a variance.
func hasValidPrice(term model.BillableItem) bool {
	return term.UnitPrice > 0 && !math.IsNaN(term.UnitPrice) && !math.IsInf(term.UnitPrice, 0)
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
