package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/contract-validator/internal/model"
)

// ValidateContract checks a contract record at the boundary. It coerces
// what can be coerced in place (nil slices to empty, a missing page number
// to 1) and returns a *ShapeError listing everything else.
func ValidateContract(c *model.ContractData) error {
	var v violations
	if c == nil {
		v.addf("contract is null")
		return v.err(model.DocumentContract)
	}

	if c.BillableItems == nil {
		c.BillableItems = []model.BillableItem{}
	}
	if c.PenaltyClauses == nil {
		c.PenaltyClauses = []string{}
	}
	if c.ComplianceRequirements == nil {
		c.ComplianceRequirements = []string{}
	}
	checkConfidence(&v, "confidence", c.Confidence)
	if !c.EffectiveDate.IsZero() && !c.ExpirationDate.IsZero() && c.ExpirationDate.Before(c.EffectiveDate.Time) {
		v.addf("expirationDate %s is before effectiveDate %s", c.ExpirationDate, c.EffectiveDate)
	}

	for i := range c.BillableItems {
		item := &c.BillableItems[i]
		if strings.TrimSpace(item.Description) == "" {
			v.addf("billableItems[%d]: empty description", i)
		}
		checkAmount(&v, i, "billableItems", "unitPrice", item.UnitPrice)
		checkAmount(&v, i, "billableItems", "quantity", item.Quantity)
		item.PageNumber = checkPage(&v, i, "billableItems", item.PageNumber)
		if item.Confidence != 0 {
			checkConfidence(&v, fmt.Sprintf("billableItems[%d].confidence", i), item.Confidence)
		}
	}
	return v.err(model.DocumentContract)
}

// ValidateInvoice checks an invoice record at the boundary. A zero line
// total is recomputed from quantity and unit price.
func ValidateInvoice(inv *model.InvoiceData) error {
	var v violations
	if inv == nil {
		v.addf("invoice is null")
		return v.err(model.DocumentInvoice)
	}

	if inv.LineItems == nil {
		inv.LineItems = []model.InvoiceLineItem{}
	}
	checkConfidence(&v, "confidence", inv.Confidence)
	if inv.TotalAmount < 0 || math.IsNaN(inv.TotalAmount) {
		v.addf("totalAmount %v is negative", inv.TotalAmount)
	}

	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if strings.TrimSpace(li.Description) == "" {
			v.addf("lineItems[%d]: empty description", i)
		}
		checkAmount(&v, i, "lineItems", "quantity", li.Quantity)
		checkAmount(&v, i, "lineItems", "unitPrice", li.UnitPrice)
		checkAmount(&v, i, "lineItems", "totalPrice", li.TotalPrice)
		if li.TotalPrice == 0 {
			li.TotalPrice = math.Round(li.Quantity*li.UnitPrice*100) / 100
		}
		li.PageNumber = checkPage(&v, i, "lineItems", li.PageNumber)
	}
	return v.err(model.DocumentInvoice)
}

func checkAmount(v *violations, i int, list, field string, x float64) {
	switch {
	case math.IsNaN(x) || math.IsInf(x, 0):
		v.addf("%s[%d]: %s is not a finite number", list, i, field)
	case x < 0:
		v.addf("%s[%d]: %s %v is negative", list, i, field, x)
	}
}

func checkPage(v *violations, i int, list string, page int) int {
	if page < 0 {
		v.addf("%s[%d]: pageNumber %d is negative", list, i, page)
		return page
	}
	return max(page, 1)
}

func checkConfidence(v *violations, field string, c float64) {
	if c < 0 || c > 1 || math.IsNaN(c) {
		v.addf("%s %v is outside 0..1", field, c)
	}
}
