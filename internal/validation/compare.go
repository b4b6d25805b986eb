package validation

import (
	"fmt"

	"github.com/sells-group/contract-validator/internal/model"
)

// Comparator validates invoices against contracts under a fixed policy and
// match strategy. It holds no per-call state and is safe for concurrent use.
type Comparator struct {
	policy  Policy
	matcher MatchStrategy
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Comparator) { c.policy = p }
}

// WithMatchStrategy overrides the substring matcher.
func WithMatchStrategy(m MatchStrategy) Option {
	return func(c *Comparator) {
		if m != nil {
			c.matcher = m
		}
	}
}

// NewComparator returns a Comparator with the default policy and the
// substring matcher unless overridden.
func NewComparator(opts ...Option) *Comparator {
	c := &Comparator{
		policy:  DefaultPolicy(),
		matcher: SubstringMatcher{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the comparator's policy.
func (c *Comparator) Policy() Policy {
	return c.policy
}

// Compare validates with the default policy and matcher.
func Compare(invoice *model.InvoiceData, contract *model.ContractData, invoiceTokens, contractTokens []model.PositionedToken) model.ComparisonResult {
	return NewComparator().Compare(invoice, contract, invoiceTokens, contractTokens)
}

// Compare checks every invoice line item, in order, against the contract's
// billable items. Findings are returned as data; Compare never fails. Nil
// records are treated as empty.
func (c *Comparator) Compare(invoice *model.InvoiceData, contract *model.ContractData, invoiceTokens, contractTokens []model.PositionedToken) model.ComparisonResult {
	if invoice == nil {
		invoice = &model.InvoiceData{}
	}
	if contract == nil {
		contract = &model.ContractData{}
	}

	res := model.ComparisonResult{
		InvoiceID:      invoice.InvoiceID,
		ContractID:     contract.ContractID,
		Confidence:     min(invoice.Confidence, contract.Confidence),
		Exceptions:     []model.ValidationException{},
		TotalLineItems: len(invoice.LineItems),
		LineItems:      append([]model.InvoiceLineItem(nil), invoice.LineItems...),
	}

	var total float64
	for i, line := range invoice.LineItems {
		var term *model.BillableItem
		var cls Classification

		idx, ok := c.matcher.Match(line.Description, contract.BillableItems)
		switch {
		case !ok:
			cls = ClassifyUnmatched(line, "")
		case !hasValidPrice(contract.BillableItems[idx]):
			cls = ClassifyUnmatched(line, fmt.Sprintf("matched contract term %q which has no valid unit price",
				contract.BillableItems[idx].Description))
		default:
			t := contract.BillableItems[idx]
			term = &t
			cls = ClassifyMatched(line, t, c.policy)
		}

		if cls.Compliant() {
			res.CompliantLineItems++
			continue
		}

		if c.countsTowardTotal(cls.Type) {
			total += cls.Variance
		}
		res.Exceptions = append(res.Exceptions, model.ValidationException{
			Type:         cls.Type,
			Severity:     cls.Severity,
			LineIndex:    i,
			LineItem:     line,
			ContractTerm: term,
			Variance:     cls.Variance,
			Percent:      cls.Percent,
			Description:  cls.Description,
			Proof:        BuildProof(line, term, cls.Calculation, invoiceTokens, contractTokens),
		})
	}

	if c.policy.CheckContractDates && !contract.Covers(invoice.InvoiceDate) {
		res.Notices = append(res.Notices, contractTermNotice(invoice, contract))
	}

	res.TotalVariance = roundTo(total, 2)
	res.PotentialSavings = res.TotalVariance
	res.OverallMatch = len(res.Exceptions) == 0
	return res
}

func (c *Comparator) countsTowardTotal(t model.ExceptionType) bool {
	switch t {
	case model.ExceptionPriceMismatch, model.ExceptionQuantityExceeded:
		return true
	case model.ExceptionUnauthorizedItem:
		return c.policy.IncludeUnauthorizedInTotals
	default:
		return false
	}
}

func contractTermNotice(invoice *model.InvoiceData, contract *model.ContractData) model.ValidationException {
	amount := invoice.TotalAmount
	if amount == 0 {
		amount = invoice.LineTotal()
	}
	term := fmt.Sprintf("%s to %s", orOpen(contract.EffectiveDate), orOpen(contract.ExpirationDate))
	return model.ValidationException{
		Type:      model.ExceptionExpiredContract,
		Severity:  model.SeverityWarning,
		LineIndex: -1,
		Variance:  amount,
		Description: fmt.Sprintf("Invoice dated %s falls outside contract term %s",
			invoice.InvoiceDate, term),
		Proof: model.ProofData{ContractText: "Contract term: " + term},
	}
}

func orOpen(d model.Date) string {
	if d.IsZero() {
		return "open"
	}
	return d.String()
}
