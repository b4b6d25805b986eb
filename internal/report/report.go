// Package report aggregates validation runs into a portfolio-level analysis.
package report

import (
	"fmt"
	"sort"

	"github.com/sells-group/contract-validator/internal/model"
)

// lowConfidence is the average extraction confidence below which the report
// asks for a manual spot-check.
const lowConfidence = 0.8

// maxVendorRecommendations caps the per-vendor renegotiation advice.
const maxVendorRecommendations = 3

// Summary holds totals across all runs.
type Summary struct {
	InvoicesProcessed int     `json:"totalInvoicesProcessed"`
	TotalExceptions   int     `json:"totalExceptions"`
	TotalSavings      float64 `json:"totalSavings"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// VendorIssue is one vendor's share of the exceptions.
type VendorIssue struct {
	VendorName     string  `json:"vendorName"`
	Invoices       int     `json:"invoices"`
	ExceptionCount int     `json:"exceptionCount"`
	Overcharges    int     `json:"overcharges"`
	TotalVariance  float64 `json:"totalVariance"`
}

// TypeBreakdown totals findings of one exception type, notices included.
type TypeBreakdown struct {
	Type     model.ExceptionType `json:"type"`
	Category string              `json:"category"`
	Count    int                 `json:"count"`
	Variance float64             `json:"variance"`
}

// AnalysisReport is the result of Analyze.
type AnalysisReport struct {
	Summary         Summary         `json:"summary"`
	TopVendorIssues []VendorIssue   `json:"topVendorIssues"`
	Breakdown       []TypeBreakdown `json:"categoryBreakdown"`
	Recommendations []string        `json:"recommendations"`
}

// Analyze summarizes runs. Pass the latest run per invoice/contract pair;
// superseded runs would be counted twice.
func Analyze(runs []model.ValidationRun) AnalysisReport {
	rep := AnalysisReport{
		TopVendorIssues: []VendorIssue{},
		Breakdown:       []TypeBreakdown{},
		Recommendations: []string{},
	}
	if len(runs) == 0 {
		return rep
	}

	vendors := make(map[string]*VendorIssue)
	types := make(map[model.ExceptionType]*TypeBreakdown)
	var confidence float64

	tally := func(ex model.ValidationException) {
		tb, ok := types[ex.Type]
		if !ok {
			tb = &TypeBreakdown{Type: ex.Type, Category: ex.Type.Category()}
			types[ex.Type] = tb
		}
		tb.Count++
		tb.Variance += ex.Variance
	}

	for i := range runs {
		r := &runs[i].Result
		rep.Summary.InvoicesProcessed++
		rep.Summary.TotalExceptions += len(r.Exceptions)
		rep.Summary.TotalSavings += r.PotentialSavings
		confidence += r.Confidence

		name := runs[i].VendorName
		if name == "" {
			name = "Unknown vendor"
		}
		v, ok := vendors[name]
		if !ok {
			v = &VendorIssue{VendorName: name}
			vendors[name] = v
		}
		v.Invoices++
		v.ExceptionCount += len(r.Exceptions)
		v.TotalVariance += r.TotalVariance

		for _, ex := range r.Exceptions {
			if ex.Type == model.ExceptionPriceMismatch {
				v.Overcharges++
			}
			tally(ex)
		}
		for _, n := range r.Notices {
			tally(n)
		}
	}
	rep.Summary.AverageConfidence = confidence / float64(len(runs))

	for _, v := range vendors {
		if v.ExceptionCount > 0 {
			rep.TopVendorIssues = append(rep.TopVendorIssues, *v)
		}
	}
	sort.Slice(rep.TopVendorIssues, func(i, j int) bool {
		a, b := rep.TopVendorIssues[i], rep.TopVendorIssues[j]
		if a.ExceptionCount != b.ExceptionCount {
			return a.ExceptionCount > b.ExceptionCount
		}
		if a.TotalVariance != b.TotalVariance {
			return a.TotalVariance > b.TotalVariance
		}
		return a.VendorName < b.VendorName
	})

	for _, tb := range types {
		rep.Breakdown = append(rep.Breakdown, *tb)
	}
	sort.Slice(rep.Breakdown, func(i, j int) bool {
		a, b := rep.Breakdown[i], rep.Breakdown[j]
		if a.Variance != b.Variance {
			return a.Variance > b.Variance
		}
		return a.Type < b.Type
	})

	rep.Recommendations = recommend(rep, types)
	return rep
}

func recommend(rep AnalysisReport, types map[model.ExceptionType]*TypeBreakdown) []string {
	out := []string{}

	n := 0
	for _, v := range rep.TopVendorIssues {
		if n == maxVendorRecommendations {
			break
		}
		if v.Overcharges == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("Renegotiate pricing with %s - %d overcharge instances found ($%.2f variance)",
			v.VendorName, v.Overcharges, v.TotalVariance))
		n++
	}

	if tb := types[model.ExceptionUnauthorizedItem]; tb != nil {
		out = append(out, fmt.Sprintf("Review %d line items billed outside contract terms", tb.Count))
	}
	if tb := types[model.ExceptionQuantityExceeded]; tb != nil {
		out = append(out, fmt.Sprintf("Reconcile purchase orders - %d lines exceeded contracted quantities", tb.Count))
	}
	if tb := types[model.ExceptionExpiredContract]; tb != nil {
		out = append(out, fmt.Sprintf("Renew or extend contracts - %d invoices fell outside the contract term", tb.Count))
	}
	if rep.Summary.AverageConfidence < lowConfidence {
		out = append(out, fmt.Sprintf("Spot-check source documents - average extraction confidence is %.0f%%",
			rep.Summary.AverageConfidence*100))
	}
	if rep.Summary.TotalExceptions == 0 && len(types) == 0 {
		out = append(out, "All invoices comply with contract pricing")
	}
	return out
}
