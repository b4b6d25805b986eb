package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/model"
)

func run(vendor string, confidence, savings float64, exs ...model.ValidationException) model.ValidationRun {
	var variance float64
	for _, ex := range exs {
		variance += ex.Variance
	}
	return model.ValidationRun{
		VendorName: vendor,
		Result: model.ComparisonResult{
			Confidence:       confidence,
			Exceptions:       exs,
			TotalVariance:    variance,
			PotentialSavings: savings,
		},
	}
}

func ex(t model.ExceptionType, variance float64) model.ValidationException {
	return model.ValidationException{Type: t, Variance: variance}
}

func TestAnalyze(t *testing.T) {
	expired := run("McKesson", 0.9, 0)
	expired.Result.Notices = []model.ValidationException{ex(model.ExceptionExpiredContract, 120)}

	rep := Analyze([]model.ValidationRun{
		run("Cardinal Health", 0.9, 450, ex(model.ExceptionPriceMismatch, 450)),
		run("Cardinal Health", 0.95, 600, ex(model.ExceptionPriceMismatch, 100), ex(model.ExceptionPriceMismatch, 500)),
		run("McKesson", 0.85, 0, ex(model.ExceptionUnauthorizedItem, 35)),
		run("Owens", 1, 0),
		expired,
	})

	assert.Equal(t, Summary{
		InvoicesProcessed: 5,
		TotalExceptions:   4,
		TotalSavings:      1050,
		AverageConfidence: 0.92,
	}, roundSummary(rep.Summary))

	require.Len(t, rep.TopVendorIssues, 2)
	assert.Equal(t, VendorIssue{VendorName: "Cardinal Health", Invoices: 2, ExceptionCount: 3, Overcharges: 3, TotalVariance: 1050}, rep.TopVendorIssues[0])
	assert.Equal(t, "McKesson", rep.TopVendorIssues[1].VendorName)
	assert.Equal(t, 2, rep.TopVendorIssues[1].Invoices)

	require.Len(t, rep.Breakdown, 3)
	assert.Equal(t, TypeBreakdown{Type: model.ExceptionPriceMismatch, Category: "Out of Range", Count: 3, Variance: 1050}, rep.Breakdown[0])
	assert.Equal(t, model.ExceptionExpiredContract, rep.Breakdown[1].Type)
	assert.Equal(t, model.ExceptionUnauthorizedItem, rep.Breakdown[2].Type)

	assert.Equal(t, []string{
		"Renegotiate pricing with Cardinal Health - 3 overcharge instances found ($1050.00 variance)",
		"Review 1 line items billed outside contract terms",
		"Renew or extend contracts - 1 invoices fell outside the contract term",
	}, rep.Recommendations)
}

func TestAnalyze_Empty(t *testing.T) {
	rep := Analyze(nil)
	assert.Equal(t, Summary{}, rep.Summary)
	assert.NotNil(t, rep.TopVendorIssues)
	assert.NotNil(t, rep.Recommendations)
}

func TestAnalyze_AllCompliantLowConfidence(t *testing.T) {
	rep := Analyze([]model.ValidationRun{run("Acme", 0.5, 0), run("", 0.7, 0)})
	assert.Empty(t, rep.TopVendorIssues)
	assert.Equal(t, []string{
		"Spot-check source documents - average extraction confidence is 60%",
		"All invoices comply with contract pricing",
	}, rep.Recommendations)
}

func TestAnalyze_VendorOrderingAndCap(t *testing.T) {
	rep := Analyze([]model.ValidationRun{
		run("B", 1, 0, ex(model.ExceptionPriceMismatch, 10)),
		run("A", 1, 0, ex(model.ExceptionPriceMismatch, 10)),
		run("C", 1, 0, ex(model.ExceptionPriceMismatch, 50)),
		run("D", 1, 0, ex(model.ExceptionPriceMismatch, 5), ex(model.ExceptionQuantityExceeded, 5)),
	})

	var names []string
	for _, v := range rep.TopVendorIssues {
		names = append(names, v.VendorName)
	}
	assert.Equal(t, []string{"D", "C", "A", "B"}, names)

	// Three vendor lines plus the quantity line.
	assert.Len(t, rep.Recommendations, 4)
	assert.Contains(t, rep.Recommendations[3], "exceeded contracted quantities")
}

func roundSummary(s Summary) Summary {
	s.AverageConfidence = float64(int(s.AverageConfidence*100+0.5)) / 100
	return s
}
