package validation

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contract-validator/internal/model"
)

func pageTokens(page int, words ...string) []model.PositionedToken {
	out := make([]model.PositionedToken, len(words))
	x := 10.0
	for i, w := range words {
		width := float64(len(w)) * 6
		out[i] = model.PositionedToken{Text: w, Page: page, X: x, Y: 100, Width: width, Height: 12}
		x += width + 4
	}
	return out
}

func TestFindEvidence(t *testing.T) {
	t.Parallel()

	tokens := pageTokens(1, "Item", "Surgical", "Gloves,", "Size", "L", "$4.75")

	box := FindEvidence(tokens, "Surgical Gloves, Size L", 1)
	first, last := tokens[1], tokens[4]
	assert.Equal(t, model.BoundingBox{
		X:      first.X,
		Y:      first.Y,
		Width:  last.X + last.Width - first.X,
		Height: 12,
	}, box)
}

func TestFindEvidence_WrongPage(t *testing.T) {
	t.Parallel()

	tokens := pageTokens(2, "Surgical", "Gloves")
	assert.True(t, FindEvidence(tokens, "Surgical Gloves", 1).IsZero())
}

func TestFindEvidence_NoMatch(t *testing.T) {
	t.Parallel()

	tokens := pageTokens(1, "Invoice", "Total")
	assert.True(t, FindEvidence(tokens, "Surgical Gloves", 1).IsZero())
	assert.True(t, FindEvidence(tokens, "", 1).IsZero())
	assert.True(t, FindEvidence(nil, "Surgical", 1).IsZero())
}

func TestFindEvidence_PartialRun(t *testing.T) {
	t.Parallel()

	// Only the first two words appear in sequence.
	tokens := pageTokens(1, "Surgical", "Gloves", "Medium")
	box := FindEvidence(tokens, "Surgical Gloves Large", 1)
	assert.Equal(t, tokens[0].X, box.X)
	assert.Equal(t, tokens[1].X+tokens[1].Width-tokens[0].X, box.Width)
}

func TestFindEvidence_LongestRunWins(t *testing.T) {
	t.Parallel()

	tokens := append(pageTokens(1, "Gloves", "Box"), pageTokens(1, "Gloves", "Size", "L")...)
	for i := 2; i < len(tokens); i++ {
		tokens[i].Y = 300
	}
	box := FindEvidence(tokens, "Gloves Size L", 1)
	assert.Equal(t, 300.0, box.Y)
}

func TestFindEvidence_TallestToken(t *testing.T) {
	t.Parallel()

	tokens := pageTokens(3, "N95", "Respirator")
	tokens[1].Height = 18
	box := FindEvidence(tokens, "n95 respirator", 3)
	assert.Equal(t, 18.0, box.Height)
}

func TestFindEvidence_FullWidthText(t *testing.T) {
	t.Parallel()

	tokens := pageTokens(1, "ＳＵＲＧＩＣＡＬ", "Gloves")
	box := FindEvidence(tokens, "Surgical  Gloves", 1)
	assert.False(t, box.IsZero())
	assert.Equal(t, tokens[0].X, box.X)
}

func TestEvidence_Deterministic(t *testing.T) {
	t.Parallel()

	invTokens := pageTokens(1, "Surgical", "Gloves,", "Size", "L", "1000", "$5.20")
	conTokens := pageTokens(7, "Surgical", "Gloves,", "Size", "L", "$4.75", "per", "box")
	invBefore := slices.Clone(invTokens)
	conBefore := slices.Clone(conTokens)

	term := &model.BillableItem{Description: "Surgical Gloves, Size L", UnitPrice: 4.75, Unit: "box", PageNumber: 7}
	line := model.InvoiceLineItem{Description: "Surgical Gloves, Size L", Quantity: 1000, UnitPrice: 5.2, TotalPrice: 5200, PageNumber: 1}
	calc := model.VarianceCalculation{ContractPrice: 4.75, InvoicePrice: 5.2, Difference: 0.45, Quantity: 1000, TotalOvercharge: 450}

	first := FindEvidence(invTokens, line.Description, 1)
	assert.Equal(t, first, FindEvidence(invTokens, line.Description, 1))
	assert.False(t, first.IsZero())

	proof := BuildProof(line, term, calc, invTokens, conTokens)
	assert.Equal(t, proof, BuildProof(line, term, calc, invTokens, conTokens))

	assert.Equal(t, invBefore, invTokens, "invoice tokens must not change")
	assert.Equal(t, conBefore, conTokens, "contract tokens must not change")
}

func TestBuildProof_NoTerm(t *testing.T) {
	t.Parallel()

	line := model.InvoiceLineItem{Description: "Courier", Quantity: 2, UnitPrice: 17.5, TotalPrice: 35, PageNumber: 1}
	proof := BuildProof(line, nil, model.VarianceCalculation{TotalOvercharge: 35}, pageTokens(1, "Courier"), nil)

	assert.Equal(t, noContractTermText, proof.ContractText)
	assert.Equal(t, 0, proof.ContractPageNumber)
	assert.True(t, proof.ContractHighlight.IsZero())
	assert.Equal(t, 1, proof.InvoicePageNumber)
	assert.False(t, proof.InvoiceHighlight.IsZero())
	assert.Equal(t, "Courier\nQuantity: 2\nUnit Price: $17.50\nTotal: $35.00", proof.InvoiceText)
	assert.Equal(t, 35.0, proof.VarianceCalculation.TotalOvercharge)
}

func TestBuildProof_WithTerm(t *testing.T) {
	t.Parallel()

	term := &model.BillableItem{Description: "Syringes", UnitPrice: 0.45, Unit: "each", Conditions: "Min order 100", PageNumber: 8}
	line := model.InvoiceLineItem{Description: "Syringes", Quantity: 100, UnitPrice: 0.5, TotalPrice: 50, PageNumber: 1}

	proof := BuildProof(line, term, model.VarianceCalculation{}, nil, pageTokens(8, "Syringes"))
	assert.Equal(t, 8, proof.ContractPageNumber)
	assert.Equal(t, "Syringes\nUnit Price: $0.45 per each\nMin order 100", proof.ContractText)
	assert.False(t, proof.ContractHighlight.IsZero())
	assert.True(t, proof.InvoiceHighlight.IsZero())
}
