package validation

import (
	"fmt"
	"strings"

	"github.com/sells-group/contract-validator/internal/model"
)

const noContractTermText = "No matching term found in contract"

// FindEvidence locates searchText on the given page. It finds the longest
// run of consecutive tokens where each token contains the next word of
// searchText, compared after the same normalization the matchers use, and
// returns the union box of that run. The
// earliest run wins ties. A zero box means nothing matched.
//
// The box takes x and y from the first token, spans to the right edge of the
// last token, and is as tall as the tallest token. Wrapped lines are not
// handled.
func FindEvidence(tokens []model.PositionedToken, searchText string, page int) model.BoundingBox {
	words := strings.Fields(normalize(searchText))
	if len(words) == 0 {
		return model.BoundingBox{}
	}

	onPage := make([]model.PositionedToken, 0, len(tokens))
	lowered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Page == page {
			onPage = append(onPage, tok)
			lowered = append(lowered, normalize(tok.Text))
		}
	}

	bestStart, bestLen := -1, 0
	for start := range onPage {
		n := 0
		for start+n < len(onPage) && n < len(words) && strings.Contains(lowered[start+n], words[n]) {
			n++
		}
		if n > bestLen {
			bestStart, bestLen = start, n
			if n == len(words) {
				break
			}
		}
	}
	if bestLen == 0 {
		return model.BoundingBox{}
	}

	run := onPage[bestStart : bestStart+bestLen]
	first, last := run[0], run[len(run)-1]
	box := model.BoundingBox{
		X:     first.X,
		Y:     first.Y,
		Width: last.X + last.Width - first.X,
	}
	for _, tok := range run {
		box.Height = max(box.Height, tok.Height)
	}
	return box
}

// BuildProof assembles the evidence for a finding. term is nil when the line
// item has no usable contract term.
func BuildProof(line model.InvoiceLineItem, term *model.BillableItem, calc model.VarianceCalculation,
	invoiceTokens, contractTokens []model.PositionedToken) model.ProofData {
	proof := model.ProofData{
		InvoicePageNumber:   line.PageNumber,
		InvoiceText:         invoiceText(line),
		InvoiceHighlight:    FindEvidence(invoiceTokens, line.Description, line.PageNumber),
		VarianceCalculation: calc,
	}

	if term == nil {
		proof.ContractText = noContractTermText
		return proof
	}

	proof.ContractPageNumber = term.PageNumber
	proof.ContractText = contractText(*term)
	proof.ContractHighlight = FindEvidence(contractTokens, term.Description, term.PageNumber)
	return proof
}

func invoiceText(li model.InvoiceLineItem) string {
	return fmt.Sprintf("%s\nQuantity: %g\nUnit Price: $%.2f\nTotal: $%.2f",
		li.Description, li.Quantity, li.UnitPrice, li.TotalPrice)
}

func contractText(term model.BillableItem) string {
	text := fmt.Sprintf("%s\nUnit Price: $%.2f", term.Description, term.UnitPrice)
	if term.Unit != "" {
		text += " per " + term.Unit
	}
	if term.Conditions != "" {
		text += "\n" + term.Conditions
	}
	return text
}
