// Package export writes validation results to an XLSX workbook for finance
// review outside the system.
package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contract-validator/internal/model"
)

const moneyFormat = "#,##0.00"

var summaryHeader = []string{
	"Validation ID", "Invoice", "Contract", "Vendor", "Status", "Overall Match", "Confidence",
	"Line Items", "Compliant", "Exceptions", "Total Variance", "Potential Savings", "Created",
}

var exceptionsHeader = []string{
	"Validation ID", "Invoice", "Vendor", "Exception ID", "Type", "Severity", "Line", "Description",
	"Contract Price", "Invoice Price", "Quantity", "Variance", "Category", "Recommendation",
}

// WriteWorkbook writes a Summary sheet with one row per run and an
// Exceptions sheet with one row per exception or notice.
func WriteWorkbook(path string, runs []model.ValidationRun) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	exceptions, err := f.AddSheet("Exceptions")
	if err != nil {
		return eris.Wrap(err, "export: add exceptions sheet")
	}

	headerRow(summary, summaryHeader)
	headerRow(exceptions, exceptionsHeader)

	for i := range runs {
		run := &runs[i]
		summaryRow(summary.AddRow(), run)
		for _, ex := range run.Result.Exceptions {
			exceptionRow(exceptions.AddRow(), run, ex)
		}
		for _, n := range run.Result.Notices {
			exceptionRow(exceptions.AddRow(), run, n)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func headerRow(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		cell.SetStyle(style)
	}
}

func summaryRow(row *xlsx.Row, run *model.ValidationRun) {
	r := &run.Result
	row.AddCell().SetString(run.ID)
	row.AddCell().SetString(run.InvoiceID)
	row.AddCell().SetString(run.ContractID)
	row.AddCell().SetString(run.VendorName)
	row.AddCell().SetString(string(run.Status))
	row.AddCell().SetBool(r.OverallMatch)
	row.AddCell().SetFloat(r.Confidence)
	row.AddCell().SetInt(r.TotalLineItems)
	row.AddCell().SetInt(r.CompliantLineItems)
	row.AddCell().SetInt(len(r.Exceptions))
	money(row, r.TotalVariance)
	money(row, r.PotentialSavings)
	row.AddCell().SetString(run.CreatedAt.UTC().Format(time.RFC3339))
}

func exceptionRow(row *xlsx.Row, run *model.ValidationRun, ex model.ValidationException) {
	calc := ex.Proof.VarianceCalculation
	row.AddCell().SetString(run.ID)
	row.AddCell().SetString(run.InvoiceID)
	row.AddCell().SetString(run.VendorName)
	row.AddCell().SetString(ex.ID)
	row.AddCell().SetString(ex.Type.Label())
	row.AddCell().SetString(string(ex.Severity))
	if ex.LineIndex >= 0 {
		row.AddCell().SetInt(ex.LineIndex + 1)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(ex.Description)
	money(row, calc.ContractPrice)
	money(row, calc.InvoicePrice)
	row.AddCell().SetFloat(calc.Quantity)
	money(row, ex.Variance)
	row.AddCell().SetString(ex.Type.Category())
	row.AddCell().SetString(ex.Type.Recommendation())
}

func money(row *xlsx.Row, v float64) {
	row.AddCell().SetFloatWithFormat(v, moneyFormat)
}
