package pricelist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
)

func writeSheet(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Rates")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"Item", "Unit Price", "UOM", "Qty", "Notes", "Page"},
		{"Surgical Gloves, Size L", "$4.75", "box", "1,000", "", "3"},
		{"N95 Respirator Masks", "1.10", "each", "", "Min order 100", ""},
		{"", "", "", "", "", ""},
	})

	c, err := Load(path, Options{
		ContractID:     "MSA-2024-001",
		VendorName:     "Cardinal Health",
		EffectiveDate:  model.NewDate(2024, time.January, 1),
		ExpirationDate: model.NewDate(2024, time.December, 31),
	})
	require.NoError(t, err)

	assert.Equal(t, "MSA-2024-001", c.ContractID)
	assert.Equal(t, "Cardinal Health", c.VendorName)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Empty(t, c.PenaltyClauses)
	require.Len(t, c.BillableItems, 2)

	assert.Equal(t, model.BillableItem{
		Description: "Surgical Gloves, Size L",
		UnitPrice:   4.75,
		Unit:        "box",
		Quantity:    1000,
		PageNumber:  3,
		Confidence:  1,
	}, c.BillableItems[0])

	// A missing page number is coerced to page 1.
	assert.Equal(t, 1, c.BillableItems[1].PageNumber)
	assert.Equal(t, "Min order 100", c.BillableItems[1].Conditions)
}

func TestLoad_MissingColumns(t *testing.T) {
	path := writeSheet(t, [][]string{{"Item", "Unit"}, {"Gloves", "box"}})
	_, err := Load(path, Options{ContractID: "c-1"})
	assert.ErrorContains(t, err, "needs description and unit price columns")
}

func TestLoad_BadAmount(t *testing.T) {
	path := writeSheet(t, [][]string{{"Description", "Price"}, {"Gloves", "4.75"}, {"Masks", "call us"}})
	_, err := Load(path, Options{ContractID: "c-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data row 2")
	assert.Contains(t, err.Error(), `invalid amount "callus"`)
}

func TestLoad_NegativePriceIsShapeError(t *testing.T) {
	path := writeSheet(t, [][]string{{"Description", "Price"}, {"Refund", "-5"}})
	_, err := Load(path, Options{ContractID: "c-1"})
	assert.True(t, extract.IsShapeError(err))
}

func TestLoad_RequiresContractID(t *testing.T) {
	_, err := Load("unused.xlsx", Options{})
	assert.ErrorContains(t, err, "contract id is required")
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"4.75", 4.75},
		{"$1,234.50", 1234.5},
		{" 12 ", 12},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}
