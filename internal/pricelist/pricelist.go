// Package pricelist imports contract rate sheets kept as spreadsheets.
package pricelist

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/fetcher"
	"github.com/sells-group/contract-validator/internal/model"
)

// Options describes the contract the rate sheet belongs to.
type Options struct {
	ContractID     string
	VendorName     string
	EffectiveDate  model.Date
	ExpirationDate model.Date
	PaymentTerms   string
	SheetName      string
	SkipRows       int
}

// column aliases, matched case-insensitively against the header row.
var columns = map[string][]string{
	"description": {"description", "item", "service", "product"},
	"unitPrice":   {"unit price", "unit_price", "price", "rate"},
	"unit":        {"unit", "uom", "unit of measure"},
	"quantity":    {"quantity", "qty", "max quantity", "cap"},
	"conditions":  {"conditions", "notes", "terms"},
	"page":        {"page", "page number"},
}

// Load reads the rate sheet at path into a contract. The sheet needs a header
// row with at least a description and a unit price column. The result has
// passed the same shape checks as an extracted contract.
func Load(path string, opts Options) (*model.ContractData, error) {
	if opts.ContractID == "" {
		return nil, eris.New("pricelist: contract id is required")
	}

	table, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{
		SheetName: opts.SheetName,
		HasHeader: true,
		SkipRows:  opts.SkipRows,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pricelist: read %s", path)
	}

	idx := resolveColumns(table)
	if idx["description"] < 0 || idx["unitPrice"] < 0 {
		return nil, eris.Errorf("pricelist: %s needs description and unit price columns, found %v", path, table.Header)
	}

	c := &model.ContractData{
		ContractID:     opts.ContractID,
		VendorName:     opts.VendorName,
		EffectiveDate:  opts.EffectiveDate,
		ExpirationDate: opts.ExpirationDate,
		PaymentTerms:   opts.PaymentTerms,
		Confidence:     1,
	}

	for i, row := range table.Rows {
		item, err := parseRow(row, idx)
		if err != nil {
			return nil, eris.Wrapf(err, "pricelist: data row %d", i+1)
		}
		if item.Description == "" {
			continue
		}
		c.BillableItems = append(c.BillableItems, item)
	}

	if err := extract.ValidateContract(c); err != nil {
		return nil, err
	}
	return c, nil
}

func resolveColumns(t *fetcher.Table) map[string]int {
	idx := make(map[string]int, len(columns))
	for field, aliases := range columns {
		idx[field] = -1
		for _, a := range aliases {
			if i := t.Column(a); i >= 0 {
				idx[field] = i
				break
			}
		}
	}
	return idx
}

func parseRow(row []string, idx map[string]int) (model.BillableItem, error) {
	cell := func(field string) string {
		i := idx[field]
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	item := model.BillableItem{
		Description: cell("description"),
		Unit:        cell("unit"),
		Conditions:  cell("conditions"),
		Confidence:  1,
	}
	if item.Description == "" {
		return item, nil
	}

	var err error
	if item.UnitPrice, err = parseAmount(cell("unitPrice")); err != nil {
		return item, eris.Wrap(err, "unit price")
	}
	if item.Quantity, err = parseAmount(cell("quantity")); err != nil {
		return item, eris.Wrap(err, "quantity")
	}
	if p := cell("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return item, eris.Wrapf(err, "page %q", p)
		}
		item.PageNumber = n
	}
	return item, nil
}

// parseAmount accepts "$1,234.50" style values. Blank is zero.
func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("invalid amount %q", s)
	}
	return v, nil
}
