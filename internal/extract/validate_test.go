package extract

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/model"
)

func TestValidateContract_Coercions(t *testing.T) {
	t.Parallel()

	c := &model.ContractData{
		Confidence:    0.8,
		BillableItems: []model.BillableItem{{Description: "Gloves", UnitPrice: 4.75}},
	}
	require.NoError(t, ValidateContract(c))
	assert.Equal(t, 1, c.BillableItems[0].PageNumber)
	assert.NotNil(t, c.PenaltyClauses)
	assert.NotNil(t, c.ComplianceRequirements)

	empty := &model.ContractData{}
	require.NoError(t, ValidateContract(empty))
	assert.NotNil(t, empty.BillableItems)
}

func TestValidateContract_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *model.ContractData)
		wantMsg string
	}{
		{"confidence above one", func(c *model.ContractData) { c.Confidence = 1.5 }, "confidence 1.5 is outside 0..1"},
		{"negative price", func(c *model.ContractData) { c.BillableItems[0].UnitPrice = -1 }, "unitPrice -1 is negative"},
		{"nan price", func(c *model.ContractData) { c.BillableItems[0].UnitPrice = math.NaN() }, "unitPrice is not a finite number"},
		{"empty description", func(c *model.ContractData) { c.BillableItems[0].Description = " " }, "empty description"},
		{"negative page", func(c *model.ContractData) { c.BillableItems[0].PageNumber = -2 }, "pageNumber -2 is negative"},
		{"item confidence", func(c *model.ContractData) { c.BillableItems[0].Confidence = 2 }, "billableItems[0].confidence"},
		{"dates reversed", func(c *model.ContractData) {
			c.EffectiveDate = model.NewDate(2025, time.January, 1)
			c.ExpirationDate = model.NewDate(2024, time.January, 1)
		}, "is before effectiveDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &model.ContractData{
				Confidence:    0.9,
				BillableItems: []model.BillableItem{{Description: "Gloves", UnitPrice: 4.75}},
			}
			tt.mutate(c)
			err := ValidateContract(c)
			require.Error(t, err)
			assert.True(t, IsShapeError(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateContract_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateContract(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract is null")
}

func TestValidateInvoice(t *testing.T) {
	t.Parallel()

	inv := &model.InvoiceData{
		Confidence: 0.9,
		LineItems: []model.InvoiceLineItem{
			{Description: "Gloves", Quantity: 3, UnitPrice: 1.25},
			{Description: "Masks", Quantity: 1, UnitPrice: 2, TotalPrice: 2, PageNumber: 2},
		},
	}
	require.NoError(t, ValidateInvoice(inv))
	assert.InDelta(t, 3.75, inv.LineItems[0].TotalPrice, 1e-9)
	assert.Equal(t, 1, inv.LineItems[0].PageNumber)
	assert.Equal(t, 2, inv.LineItems[1].PageNumber)

	bad := &model.InvoiceData{
		TotalAmount: -5,
		LineItems:   []model.InvoiceLineItem{{Description: "", Quantity: math.Inf(1)}},
	}
	err := ValidateInvoice(bad)
	require.Error(t, err)

	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.DocumentInvoice, se.Kind)
	assert.Len(t, se.Violations, 3)

	assert.Error(t, ValidateInvoice(nil))
}

func TestCleanPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! {\"a\":{\"b\":2}} Done.", `{"a":{"b":2}}`},
		{"false error flag", `{"error": false, "a": 1}`, `{"error": false, "a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := cleanPayload(model.DocumentInvoice, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCleanPayload_Errors(t *testing.T) {
	t.Parallel()

	_, err := cleanPayload(model.DocumentInvoice, "I cannot read this document.")
	assert.True(t, IsShapeError(err))

	_, err = cleanPayload(model.DocumentInvoice, `{"a": }`)
	assert.True(t, IsShapeError(err))

	_, err = cleanPayload(model.DocumentInvoice, `{"error": true}`)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "error flag set", rej.Reason)
	assert.False(t, IsShapeError(err))
}

func TestCheckSchema(t *testing.T) {
	t.Parallel()

	err := checkSchema(model.DocumentContract, []byte(`{"billableItems": [{"description": "Gloves", "unitPrice": "4.75"}]}`))
	require.Error(t, err)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "/billableItems/0/unitPrice")

	err = checkSchema(model.DocumentInvoice, []byte(`{"vendorName": "Acme"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lineItems")

	assert.NoError(t, checkSchema(model.DocumentContract, []byte(`{"billableItems": []}`)))
}

func TestDecode_BadDate(t *testing.T) {
	t.Parallel()

	_, err := decodeInvoice([]byte(`{"invoiceDate": "someday", "lineItems": []}`))
	assert.True(t, IsShapeError(err))
}
