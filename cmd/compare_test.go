package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/model"
)

const testContract = `{
  "contractId": "C-100",
  "vendorName": "Cardinal Health",
  "effectiveDate": "2024-01-01",
  "expirationDate": "2026-12-31",
  "billableItems": [
    {"description": "Surgical Gloves, Size L", "unitPrice": 4.75, "unit": "box"},
    {"description": "N95 Respirator Masks", "unitPrice": 1.10, "unit": "each"}
  ]
}`

const testInvoice = `{
  "invoiceId": "INV-1",
  "invoiceNumber": "INV-1",
  "vendorName": "Cardinal Health",
  "invoiceDate": "2025-03-01",
  "totalAmount": 5310,
  "lineItems": [
    {"description": "Surgical Gloves, Size L", "quantity": 1000, "unitPrice": 5.20, "totalPrice": 5200},
    {"description": "N95 Respirator Masks", "quantity": 100, "unitPrice": 1.10, "totalPrice": 110}
  ]
}`

func setTestConfig(t *testing.T, v config.ValidationConfig) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{Validation: v}
	t.Cleanup(func() { cfg = prev })
}

func defaultValidation() config.ValidationConfig {
	return config.ValidationConfig{
		PriceTolerance:              0.01,
		CriticalOverchargeThreshold: 500,
		MatchStrategy:               "substring",
		CheckQuantityCaps:           true,
		CheckContractDates:          true,
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCompareFiles(t *testing.T) {
	setTestConfig(t, defaultValidation())
	dir := t.TempDir()
	inv := writeFile(t, dir, "invoice.json", testInvoice)
	contract := writeFile(t, dir, "contract.json", testContract)

	result, err := compareFiles(context.Background(), inv, contract)
	require.NoError(t, err)

	assert.False(t, result.OverallMatch)
	assert.Equal(t, 2, result.TotalLineItems)
	assert.Equal(t, 1, result.CompliantLineItems)
	require.Len(t, result.Exceptions, 1)
	assert.Equal(t, model.ExceptionPriceMismatch, result.Exceptions[0].Type)
	assert.Equal(t, model.SeverityWarning, result.Exceptions[0].Severity)
	assert.InDelta(t, 450.0, result.TotalVariance, 0.001)
}

func TestCompareFiles_LowerThreshold(t *testing.T) {
	v := defaultValidation()
	v.CriticalOverchargeThreshold = 100
	setTestConfig(t, v)
	dir := t.TempDir()
	inv := writeFile(t, dir, "invoice.json", testInvoice)
	contract := writeFile(t, dir, "contract.json", testContract)

	result, err := compareFiles(context.Background(), inv, contract)
	require.NoError(t, err)
	require.Len(t, result.Exceptions, 1)
	assert.Equal(t, model.SeverityCritical, result.Exceptions[0].Severity)
}

func TestCompareFiles_Errors(t *testing.T) {
	setTestConfig(t, defaultValidation())
	dir := t.TempDir()
	contract := writeFile(t, dir, "contract.json", testContract)
	bad := writeFile(t, dir, "bad.json", `{"vendorName": "x"}`)

	_, err := compareFiles(context.Background(), filepath.Join(dir, "missing.json"), contract)
	assert.Error(t, err)

	_, err = compareFiles(context.Background(), bad, contract)
	assert.Error(t, err)

	inv := writeFile(t, dir, "invoice.json", testInvoice)
	_, err = compareFiles(context.Background(), inv, bad)
	assert.Error(t, err)
}
