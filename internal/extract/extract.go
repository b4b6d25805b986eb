// Package extract turns document text into structured contract and invoice
// records and validates their shape before they reach the comparison core.
package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/pkg/anthropic"
)

// Extractor produces validated structured records from document text.
// Returned records have passed ValidateContract or ValidateInvoice.
type Extractor interface {
	ExtractContract(ctx context.Context, text string) (*model.ContractData, error)
	ExtractInvoice(ctx context.Context, text string) (*model.InvoiceData, error)
}

// JSONExtractor treats the text as the JSON record itself. It is used for
// fixtures and for documents that were extracted elsewhere.
type JSONExtractor struct{}

// ExtractContract implements Extractor.
func (JSONExtractor) ExtractContract(_ context.Context, text string) (*model.ContractData, error) {
	payload, err := cleanPayload(model.DocumentContract, text)
	if err != nil {
		return nil, err
	}
	return decodeContract(payload)
}

// ExtractInvoice implements Extractor.
func (JSONExtractor) ExtractInvoice(_ context.Context, text string) (*model.InvoiceData, error) {
	payload, err := cleanPayload(model.DocumentInvoice, text)
	if err != nil {
		return nil, err
	}
	return decodeInvoice(payload)
}

// NewExtractor builds the configured extractor. client may be nil for the
// json provider.
func NewExtractor(cfg *config.Config, client anthropic.Client, breakers *resilience.ServiceBreakers) (Extractor, error) {
	switch cfg.Extract.Provider {
	case "json":
		return JSONExtractor{}, nil
	case "llm", "":
		if client == nil {
			return nil, eris.New("extract: llm provider requires an anthropic client")
		}
		opts := []LLMOption{
			WithMaxInputChars(cfg.Extract.MaxInputChars),
			WithCacheTTL(cfg.Anthropic.CacheTTL),
			WithRetry(resilience.RetryFromConfig(cfg.Retry)),
		}
		if cfg.Extract.RequestsPerSec > 0 {
			opts = append(opts, WithRateLimit(rate.Limit(cfg.Extract.RequestsPerSec), cfg.Extract.Burst))
		}
		if breakers != nil {
			opts = append(opts, WithBreaker(breakers.Get("anthropic")))
		}
		return NewLLMExtractor(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, opts...), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Extract.Provider)
	}
}
