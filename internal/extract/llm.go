package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/ocr"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/pkg/anthropic"
)

const (
	defaultMaxInputChars = 15000
	defaultMaxTokens     = 4096
)

// LLMExtractor extracts records with a Claude model. Calls are rate limited,
// retried on transient failures and guarded by a circuit breaker.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxChars  int
	cacheTTL  string
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// LLMOption configures an LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithMaxInputChars caps the document text sent to the model.
func WithMaxInputChars(n int) LLMOption {
	return func(e *LLMExtractor) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// WithCacheTTL sets the prompt cache TTL ("5m" or "1h").
func WithCacheTTL(ttl string) LLMOption {
	return func(e *LLMExtractor) { e.cacheTTL = ttl }
}

// WithRateLimit throttles model calls.
func WithRateLimit(limit rate.Limit, burst int) LLMOption {
	return func(e *LLMExtractor) { e.limiter = rate.NewLimiter(limit, max(burst, 1)) }
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg resilience.RetryConfig) LLMOption {
	return func(e *LLMExtractor) { e.retry = cfg }
}

// WithBreaker guards calls with cb.
func WithBreaker(cb *resilience.CircuitBreaker) LLMOption {
	return func(e *LLMExtractor) { e.breaker = cb }
}

// NewLLMExtractor creates an extractor that calls model through client.
func NewLLMExtractor(client anthropic.Client, model string, maxTokens int64, opts ...LLMOption) *LLMExtractor {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	e := &LLMExtractor{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		maxChars:  defaultMaxInputChars,
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breaker == nil {
		e.breaker = resilience.NewCircuitBreaker("anthropic", resilience.DefaultCircuitBreakerConfig())
	}
	e.retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return e
}

// ExtractContract implements Extractor.
func (e *LLMExtractor) ExtractContract(ctx context.Context, text string) (*model.ContractData, error) {
	raw, err := e.complete(ctx, model.DocumentContract, contractPrompt, text)
	if err != nil {
		return nil, err
	}
	payload, err := cleanPayload(model.DocumentContract, raw)
	if err != nil {
		return nil, err
	}
	return decodeContract(payload)
}

// ExtractInvoice implements Extractor.
func (e *LLMExtractor) ExtractInvoice(ctx context.Context, text string) (*model.InvoiceData, error) {
	raw, err := e.complete(ctx, model.DocumentInvoice, invoicePrompt, text)
	if err != nil {
		return nil, err
	}
	payload, err := cleanPayload(model.DocumentInvoice, raw)
	if err != nil {
		return nil, err
	}
	return decodeInvoice(payload)
}

func (e *LLMExtractor) complete(ctx context.Context, kind model.DocumentKind, prompt, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &ShapeError{Kind: kind, Violations: []string{"document text is empty"}}
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(prompt, e.cacheTTL),
		Messages: []anthropic.Message{
			{Role: "user", Content: withPageMarkers(truncate(text, e.maxChars))},
		},
		Prefill:     "{",
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "extract: rate limit wait")
			}
		}
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			resp, err := e.client.CreateMessage(ctx, req)
			if err != nil {
				return nil, resilience.WrapStatus(err, anthropic.StatusCode(err))
			}
			return resp, nil
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "extract: %s", kind)
	}

	resp.Usage.LogCost(e.model, string(kind))
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("extract: response hit max_tokens",
			zap.String("kind", string(kind)),
			zap.Int64("max_tokens", e.maxTokens),
		)
	}
	return resp.Text(), nil
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// withPageMarkers labels form-feed separated pages so the model can report
// page numbers.
func withPageMarkers(text string) string {
	pages := ocr.Pages(text)
	if len(pages) == 1 {
		return "--- Page 1 ---\n" + pages[0]
	}
	var b strings.Builder
	for i, p := range pages {
		fmt.Fprintf(&b, "--- Page %d ---\n%s\n", i+1, p)
	}
	return b.String()
}
