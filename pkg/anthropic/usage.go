package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

// Cache writes bill at a premium over input; cache reads at a discount.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.1
)

var pricing = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 1, output: 5},
	"claude-sonnet-4-5-20250929": {input: 3, output: 15},
	"claude-opus-4-1-20250805":   {input: 15, output: 75},
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// EstimateCost returns the USD cost of u on model, or 0 when the model's
// price is unknown.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	perTok := func(n int64, rate float64) float64 { return float64(n) * rate / 1e6 }
	return perTok(u.InputTokens, p.input) +
		perTok(u.OutputTokens, p.output) +
		perTok(u.CacheCreationInputTokens, p.input*cacheWriteMultiplier) +
		perTok(u.CacheReadInputTokens, p.input*cacheReadMultiplier)
}

// LogCost logs the usage of one extraction call.
func (u TokenUsage) LogCost(model, kind string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("document_kind", kind),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
