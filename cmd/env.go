package main

import (
	"context"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/fetcher"
	"github.com/sells-group/contract-validator/internal/ocr"
	"github.com/sells-group/contract-validator/internal/pipeline"
	"github.com/sells-group/contract-validator/internal/publish"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/internal/store"
	"github.com/sells-group/contract-validator/internal/tokens"
	anthropicpkg "github.com/sells-group/contract-validator/pkg/anthropic"
)

// appEnv holds the store and pipeline shared by the commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.RetryFromConfig(cfg.Retry)
}

// initPipeline builds the pipeline for mode. Document readers and the
// extractor are only wired for modes that ingest documents. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode config.Mode) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	policies, err := cfg.Validation.Policies()
	if err != nil {
		return nil, err
	}
	matcher, err := cfg.Validation.Matcher()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Store:         st,
		Publisher:     publish.New(cfg.Notion, retryConfig()),
		Policies:      policies,
		Matcher:       matcher,
		DLQMaxRetries: cfg.Batch.DLQMaxRetry,
	}

	if mode == config.ModeIngest || mode == config.ModeServe {
		if err := wireReaders(p); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	zap.L().Debug("pipeline initialized",
		zap.String("mode", string(mode)),
		zap.String("store", cfg.Store.Driver),
		zap.String("extract", cfg.Extract.Provider),
		zap.Bool("notion", cfg.Notion.Enabled()),
	)
	return &appEnv{Store: st, Pipeline: p}, nil
}

// wireReaders attaches OCR, token and extraction collaborators to p.
func wireReaders(p *pipeline.Pipeline) error {
	textExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return err
	}
	tokenSource, err := tokens.NewSource(cfg.Tokens, textExtractor)
	if err != nil {
		return err
	}

	var client anthropicpkg.Client
	if cfg.Extract.Provider != "json" {
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client = anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
	}
	breakers := resilience.NewServiceBreakers(resilience.CircuitFromConfig(cfg.Circuit))
	extractor, err := extract.NewExtractor(cfg, client, breakers)
	if err != nil {
		return err
	}

	p.OCR = textExtractor
	p.Tokens = tokenSource
	p.Extractor = extractor
	return nil
}

// initResolver builds the source resolver for ingest arguments.
func initResolver() *fetcher.Resolver {
	workDir := cfg.Inbox.DownloadDir
	if workDir == "" {
		workDir = filepath.Join(".", "inbox")
	}
	return fetcher.NewResolver(fetcher.Options{
		WorkDir: workDir,
		FTP:     fetcher.FTPOptions{User: cfg.Inbox.User, Password: cfg.Inbox.Password},
		HTTP:    fetcher.HTTPOptions{Retry: retryConfig()},
	})
}
