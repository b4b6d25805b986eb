package fetcher

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-validator/internal/resilience"
)

const (
	// maxDownloadBytes caps a single downloaded document.
	maxDownloadBytes = 256 << 20

	// maxRetryAfter bounds how long a Retry-After header can stall a download.
	maxRetryAfter = time.Minute
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxBytes       int64
	Retry          resilience.RetryConfig
}

// AdaptiveLimiter wraps a rate.Limiter that slows down on 429 responses and
// recovers on success, staying between a quarter and twice the initial rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(min(a.currentRate*1.2, a.maxRate))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(max(a.currentRate*0.5, a.minRate))
	zap.L().Warn("fetcher: reducing rate after 429", zap.Float64("new_rate", float64(a.currentRate)))
}

func (a *AdaptiveLimiter) setLocked(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher downloads documents linked from vendor portals and e-mail
// gateways. 429 and 5xx responses are retried with backoff.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "contract-validator/1.0"
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = maxDownloadBytes
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("http", "download")
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RequestsPerSec), max(1, int(opts.RequestsPerSec))),
	}
}

// Download fetches the URL and returns the response body. The caller must
// close it.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "get %s", rawURL), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		f.limiter.OnRateLimit()
		if err := sleepRetryAfter(ctx, resp.Header.Get("Retry-After")); err != nil {
			_ = resp.Body.Close()
			return nil, eris.Wrap(err, "retry-after wait")
		}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, resilience.WrapStatus(eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}

	if resp.ContentLength > f.opts.MaxBytes {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: %s is %d bytes, over the %d byte limit", rawURL, resp.ContentLength, f.opts.MaxBytes)
	}

	f.limiter.OnSuccess()
	return &cappedBody{r: io.LimitReader(resp.Body, f.opts.MaxBytes+1), c: resp.Body, max: f.opts.MaxBytes}, nil
}

// cappedBody fails the read once more than max bytes have arrived, for
// servers that omit or understate Content-Length.
type cappedBody struct {
	r   io.Reader
	c   io.Closer
	n   int64
	max int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if b.n > b.max {
		return n, eris.Errorf("download: body exceeds %d bytes", b.max)
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.c.Close() }

// sleepRetryAfter honors a Retry-After header given in seconds. Dates and
// malformed values are ignored and left to the retry backoff.
func sleepRetryAfter(ctx context.Context, header string) error {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return nil
	}
	wait := min(time.Duration(secs)*time.Second, maxRetryAfter)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}
