package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultBatchSize   = 64
)

// ResilientConfig tunes the Resilient wrapper. Zero values select defaults.
type ResilientConfig struct {
	// RequestsPerSecond caps outgoing embed calls. <= 0 disables the limit.
	RequestsPerSecond float64

	// MaxAttempts is the total number of tries per batch (default 5).
	MaxAttempts int

	// BaseDelay is the first retry delay; it doubles on every retry
	// (default 1s).
	BaseDelay time.Duration

	// MaxDelay caps a single retry delay (default 30s).
	MaxDelay time.Duration

	// BatchSize splits large inputs into several calls (default 64).
	BatchSize int

	// Normalize scales every vector to unit length. Enable for dot-product
	// collections so scores behave like cosine similarity.
	Normalize bool

	// Dimension, when > 0, rejects vectors of any other length.
	Dimension int
}

// Resilient wraps an Embedder with rate limiting, batching, retries with
// exponential backoff, optional L2 normalisation and a dimension check.
// It is safe for concurrent use.
type Resilient struct {
	inner   rag.Embedder
	cfg     ResilientConfig
	limiter *rate.Limiter
	log     *slog.Logger

	// newTimer supplies the backoff timer; nil selects backoff's real timer.
	newTimer func() backoff.Timer
}

// NewResilient wraps inner.
func NewResilient(inner rag.Embedder, cfg ResilientConfig, log *slog.Logger) *Resilient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Resilient{inner: inner, cfg: cfg, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// Embed embeds texts batch by batch and returns one vector per input.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(texts))
		vecs, err := r.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// policy is BaseDelay doubling per retry, capped at MaxDelay, without
// jitter, for at most MaxAttempts calls in total.
func (r *Resilient) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.BaseDelay
	exp.MaxInterval = r.cfg.MaxDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.cfg.MaxAttempts-1)), ctx)
}

func (r *Resilient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	attempt := 0
	op := func() error {
		attempt++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("embedder: rate limiter: %w", err))
			}
		}
		out, err := r.inner.Embed(ctx, batch)
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		vecs = out
		return nil
	}
	notify := func(err error, delay time.Duration) {
		r.log.Warn("embedder: retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(op, r.policy(ctx), notify, timer); err != nil {
		return nil, fmt.Errorf("embedder: giving up after %d attempts: %w", attempt, err)
	}
	return r.finish(vecs, len(batch))
}

func (r *Resilient) finish(vecs [][]float32, want int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("embedder: got %d vectors for %d inputs", len(vecs), want)
	}
	for i, v := range vecs {
		if r.cfg.Dimension > 0 && len(v) != r.cfg.Dimension {
			return nil, fmt.Errorf("embedder: vector %d has dimension %d, collection expects %d", i, len(v), r.cfg.Dimension)
		}
		if r.cfg.Normalize {
			vecs[i] = L2Normalize(v)
		}
	}
	return vecs, nil
}

// retryable reports whether a failed call is worth repeating. Context
// cancellation and client errors other than 429 are final.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= 500 || code == 0
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := reqErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= 500 || code == 0
	}
	return true
}

// L2Normalize returns v scaled to unit Euclidean length. A zero vector is
// returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
