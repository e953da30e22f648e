package bookvision

import (
	"context"
	"sync"
	"time"
)

// rateLimitEmbedding wraps an EmbeddingProvider with proactive rate
// limiting. Requests are blocked until the rate budget allows them to
// proceed.
type rateLimitEmbedding struct {
	inner EmbeddingProvider
	mu    sync.Mutex

	// RPM state: sliding window of request timestamps.
	rpm       int
	rpmWindow []time.Time

	// Text budget: sliding window of (timestamp, textCount) pairs.
	textsPerMin int
	textWindow  []textEntry
}

type textEntry struct {
	at    time.Time
	texts int
}

// RateLimitOption configures rate limiting.
type RateLimitOption func(*rateLimitEmbedding)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitEmbedding) { r.rpm = n }
}

// TextsPerMinute sets the maximum embedded texts per minute. This is a soft
// limit: the request that exceeds the budget completes, but subsequent
// requests block until the window slides.
func TextsPerMinute(n int) RateLimitOption {
	return func(r *rateLimitEmbedding) { r.textsPerMin = n }
}

// WithRateLimit wraps p with proactive rate limiting. Useful during bulk
// ingestion against providers with strict quotas. Compose with other
// wrappers:
//
//	emb = bookvision.WithRateLimit(provider, bookvision.RPM(60))
//	emb = bookvision.WithRateLimit(bookvision.WithEmbeddingRetry(provider), bookvision.RPM(60))
func WithRateLimit(p EmbeddingProvider, opts ...RateLimitOption) EmbeddingProvider {
	r := &rateLimitEmbedding{inner: p}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return nil, err
	}
	result, err := r.inner.Embed(ctx, texts)
	if err == nil {
		r.recordTexts(len(texts))
	}
	return result, err
}

// waitForBudget blocks until both budgets allow a request. Returns ctx.Err()
// if the context is cancelled while waiting.
func (r *rateLimitEmbedding) waitForBudget(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		r.rpmWindow = pruneTime(r.rpmWindow, cutoff)
		r.textWindow = pruneTexts(r.textWindow, cutoff)

		rpmOK := r.rpm <= 0 || len(r.rpmWindow) < r.rpm

		textsOK := true
		if r.textsPerMin > 0 {
			var total int
			for _, e := range r.textWindow {
				total += e.texts
			}
			textsOK = total < r.textsPerMin
		}

		if rpmOK && textsOK {
			if r.rpm > 0 {
				r.rpmWindow = append(r.rpmWindow, now)
			}
			r.mu.Unlock()
			return nil
		}

		// wait until the oldest entry in the blocking window expires
		var wait time.Duration
		if !rpmOK && len(r.rpmWindow) > 0 {
			wait = r.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !textsOK && len(r.textWindow) > 0 {
			w := r.textWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// recordTexts adds a completed request's text count to the sliding window.
func (r *rateLimitEmbedding) recordTexts(n int) {
	if r.textsPerMin <= 0 || n <= 0 {
		return
	}
	r.mu.Lock()
	r.textWindow = append(r.textWindow, textEntry{at: time.Now(), texts: n})
	r.mu.Unlock()
}

// pruneTime removes entries older than cutoff from a sorted time slice.
func pruneTime(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

// pruneTexts removes entries older than cutoff from a sorted textEntry slice.
func pruneTexts(s []textEntry, cutoff time.Time) []textEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

// compile-time check
var _ EmbeddingProvider = (*rateLimitEmbedding)(nil)
