package bookvision

import (
	"context"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Name() string    { return "counting" }
func (c *countingEmbedder) Dimensions() int { return 2 }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRateLimitUnlimitedPassesThrough(t *testing.T) {
	inner := &countingEmbedder{}
	emb := WithRateLimit(inner)

	for i := 0; i < 5; i++ {
		if _, err := emb.Embed(context.Background(), []string{"x"}); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 5 {
		t.Errorf("calls = %d", inner.calls)
	}
}

func TestRateLimitRPMBlocksOverBudget(t *testing.T) {
	inner := &countingEmbedder{}
	emb := WithRateLimit(inner, RPM(2))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := emb.Embed(ctx, []string{"x"}); err != nil {
			t.Fatal(err)
		}
	}

	// third request must block until the window slides; cancel instead of
	// waiting a minute
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := emb.Embed(blocked, []string{"x"}); err == nil {
		t.Fatal("expected the third request to block and time out")
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRateLimitTextBudgetIsSoft(t *testing.T) {
	inner := &countingEmbedder{}
	emb := WithRateLimit(inner, TextsPerMinute(10))

	ctx := context.Background()
	// a single request may exceed the budget
	if _, err := emb.Embed(ctx, make([]string, 25)); err != nil {
		t.Fatal(err)
	}

	// but the next one blocks
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := emb.Embed(blocked, []string{"x"}); err == nil {
		t.Fatal("expected block after budget exhausted")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestRateLimitDelegatesMetadata(t *testing.T) {
	emb := WithRateLimit(&countingEmbedder{}, RPM(1))
	if emb.Name() != "counting" || emb.Dimensions() != 2 {
		t.Errorf("metadata not delegated: %s/%d", emb.Name(), emb.Dimensions())
	}
}
