package observer

import (
	"context"
	"errors"
	"testing"

	bookvision "github.com/nevindra/bookvision"
)

// mockEmbedding for observer tests.
type mockEmbedding struct {
	name string
	dims int
	vecs [][]float32
	err  error
}

func (m *mockEmbedding) Name() string    { return m.name }
func (m *mockEmbedding) Dimensions() int { return m.dims }
func (m *mockEmbedding) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return m.vecs, m.err
}

// mockAnswerer for observer tests.
type mockAnswerer struct {
	answer string
	err    error
}

func (m *mockAnswerer) Answer(_ context.Context, _ string, _ []bookvision.ContextEntry, _ []bookvision.QATurn) (string, error) {
	return m.answer, m.err
}

func (m *mockAnswerer) Summarize(_ context.Context, _ []bookvision.ContextEntry) (string, error) {
	return m.answer, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedEmbeddingDelegates(t *testing.T) {
	inner := &mockEmbedding{name: "mock", dims: 8, vecs: [][]float32{{1, 2}}}
	obs := WrapEmbedding(inner, "embed-model", testInstruments(t))

	if obs.Name() != "mock" || obs.Dimensions() != 8 {
		t.Errorf("metadata not delegated: %s/%d", obs.Name(), obs.Dimensions())
	}

	vecs, err := obs.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 1 {
		t.Errorf("got %d vectors", len(vecs))
	}
}

func TestObservedEmbeddingPropagatesError(t *testing.T) {
	inner := &mockEmbedding{name: "mock", err: errors.New("down")}
	obs := WrapEmbedding(inner, "embed-model", testInstruments(t))

	if _, err := obs.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestObservedAnswererDelegates(t *testing.T) {
	obs := WrapAnswerer(&mockAnswerer{answer: "yes"}, "chat-model", testInstruments(t))

	answer, err := obs.Answer(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "yes" {
		t.Errorf("answer %q", answer)
	}

	summary, err := obs.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary != "yes" {
		t.Errorf("summary %q", summary)
	}
}

func TestRecordIngest(t *testing.T) {
	// no-op instruments: verifies the counters and log record are emitted
	// without a configured backend
	RecordIngest(context.Background(), testInstruments(t), "b1", 42, 7)
}

func TestObservedAnswererPropagatesError(t *testing.T) {
	obs := WrapAnswerer(&mockAnswerer{err: errors.New("down")}, "chat-model", testInstruments(t))
	if _, err := obs.Answer(context.Background(), "q", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
