package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	bookvision "github.com/nevindra/bookvision"
)

func embedServer(t *testing.T, dims int, reorder bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("missing auth header, got %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}

		var resp embedResponse
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		if reorder && len(resp.Data) > 1 {
			resp.Data[0], resp.Data[1] = resp.Data[1], resp.Data[0]
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbed(t *testing.T) {
	srv := embedServer(t, 4, false)
	defer srv.Close()

	e := NewEmbedding("sk-test", "test-model", srv.URL, 4)
	vecs, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbedRestoresOrder(t *testing.T) {
	srv := embedServer(t, 4, true)
	defer srv.Close()

	e := NewEmbedding("sk-test", "test-model", srv.URL, 4)
	vecs, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("index field not honored: %v", vecs)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewEmbedding("sk-test", "test-model", "http://unused", 4)
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("got %v, %v", vecs, err)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := embedServer(t, 8, false)
	defer srv.Close()

	e := NewEmbedding("sk-test", "test-model", srv.URL, 4)
	_, err := e.Embed(context.Background(), []string{"one"})
	var dimErr *bookvision.ErrDimension
	if !errors.As(err, &dimErr) {
		t.Fatalf("got %v, want ErrDimension", err)
	}
}

func TestEmbedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewEmbedding("sk-test", "test-model", srv.URL, 4)
	_, err := e.Embed(context.Background(), []string{"one"})
	var httpErr *bookvision.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want ErrHTTP", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status %d", httpErr.Status)
	}
}

func TestAnswerBuildsMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: "  On page 3, the hero departs.  "}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAnswerer("sk-test", "test-model", srv.URL)
	answer, err := a.Answer(context.Background(), "when does the hero leave?",
		[]bookvision.ContextEntry{{Page: 3, ChunkText: "the hero departs at dawn"}},
		[]bookvision.QATurn{{Question: "who is the hero?", Answer: "a knight"}})
	if err != nil {
		t.Fatal(err)
	}
	if answer != "On page 3, the hero departs." {
		t.Errorf("answer %q", answer)
	}

	// system + 2 history turns + question
	if len(got.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Role != "user" ||
		got.Messages[2].Role != "assistant" || got.Messages[3].Role != "user" {
		t.Errorf("unexpected roles: %+v", got.Messages)
	}
}

func TestSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: "a book about dragons"}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAnswerer("sk-test", "test-model", srv.URL)
	summary, err := a.Summarize(context.Background(),
		[]bookvision.ContextEntry{{Page: 1, ChunkText: "dragons everywhere"}})
	if err != nil {
		t.Fatal(err)
	}
	if summary != "a book about dragons" {
		t.Errorf("summary %q", summary)
	}
}

func TestAnswerNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	a := NewAnswerer("sk-test", "test-model", srv.URL)
	if _, err := a.Answer(context.Background(), "q", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
