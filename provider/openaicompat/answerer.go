package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	bookvision "github.com/nevindra/bookvision"
)

// Answerer implements bookvision.Answerer against the /chat/completions
// endpoint.
type Answerer struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	temperature float32
}

var _ bookvision.Answerer = (*Answerer)(nil)

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithAnswererHTTPClient replaces the default http.Client.
func WithAnswererHTTPClient(c *http.Client) AnswererOption {
	return func(a *Answerer) {
		if c != nil {
			a.client = c
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) AnswererOption {
	return func(a *Answerer) { a.temperature = t }
}

// NewAnswerer creates a chat-based answerer. The /chat/completions path is
// appended to baseURL automatically.
func NewAnswerer(apiKey, model, baseURL string, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		client:      &http.Client{},
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

const answerSystemPrompt = `You answer questions about books using only the provided passages.
Cite the page number when the passages support your answer.
If the passages do not contain the answer, say so plainly.`

const summarySystemPrompt = `You summarize books from sampled passages.
Write a short, factual summary of the main content. Do not invent details.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer responds to a question given ranked context passages and prior
// conversation turns.
func (a *Answerer) Answer(ctx context.Context, question string, contexts []bookvision.ContextEntry, history []bookvision.QATurn) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: answerSystemPrompt + "\n\n" + formatContexts(contexts)},
	}
	for _, turn := range history {
		messages = append(messages,
			chatMessage{Role: "user", Content: turn.Question},
			chatMessage{Role: "assistant", Content: turn.Answer})
	}
	messages = append(messages, chatMessage{Role: "user", Content: question})
	return a.complete(ctx, messages)
}

// Summarize produces a short summary of the given passages.
func (a *Answerer) Summarize(ctx context.Context, contexts []bookvision.ContextEntry) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: "Summarize this book:\n\n" + formatContexts(contexts)},
	}
	return a.complete(ctx, messages)
}

func (a *Answerer) complete(ctx context.Context, messages []chatMessage) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpErr(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func formatContexts(contexts []bookvision.ContextEntry) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for _, c := range contexts {
		fmt.Fprintf(&b, "\n[page %d] %s\n", c.Page, c.ChunkText)
	}
	return b.String()
}
