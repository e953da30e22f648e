package bookvision

import "testing"

func TestErrDimensionError(t *testing.T) {
	e := &ErrDimension{Want: 1536, Got: 768}
	want := "vector dimension 768, index expects 1536"
	if got := e.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestErrBatchInsertError(t *testing.T) {
	tests := []struct {
		entry  int
		reason string
		want   string
	}{
		{3, "non-finite value", "batch insert: entry 3: non-finite value"},
		{-1, "4 vectors for 5 metadata records", "batch insert: 4 vectors for 5 metadata records"},
	}
	for _, tt := range tests {
		e := &ErrBatchInsert{Entry: tt.entry, Reason: tt.reason}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrBatchInsert{%d, %q}.Error() = %q, want %q", tt.entry, tt.reason, got, tt.want)
		}
	}
}

func TestErrHTTPError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{429, "too many requests", "http 429: too many requests"},
		{500, "internal server error", "http 500: internal server error"},
	}
	for _, tt := range tests {
		e := &ErrHTTP{Status: tt.status, Body: tt.body}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrHTTP{%d, %q}.Error() = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}
