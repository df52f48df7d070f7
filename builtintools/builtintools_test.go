package builtintools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/toolkit"
)

func TestFinalAnswerForwardsAnswer(t *testing.T) {
	tool := FinalAnswer()
	out, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"answer": "42"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestUserInputReadsLineAndTrimsNewline(t *testing.T) {
	tool := UserInput(strings.NewReader("hello world\n"), nil)
	out, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"question": "what is your name?"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestWebSearchNoopBackendErrors(t *testing.T) {
	tool := WebSearch(nil)
	_, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"query": "golang"}, false, nil)
	assert.Error(t, err)
}

type stubBackend struct {
	results []SearchResult
}

func (s stubBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	return s.results, nil
}

func TestWebSearchUsesConfiguredBackend(t *testing.T) {
	tool := WebSearch(stubBackend{results: []SearchResult{{Title: "Go", URL: "https://go.dev"}}})
	out, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"query": "golang"}, false, nil)
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, result["total_count"])
}

func TestVisitWebpageStripsTagsAndTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>.x{}</style></head><body><p>Hello <b>World</b></p></body></html>`))
	}))
	defer srv.Close()

	tool := VisitWebpage(srv.Client(), 0)
	out, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"url": srv.URL}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out)
}

func TestVisitWebpageRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := VisitWebpage(srv.Client(), 0)
	_, err := toolkit.Call(context.Background(), tool, nil, map[string]any{"url": srv.URL}, false, nil)
	assert.Error(t, err)
}
