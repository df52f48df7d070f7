package builtintools

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/toolkit"
)

// SearchResult is one web_search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchBackend performs a web search. Implementations wrap a real search
// API (Tavily, SerpAPI, Google Custom Search, ...); NoopBackend is the
// default and always errors, so an unconfigured web_search call fails
// loudly instead of silently returning nothing.
type SearchBackend interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// NoopBackend is the zero-value SearchBackend: always returns an error
// explaining that no backend is configured.
type NoopBackend struct{}

func (NoopBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	return nil, fmt.Errorf("web_search: no search backend configured")
}

// WebSearch returns a tool that delegates to backend. Pass builtintools.NoopBackend{}
// to register the tool without wiring a real provider yet.
func WebSearch(backend SearchBackend) toolkit.Tool {
	if backend == nil {
		backend = NoopBackend{}
	}
	return toolkit.NewFuncTool(
		"web_search",
		"Search the web for information. Returns a list of relevant results with titles, URLs, and snippets.",
		toolkit.Schema{
			"query":       {Types: []toolkit.ParamType{toolkit.TypeString}, Description: "the search query"},
			"max_results": {Types: []toolkit.ParamType{toolkit.TypeInteger}, Description: "maximum number of results", HasDefault: true, Default: 10},
		},
		toolkit.TypeObject,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("web_search: query is required")
			}
			maxResults := 10
			if n, ok := args["max_results"].(int64); ok && n > 0 {
				maxResults = int(n)
			} else if n, ok := args["max_results"].(int); ok && n > 0 {
				maxResults = n
			}
			results, err := backend.Search(ctx, query, maxResults)
			if err != nil {
				return nil, err
			}
			return map[string]any{"query": query, "results": results, "total_count": len(results)}, nil
		},
		nil,
	)
}
