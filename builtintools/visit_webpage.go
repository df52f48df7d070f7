package builtintools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/agentloop/agentloop/toolkit"
)

const defaultVisitTimeout = 15 * time.Second
const defaultVisitTruncateChars = 20_000

// VisitWebpage returns a tool that fetches url and returns its visible text,
// stripped of tags and truncated to maxChars (defaults to 20000 when <= 0).
func VisitWebpage(client *http.Client, maxChars int) toolkit.Tool {
	if client == nil {
		client = &http.Client{Timeout: defaultVisitTimeout}
	}
	if maxChars <= 0 {
		maxChars = defaultVisitTruncateChars
	}
	return toolkit.NewFuncTool(
		"visit_webpage",
		"Fetch a webpage and return its visible text content, with HTML tags stripped.",
		toolkit.Schema{
			"url": {Types: []toolkit.ParamType{toolkit.TypeString}, Description: "the URL to fetch"},
		},
		toolkit.TypeString,
		func(ctx context.Context, args map[string]any) (any, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return nil, fmt.Errorf("visit_webpage: url is required")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("visit_webpage: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("visit_webpage: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("visit_webpage: %s returned status %d", url, resp.StatusCode)
			}
			text, err := extractText(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("visit_webpage: %w", err)
			}
			return truncate(text, maxChars), nil
		},
		nil,
	)
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true}

func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode && skipTags[strings.ToLower(n.Data)] {
			skip = true
		}
		if n.Type == html.TextNode && !skip {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + "... [truncated]"
}
