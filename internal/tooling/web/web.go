// Package web implements the Web tool: search against a configurable
// SearXNG-style JSON search API, and open/extract readable text from an
// arbitrary URL. Grounded on
// internal/tools/websearch/{search,fetch,extract}.go's client shape, but
// extraction here walks golang.org/x/net/html tokens (the teacher's own
// regex-based extractor is generalized to a real tokenizer per
// SPEC_FULL.md) and strips unsafe markup with
// github.com/microcosm-cc/bluemonday before extracting text.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/pedrow21/proxima/pkg/models"
)

const maxResultsPerQuery = 20

// Tool implements tooling.Impl for Web. It carries no persistent state.
type Tool struct {
	Client     *http.Client
	SearchBase string // base URL of a SearXNG-compatible JSON search instance
	sanitizer  *bluemonday.Policy
}

// New returns a Tool configured against searchBase, a SearXNG-compatible
// instance's base URL (e.g. "https://searx.example.org").
func New(searchBase string) *Tool {
	return &Tool{
		Client:     &http.Client{Timeout: 15 * time.Second},
		SearchBase: searchBase,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

func (t *Tool) Kind() models.ToolKind { return models.ToolWeb }
func (t *Tool) Actions() []string     { return []string{"search", "open"} }

func (t *Tool) Invoke(ctx context.Context, action, input string, _ models.ToolState) (string, models.ToolState, error) {
	lines := splitLines(input)
	if len(lines) == 0 {
		return "", nil, fmt.Errorf("at least one line is required")
	}
	switch action {
	case "search":
		return t.search(ctx, lines)
	case "open":
		return t.open(ctx, lines)
	default:
		return "", nil, fmt.Errorf("unsupported action %q", action)
	}
}

func (t *Tool) search(ctx context.Context, lines []string) (string, models.ToolState, error) {
	var out strings.Builder
	for _, line := range lines {
		n, query, err := splitCountAndQuery(line)
		if err != nil {
			return "", nil, err
		}
		results, err := t.searchOne(ctx, n, query)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&out, "Query: %s\n#####\n", line)
		out.WriteString(results)
	}
	return out.String(), nil, nil
}

func splitCountAndQuery(line string) (int, string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("a query has 2 arguments, the number of results and the text of the query itself")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("the first argument on each line must be a result count: %w", err)
	}
	if n > maxResultsPerQuery {
		n = maxResultsPerQuery
	}
	return n, strings.TrimSpace(strings.Join(fields[1:], " ")), nil
}

type searxResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

func (t *Tool) searchOne(ctx context.Context, n int, query string) (string, error) {
	u := fmt.Sprintf("%s/search?q=%s&format=json", strings.TrimRight(t.SearchBase, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web search: HTTP %d", resp.StatusCode)
	}
	var parsed searxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("web search: decode response: %w", err)
	}
	var out strings.Builder
	for i, r := range parsed.Results {
		if i >= n {
			break
		}
		fmt.Fprintf(&out, "Title: %s\nURL: %s\nSnippet: %s\n-----------------\n", r.Title, r.URL, r.Content)
	}
	return out.String(), nil
}

func (t *Tool) open(ctx context.Context, urls []string) (string, models.ToolState, error) {
	var out strings.Builder
	for _, raw := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", raw, err)
		}
		req.Header.Set("User-Agent", "ProximaWebTool/1.0")
		resp, err := t.Client.Do(req)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", raw, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", raw, err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", nil, fmt.Errorf("%s: HTTP %d", raw, resp.StatusCode)
		}
		text, err := extractReadableText(t.sanitizer, string(body))
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", raw, err)
		}
		fmt.Fprintf(&out, "%s : ```%s```\n", raw, text)
	}
	return out.String(), nil, nil
}

// extractReadableText sanitizes raw HTML, then walks the token stream
// pulling text runs, skipping anything under a script/style/nav/header/
// footer/aside tag that survives sanitizing. The StrictPolicy that New
// installs removes every tag before the walk, so with it nav, header,
// footer and aside text is kept; only content the policy itself drops
// (such as script and style bodies) is left out.
func extractReadableText(sanitizer *bluemonday.Policy, rawHTML string) (string, error) {
	clean := sanitizer.Sanitize(rawHTML)
	tokenizer := html.NewTokenizer(strings.NewReader(clean))
	var out strings.Builder
	var skipDepth int
	skipTags := map[string]bool{"script": true, "style": true, "nav": true, "header": true, "footer": true, "aside": true}

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return strings.Join(strings.Fields(out.String()), " "), nil
			}
			return "", tokenizer.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if skipTags[string(name)] && tt == html.StartTagToken {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skipTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				out.Write(tokenizer.Text())
				out.WriteString(" ")
			}
		}
	}
}

func splitLines(input string) []string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
