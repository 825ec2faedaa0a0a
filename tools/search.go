package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/boat-builder/agentruntime"
)

const (
	DefaultSearchBaseURL = "https://html.duckduckgo.com/html/"
	maxSearchResults     = 5
	userAgent            = "Mozilla/5.0 (compatible; agentruntime/1.0)"
)

type SearchArgs struct {
	Query string `json:"query" jsonschema:"description=Search query"`
}

type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Search queries the DuckDuckGo HTML endpoint and returns the top results as text.
type Search struct {
	toolName    string
	description string
	client      *http.Client
	baseURL     string
}

func NewSearch(client *http.Client, baseURL string) *Search {
	if baseURL == "" {
		baseURL = DefaultSearchBaseURL
	}
	return &Search{
		toolName:    "search_information",
		description: "Search the web for information",
		client:      client,
		baseURL:     baseURL,
	}
}

func (s *Search) Name() string {
	return s.toolName
}

func (s *Search) Description() string {
	return s.description
}

func (s *Search) Parameters() map[string]any {
	return agentruntime.GenerateSchema[SearchArgs]()
}

func (s *Search) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[SearchArgs](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", agentruntime.NewRetryableError(fmt.Errorf("query is required"))
	}

	results, err := s.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for '%s'", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for '%s':\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (s *Search) search(ctx context.Context, query string) ([]SearchResult, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return parseSearchResults(doc), nil
}

func parseSearchResults(doc *goquery.Document) []SearchResult {
	results := []SearchResult{}
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     resolveResultURL(href),
			Snippet: strings.Join(strings.Fields(sel.Find(".result__snippet").Text()), " "),
		})
		return len(results) < maxSearchResults
	})
	return results
}

// resolveResultURL unwraps DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=<target>).
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
