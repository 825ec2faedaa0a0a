package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/boat-builder/agentruntime"
)

const (
	DefaultFetchMaxChars = 8000
	maxFetchBytes        = 2 << 20
)

type FetchArgs struct {
	URL string `json:"url" jsonschema:"description=http or https URL to fetch"`
}

// Fetch downloads a page and returns it as Markdown.
type Fetch struct {
	toolName    string
	description string
	client      *http.Client
	maxChars    int
	converter   *md.Converter
}

func NewFetch(client *http.Client, maxChars int) *Fetch {
	if maxChars <= 0 {
		maxChars = DefaultFetchMaxChars
	}
	converter := md.NewConverter("", true, nil)
	converter.Remove("script", "style", "noscript", "iframe", "svg")
	return &Fetch{
		toolName:    "fetch_url",
		description: "Fetch a web page and return its content as Markdown",
		client:      client,
		maxChars:    maxChars,
		converter:   converter,
	}
}

func (f *Fetch) Name() string {
	return f.toolName
}

func (f *Fetch) Description() string {
	return f.description
}

func (f *Fetch) Parameters() map[string]any {
	return agentruntime.GenerateSchema[FetchArgs]()
}

func (f *Fetch) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[FetchArgs](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", agentruntime.NewRetryableError(fmt.Errorf("invalid url %q", in.URL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", agentruntime.NewIgnorableError(fmt.Errorf("fetch returned status %d", resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return "", fmt.Errorf("failed to parse page: %w", err)
		}
		sel := doc.Find("main, article").First()
		if sel.Length() == 0 {
			sel = doc.Find("body")
		}
		text = f.converter.Convert(sel)
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		text = string(data)
	}
	return truncate(strings.TrimSpace(text), f.maxChars), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n\n[content truncated]"
}
