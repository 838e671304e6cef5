// Package extract fetches remote pages and pulls out a title and
// readable text for captured links. Extraction is best effort: callers
// fall back to saving the bare URL when it fails.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// FetchTimeout bounds the page fetch; extraction fails soft past it.
	FetchTimeout = 10 * time.Second

	maxBodyBytes    = 2 << 20
	maxContentRunes = 20000
)

// Result is the extracted page content.
type Result struct {
	Title    string
	Content  string
	SiteName string
}

// Extractor fetches and parses remote pages.
type Extractor struct {
	client *http.Client
}

// New creates an extractor. A nil client gets a default with the fetch
// timeout applied.
func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: FetchTimeout}
	}
	return &Extractor{client: client}
}

// Extract fetches the URL and returns its title and text content.
func (e *Extractor) Extract(ctx context.Context, url string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "stash/1.0 (+https://github.com/stashd/stash)")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	result := &Result{}
	walk(doc, result)
	result.Title = strings.TrimSpace(result.Title)
	result.Content = truncateRunes(strings.TrimSpace(result.Content), maxContentRunes)

	if result.Title == "" && result.Content == "" {
		return nil, fmt.Errorf("no extractable content")
	}
	return result, nil
}

func walk(n *html.Node, result *Result) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if result.Title == "" {
				result.Title = textOf(n)
			}
			return
		case "meta":
			if attr(n, "property") == "og:site_name" {
				result.SiteName = attr(n, "content")
			}
			if result.Title == "" && attr(n, "property") == "og:title" {
				result.Title = attr(n, "content")
			}
			return
		case "script", "style", "nav", "footer", "header", "aside":
			return
		case "p", "li", "h1", "h2", "h3", "blockquote", "pre":
			text := strings.TrimSpace(textOf(n))
			if text != "" {
				if result.Content != "" {
					result.Content += "\n"
				}
				result.Content += text
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, result)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
