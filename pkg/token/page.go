package token

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/teslashibe/go-traffic/internal/httpc"
)

// urlPattern finds absolute URLs in HTML and inline scripts, including
// JSON-escaped ones ("https:\/\/...").
var urlPattern = regexp.MustCompile(`https?:(?:\\?/){2}[^\s"'<>]+`)

// PageResolver fetches the page HTML and scans it for a playlist URL. It needs no
// browser but only works for pages that embed the URL server-side.
type PageResolver struct {
	Filter URLFilter
	Client *http.Client // Defaults to httpc.Client
}

// NewPageResolver creates a PageResolver with the default filter.
func NewPageResolver() *PageResolver {
	return &PageResolver{Filter: DefaultFilter()}
}

// Resolve implements session.TokenResolver.
func (r *PageResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	resp, err := r.get(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("token: fetch page: %w", err)
	}
	body, err := httpc.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("token: read page: %w", err)
	}

	found := &firstMatch{filter: r.Filter}
	for _, raw := range urlPattern.FindAllString(string(body), -1) {
		if found.Offer(cleanURL(raw)) {
			break
		}
	}
	if url := found.URL(); url != "" {
		return url, nil
	}
	return "", ErrNotFound
}

func (r *PageResolver) get(ctx context.Context, url string) (*http.Response, error) {
	if r.Client == nil {
		return httpc.GetContext(ctx, url)
	}
	return httpc.GetWith(ctx, r.Client, url)
}

// cleanURL undoes JSON and HTML escaping commonly found around embedded URLs.
func cleanURL(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	return strings.TrimRight(s, `\),;`)
}

// StaticResolver always returns the same URL. Useful for local files and
// streams that do not expire.
type StaticResolver struct {
	URL string
}

// Resolve implements session.TokenResolver.
func (r StaticResolver) Resolve(context.Context, string) (string, error) {
	if r.URL == "" {
		return "", ErrNotFound
	}
	return r.URL, nil
}
