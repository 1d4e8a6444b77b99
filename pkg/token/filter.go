// Package token extracts the short-lived playlist URL that a camera page embeds.
// Resolvers return the first URL accepted by their filter.
package token

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotFound means the page loaded but no URL matched the filter.
var ErrNotFound = errors.New("token: no matching stream url")

// URLFilter accepts a URL when it contains every fragment in Contains.
type URLFilter struct {
	Contains []string `yaml:"contains"`
}

// DefaultFilter matches HLS playlist requests.
func DefaultFilter() URLFilter {
	return URLFilter{Contains: []string{".m3u8", "playlist"}}
}

// Match reports whether url passes the filter. An empty filter matches nothing.
func (f URLFilter) Match(url string) bool {
	if url == "" || len(f.Contains) == 0 {
		return false
	}
	for _, frag := range f.Contains {
		if !strings.Contains(url, frag) {
			return false
		}
	}
	return true
}

// firstMatch records the first URL offered to it that passes the filter.
// Offer may be called from several goroutines.
type firstMatch struct {
	filter URLFilter
	mu     sync.Mutex
	url    string
}

func (m *firstMatch) Offer(url string) bool {
	if !m.filter.Match(url) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.url != "" {
		return false
	}
	m.url = url
	return true
}

func (m *firstMatch) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}
