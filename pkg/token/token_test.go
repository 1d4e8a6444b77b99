package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-traffic/internal/httpc"
	"github.com/teslashibe/go-traffic/pkg/session"
)

var (
	_ session.TokenResolver = (*BrowserResolver)(nil)
	_ session.TokenResolver = (*PageResolver)(nil)
	_ session.TokenResolver = StaticResolver{}
)

func TestURLFilter_Match(t *testing.T) {
	f := DefaultFilter()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/live/playlist.m3u8?token=abc", true},
		{"https://cdn.example.com/live/chunklist.m3u8", false},
		{"https://cdn.example.com/playlist.json", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, f.Match(tc.url), tc.url)
	}
	assert.False(t, URLFilter{}.Match("https://x/playlist.m3u8"), "empty filter matches nothing")
}

func TestFirstMatch_KeepsFirst(t *testing.T) {
	m := &firstMatch{filter: DefaultFilter()}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Offer(fmt.Sprintf("https://cdn/%d/playlist.m3u8", i))
		}(i)
	}
	wg.Wait()

	first := m.URL()
	assert.NotEmpty(t, first)
	assert.False(t, m.Offer("https://cdn/late/playlist.m3u8"))
	assert.Equal(t, first, m.URL())
}

func TestPageResolver(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr error
	}{
		{
			name: "plain attribute",
			html: `<video src="https://cdn.test/live/playlist.m3u8?wmsAuthSign=abc"></video>`,
			want: "https://cdn.test/live/playlist.m3u8?wmsAuthSign=abc",
		},
		{
			name: "json escaped",
			html: `<script>var cfg = {"file":"https:\/\/cdn.test\/live\/playlist.m3u8?t=1&e=2"};</script>`,
			want: "https://cdn.test/live/playlist.m3u8?t=1&e=2",
		},
		{
			name: "skips non playlist urls",
			html: `<a href="https://cdn.test/chunk.m3u8">x</a><source src='https://cdn.test/b/playlist.m3u8'>`,
			want: "https://cdn.test/b/playlist.m3u8",
		},
		{
			name:    "no match",
			html:    `<html><body>offline</body></html>`,
			wantErr: ErrNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.html)
			}))
			defer srv.Close()

			got, err := NewPageResolver().Resolve(context.Background(), srv.URL)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPageResolver_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewPageResolver().Resolve(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestPageResolver_Client(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.UserAgent())
		fmt.Fprint(w, `<video src="https://cdn.test/live/playlist.m3u8"></video>`)
	}))
	defer srv.Close()

	// Shared client
	_, err := NewPageResolver().Resolve(context.Background(), srv.URL)
	require.NoError(t, err)

	// Caller supplied client
	r := NewPageResolver()
	r.Client = srv.Client()
	_, err = r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{httpc.UserAgent, httpc.UserAgent}, agents)
}

func TestStaticResolver(t *testing.T) {
	got, err := StaticResolver{URL: "file.mp4"}.Resolve(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "file.mp4", got)

	_, err = StaticResolver{}.Resolve(context.Background(), "ignored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestBrowserResolver(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome binary found")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>fetch("/hls/playlist.m3u8?token=xyz")</script></body></html>`)
	})
	mux.HandleFunc("/hls/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultBrowserConfig()
	cfg.ExecPath = chrome
	cfg.NoSandbox = true
	cfg.PageTimeout = 20 * time.Second
	cfg.Settle = time.Second

	got, err := NewBrowserResolver(cfg).Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/hls/playlist.m3u8?token=xyz", got)
}
