// Package session keeps a live connection to a stream whose playback URL is an
// expiring token issued by a web page. A Manager resolves the token, opens the
// stream, feeds frames to a Handler and starts over whenever the stream dies.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoToken means the resolver produced no usable URL this attempt.
	ErrNoToken = errors.New("session: no stream token")

	// ErrDone may be returned by a Handler to end Run without error.
	ErrDone = errors.New("session: done")
)

// DefaultPageURL is the public page that embeds the Osman Kavuncu Boulevard feed.
const DefaultPageURL = "https://tv.kayseri.bel.tr/osman-kavuncu-bulvari"

// State is the lifecycle position of the Manager.
type State int32

const (
	Idle State = iota
	AcquiringToken
	Connecting
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AcquiringToken:
		return "acquiring_token"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Stopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", b)
}

// TokenResolver extracts a playable stream URL from a page.
// An empty URL is treated the same as an error.
type TokenResolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// TokenResolverFunc adapts a function to TokenResolver.
type TokenResolverFunc func(ctx context.Context, pageURL string) (string, error)

// Resolve implements TokenResolver.
func (f TokenResolverFunc) Resolve(ctx context.Context, pageURL string) (string, error) {
	return f(ctx, pageURL)
}

// Source opens a stream for a playable URL.
type Source[F any] interface {
	Open(ctx context.Context, url string) (Stream[F], error)
}

// Stream yields frames until it fails. Any error from Next, io.EOF included,
// ends the session.
type Stream[F any] interface {
	Next() (F, error)
	Close() error
}

// Handler consumes frames in order. Errors are logged and the session continues,
// except ErrDone which stops the Manager. Frames implementing io.Closer are closed
// by the Manager after HandleFrame returns, so handlers must not retain them.
type Handler[F any] interface {
	HandleFrame(ctx context.Context, frame F) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[F any] func(ctx context.Context, frame F) error

// HandleFrame implements Handler.
func (f HandlerFunc[F]) HandleFrame(ctx context.Context, frame F) error {
	return f(ctx, frame)
}

// Config holds session timing.
type Config struct {
	PageURL        string        `yaml:"page_url"`
	TokenTimeout   time.Duration `yaml:"token_timeout"`   // Upper bound for one Resolve call; 0 means none
	RetryInterval  time.Duration `yaml:"retry_interval"`  // Wait after a failed token attempt
	ReconnectDelay time.Duration `yaml:"reconnect_delay"` // Wait after a dead stream before re-acquiring
}

// DefaultConfig returns the timings the traffic server runs with.
// The token timeout covers a 60s page load plus the 5s settle wait.
func DefaultConfig() Config {
	return Config{
		PageURL:       DefaultPageURL,
		TokenTimeout:  90 * time.Second,
		RetryInterval: 10 * time.Second,
	}
}

// Session describes the connection currently owned by the Manager.
type Session struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
}

// Stats counts Manager events since construction.
type Stats struct {
	Sessions      uint64 `json:"sessions"`
	TokenFailures uint64 `json:"token_failures"`
	OpenFailures  uint64 `json:"open_failures"`
	StreamDrops   uint64 `json:"stream_drops"`
	Frames        uint64 `json:"frames"`
	HandlerErrors uint64 `json:"handler_errors"`
}
