package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-traffic/internal/log"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	onStateChange func(from, to State)
}

// WithLogger sets the logger. Defaults to the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// OnStateChange registers fn to be called from the Run goroutine on every transition.
func OnStateChange(fn func(from, to State)) Option {
	return func(o *options) { o.onStateChange = fn }
}

// Manager owns the lifecycle of one stream connection at a time.
// Run drives it; State, Session and Stats may be called from any goroutine.
type Manager[F any] struct {
	config   Config
	resolver TokenResolver
	source   Source[F]
	handler  Handler[F]
	opts     options

	state   atomic.Int32
	current atomic.Pointer[Session]

	sessions      atomic.Uint64
	tokenFailures atomic.Uint64
	openFailures  atomic.Uint64
	streamDrops   atomic.Uint64
	frames        atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewManager creates a Manager in the Idle state.
func NewManager[F any](cfg Config, resolver TokenResolver, source Source[F], handler Handler[F], opts ...Option) *Manager[F] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Component("session")
	}
	return &Manager[F]{
		config:   cfg,
		resolver: resolver,
		source:   source,
		handler:  handler,
		opts:     o,
	}
}

// State returns the current lifecycle state.
func (m *Manager[F]) State() State {
	return State(m.state.Load())
}

// Session returns the active session, if any.
func (m *Manager[F]) Session() (Session, bool) {
	if s := m.current.Load(); s != nil {
		return *s, true
	}
	return Session{}, false
}

// Stats returns a copy of the event counters.
func (m *Manager[F]) Stats() Stats {
	return Stats{
		Sessions:      m.sessions.Load(),
		TokenFailures: m.tokenFailures.Load(),
		OpenFailures:  m.openFailures.Load(),
		StreamDrops:   m.streamDrops.Load(),
		Frames:        m.frames.Load(),
		HandlerErrors: m.handlerErrors.Load(),
	}
}

// Run acquires tokens, streams frames and reconnects until ctx is canceled or the
// handler returns ErrDone. The active stream is closed before Run returns.
// It returns ctx.Err() on cancellation and nil after ErrDone.
func (m *Manager[F]) Run(ctx context.Context) error {
	defer m.setState(Stopped)

	for {
		url, err := m.acquire(ctx)
		if err != nil {
			return err
		}

		m.setState(Connecting)
		stream, err := m.source.Open(ctx, url)
		if err != nil {
			m.openFailures.Add(1)
			m.opts.logger.Warn("stream open failed", "err", err)
		} else {
			sess := &Session{ID: uuid.New(), URL: url, StartedAt: time.Now()}
			m.current.Store(sess)
			m.sessions.Add(1)

			done := m.stream(ctx, sess, stream)

			if err := stream.Close(); err != nil {
				m.opts.logger.Debug("stream close", "session", sess.ID, "err", err)
			}
			m.current.Store(nil)
			if done {
				return nil
			}
		}

		// The token is discarded either way; the next attempt starts from scratch.
		m.setState(Idle)
		if err := sleep(ctx, m.config.ReconnectDelay); err != nil {
			return err
		}
	}
}

// acquire resolves tokens until one succeeds or ctx ends.
func (m *Manager[F]) acquire(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		m.setState(AcquiringToken)
		url, err := m.resolve(ctx)
		if err == nil {
			return url, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		m.tokenFailures.Add(1)
		m.opts.logger.Warn("no stream token", "err", err, "retry_in", m.config.RetryInterval)
		m.setState(Idle)
		if err := sleep(ctx, m.config.RetryInterval); err != nil {
			return "", err
		}
	}
}

type resolved struct {
	url string
	err error
}

// resolve runs one bounded Resolve call. Empty URLs, errors, panics and timeouts
// all come back as ErrNoToken.
func (m *Manager[F]) resolve(ctx context.Context) (string, error) {
	if m.config.TokenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.TokenTimeout)
		defer cancel()
	}

	ch := make(chan resolved, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- resolved{err: fmt.Errorf("resolver panic: %v", r)}
			}
		}()
		url, err := m.resolver.Resolve(ctx, m.config.PageURL)
		ch <- resolved{url: url, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrNoToken, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("%w: %w", ErrNoToken, r.err)
		}
		if r.url == "" {
			return "", ErrNoToken
		}
		return r.url, nil
	}
}

// stream pulls frames until the stream fails or ctx ends. It reports whether the
// handler asked to stop.
func (m *Manager[F]) stream(ctx context.Context, sess *Session, s Stream[F]) bool {
	logger := m.opts.logger.With("session", sess.ID)
	logger.Info("stream connected")
	m.setState(Streaming)

	var frames uint64
	for ctx.Err() == nil {
		frame, err := s.Next()
		if err != nil {
			m.streamDrops.Add(1)
			logger.Warn("stream lost", "err", err, "frames", frames, "uptime", time.Since(sess.StartedAt).Round(time.Second))
			return false
		}
		frames++
		m.frames.Add(1)

		err = m.handler.HandleFrame(ctx, frame)
		release(frame)
		if err != nil {
			if errors.Is(err, ErrDone) {
				logger.Info("handler finished", "frames", frames)
				return true
			}
			m.handlerErrors.Add(1)
			logger.Warn("frame handler failed", "err", err, "frame", frames)
		}
	}
	return false
}

// release closes frames that hold resources once the handler is done with them.
func release(frame any) {
	if c, ok := frame.(io.Closer); ok {
		c.Close()
	}
}

func (m *Manager[F]) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	m.opts.logger.Debug("state", "from", from, "to", to)
	if m.opts.onStateChange != nil {
		m.opts.onStateChange(from, to)
	}
}

// sleep waits for d or until ctx ends, returning ctx.Err() in the latter case.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
