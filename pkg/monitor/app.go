package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/detection/yolo"
	"github.com/teslashibe/go-traffic/pkg/geometry"
	"github.com/teslashibe/go-traffic/pkg/hub"
	"github.com/teslashibe/go-traffic/pkg/metrics"
	"github.com/teslashibe/go-traffic/pkg/pipeline"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/stream"
	"github.com/teslashibe/go-traffic/pkg/traffic"
	"github.com/teslashibe/go-traffic/pkg/web"
)

// App is the traffic monitor. It owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	state   *traffic.State
	metrics *metrics.Metrics
	hub     *hub.Hub

	detector *yolo.Detector
	pipeline *pipeline.Pipeline[*stream.Frame]
	manager  *session.Manager[*stream.Frame]

	server *web.Server
}

// New creates the application with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config:  cfg,
		logger:  log.Component("monitor"),
		state:   traffic.NewState(),
		metrics: metrics.New(),
		hub:     hub.New("traffic"),
	}, nil
}

// Init loads the model and builds the ingestion loop and web server.
// Call this after New() and before Run(). A model that cannot be loaded is fatal.
func (a *App) Init() error {
	fmt.Println("🚦 Traffic Monitor")
	fmt.Println("==================")
	if a.config.DebugDetections {
		fmt.Println("🐛 Detection debug logging enabled")
	}

	fmt.Printf("🧠 Loading model %s... ", a.config.Model.ModelPath)
	det, err := yolo.New(a.config.Model)
	if err != nil {
		fmt.Println("❌")
		return fmt.Errorf("detector: %w", err)
	}
	a.detector = det
	fmt.Println("✅")

	// The decoder works in the model's input space
	decCfg := a.config.Detection
	decCfg.Canvas = det.Canvas()
	if err := decCfg.Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}

	a.pipeline = pipeline.New[*stream.Frame](
		frameDetector{model: det},
		detection.NewDecoder(decCfg),
		a.config.Lanes,
		a.state,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithDebugDetections(a.config.DebugDetections),
		pipeline.OnPublish(a.hub.PublishCounts),
	)

	resolver, err := NewResolver(a.config)
	if err != nil {
		return err
	}
	a.manager = session.NewManager[*stream.Frame](
		a.config.Session,
		resolver,
		stream.NewSource(a.config.Stream),
		a.pipeline,
		session.OnStateChange(func(from, to session.State) {
			switch {
			case to == session.Streaming:
				a.logger.Info("streaming")
			case from == session.Streaming && to == session.Idle:
				a.logger.Warn("stream lost, reconnecting", "delay", a.config.Session.ReconnectDelay)
			}
		}),
	)

	a.metrics.AttachSession(a.manager)
	a.metrics.AttachLanes(a.state)
	a.metrics.AttachClients(a.hub)

	a.server = web.NewServer(a.config.Web, a.state,
		web.WithStatus(a.manager),
		web.WithMetrics(a.metrics),
		web.WithHub(a.hub),
	)

	fmt.Printf("🛣️  Lanes split at x=%.0f y=%.0f, exclusion line y=%.0f\n",
		a.config.Lanes.XDivider, a.config.Lanes.YDivider, decCfg.ExclusionLineY)
	fmt.Printf("📡 Token resolver: %s\n", a.config.Resolver)
	return nil
}

// Run starts the web server and the ingestion loop.
// Blocks until ctx is cancelled or the web server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return errors.New("monitor: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)
	serveErr := a.server.StartAsync()

	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- a.manager.Run(ctx)
	}()

	fmt.Println("\n🎥 Watching the feed! (Ctrl+C to exit)")

	select {
	case err := <-ingestErr:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("ingestion: %w", err)
	case err := <-serveErr:
		cancel()
		<-ingestErr
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	}
}

// Shutdown stops the web server and releases the model.
func (a *App) Shutdown(ctx context.Context) {
	fmt.Println("\n👋 Goodbye!")

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("web server shutdown", "err", err)
		}
	}
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("close detector", "err", err)
		}
	}
}

// State returns the shared lane counts.
func (a *App) State() *traffic.State {
	return a.state
}

// frameDetector runs the YOLO model on stream frames.
type frameDetector struct {
	model *yolo.Detector
}

func (d frameDetector) Infer(f *stream.Frame) (detection.Tensor, geometry.Letterbox, error) {
	return d.model.Infer(f.Mat)
}
