// Traffic Server - counts vehicles per lane on a public traffic camera
// and serves the latest counts over HTTP
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/monitor"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)
	log.Debug("configuration",
		"resolver", cfg.Resolver,
		"model", cfg.Model.ModelPath,
		"conf", cfg.Detection.ConfidenceThreshold,
		"iou", cfg.Detection.IoUThreshold,
		"exclusion_line", cfg.Detection.ExclusionLineY,
		"listen", cfg.Web.ListenAddr,
	)

	app, err := monitor.New(cfg)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "err", err)
	}
}

// parseFlags builds the configuration: defaults (or -debug preset), then the
// -config file, then environment, then explicitly set flags.
func parseFlags() monitor.Config {
	def := monitor.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	debug := flag.Bool("debug", false, "Use the debug preset (confidence 0.5, exclusion line 215, detection logging)")
	debugDetections := flag.Bool("debug-detections", false, "Log the first box of every non-empty frame")
	logLevel := flag.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")

	pageURL := flag.String("page-url", def.Session.PageURL, "Page that embeds the stream (overrides TRAFFIC_PAGE_URL)")
	resolver := flag.String("resolver", string(def.Resolver), "Token resolver: browser, page, static")
	streamURL := flag.String("stream-url", "", "Fixed stream URL for the static resolver (overrides TRAFFIC_STREAM_URL)")
	noSandbox := flag.Bool("no-sandbox", false, "Run Chrome without its sandbox (containers running as root)")

	modelPath := flag.String("model", def.Model.ModelPath, "Detector model (overrides TRAFFIC_MODEL_PATH)")
	conf := flag.Float64("conf", def.Detection.ConfidenceThreshold, "Confidence threshold")
	iou := flag.Float64("iou", def.Detection.IoUThreshold, "NMS IoU threshold")
	exclusion := flag.Float64("exclusion-line", def.Detection.ExclusionLineY, "Drop boxes whose top edge is above this y; 0 disables")
	boxFormat := flag.String("box-format", string(def.Detection.BoxFormat), "Model box layout: xyxy, cxcywh")
	perClass := flag.Bool("per-class-nms", false, "Suppress duplicates per class instead of across classes")
	xDivider := flag.Float64("x-divider", def.Lanes.XDivider, "Vertical lane divider in frame pixels")
	yDivider := flag.Float64("y-divider", def.Lanes.YDivider, "Horizontal lane divider in frame pixels")

	tokenTimeout := flag.Duration("token-timeout", def.Session.TokenTimeout, "Upper bound for one token resolution")
	retry := flag.Duration("retry", def.Session.RetryInterval, "Wait after a failed token attempt")
	reconnect := flag.Duration("reconnect-delay", def.Session.ReconnectDelay, "Wait after a dead stream before reconnecting")

	listen := flag.String("listen", def.Web.ListenAddr, "HTTP listen address (overrides TRAFFIC_LISTEN_ADDR)")
	accessLog := flag.Bool("access-log", false, "Log every HTTP request")

	flag.Parse()

	cfg := def
	if *debug {
		cfg = monitor.DebugConfig()
	}
	if *configPath != "" {
		// The file refines the preset rather than replacing it
		loaded, err := monitor.LoadFileOver(cfg, *configPath)
		if err != nil {
			stdlog.Fatalf("❌ %v", err)
		}
		cfg = loaded
	}
	if err := cfg.LoadEnvConfig(); err != nil {
		stdlog.Fatalf("❌ Environment: %v", err)
	}

	// Flags win, but only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug-detections":
			cfg.DebugDetections = *debugDetections
		case "log-level":
			cfg.LogLevel = *logLevel
		case "page-url":
			cfg.Session.PageURL = *pageURL
		case "resolver":
			cfg.Resolver = monitor.ResolverKind(*resolver)
		case "stream-url":
			cfg.StreamURL = *streamURL
			cfg.Resolver = monitor.ResolverStatic
		case "no-sandbox":
			cfg.Browser.NoSandbox = *noSandbox
		case "model":
			cfg.Model.ModelPath = *modelPath
		case "conf":
			cfg.Detection.ConfidenceThreshold = *conf
		case "iou":
			cfg.Detection.IoUThreshold = *iou
		case "exclusion-line":
			cfg.Detection.ExclusionLineY = *exclusion
		case "box-format":
			cfg.Detection.BoxFormat = detection.BoxFormat(*boxFormat)
		case "per-class-nms":
			cfg.Detection.PerClassNMS = *perClass
		case "x-divider":
			cfg.Lanes.XDivider = *xDivider
		case "y-divider":
			cfg.Lanes.YDivider = *yDivider
		case "token-timeout":
			cfg.Session.TokenTimeout = *tokenTimeout
		case "retry":
			cfg.Session.RetryInterval = *retry
		case "reconnect-delay":
			cfg.Session.ReconnectDelay = *reconnect
		case "listen":
			cfg.Web.ListenAddr = *listen
		case "access-log":
			cfg.Web.AccessLog = *accessLog
		}
	})
	return cfg
}
