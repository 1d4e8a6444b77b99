// Dataset Capture - saves a frame from the traffic camera at a fixed interval
// until a batch of training images is complete
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/capture"
	"github.com/teslashibe/go-traffic/pkg/monitor"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/stream"
)

func main() {
	cfg := monitor.DefaultConfig()
	envErr := cfg.LoadEnvConfig()

	dir := flag.String("dir", cfg.Capture.Dir, "Dataset root; images go to <dir>/raw_images_batch_<batch>")
	batch := flag.Int("batch", cfg.Capture.Batch, "Batch number used in folder and file names")
	interval := flag.Duration("interval", cfg.Capture.Interval, "Minimum time between saved frames")
	total := flag.Int("total", cfg.Capture.Total, "Number of images to save")
	pageURL := flag.String("page-url", cfg.Session.PageURL, "Page that embeds the stream")
	resolver := flag.String("resolver", string(cfg.Resolver), "Token resolver: browser, page, static")
	streamURL := flag.String("stream-url", cfg.StreamURL, "Fixed stream URL for the static resolver")
	noSandbox := flag.Bool("no-sandbox", false, "Run Chrome without its sandbox")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg.Capture.Dir, cfg.Capture.Batch, cfg.Capture.Interval, cfg.Capture.Total = *dir, *batch, *interval, *total
	cfg.Session.PageURL, cfg.Resolver, cfg.StreamURL = *pageURL, monitor.ResolverKind(*resolver), *streamURL
	cfg.Browser.NoSandbox = *noSandbox
	log.Init(*logLevel)
	if envErr != nil {
		stdlog.Fatalf("❌ Environment: %v", envErr)
	}
	logger := log.With("batch", cfg.Capture.Batch)

	tokens, err := monitor.NewResolver(cfg)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	saver := capture.SaverFunc[*stream.Frame](func(path string, f *stream.Frame) error {
		return f.WriteJPEG(path)
	})
	capturer, err := capture.New[*stream.Frame](cfg.Capture, saver, nil)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	fmt.Println("📸 Dataset Capture")
	fmt.Println("==================")
	fmt.Printf("📂 Saving %d images to %s, one every %s\n", cfg.Capture.Total, cfg.Capture.Folder(), cfg.Capture.Interval)

	manager := session.NewManager[*stream.Frame](
		cfg.Session,
		tokens,
		stream.NewSource(cfg.Stream),
		capturer,
		session.OnStateChange(func(_, to session.State) {
			// Each new connection waits a full interval before the first save
			if to == session.Streaming {
				capturer.Reset()
				logger.Info("streaming", "saved", capturer.Count())
			}
		}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = manager.Run(ctx)
	switch {
	case err == nil:
		log.Info("batch complete", "batch", cfg.Capture.Batch, "saved", capturer.Count())
		fmt.Printf("✅ Done: %d images in %s\n", capturer.Count(), cfg.Capture.Folder())
	case errors.Is(err, context.Canceled):
		log.Warn("stopped before the batch was complete", "batch", cfg.Capture.Batch, "saved", capturer.Count(), "total", cfg.Capture.Total)
		fmt.Printf("\n👋 Stopped after %d images\n", capturer.Count())
	default:
		stdlog.Fatalf("❌ Runtime error: %v", err)
	}
}
