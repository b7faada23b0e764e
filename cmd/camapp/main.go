// camapp - webcam frames to a local vision LLM
//
// Owns the camera, runs the capture-and-dispatch loop, and exposes the
// control API plus websocket status/preview feeds.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amitthk/local-llm-camera-app/internal/config"
	"github.com/amitthk/local-llm-camera-app/internal/log"
	"github.com/amitthk/local-llm-camera-app/pkg/camera"
	"github.com/amitthk/local-llm-camera-app/pkg/inference"
	"github.com/amitthk/local-llm-camera-app/pkg/poller"
	"github.com/amitthk/local-llm-camera-app/pkg/web"
)

func main() {
	configPath := flag.String("config", "camapp.toml", "path to TOML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	autostart := flag.Bool("start", false, "start polling immediately instead of waiting for /api/start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	logger.Info("camapp starting",
		"endpoint", cfg.Inference.BaseURL,
		"model", cfg.Inference.Model,
		"interval_ms", cfg.Poll.IntervalMS,
		"device", cfg.Camera.Device,
	)

	client := inference.NewClient(
		inference.WithBaseURL(cfg.Inference.BaseURL),
		inference.WithAPIKey(cfg.Inference.APIKey),
		inference.WithModel(cfg.Inference.Model),
		inference.WithMaxTokens(cfg.Inference.MaxTokens),
		inference.WithTimeout(cfg.Timeout()),
		inference.WithLogger(logger),
	)
	defer client.Close()

	cam := camera.NewManager(camera.OpenCVOpener(cfg.Camera.Device), logger)

	// The server is created after the poller, so the callbacks close
	// over the variable; they only fire once the loop is started.
	var srv *web.Server
	p := poller.New(cam, client,
		poller.WithInterval(cfg.Interval()),
		poller.WithInstruction(cfg.Poll.Instruction),
		poller.WithModel(cfg.Inference.Model),
		poller.WithLogger(logger),
		poller.WithOnStatus(func(st poller.Status) {
			if srv != nil {
				srv.PublishStatus(st)
			}
		}),
		poller.WithOnFrame(func(jpeg []byte) {
			if srv != nil {
				srv.PublishFrame(jpeg)
			}
		}),
	)
	srv = web.NewServer(cfg.ListenAddr, p, client, logger)

	// Config file edits apply live where the state machine allows:
	// instruction and model at any time, the interval only while
	// stopped.
	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnReload(func(next config.Config) {
		p.SetInstruction(next.Poll.Instruction)
		p.SetModel(next.Inference.Model)
		if err := p.SetInterval(next.Interval()); err != nil {
			logger.Info("interval change deferred", "reason", err)
		}
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	srv.StartAsync()

	if *autostart {
		if err := p.Start(); err != nil {
			logger.Error("autostart failed", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	p.Dispose()
	if err := srv.Shutdown(); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}
}
