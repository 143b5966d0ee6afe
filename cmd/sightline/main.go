// sightline: visual question answering server for edge camera devices.
// Devices stream frames to /image_stream and ask spoken questions via
// /query; the server pairs each question with the device's most recent
// frame and answers with synthesized speech.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sightline-ai/go-sightline/internal/config"
	"github.com/sightline-ai/go-sightline/internal/log"
	"github.com/sightline-ai/go-sightline/pkg/frame"
	"github.com/sightline-ai/go-sightline/pkg/hub"
	"github.com/sightline-ai/go-sightline/pkg/query"
	"github.com/sightline-ai/go-sightline/pkg/reason"
	"github.com/sightline-ai/go-sightline/pkg/session"
	"github.com/sightline-ai/go-sightline/pkg/storage"
	"github.com/sightline-ai/go-sightline/pkg/stt"
	"github.com/sightline-ai/go-sightline/pkg/tts"
	"github.com/sightline-ai/go-sightline/pkg/web"
)

var version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	log.Info("starting sightline", "version", version, "addr", cfg.ListenAddr)

	backend, err := storage.NewFS(cfg.DataDir)
	if err != nil {
		log.Error("failed to open data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	registry := session.NewRegistry(func(deviceID string) *frame.Store {
		return frame.NewStore(backend, cfg.FrameCapacity, log.With("device_id", deviceID))
	})

	transcriber, err := stt.NewWhisper(
		stt.WithBaseURL(cfg.STTBaseURL),
		stt.WithAPIKey(cfg.STTAPIKey),
		stt.WithModel(cfg.STTModel),
		stt.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("failed to create transcription provider", "error", err)
		os.Exit(1)
	}
	defer transcriber.Close()

	reasoner, err := reason.NewOllama(
		reason.WithBaseURL(cfg.ReasonBaseURL),
		reason.WithModel(cfg.ReasonModel),
		reason.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("failed to create reasoning provider", "error", err)
		os.Exit(1)
	}
	defer reasoner.Close()

	synthesizer, err := tts.NewOpenAI(
		tts.WithBaseURL(cfg.TTSBaseURL),
		tts.WithAPIKey(cfg.TTSAPIKey),
		tts.WithModel(cfg.TTSModel),
		tts.WithVoice(cfg.TTSVoice),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("failed to create synthesis provider", "error", err)
		os.Exit(1)
	}
	defer synthesizer.Close()

	events := hub.New("events", log.L())
	go events.Run()

	orchestrator := query.New(registry, backend, transcriber, reasoner, synthesizer, query.Options{
		STTTimeout:           cfg.STTTimeout,
		ReasonTimeout:        cfg.ReasonTimeout,
		TTSTimeout:           cfg.TTSTimeout,
		AnnounceMissingFrame: cfg.AnnounceMissingFrame,
		Logger:               log.L(),
		OnEvent: func(ev query.Event) {
			if err := events.BroadcastJSON(ev); err != nil {
				log.Warn("failed to broadcast pipeline event", "error", err)
			}
		},
	})

	srv := web.NewServer(web.Config{
		Registry:     registry,
		Backend:      backend,
		Orchestrator: orchestrator,
		Events:       events,
		STT:          transcriber,
		Reason:       reasoner,
		TTS:          synthesizer,
		Logger:       log.L(),
	})

	go func() {
		if err := srv.Listen(cfg.ListenAddr); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	events.Stop()
	log.Info("goodbye")
}
