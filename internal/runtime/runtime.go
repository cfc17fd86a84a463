// Package runtime assembles the conversation from configuration and owns
// process-level resources: telemetry, the event bus and scratch files.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/loqalabs/loqa-converse/internal/bus"
	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/llm"
	"github.com/loqalabs/loqa-converse/internal/natsserver"
	"github.com/loqalabs/loqa-converse/internal/output"
	"github.com/loqalabs/loqa-converse/internal/prompt"
	"github.com/loqalabs/loqa-converse/internal/protocol"
	"github.com/loqalabs/loqa-converse/internal/recorder"
	"github.com/loqalabs/loqa-converse/internal/stt"
	"github.com/loqalabs/loqa-converse/internal/tts"
	"github.com/nats-io/nats-server/v2/server"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	metricsServer *http.Server
	embedded      *natsserver.EmbeddedServer
	bus           *bus.Client
	wg            sync.WaitGroup

	// observe, when set, receives every turn event published on the bus.
	observe func(protocol.TurnEvent)
}

// New builds a runtime that reads start/stop signals from in and writes
// user prompts to out.
func New(cfg config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		in:     in,
		out:    out,
	}
}

// Start runs the conversation until ctx is cancelled, the input is closed,
// the turn limit is reached or a stage fails fatally.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.stop(shutdownCtx)
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if metricHandler != nil {
		r.serveMetrics(metricHandler)
	}

	if err := r.connectBus(ctx); err != nil {
		return err
	}

	loop, err := r.buildLoop()
	if err != nil {
		return err
	}

	r.logger.Info("conversation started",
		slog.String("stt_mode", r.cfg.STT.Mode),
		slog.String("llm_mode", r.cfg.LLM.Mode),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.Int("max_turns", r.cfg.Loop.MaxTurns))

	err = loop.Run(ctx)
	r.logger.Info("conversation stopping")
	return err
}

func (r *Runtime) serveMetrics(handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsServer = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("metrics endpoint enabled", slog.String("addr", r.cfg.Telemetry.PrometheusBind))
}

func (r *Runtime) connectBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	var ns *server.Server
	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.logger)
		if err != nil {
			return err
		}
		r.embedded = embedded
		ns = embedded.Server()
	}
	client, err := bus.Connect(ctx, r.cfg.Bus, ns, r.logger)
	if err != nil {
		return err
	}
	r.bus = client

	if r.observe != nil {
		if _, err := client.SubscribeTurns(r.observe); err != nil {
			return fmt.Errorf("subscribe to turn events: %w", err)
		}
		// The subscription must be registered before the first turn publishes.
		if err := client.Conn().Flush(); err != nil {
			return fmt.Errorf("flush turn subscription: %w", err)
		}
	}
	r.logger.Info("turn events enabled",
		slog.String("subject_prefix", r.cfg.Bus.SubjectPrefix),
		slog.Bool("healthy", client.Healthy()))
	return nil
}

func (r *Runtime) buildLoop() (*conversation.Loop, error) {
	source, err := recorder.NewExecSource(r.cfg.Recorder, r.logger)
	if err != nil {
		return nil, err
	}
	rec := recorder.New(r.cfg.Recorder, source, recorder.NewLineTrigger(r.in), r.out, r.logger)

	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return nil, err
	}
	generator, err := llm.NewGenerator(r.cfg.LLM)
	if err != nil {
		return nil, err
	}
	synth, err := tts.NewSynthesizer(r.cfg.TTS)
	if err != nil {
		return nil, err
	}
	player, err := output.NewExecPlayer(r.cfg.Output.PlayCommand,
		time.Duration(r.cfg.Output.PollIntervalMS)*time.Millisecond, r.logger)
	if err != nil {
		return nil, err
	}

	components := conversation.Components{
		Recorder:    rec,
		Transcriber: stt.NewService(r.cfg.STT, recognizer, r.logger),
		Prompts:     prompt.NewBuilder(r.cfg.LLM),
		Responder:   llm.NewService(r.cfg.LLM, generator, r.logger),
		Synthesizer: tts.NewService(r.cfg.TTS, synth, r.logger),
		Output:      output.NewManager(r.cfg.Output.Directory, player, r.logger),
	}
	if r.bus != nil {
		components.Publisher = r.bus
	}
	return conversation.New(r.cfg.Loop, components, r.logger), nil
}

func (r *Runtime) stop(ctx context.Context) {
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.bus.Close()
	r.embedded.Shutdown()

	if r.cfg.Output.ClearOnExit {
		if err := os.RemoveAll(r.cfg.Output.Directory); err != nil {
			r.logger.Warn("failed to remove output directory", slog.String("error", err.Error()))
		}
	}
}
