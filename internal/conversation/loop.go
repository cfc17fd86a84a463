// Package conversation runs the record → transcribe → reply → speak loop.
package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/llm"
	"github.com/loqalabs/loqa-converse/internal/output"
	"github.com/loqalabs/loqa-converse/internal/prompt"
	"github.com/loqalabs/loqa-converse/internal/protocol"
	"github.com/loqalabs/loqa-converse/internal/recorder"
	"github.com/loqalabs/loqa-converse/internal/stt"
	"github.com/loqalabs/loqa-converse/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-converse/conversation"

type Recorder interface {
	Record(ctx context.Context) (recorder.Recording, error)
	Discard(rec recorder.Recording)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (stt.TranscriptResult, error)
}

type Responder interface {
	Reply(ctx context.Context, turnID string, messages []llm.Message) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, turnID, text string) (<-chan tts.SynthChunk, <-chan error)
}

// Publisher receives turn events; the NATS bus client satisfies it.
type Publisher interface {
	PublishTurn(evt protocol.TurnEvent) error
}

// Turn is the data carried through one iteration.
type Turn struct {
	ID         string
	Number     int
	Recording  recorder.Recording
	Transcript stt.TranscriptResult
	Utterance  string
	Prompt     prompt.Conversation
	Reply      string
	Files      []string
}

type Components struct {
	Recorder    Recorder
	Transcriber Transcriber
	Prompts     *prompt.Builder
	Responder   Responder
	Synthesizer Synthesizer
	Output      *output.Manager
	Publisher   Publisher
}

type Loop struct {
	cfg    config.LoopConfig
	c      Components
	log    *slog.Logger
	state  atomic.Int32
	tracer trace.Tracer

	turns         metric.Int64Counter
	stageDuration metric.Float64Histogram
}

func New(cfg config.LoopConfig, c Components, log *slog.Logger) *Loop {
	l := &Loop{
		cfg:    cfg,
		c:      c,
		log:    log.With(slog.String("component", "conversation")),
		tracer: otel.Tracer(instrumentationName),
	}
	if err := l.initMetrics(otel.Meter(instrumentationName)); err != nil {
		l.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		_ = l.initMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return l
}

func (l *Loop) initMetrics(meter metric.Meter) error {
	turns, err := meter.Int64Counter("converse.turns",
		metric.WithDescription("Conversation turns by outcome"))
	if err != nil {
		return err
	}
	stageDuration, err := meter.Float64Histogram("converse.stage.duration",
		metric.WithDescription("Time spent in each turn stage"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	l.turns = turns
	l.stageDuration = stageDuration
	return nil
}

// State reports the current stage.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.log.Debug("state transition", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

// Run executes turns until ctx is cancelled, the trigger input ends, the
// configured number of turns has run, or a fatal error occurs. Only the
// last case returns an error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(AwaitingRecordStart)
	for n := 1; l.cfg.MaxTurns == 0 || n <= l.cfg.MaxTurns; n++ {
		if ctx.Err() != nil {
			return nil
		}
		err := l.runTurn(ctx, n)
		switch {
		case err == nil:
			l.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
		case ctx.Err() != nil:
			l.log.Info("conversation interrupted", slog.Int("turn", n))
			return nil
		case errors.Is(err, io.EOF):
			l.log.Info("input closed, ending conversation")
			return nil
		case IsRecoverable(err):
			l.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
			l.log.Warn("turn skipped", slog.Int("turn", n), slog.String("error", err.Error()))
		default:
			l.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			return err
		}
	}
	return nil
}

func (l *Loop) runTurn(ctx context.Context, n int) (err error) {
	turn := &Turn{ID: uuid.NewString(), Number: n}
	ctx, span := l.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(attribute.String("turn.id", turn.ID), attribute.Int("turn.number", n)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if IsRecoverable(err) {
				l.publish(turn, protocol.StageSkipped, func(evt *protocol.TurnEvent) { evt.Error = err.Error() })
			}
		}
		span.End()
	}()

	l.setState(AwaitingRecordStart)
	if err := l.stage(ctx, Recording, func(ctx context.Context) error {
		rec, err := l.c.Recorder.Record(ctx)
		if err != nil {
			if errors.Is(err, recorder.ErrCapture) || errors.Is(err, recorder.ErrEmptyRecording) {
				return recoverable(Recording, err)
			}
			return fatal(Recording, err)
		}
		turn.Recording = rec
		return nil
	}); err != nil {
		return err
	}
	l.publish(turn, protocol.StageRecorded, nil)

	if err := l.stage(ctx, Transcribing, func(ctx context.Context) error {
		defer l.c.Recorder.Discard(turn.Recording)
		ctx, cancel := l.withTimeout(ctx)
		defer cancel()
		res, err := l.c.Transcriber.Transcribe(ctx, turn.Recording.Path)
		if err != nil {
			return l.engineError(Transcribing, err)
		}
		turn.Transcript = res
		return nil
	}); err != nil {
		return err
	}
	l.publish(turn, protocol.StageTranscribed, func(evt *protocol.TurnEvent) { evt.Text = turn.Transcript.Text })

	if err := l.stage(ctx, Prompting, func(context.Context) error {
		turn.Prompt, turn.Utterance = l.c.Prompts.Build(turn.Transcript.Text)
		if turn.Utterance == "" {
			return recoverable(Prompting, ErrEmptyTranscript)
		}
		return nil
	}); err != nil {
		return err
	}
	l.log.Info("prompt ready", slog.String("turn_id", turn.ID), slog.String("input", turn.Prompt.User))
	l.publish(turn, protocol.StagePrompted, func(evt *protocol.TurnEvent) { evt.Text = turn.Prompt.User })

	if err := l.stage(ctx, Generating, func(ctx context.Context) error {
		ctx, cancel := l.withTimeout(ctx)
		defer cancel()
		reply, err := l.c.Responder.Reply(ctx, turn.ID, turn.Prompt.Messages())
		if err != nil {
			return l.engineError(Generating, err)
		}
		if reply == "" {
			return recoverable(Generating, ErrEmptyReply)
		}
		turn.Reply = reply
		return nil
	}); err != nil {
		return err
	}
	l.log.Info("reply ready", slog.String("turn_id", turn.ID), slog.String("answer", turn.Reply))
	l.publish(turn, protocol.StageReplied, func(evt *protocol.TurnEvent) { evt.Text = turn.Reply })

	if err := l.stage(ctx, Synthesizing, func(ctx context.Context) error {
		if err := l.c.Output.Reset(); err != nil {
			return fatal(Synthesizing, err)
		}
		ctx, cancel := l.withTimeout(ctx)
		defer cancel()
		chunks, errs := l.c.Synthesizer.Synthesize(ctx, turn.ID, turn.Reply)
		files, err := l.c.Output.Persist(ctx, chunks, errs)
		turn.Files = files
		if err != nil {
			return l.engineError(Synthesizing, err)
		}
		return nil
	}); err != nil {
		return err
	}
	l.publish(turn, protocol.StageSynthesized, func(evt *protocol.TurnEvent) { evt.Files = turn.Files })

	_ = l.stage(ctx, Playing, func(ctx context.Context) error {
		played := l.c.Output.PlayAll(ctx, turn.Files)
		if played < len(turn.Files) {
			l.log.Warn("some reply audio did not play",
				slog.Int("played", played), slog.Int("files", len(turn.Files)))
		}
		return nil
	})
	l.publish(turn, protocol.StagePlayed, func(evt *protocol.TurnEvent) { evt.Files = turn.Files })

	l.setState(AwaitingRecordStart)
	return nil
}

// stage runs fn inside a span and records its duration.
func (l *Loop) stage(ctx context.Context, s State, fn func(ctx context.Context) error) error {
	l.setState(s)
	ctx, span := l.tracer.Start(ctx, "conversation."+s.String())
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	l.stageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", s.String())))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (l *Loop) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.StageTimeoutMS <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(l.cfg.StageTimeoutMS)*time.Millisecond)
}

// engineError classifies a failure of an external engine. A configured
// stage timeout only costs the turn; anything else is fatal.
func (l *Loop) engineError(stage State, err error) error {
	if l.cfg.StageTimeoutMS > 0 && errors.Is(err, context.DeadlineExceeded) {
		return recoverable(stage, err)
	}
	return fatal(stage, err)
}

func (l *Loop) publish(turn *Turn, stage string, fill func(*protocol.TurnEvent)) {
	if l.c.Publisher == nil {
		return
	}
	evt := protocol.TurnEvent{
		TurnID:    turn.ID,
		Turn:      turn.Number,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
	if fill != nil {
		fill(&evt)
	}
	if err := l.c.Publisher.PublishTurn(evt); err != nil {
		l.log.Warn("failed to publish turn event", slog.String("stage", stage), slog.String("error", err.Error()))
	}
}
