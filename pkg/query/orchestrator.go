// Package query turns one spoken question into one spoken answer. The
// orchestrator pairs the question with the device's most recent frame
// and drives the transcribe, reason, synthesize stages in strict
// sequence, containing any failure to the single request.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sightline-ai/go-sightline/pkg/reason"
	"github.com/sightline-ai/go-sightline/pkg/session"
	"github.com/sightline-ai/go-sightline/pkg/storage"
	"github.com/sightline-ai/go-sightline/pkg/stt"
	"github.com/sightline-ai/go-sightline/pkg/tts"
)

// State is a pipeline lifecycle state.
type State string

const (
	StateReceived    State = "received"
	StateTranscribed State = "transcribed"
	StateReasoned    State = "reasoned"
	StateSynthesized State = "synthesized"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Event is one pipeline lifecycle transition, emitted for observers.
type Event struct {
	RequestID string    `json:"request_id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Stage     Stage     `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Request is one inbound voice query.
type Request struct {
	DeviceID string
	Audio    []byte
}

// Result is the outcome of a completed pipeline.
type Result struct {
	RequestID  string
	Audio      []byte
	Format     tts.AudioFormat
	Transcript string
	Answer     string

	// HasFrame reports whether visual context was available;
	// FrameTimestamp is meaningful only when it is true.
	HasFrame       bool
	FrameTimestamp int64

	Timing Timing
}

// Options configures an Orchestrator.
type Options struct {
	// Per-stage deadlines. Zero values fall back to defaults.
	STTTimeout    time.Duration
	ReasonTimeout time.Duration
	TTSTimeout    time.Duration

	// AnnounceMissingFrame prefixes the reasoning prompt with a note
	// when no visual context exists, so the answer can say so.
	AnnounceMissingFrame bool

	Logger *slog.Logger

	// OnEvent, when set, receives every lifecycle transition. It is
	// called synchronously and must not block.
	OnEvent func(Event)
}

// Default per-stage deadlines.
const (
	DefaultSTTTimeout    = 60 * time.Second
	DefaultReasonTimeout = 120 * time.Second
	DefaultTTSTimeout    = 30 * time.Second
)

const missingFrameNote = "No camera frame is available for this question; " +
	"say so if the question needs one. "

// Orchestrator runs query pipelines. Safe for concurrent use; requests
// are fully independent.
type Orchestrator struct {
	registry    *session.Registry
	backend     storage.Backend
	transcriber stt.Provider
	reasoner    reason.Provider
	synthesizer tts.Provider
	opts        Options
	logger      *slog.Logger
	metrics     collector
}

// New creates an orchestrator over the given registry, scratch storage
// backend, and collaborators.
func New(
	registry *session.Registry,
	backend storage.Backend,
	transcriber stt.Provider,
	reasoner reason.Provider,
	synthesizer tts.Provider,
	opts Options,
) *Orchestrator {
	if opts.STTTimeout <= 0 {
		opts.STTTimeout = DefaultSTTTimeout
	}
	if opts.ReasonTimeout <= 0 {
		opts.ReasonTimeout = DefaultReasonTimeout
	}
	if opts.TTSTimeout <= 0 {
		opts.TTSTimeout = DefaultTTSTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:    registry,
		backend:     backend,
		transcriber: transcriber,
		reasoner:    reasoner,
		synthesizer: synthesizer,
		opts:        opts,
		logger:      logger.With("component", "query"),
	}
}

// Metrics returns a snapshot of pipeline statistics.
func (o *Orchestrator) Metrics() Metrics {
	return o.metrics.snapshot()
}

// Handle runs one request through the pipeline and returns the
// synthesized answer. Every failure is request-local; other devices
// and in-flight queries are unaffected.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Result, error) {
	if len(req.Audio) == 0 {
		return nil, ErrNoAudio
	}

	requestID := uuid.NewString()
	log := o.logger.With("request_id", requestID, "device_id", req.DeviceID)
	started := time.Now()

	o.metrics.markReceived()
	o.emit(Event{RequestID: requestID, DeviceID: req.DeviceID, State: StateReceived, At: started})

	sess := o.registry.GetOrCreate(req.DeviceID)

	// Snapshot the latest frame before any slow call. The handle pins
	// the blob so a racing ingest cannot evict it from under the
	// reasoning stage, and no device lock is held past this point.
	handle, hasFrame := sess.Frames.Latest()
	if hasFrame {
		defer handle.Release()
	}

	// Scratch the inbound audio under a per-request unique key.
	scratchKey := "scratch/" + requestID + ".wav"
	scratch, err := o.backend.Save(scratchKey, req.Audio)
	if err != nil {
		o.metrics.markFailed()
		return nil, &StorageError{Op: "save scratch audio", Err: err}
	}
	defer func() {
		if err := o.backend.Delete(scratch); err != nil {
			log.Warn("failed to delete scratch audio", "locator", scratch.String(), "error", err)
		}
	}()

	var timing Timing
	fail := func(stage Stage, err error) error {
		serr := &StageError{Stage: stage, Err: err}
		o.metrics.markFailed()
		o.emit(Event{
			RequestID: requestID, DeviceID: req.DeviceID,
			State: StateFailed, Stage: stage, Error: serr.Error(), At: time.Now(),
		})
		log.Error("pipeline failed", "stage", stage, "error", err)
		return serr
	}

	// Transcribe.
	transcript, elapsed, err := o.transcribe(ctx, scratch)
	timing.Transcribe = elapsed
	if err != nil {
		return nil, fail(StageTranscribe, err)
	}
	o.emit(Event{RequestID: requestID, DeviceID: req.DeviceID, State: StateTranscribed, At: time.Now()})
	log.Debug("transcribed", "chars", len(transcript), "latency_ms", elapsed.Milliseconds())

	// Reason against the pinned frame, if any.
	var image []byte
	var frameTS int64
	if hasFrame {
		frameTS = handle.Record().Timestamp
		image, err = storage.ReadAll(o.backend, handle.Record().Locator)
		if err != nil {
			// A vanished frame blob degrades to an audio-only answer.
			log.Warn("failed to read frame, proceeding without visual context",
				"locator", handle.Record().Locator.String(), "error", err)
			image = nil
			hasFrame = false
		}
	}

	prompt := transcript
	if !hasFrame && o.opts.AnnounceMissingFrame {
		prompt = missingFrameNote + transcript
	}

	answer, elapsed, err := o.generate(ctx, prompt, image)
	timing.Reason = elapsed
	if err != nil {
		return nil, fail(StageReason, err)
	}
	o.emit(Event{RequestID: requestID, DeviceID: req.DeviceID, State: StateReasoned, At: time.Now()})
	log.Debug("reasoned", "chars", len(answer), "has_frame", hasFrame, "latency_ms", elapsed.Milliseconds())

	// Synthesize.
	audio, elapsed, err := o.synthesize(ctx, answer)
	timing.Synthesize = elapsed
	if err != nil {
		return nil, fail(StageSynthesize, err)
	}
	o.emit(Event{RequestID: requestID, DeviceID: req.DeviceID, State: StateSynthesized, At: time.Now()})

	timing.Total = time.Since(started)
	o.metrics.markDone(timing)
	o.emit(Event{RequestID: requestID, DeviceID: req.DeviceID, State: StateDone, At: time.Now()})
	log.Info("query answered",
		"has_frame", hasFrame,
		"total_ms", timing.Total.Milliseconds(),
	)

	return &Result{
		RequestID:      requestID,
		Audio:          audio.Audio,
		Format:         audio.Format,
		Transcript:     transcript,
		Answer:         answer,
		HasFrame:       hasFrame,
		FrameTimestamp: frameTS,
		Timing:         timing,
	}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, scratch storage.Locator) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.STTTimeout)
	defer cancel()

	start := time.Now()
	rc, err := o.backend.Open(scratch)
	if err != nil {
		return "", time.Since(start), err
	}
	defer rc.Close()

	text, err := o.transcriber.Transcribe(ctx, rc, "question.wav")
	return text, time.Since(start), stageCause(ctx, err)
}

func (o *Orchestrator) generate(ctx context.Context, prompt string, image []byte) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ReasonTimeout)
	defer cancel()

	start := time.Now()
	answer, err := o.reasoner.Generate(ctx, prompt, image)
	return answer, time.Since(start), stageCause(ctx, err)
}

func (o *Orchestrator) synthesize(ctx context.Context, answer string) (*tts.AudioResult, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.TTSTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.synthesizer.Synthesize(ctx, answer)
	return res, time.Since(start), stageCause(ctx, err)
}

// stageCause prefers the deadline error when a collaborator failure
// coincides with the stage deadline expiring, so timeouts stay
// distinguishable from hard collaborator faults.
func stageCause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

func (o *Orchestrator) emit(ev Event) {
	if o.opts.OnEvent != nil {
		o.opts.OnEvent(ev)
	}
}
