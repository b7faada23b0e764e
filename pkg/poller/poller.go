// Package poller runs the capture-and-dispatch loop: on a fixed
// interval, grab a frame, send it with the instruction to the
// inference endpoint, publish the reply (or the error) as the latest
// status.
//
// The loop is an explicit two-state machine (Stopped/Running) with a
// dispatch guard (idle/inFlight) enforcing at most one outstanding
// request. Timer firings that land while a request is pending are
// dropped, never queued. Pausing or stopping cancels only the
// recurring trigger; an in-flight request is not aborted and its
// completion still publishes its result (last writer wins).
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amitthk/local-llm-camera-app/internal/metrics"
	"github.com/amitthk/local-llm-camera-app/pkg/camera"
	"github.com/amitthk/local-llm-camera-app/pkg/inference"
)

// State of the loop.
type State int

const (
	// Stopped means no recurring trigger is scheduled.
	Stopped State = iota
	// Running means ticks fire at the configured interval.
	Running
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// dispatchState guards the dispatch cycle.
type dispatchState int

const (
	idle dispatchState = iota
	inFlight
)

// Loop control errors.
var (
	// ErrRunning is returned when the interval is changed mid-run.
	ErrRunning = errors.New("poller: interval is fixed while running")

	// ErrDisposed is returned when a disposed poller is started.
	ErrDisposed = errors.New("poller: disposed")

	// ErrBadInterval is returned for a non-positive interval.
	ErrBadInterval = errors.New("poller: interval must be positive")
)

// Describer is the single inference operation the loop needs.
type Describer interface {
	Describe(ctx context.Context, req *inference.Request) (*inference.Response, error)
}

// Status is the published snapshot of the loop.
type Status struct {
	State        string    `json:"state"`
	CameraActive bool      `json:"camera_active"`
	IntervalMS   int       `json:"interval_ms"`
	Model        string    `json:"model"`
	Instruction  string    `json:"instruction"`
	Reply        string    `json:"reply"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the initial tick interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithInstruction sets the instruction sent with every frame.
func WithInstruction(s string) Option {
	return func(p *Poller) { p.instruction = s }
}

// WithModel sets the model identifier sent with every request.
func WithModel(m string) Option {
	return func(p *Poller) { p.model = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l.With("component", "poller") }
}

// WithOnStatus registers a callback invoked after every published
// status change (replies, errors, state transitions).
func WithOnStatus(fn func(Status)) Option {
	return func(p *Poller) { p.onStatus = fn }
}

// WithOnFrame registers a callback invoked with the JPEG bytes of
// every dispatched frame (live preview feed).
func WithOnFrame(fn func([]byte)) Option {
	return func(p *Poller) { p.onFrame = fn }
}

// Poller owns the loop state. The camera manager is a collaborator,
// not owned: StopAndRelease and Dispose release it, Pause leaves it
// untouched.
type Poller struct {
	cam      *camera.Manager
	client   Describer
	logger   *slog.Logger
	onStatus func(Status)
	onFrame  func([]byte)

	mu          sync.Mutex
	state       State
	dispatch    dispatchState
	interval    time.Duration
	instruction string
	model       string
	reply       string
	lastErr     string
	updatedAt   time.Time
	stopTicker  chan struct{}
	disposed    bool
}

// New creates a poller in the Stopped state.
func New(cam *camera.Manager, client Describer, opts ...Option) *Poller {
	p := &Poller{
		cam:      cam,
		client:   client,
		logger:   slog.Default().With("component", "poller"),
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start transitions Stopped -> Running: trigger a camera acquire if the
// manager is inactive (fire-and-forget), dispatch once immediately,
// then tick at the configured interval. No-op when already running.
func (p *Poller) Start() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	if p.state == Running {
		p.mu.Unlock()
		return nil
	}
	p.state = Running
	stop := make(chan struct{})
	p.stopTicker = stop
	interval := p.interval
	p.mu.Unlock()

	if !p.cam.Active() {
		go p.cam.Acquire(context.Background())
	}

	p.logger.Info("loop started", "interval_ms", interval.Milliseconds())
	go p.tick()
	go p.run(stop, interval)
	p.publishState()
	return nil
}

// run fires ticks until the stop channel closes. Each tick runs in its
// own goroutine so a slow request never blocks the trigger; overlap is
// prevented by the dispatch guard, not by the scheduler.
func (p *Poller) run(stop <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			go p.tick()
		}
	}
}

// Pause transitions Running -> Stopped, cancelling the recurring
// trigger only. The camera stays active.
func (p *Poller) Pause() {
	if p.cancelTicker() {
		p.logger.Info("loop paused")
		p.publishState()
	}
}

// StopAndRelease transitions Running -> Stopped and releases the
// camera.
func (p *Poller) StopAndRelease() {
	stopped := p.cancelTicker()
	p.cam.Release()
	if stopped {
		p.logger.Info("loop stopped, camera released")
	}
	p.publishState()
}

// Dispose is the teardown path: cancel the trigger, release the
// camera, and refuse further starts. Idempotent; guaranteed cleanup on
// every exit path.
func (p *Poller) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.mu.Unlock()

	p.cancelTicker()
	p.cam.Release()
	p.logger.Info("loop disposed")
}

// cancelTicker stops the recurring trigger. Returns true if the loop
// was running.
func (p *Poller) cancelTicker() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Running {
		return false
	}
	close(p.stopTicker)
	p.stopTicker = nil
	p.state = Stopped
	return true
}

// SetInterval changes the tick interval. Only permitted while Stopped;
// the new value takes effect on the next Start.
func (p *Poller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrBadInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running {
		return ErrRunning
	}
	p.interval = d
	return nil
}

// SetInstruction changes the instruction. Takes effect on the next
// tick.
func (p *Poller) SetInstruction(s string) {
	p.mu.Lock()
	p.instruction = s
	p.mu.Unlock()
}

// SetModel changes the model identifier. Takes effect on the next
// tick.
func (p *Poller) SetModel(m string) {
	p.mu.Lock()
	p.model = m
	p.mu.Unlock()
}

// State returns the current loop state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns the current published snapshot.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Poller) statusLocked() Status {
	return Status{
		State:        p.state.String(),
		CameraActive: p.cam.Active(),
		IntervalMS:   int(p.interval.Milliseconds()),
		Model:        p.model,
		Instruction:  p.instruction,
		Reply:        p.reply,
		Error:        p.lastErr,
		UpdatedAt:    p.updatedAt,
	}
}

// tick is one dispatch cycle. Skipped entirely when a request is
// already in flight; the guard is cleared as the final step on every
// other path.
func (p *Poller) tick() {
	p.mu.Lock()
	if p.dispatch == inFlight {
		p.mu.Unlock()
		metrics.TicksSkipped.Inc()
		p.logger.Debug("tick skipped, request in flight")
		return
	}
	p.dispatch = inFlight
	instruction := p.instruction
	model := p.model
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.dispatch = idle
		p.mu.Unlock()
	}()

	metrics.TicksTotal.Inc()
	id := uuid.NewString()[:8]

	frame := p.cam.Snapshot()
	if frame == "" {
		metrics.EmptyCaptures.Inc()
		msg := "camera not ready, waiting for frames"
		if err := p.cam.LastError(); err != nil {
			msg = err.Error()
		}
		p.logger.Debug("tick skipped, no frame", "request_id", id)
		p.publishError(msg)
		return
	}

	if p.onFrame != nil {
		if raw := camera.FrameBytes(frame); raw != nil {
			p.onFrame(raw)
		}
	}

	start := time.Now()
	resp, err := p.client.Describe(context.Background(), &inference.Request{
		Instruction:  instruction,
		ImageDataURL: frame,
		Model:        model,
	})
	metrics.RequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DispatchErrors.Inc()
		p.logger.Warn("dispatch failed", "request_id", id, "error", err)
		p.publishError(err.Error())
		return
	}

	p.logger.Info("dispatch completed",
		"request_id", id,
		"latency_ms", resp.LatencyMs,
		"total_tokens", resp.Usage.TotalTokens,
	)
	p.publishReply(resp.Reply)
}

func (p *Poller) publishReply(text string) {
	p.mu.Lock()
	p.reply = text
	p.lastErr = ""
	p.updatedAt = time.Now()
	st := p.statusLocked()
	cb := p.onStatus
	p.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (p *Poller) publishError(msg string) {
	p.mu.Lock()
	p.lastErr = msg
	p.updatedAt = time.Now()
	st := p.statusLocked()
	cb := p.onStatus
	p.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (p *Poller) publishState() {
	p.mu.Lock()
	st := p.statusLocked()
	cb := p.onStatus
	p.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}
