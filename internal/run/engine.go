package run

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/stream"
)

const DefaultTickInterval = time.Second

type Config struct {
	Filter         location.FilterConfig
	ArrivalRadiusM float64
	// TickInterval republishes the running clock while a run is active.
	// Zero disables it.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Filter:         location.DefaultFilterConfig(),
		ArrivalRadiusM: checkpoint.DefaultArrivalRadiusM,
		TickInterval:   DefaultTickInterval,
	}
}

type Option func(*Engine)

// WithSource makes the engine subscribe to src for the duration of each run.
func WithSource(src location.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithRedis mirrors every snapshot to a Redis channel for RemoteClient.
func WithRedis(client *redis.Client, channel string) Option {
	return func(e *Engine) {
		e.redis = client
		e.channel = channel
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns at most one run at a time. All state transitions happen on the
// goroutine executing Run; the other methods hand work to it and wait.
type Engine struct {
	cfg     Config
	filter  *location.Filter
	tracker *checkpoint.Tracker
	source  location.Source
	hub     *stream.Hub[State]
	now     func() time.Time

	redis   *redis.Client
	channel string

	requests chan func()
	running  atomic.Bool
	active   atomic.Bool
	done     chan struct{}

	// loop-owned
	loopCtx     context.Context
	state       State
	feed        <-chan location.RawFix
	unsubscribe context.CancelFunc
	ticker      *time.Ticker
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		filter:   location.NewFilter(cfg.Filter),
		tracker:  checkpoint.NewTracker(cfg.ArrivalRadiusM),
		now:      time.Now,
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.state = State{Epoch: e.now().UnixNano(), Phase: PhaseIdle}
	e.hub = stream.NewHub(e.state, e.redis, e.channel)
	return e
}

// Run is the engine's processing loop. It returns when ctx is done; the run
// in progress is abandoned and every attached client is detached.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("run: engine loop already started")
	}
	defer close(e.done)
	defer e.hub.Close()
	defer e.abandon()

	e.loopCtx = ctx
	for {
		var tick <-chan time.Time
		if e.ticker != nil {
			tick = e.ticker.C
		}

		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.requests:
			fn()
		case raw, ok := <-e.feed:
			if !ok {
				log.Printf("run %s: location source closed", e.state.RunID)
				e.feed = nil
				continue
			}
			e.apply(raw)
		case <-tick:
			e.tick()
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Start begins a new run from Idle or Stopped. The returned state is the
// first snapshot of the run.
func (e *Engine) Start(ctx context.Context, course Course) (State, error) {
	if len(course.Checkpoints) == 0 {
		return e.Latest(), &InvalidStateError{Phase: e.Latest().Phase, Reason: "course has no checkpoints"}
	}

	var st State
	var err error
	if doErr := e.do(ctx, func() { st, err = e.start(course) }); doErr != nil {
		return State{}, doErr
	}
	return st, err
}

// OnRawFix feeds one fix through the pipeline and returns after it was fully
// processed. Fixes outside an active run are ignored.
func (e *Engine) OnRawFix(ctx context.Context, raw location.RawFix) error {
	return e.do(ctx, func() { e.apply(raw) })
}

// Stop ends the active run and returns its final snapshot. Without an active
// run it returns the last known snapshot and changes nothing.
func (e *Engine) Stop(ctx context.Context) (State, error) {
	st, _, err := e.stopRun(ctx)
	return st, err
}

// stopRun also reports whether this call is the one that ended the run.
func (e *Engine) stopRun(ctx context.Context) (State, bool, error) {
	var st State
	var stopped bool
	if err := e.do(ctx, func() { st, stopped = e.stop() }); err != nil {
		return e.Latest(), false, err
	}
	return st, stopped, nil
}

func (e *Engine) IsActive() bool {
	return e.active.Load()
}

// Latest returns the most recently published snapshot.
func (e *Engine) Latest() State {
	return e.hub.Latest()
}

func (e *Engine) Hub() *stream.Hub[State] {
	return e.hub
}

func (e *Engine) do(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	req := func() {
		defer close(executed)
		fn()
	}

	select {
	case e.requests <- req:
	case <-e.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// the loop runs a received request to completion before selecting again
	<-executed
	return nil
}

func (e *Engine) start(course Course) (State, error) {
	if e.state.Phase == PhaseActive {
		return e.state, &InvalidStateError{Phase: e.state.Phase, Reason: "a run is already active"}
	}

	e.filter.Reset()
	next := State{
		Epoch:       e.state.Epoch,
		Seq:         e.state.Seq + 1,
		Phase:       PhaseActive,
		RunID:       uuid.NewString(),
		MapID:       course.MapID,
		MapName:     course.MapName,
		StartedAt:   e.now(),
		Progress:    checkpoint.Progress{Visited: []int{}},
		Checkpoints: checkpoint.Normalize(course.Checkpoints),
		Visits:      []checkpoint.Visit{},
		Path:        []checkpoint.PathPoint{},
	}
	e.state = next

	e.subscribe()
	if e.cfg.TickInterval > 0 {
		e.ticker = time.NewTicker(e.cfg.TickInterval)
	}
	e.active.Store(true)
	e.publish()

	log.Printf("run %s started: map=%q checkpoints=%d", next.RunID, next.MapName, len(next.Checkpoints))
	return e.state, nil
}

func (e *Engine) stop() (State, bool) {
	if e.state.Phase != PhaseActive {
		return e.state, false
	}
	e.halt()

	next := e.state
	next.Seq++
	next.Phase = PhaseStopped
	next.Elapsed = e.elapsed(next)
	next.LastEvent = nil
	e.state = next
	e.active.Store(false)
	e.publish()

	log.Printf("run %s stopped: distance=%.0fm elapsed=%s checkpoints=%d/%d",
		next.RunID, next.DistanceM, next.Elapsed.Round(time.Second), len(next.Progress.Visited), len(next.Checkpoints))
	return e.state, true
}

// abandon ends a run still active when the loop exits. The last snapshot
// is marked so that observers, the Redis mirror included, stop treating the
// run as live.
func (e *Engine) abandon() {
	e.halt()
	if e.state.Phase != PhaseActive {
		return
	}

	next := e.state
	next.Seq++
	next.Phase = PhaseStopped
	next.Abandoned = true
	next.Elapsed = e.elapsed(next)
	next.LastEvent = nil
	e.state = next
	e.active.Store(false)
	e.publish()

	log.Printf("run %s abandoned: engine loop exited", next.RunID)
}

func (e *Engine) apply(raw location.RawFix) {
	if e.state.Phase != PhaseActive {
		return
	}

	fix := e.filter.Filter(raw)
	next := e.state
	next.Seq++
	next.Elapsed = e.elapsed(next)
	next.LastEvent = nil
	if !fix.HasPosition() {
		// nothing to place yet; keep the last position and path
		e.state = next
		e.publish()
		return
	}

	res := e.tracker.Update(e.state.Position, fix, e.state.Progress, e.state.Checkpoints)
	next.Position = &fix
	next.Progress = res.Progress
	next.DistanceM += res.DistanceDeltaM
	next.Path = append(next.Path, checkpoint.PathPointOf(fix))
	next.LastEvent = res.Event
	if res.Event != nil {
		next.Visits = append(next.Visits, res.Event.Visit())
		log.Printf("run %s: checkpoint %d (%s) reached", next.RunID, res.Event.Index, res.Event.Checkpoint.Name)
	}
	e.state = next
	e.publish()
}

func (e *Engine) tick() {
	if e.state.Phase != PhaseActive {
		return
	}
	next := e.state
	next.Seq++
	next.Elapsed = e.elapsed(next)
	next.LastEvent = nil
	e.state = next
	e.publish()
}

// elapsed never goes backwards, whatever the clock does.
func (e *Engine) elapsed(st State) time.Duration {
	d := e.now().Sub(st.StartedAt)
	if d < st.Elapsed {
		return st.Elapsed
	}
	return d
}

// publish hands out the current state. Slices are clipped so that an
// observer appending to its copy cannot write into the engine's arrays.
func (e *Engine) publish() {
	snap := e.state
	snap.Path = slices.Clip(snap.Path)
	snap.Visits = slices.Clip(snap.Visits)
	e.hub.Publish(snap)
}

func (e *Engine) subscribe() {
	if e.source == nil {
		return
	}
	ctx, cancel := context.WithCancel(e.loopCtx)
	feed, err := e.source.Subscribe(ctx)
	if err != nil {
		cancel()
		log.Printf("run %s: location source unavailable: %v", e.state.RunID, err)
		return
	}
	e.feed = feed
	e.unsubscribe = cancel
}

// halt releases the location subscription and the clock of the active run.
func (e *Engine) halt() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.feed = nil
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}
