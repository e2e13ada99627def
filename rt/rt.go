// Package rt implements the instrumentation runtime: a bounded event ring
// drained by a dedicated flusher into registered sinks, with statistics and
// signed-chunk extraction for forensic export.
//
// The runtime is process-wide by design. Encapsulate lifecycle through Init
// and Shutdown; the one documented exception is that the first Emit
// self-initialises at level OPS so instrumentation points never observe a
// missing runtime.
package rt

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swordworks/dsv4l2/log"
	"github.com/swordworks/dsv4l2/sign"
	"github.com/swordworks/dsv4l2/types"
)

// Level is the instrumentation level. OFF disables emission entirely.
type Level int

const (
	LevelOff Level = iota
	LevelOps
	LevelExercise
	LevelForensic
)

// EnvLevel is the environment override consulted when the config does not
// specify a level.
const EnvLevel = "DSV4L2_PROFILE"

// ParseLevel maps the environment vocabulary to a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "off":
		return LevelOff, true
	case "ops":
		return LevelOps, true
	case "exercise":
		return LevelExercise, true
	case "forensic":
		return LevelForensic, true
	}
	return LevelOff, false
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelOps:
		return "ops"
	case LevelExercise:
		return "exercise"
	case LevelForensic:
		return "forensic"
	}
	return "off"
}

// Defaults for the ring and flusher.
const (
	DefaultRingCapacity = 4096
	FlushBatchSize      = 256
	flushInterval       = time.Second
)

// Sentinel errors.
var (
	// ErrNotInitialised is returned by operations that require Init.
	ErrNotInitialised = errors.New("runtime not initialised")
	// ErrBufferEmpty is returned by signed-chunk extraction when no events
	// are buffered.
	ErrBufferEmpty = errors.New("event buffer empty")
)

// SinkFunc consumes a read-only batch of events. The callback must not
// retain the slice past the call.
type SinkFunc func(batch []types.Event)

// Config configures the runtime.
type Config struct {
	// Level selects the instrumentation level. When HasLevel is false the
	// DSV4L2_PROFILE environment override is consulted, defaulting to off.
	Level    Level
	HasLevel bool
	// Mission tags every emitted event.
	Mission string
	// RingCapacity overrides the ring size (default 4096).
	RingCapacity int
	// Signer produces chunk signatures; defaults to the sign.Fallback
	// pattern when nil.
	Signer sign.Signer
	// Logger, when set, echoes events at levels exercise and forensic.
	Logger *log.Logger
}

// Runtime owns the ring, the flusher, and the sink list.
type Runtime struct {
	mu   sync.Mutex // guards ring
	ring *ring

	// flushMu serialises drains so batches reach sinks in ring order even
	// when Flush races the background flusher.
	flushMu sync.Mutex

	sinkMu sync.Mutex
	sinks  []SinkFunc

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	level   Level
	mission string
	signer  sign.Signer
	logger  *log.Logger

	chunkID atomic.Uint64
	emitted atomic.Uint64
	dropped atomic.Uint64
	flushed atomic.Uint64
}

// Stats is a point-in-time snapshot of runtime counters. Counter reads are
// approximate under concurrent emission.
type Stats struct {
	Emitted      uint64
	Dropped      uint64
	Flushed      uint64
	Occupancy    int
	MaxOccupancy int
	Capacity     int
	Level        Level
}

// procStart anchors the monotonic event clock.
var procStart = time.Now()

// nowNs returns monotonic nanoseconds since process start.
func nowNs() uint64 { return uint64(time.Since(procStart)) }

// New creates and starts a runtime.
func New(cfg Config) *Runtime {
	level := cfg.Level
	if !cfg.HasLevel {
		level = LevelOff
		if env, ok := ParseLevel(os.Getenv(EnvLevel)); ok {
			level = env
		}
	}
	capacity := cfg.RingCapacity
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	signer := cfg.Signer
	if signer == nil {
		signer = sign.Fallback{}
	}

	r := &Runtime{
		ring:    newRing(capacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		level:   level,
		mission: cfg.Mission,
		signer:  signer,
		logger:  cfg.Logger,
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Level returns the active instrumentation level.
func (r *Runtime) Level() Level { return r.level }

// Emit appends an event to the ring. Fills the timestamp, layer-independent
// mission tag, and never fails observably: on pressure the oldest event is
// overwritten and the drop counter advances.
func (r *Runtime) Emit(ev types.Event) {
	if r.level == LevelOff {
		return
	}
	if ev.TsNs == 0 {
		ev.TsNs = nowNs()
	}
	if r.mission != "" && ev.Mission == ([types.MissionLen]byte{}) {
		ev.SetMission(r.mission)
	}

	r.emitted.Add(1)

	r.mu.Lock()
	dropped := r.ring.add(ev)
	r.mu.Unlock()
	if dropped {
		r.dropped.Add(1)
	}

	// Wake the flusher without blocking the producer.
	select {
	case r.wake <- struct{}{}:
	default:
	}

	if r.level >= LevelExercise && r.logger != nil {
		r.logger.Debug("event", map[string]any{
			"type":     ev.Type.String(),
			"severity": ev.Severity.String(),
			"dev_id":   ev.DevID,
			"aux":      ev.Aux,
			"role":     ev.RoleString(),
		})
	}
}

// EmitSimple emits an event with minimal fields.
func (r *Runtime) EmitSimple(devID uint32, t types.EventType, sev types.Severity, aux uint32) {
	r.Emit(types.Event{DevID: devID, Type: t, Severity: sev, Aux: aux})
}

// RegisterSink appends a sink. Sinks added at runtime observe subsequent
// batches only.
func (r *Runtime) RegisterSink(sink SinkFunc) {
	if sink == nil {
		return
	}
	r.sinkMu.Lock()
	r.sinks = append(r.sinks, sink)
	r.sinkMu.Unlock()
}

// flushLoop drains the ring in batches on a periodic wakeup or when a
// producer signals.
func (r *Runtime) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch [FlushBatchSize]types.Event
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-ticker.C:
		}
		r.drainOnce(batch[:])
	}
}

// drainOnce moves one batch from the ring to the sinks. With no sinks
// registered nothing is taken: buffered events stay available for
// signed-chunk extraction instead of draining into the void.
func (r *Runtime) drainOnce(batch []types.Event) int {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.sinkMu.Lock()
	haveSinks := len(r.sinks) > 0
	r.sinkMu.Unlock()
	if !haveSinks {
		return 0
	}

	r.mu.Lock()
	n := r.ring.take(batch, FlushBatchSize)
	r.mu.Unlock()
	if n > 0 {
		r.emitToSinks(batch[:n])
		r.flushed.Add(uint64(n))
	}
	return n
}

func (r *Runtime) emitToSinks(batch []types.Event) {
	r.sinkMu.Lock()
	sinks := make([]SinkFunc, len(r.sinks))
	copy(sinks, r.sinks)
	r.sinkMu.Unlock()

	for _, sink := range sinks {
		sink(batch)
	}
}

// Flush drains the ring synchronously into all sinks and returns when the
// ring is empty.
func (r *Runtime) Flush() {
	var batch [FlushBatchSize]types.Event
	for r.drainOnce(batch[:]) > 0 {
	}
}

// Stats returns runtime counters and occupancy.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	occupancy := r.ring.count
	maxOcc := r.ring.maxCount
	capacity := len(r.ring.events)
	r.mu.Unlock()
	return Stats{
		Emitted:      r.emitted.Load(),
		Dropped:      r.dropped.Load(),
		Flushed:      r.flushed.Load(),
		Occupancy:    occupancy,
		MaxOccupancy: maxOcc,
		Capacity:     capacity,
		Level:        r.level,
	}
}

// GetSignedChunk atomically extracts up to 256 events, assigns the next
// chunk id, and signs the contiguous byte image of the extracted records.
// The signature covers the event records only. Fails with ErrBufferEmpty
// when nothing is buffered.
func (r *Runtime) GetSignedChunk() (types.ChunkHeader, []types.Event, error) {
	select {
	case <-r.done:
		return types.ChunkHeader{}, nil, ErrNotInitialised
	default:
	}

	events := make([]types.Event, FlushBatchSize)

	r.mu.Lock()
	n := r.ring.take(events, FlushBatchSize)
	if n == 0 {
		r.mu.Unlock()
		return types.ChunkHeader{}, nil, ErrBufferEmpty
	}
	// Assign under the ring lock so chunk ids are monotonic in extraction
	// order.
	id := r.chunkID.Add(1)
	r.mu.Unlock()

	events = events[:n]
	header := types.ChunkHeader{
		ChunkID:    id,
		AnchorTsNs: events[0].TsNs,
		Count:      uint64(n),
	}
	sig, err := r.signer.Sign(types.EncodeEvents(events))
	if err != nil {
		return types.ChunkHeader{}, nil, err
	}
	header.Signature = sig
	return header, events, nil
}

// Signer exposes the configured signer for verification paths.
func (r *Runtime) Signer() sign.Signer { return r.signer }

// Shutdown stops the flusher, performs a final synchronous flush, and
// releases the ring. Pending capture calls are not interrupted; callers must
// stop issuing them first.
func (r *Runtime) Shutdown() {
	select {
	case <-r.done:
		return // already shut down
	default:
	}
	close(r.done)
	r.wg.Wait()
	r.Flush()
}
