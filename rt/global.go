package rt

import (
	"sync"

	"github.com/swordworks/dsv4l2/types"
)

// The process-wide runtime. Instrumentation points in the device, tempest,
// and capture planes emit through this instance.
var (
	defaultMu sync.Mutex
	defaultRT *Runtime
)

// Init starts the process-wide runtime. Idempotent: a second call returns
// the already-running runtime unchanged.
func Init(cfg Config) *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRT == nil {
		defaultRT = New(cfg)
	}
	return defaultRT
}

// Default returns the process-wide runtime, self-initialising at level OPS
// on first use so instrumentation points never observe a missing runtime.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRT == nil {
		defaultRT = New(Config{Level: LevelOps, HasLevel: true})
	}
	return defaultRT
}

// Shutdown stops the process-wide runtime and releases it. A later Init or
// Default starts a fresh one.
func Shutdown() {
	defaultMu.Lock()
	r := defaultRT
	defaultRT = nil
	defaultMu.Unlock()
	if r != nil {
		r.Shutdown()
	}
}

// Emit appends an event to the process-wide runtime.
func Emit(ev types.Event) { Default().Emit(ev) }

// EmitSimple emits an event with minimal fields to the process-wide runtime.
func EmitSimple(devID uint32, t types.EventType, sev types.Severity, aux uint32) {
	Default().EmitSimple(devID, t, sev, aux)
}

// RegisterSink adds a sink to the process-wide runtime.
func RegisterSink(sink SinkFunc) { Default().RegisterSink(sink) }

// Flush drains the process-wide runtime synchronously.
func Flush() { Default().Flush() }

// GetStats snapshots the process-wide runtime counters.
func GetStats() Stats { return Default().Stats() }

// GetSignedChunk extracts a signed chunk from the process-wide runtime.
func GetSignedChunk() (types.ChunkHeader, []types.Event, error) {
	return Default().GetSignedChunk()
}
