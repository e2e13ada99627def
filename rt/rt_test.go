package rt_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// collector is a test sink capturing everything it observes.
type collector struct {
	mu     sync.Mutex
	events []types.Event
}

func (c *collector) sink(batch []types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, batch...)
}

func (c *collector) snapshot() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestFlushDeliversToAllSinks(t *testing.T) {
	r := rt.New(rt.Config{Level: rt.LevelOps, HasLevel: true})
	defer r.Shutdown()

	a, b := &collector{}, &collector{}
	r.RegisterSink(a.sink)
	r.RegisterSink(b.sink)

	for i := 0; i < 10; i++ {
		r.EmitSimple(3, types.EventFrameAcquired, types.SevInfo, uint32(i))
	}
	r.Flush()

	// The flusher may have delivered some of the batch already; flush
	// guarantees every event reached each sink exactly once in total.
	for name, c := range map[string]*collector{"a": a, "b": b} {
		got := c.snapshot()
		if len(got) != 10 {
			t.Errorf("sink %s observed %d events, want 10", name, len(got))
		}
		for i, ev := range got {
			if ev.Aux != uint32(i) {
				t.Errorf("sink %s event %d out of order (aux=%d)", name, i, ev.Aux)
			}
		}
	}

	if occ := r.Stats().Occupancy; occ != 0 {
		t.Errorf("occupancy after flush = %d, want 0", occ)
	}
}

func TestFlusherDrainsWithoutExplicitFlush(t *testing.T) {
	r := rt.New(rt.Config{Level: rt.LevelOps, HasLevel: true})
	defer r.Shutdown()

	c := &collector{}
	r.RegisterSink(c.sink)
	r.EmitSimple(1, types.EventDeviceOpen, types.SevInfo, 0)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.snapshot()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("flusher did not deliver the event")
}

func TestShutdownDrainsRemaining(t *testing.T) {
	r := rt.New(rt.Config{Level: rt.LevelOps, HasLevel: true})

	c := &collector{}
	r.RegisterSink(c.sink)
	for i := 0; i < 5; i++ {
		r.EmitSimple(2, types.EventFrameAcquired, types.SevInfo, uint32(i))
	}
	r.Shutdown()

	if got := len(c.snapshot()); got != 5 {
		t.Errorf("sink observed %d events after shutdown, want 5", got)
	}

	// Shutdown is idempotent, and extraction afterwards reports the
	// runtime as gone.
	r.Shutdown()
	if _, _, err := r.GetSignedChunk(); !errors.Is(err, rt.ErrNotInitialised) {
		t.Errorf("GetSignedChunk after shutdown = %v, want ErrNotInitialised", err)
	}
}

func TestGlobalInitIsIdempotent(t *testing.T) {
	rt.Shutdown()
	first := rt.Init(rt.Config{Level: rt.LevelOps, HasLevel: true})
	second := rt.Init(rt.Config{Level: rt.LevelForensic, HasLevel: true})
	if first != second {
		t.Error("second Init returned a different runtime")
	}
	if second.Level() != rt.LevelOps {
		t.Error("second Init reconfigured the running runtime")
	}
	rt.Shutdown()
}

func TestEnvLevelOverride(t *testing.T) {
	t.Setenv(rt.EnvLevel, "forensic")
	r := rt.New(rt.Config{})
	defer r.Shutdown()
	if r.Level() != rt.LevelForensic {
		t.Errorf("level = %v, want forensic from environment", r.Level())
	}

	t.Setenv(rt.EnvLevel, "nonsense")
	r2 := rt.New(rt.Config{})
	defer r2.Shutdown()
	if r2.Level() != rt.LevelOff {
		t.Errorf("level = %v, want off for unrecognised override", r2.Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want rt.Level
		ok   bool
	}{
		{"off", rt.LevelOff, true},
		{"ops", rt.LevelOps, true},
		{"exercise", rt.LevelExercise, true},
		{"forensic", rt.LevelForensic, true},
		{"FORENSIC", rt.LevelOff, false},
		{"", rt.LevelOff, false},
	}
	for _, tt := range tests {
		got, ok := rt.ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFileSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	sink, err := rt.NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	var written []types.Event
	for i := 0; i < 7; i++ {
		ev := types.Event{
			TsNs:     uint64(1000 + i),
			DevID:    0xAB,
			Type:     types.EventFrameAcquired,
			Severity: types.SevInfo,
			Aux:      uint32(i),
			Layer:    3,
		}
		ev.SetRole("generic_webcam")
		written = append(written, ev)
	}
	sink.Write(written[:4])
	sink.Write(written[4:])
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	replayed, err := rt.ReadEventFile(path)
	if err != nil {
		t.Fatalf("ReadEventFile failed: %v", err)
	}
	if len(replayed) != len(written) {
		t.Fatalf("replayed %d events, want %d", len(replayed), len(written))
	}
	for i := range written {
		if replayed[i] != written[i] {
			t.Errorf("event %d mismatch after replay", i)
		}
	}
}
