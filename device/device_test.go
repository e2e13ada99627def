package device_test

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/swordworks/dsv4l2/device"
	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/driver/sim"
	"github.com/swordworks/dsv4l2/policy"
	"github.com/swordworks/dsv4l2/profile"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/tempest"
	"github.com/swordworks/dsv4l2/types"
)

// TestMain pins the process clearance before anything reads it: SECRET
// admits generic, IR, and iris roles while leaving tempest_cam refusable.
func TestMain(m *testing.M) {
	os.Setenv(policy.EnvClearance, "SECRET")
	os.Exit(m.Run())
}

// audit captures the global event stream for assertions.
type audit struct {
	mu     sync.Mutex
	events []types.Event
}

func (a *audit) sink(batch []types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, batch...)
}

func (a *audit) typesFor(devID uint32) []types.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []types.EventType
	for _, ev := range a.events {
		if ev.DevID == devID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func setupAudit(t *testing.T) *audit {
	t.Helper()
	rt.Shutdown()
	rt.Init(rt.Config{Level: rt.LevelOps, HasLevel: true})
	a := &audit{}
	rt.RegisterSink(a.sink)
	t.Cleanup(rt.Shutdown)
	return a
}

func contains(haystack []types.EventType, needle types.EventType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func newManager(t *testing.T, opener driver.Opener) *device.Manager {
	t.Helper()
	m, err := device.NewManager(device.ManagerConfig{Opener: opener})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func simWithCamera(t *testing.T, path string) *sim.Opener {
	t.Helper()
	opener := sim.New()
	opener.Add(path, sim.DeviceConfig{
		Driver:   "dsv4l2-sim",
		Card:     "Simulated Camera",
		BusInfo:  "sim:0",
		Controls: map[uint32]int32{uint32(profile.DefaultTempestCtrlID): 0},
	})
	return opener
}

func TestOpenBindsProfileAndEmitsDeviceOpen(t *testing.T) {
	a := setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))

	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if dev.Role() != "generic_webcam" || dev.Layer() != 3 {
		t.Errorf("role/layer = %s/%d", dev.Role(), dev.Layer())
	}
	if dev.Classification() != "UNCLASSIFIED" {
		t.Errorf("classification = %q", dev.Classification())
	}
	if got := dev.Tempest().Cached(); got != tempest.Disabled {
		t.Errorf("initial tempest state = %v, want DISABLED", got)
	}

	info := dev.Info()
	if info.Card != "Simulated Camera" || info.Driver != "dsv4l2-sim" {
		t.Errorf("info = %+v", info)
	}

	rt.Flush()
	if !contains(a.typesFor(dev.DeviceID()), types.EventDeviceOpen) {
		t.Error("audit stream is missing DeviceOpen")
	}
}

func TestDeviceIDIsPathDigest(t *testing.T) {
	setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))

	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	// DJB2 over the path: h = h*33 + c, seeded 5381.
	var want uint32 = 5381
	for _, c := range []byte("/dev/video0") {
		want = want<<5 + want + uint32(c)
	}
	if dev.DeviceID() != want {
		t.Errorf("DeviceID = %#x, want %#x", dev.DeviceID(), want)
	}
}

func TestOpenRejectsNonCaptureDevice(t *testing.T) {
	setupAudit(t)
	opener := sim.New()
	opener.Add("/dev/video1", sim.DeviceConfig{Caps: driver.CapStreaming})
	m := newManager(t, opener)

	if _, err := m.Open("/dev/video1", "generic_webcam"); !errors.Is(err, driver.ErrNotCapture) {
		t.Errorf("Open on non-capture device = %v, want ErrNotCapture", err)
	}
}

func TestClearanceGateRefusesOpen(t *testing.T) {
	a := setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video2"))

	// tempest_cam demands TOP_SECRET; the process holds SECRET.
	_, err := m.Open("/dev/video2", "tempest_cam")
	if !errors.Is(err, policy.ErrDenied) {
		t.Fatalf("Open = %v, want ErrDenied", err)
	}

	rt.Flush()
	// DJB2 of the refused path identifies the violation event.
	var devID uint32 = 5381
	for _, c := range []byte("/dev/video2") {
		devID = devID<<5 + devID + uint32(c)
	}
	seen := a.typesFor(devID)
	if !contains(seen, types.EventPolicyViolation) {
		t.Error("audit stream is missing PolicyViolation")
	}
	if contains(seen, types.EventDeviceOpen) {
		t.Error("audit stream contains DeviceOpen for a refused path")
	}
}

func TestOpenWithRegistryProfile(t *testing.T) {
	setupAudit(t)
	registry, err := profile.NewRegistry([]profile.Profile{{
		ID:             "aaaa:0001",
		Role:           "ir_sensor",
		Classification: "CONFIDENTIAL",
		Layer:          4,
		TempestCtrlID:  profile.DefaultTempestCtrlID,
	}})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	m, err := device.NewManager(device.ManagerConfig{
		Opener:   simWithCamera(t, "/dev/video3"),
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	dev, err := m.Open("/dev/video3", "ir_sensor")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if dev.Layer() != 4 || dev.Profile().ID != "aaaa:0001" {
		t.Errorf("bound profile = %+v", dev.Profile())
	}
}

func TestListReturnsOpenableDevices(t *testing.T) {
	setupAudit(t)
	opener := sim.New()
	opener.Add("/dev/video0", sim.DeviceConfig{Card: "cam0"})
	opener.Add("/dev/video1", sim.DeviceConfig{Card: "cam1", Caps: driver.CapStreaming}) // not capture
	opener.Add("/dev/video2", sim.DeviceConfig{Card: "cam2"})
	m := newManager(t, opener)

	devices := m.List()
	defer func() {
		for _, d := range devices {
			_ = d.Close()
		}
	}()

	if len(devices) != 2 {
		t.Fatalf("List returned %d devices, want 2 (failures are silent)", len(devices))
	}
	if devices[0].Path() != "/dev/video0" || devices[1].Path() != "/dev/video2" {
		t.Errorf("paths = %s, %s", devices[0].Path(), devices[1].Path())
	}
}

func TestCloseStopsStreamingAndAudits(t *testing.T) {
	a := setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))

	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.EnsureStreaming(); err != nil {
		t.Fatalf("EnsureStreaming failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rt.Flush()
	seen := a.typesFor(dev.DeviceID())
	for _, want := range []types.EventType{
		types.EventCaptureStart, types.EventCaptureStop, types.EventDeviceClose,
	} {
		if !contains(seen, want) {
			t.Errorf("audit stream is missing %v", want)
		}
	}

	// Close is idempotent.
	if err := dev.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestBufferPlane(t *testing.T) {
	setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))
	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if dev.BufferCount() != 4 {
		t.Errorf("BufferCount = %d, want 4", dev.BufferCount())
	}

	if err := dev.EnsureStreaming(); err != nil {
		t.Fatalf("EnsureStreaming failed: %v", err)
	}

	done, err := dev.DequeueBuffer()
	if err != nil {
		t.Fatalf("DequeueBuffer failed: %v", err)
	}
	data, err := dev.BufferBytes(done.Index)
	if err != nil {
		t.Fatalf("BufferBytes failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("mapped buffer is empty")
	}
	if err := dev.QueueBuffer(done.Index); err != nil {
		t.Fatalf("QueueBuffer failed: %v", err)
	}

	if _, err := dev.BufferBytes(99); !errors.Is(err, device.ErrInvalidArgument) {
		t.Errorf("BufferBytes(99) = %v, want ErrInvalidArgument", err)
	}
}

func TestFormatChangeEvents(t *testing.T) {
	a := setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))
	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	applied, err := dev.SetFormat(driver.Format{
		PixelFormat: driver.MakeFourCC("MJPG"),
		Width:       1920,
		Height:      1080,
	})
	if err != nil {
		t.Fatalf("SetFormat failed: %v", err)
	}
	if applied.Width != 1920 {
		t.Errorf("applied width = %d", applied.Width)
	}

	// Setting the identical format again must not re-emit.
	if _, err := dev.SetFormat(applied); err != nil {
		t.Fatalf("second SetFormat failed: %v", err)
	}

	rt.Flush()
	seen := a.typesFor(dev.DeviceID())
	formatChanges, resolutionChanges := 0, 0
	for _, typ := range seen {
		switch typ {
		case types.EventFormatChange:
			formatChanges++
		case types.EventResolutionChange:
			resolutionChanges++
		}
	}
	if formatChanges != 1 {
		t.Errorf("FormatChange count = %d, want 1", formatChanges)
	}
	if resolutionChanges != 1 {
		t.Errorf("ResolutionChange count = %d, want 1", resolutionChanges)
	}
}

func TestFusionWindowOverride(t *testing.T) {
	setupAudit(t)
	m := newManager(t, simWithCamera(t, "/dev/video0"))
	dev, err := m.Open("/dev/video0", "generic_webcam")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if got := dev.FusionWindow(); got != device.DefaultFusionWindowNs {
		t.Errorf("default fusion window = %d", got)
	}
	if err := dev.SetFusionWindow(5_000_000); err != nil {
		t.Fatalf("SetFusionWindow failed: %v", err)
	}
	if got := dev.FusionWindow(); got != 5_000_000 {
		t.Errorf("fusion window = %d, want 5000000", got)
	}
	if err := dev.SetFusionWindow(0); !errors.Is(err, device.ErrInvalidArgument) {
		t.Errorf("SetFusionWindow(0) = %v, want ErrInvalidArgument", err)
	}
}
