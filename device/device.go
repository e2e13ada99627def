// Package device implements capture-device lifecycle: clearance-gated open,
// profile binding, enumeration, and the buffer and format planes the capture
// pipeline drives.
//
// Device handles are owned exclusively by the thread that holds them;
// sharing a handle requires external synchronisation.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/log"
	"github.com/swordworks/dsv4l2/policy"
	"github.com/swordworks/dsv4l2/profile"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/tempest"
	"github.com/swordworks/dsv4l2/types"
)

// DefaultRole is assumed during enumeration and when callers do not name one.
const DefaultRole = "generic_webcam"

// ErrInvalidArgument rejects nil or malformed inputs.
var ErrInvalidArgument = errors.New("invalid argument")

// IOError wraps a driver or file failure, preserving the original error for
// errors.Is/As inspection.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Device is an open capture device bound to a profile.
type Device struct {
	path           string
	devID          uint32
	role           string
	layer          uint32
	classification string
	prof           profile.Profile

	drv driver.Device
	cap driver.Capability

	machine      *tempest.Machine
	streaming    bool
	buffers      []mappedBuffer
	fusionWindow uint64
	closed       bool
}

// DefaultFusionWindowNs is the frame/metadata correlation tolerance assumed
// until a caller overrides it per device.
const DefaultFusionWindowNs = 50_000_000

type mappedBuffer struct {
	data []byte
	info driver.BufferInfo
}

// Info is the cached device identity from the capability query.
type Info struct {
	Driver  string
	Card    string
	BusInfo string
}

// Manager opens and enumerates devices against a driver opener and a
// profile registry.
type Manager struct {
	opener   driver.Opener
	registry *profile.Registry
	devDir   string
	logger   *log.Logger
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Opener provides driver descriptors. Required.
	Opener driver.Opener
	// Registry binds roles to profiles. Optional; defaults apply without it.
	Registry *profile.Registry
	// DevDir is scanned by List when the opener cannot enumerate itself.
	// Defaults to /dev.
	DevDir string
	// Logger receives lifecycle diagnostics. Optional.
	Logger *log.Logger
}

// NewManager creates a device manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("%w: nil opener", ErrInvalidArgument)
	}
	devDir := cfg.DevDir
	if devDir == "" {
		devDir = "/dev"
	}
	return &Manager{
		opener:   cfg.Opener,
		registry: cfg.Registry,
		devDir:   devDir,
		logger:   cfg.Logger,
	}, nil
}

// hashPath computes the stable 32-bit device id from a path
// (h = h*33 + c, seeded 5381).
func hashPath(path string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(path); i++ {
		h = h<<5 + h + uint32(path[i])
	}
	return h
}

// Open opens the device at path under the given role: query capabilities,
// bind a profile, gate on clearance, and initialise the TEMPEST machine to
// DISABLED. A clearance refusal emits a PolicyViolation and fails with
// policy.ErrDenied before any DeviceOpen is recorded.
func (m *Manager) Open(path, role string) (*Device, error) {
	if path == "" || role == "" {
		return nil, fmt.Errorf("%w: empty path or role", ErrInvalidArgument)
	}

	drv, err := m.opener.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open " + path, Err: err}
	}

	cap, err := drv.QueryCap()
	if err != nil {
		_ = drv.Close()
		return nil, &IOError{Op: "query capabilities", Err: err}
	}
	if cap.Caps&driver.CapVideoCapture == 0 {
		_ = drv.Close()
		return nil, fmt.Errorf("%s: %w", path, driver.ErrNotCapture)
	}

	devID := hashPath(path)

	prof := m.bindProfile(role)

	if err := policy.CheckClearance(role, prof.Classification); err != nil {
		ev := types.Event{
			DevID:    devID,
			Type:     types.EventPolicyViolation,
			Severity: types.SevCritical,
			Layer:    prof.Layer,
		}
		ev.SetRole(role)
		rt.Emit(ev)
		_ = drv.Close()
		return nil, err
	}

	d := &Device{
		path:           path,
		devID:          devID,
		role:           role,
		layer:          prof.Layer,
		classification: prof.Classification,
		prof:           prof,
		drv:            drv,
		cap:            cap,
		fusionWindow:   DefaultFusionWindowNs,
	}
	d.machine = tempest.NewMachine(drv, uint32(prof.TempestCtrlID), devID, prof.Layer, role)

	ev := types.Event{
		DevID:    devID,
		Type:     types.EventDeviceOpen,
		Severity: types.SevInfo,
		Layer:    prof.Layer,
	}
	ev.SetRole(role)
	rt.Emit(ev)

	if m.logger != nil {
		m.logger.Info("device open", map[string]any{
			"path": path, "role": role, "dev_id": devID, "profile": prof.ID,
		})
	}
	return d, nil
}

// bindProfile resolves a profile by role, falling back to role-keyed
// defaults.
func (m *Manager) bindProfile(role string) profile.Profile {
	if m.registry != nil {
		if p := m.registry.FindByRole(role); p != nil {
			return *p
		}
	}
	return profile.DefaultForRole(role)
}

// List scans for capture devices and returns the ones that open cleanly
// under the default role. Per-entry failures are silent; the list may be
// empty.
func (m *Manager) List() []*Device {
	var paths []string
	if enum, ok := m.opener.(driver.Enumerator); ok {
		paths, _ = enum.Paths()
	} else {
		entries, err := os.ReadDir(m.devDir)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "video") {
				paths = append(paths, filepath.Join(m.devDir, entry.Name()))
			}
		}
	}

	var devices []*Device
	for _, path := range paths {
		dev, err := m.Open(path, DefaultRole)
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	return devices
}

// Close stops streaming if active, releases mapped buffers, and closes the
// driver descriptor. The handle is unusable afterwards.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	if d.streaming {
		err = multierr.Append(err, d.StopStreaming())
	}
	err = multierr.Append(err, d.ReleaseBuffers())

	rt.EmitSimple(d.devID, types.EventDeviceClose, types.SevInfo, 0)

	err = multierr.Append(err, d.drv.Close())
	return err
}

// Path returns the device path.
func (d *Device) Path() string { return d.path }

// DeviceID returns the 32-bit path digest.
func (d *Device) DeviceID() uint32 { return d.devID }

// Role returns the role the device was opened under.
func (d *Device) Role() string { return d.role }

// Layer returns the trust-stack layer from the bound profile.
func (d *Device) Layer() uint32 { return d.layer }

// Classification returns the bound profile's classification tag.
func (d *Device) Classification() string { return d.classification }

// Profile returns the bound profile.
func (d *Device) Profile() profile.Profile { return d.prof }

// Tempest returns the device's TEMPEST state machine.
func (d *Device) Tempest() *tempest.Machine { return d.machine }

// Info returns the cached driver, card, and bus identity strings.
func (d *Device) Info() Info {
	return Info{Driver: d.cap.Driver, Card: d.cap.Card, BusInfo: d.cap.BusInfo}
}

// Capabilities returns the cached capability flags.
func (d *Device) Capabilities() driver.CapFlag { return d.cap.Caps }

// Streaming reports whether the video queue is streaming.
func (d *Device) Streaming() bool { return d.streaming }

// Driver exposes the underlying driver descriptor to sibling planes.
func (d *Device) Driver() driver.Device { return d.drv }

// FusionWindow returns the frame/metadata correlation tolerance in
// nanoseconds.
func (d *Device) FusionWindow() uint64 { return d.fusionWindow }

// SetFusionWindow overrides the correlation tolerance for this device.
func (d *Device) SetFusionWindow(ns uint64) error {
	if ns == 0 {
		return fmt.Errorf("%w: zero fusion window", ErrInvalidArgument)
	}
	d.fusionWindow = ns
	return nil
}

var _ policy.Subject = (*Device)(nil)
