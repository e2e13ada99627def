// Package tempest models per-device electromagnetic emission posture as a
// four-valued state machine persisted through a driver control. The cached
// state tracks the last value successfully read from or written to the
// control; a device without a control is permanently DISABLED.
package tempest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// State is the emission posture. The numeric values are the driver control
// vocabulary and must not be renumbered.
type State int32

const (
	Disabled State = 0
	Low      State = 1
	High     State = 2
	Lockdown State = 3
)

// Valid reports whether s is a known posture.
func Valid(s State) bool { return s >= Disabled && s <= Lockdown }

func (s State) String() string {
	switch s {
	case Disabled:
		return "DISABLED"
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case Lockdown:
		return "LOCKDOWN"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors.
var (
	// ErrUnsupported is returned by SetState on devices without a TEMPEST
	// control.
	ErrUnsupported = errors.New("device has no tempest control")
	// ErrInvalidState rejects out-of-range postures.
	ErrInvalidState = errors.New("invalid tempest state")
)

// Controls is the slice of the driver contract the machine persists through.
type Controls interface {
	GetControl(id uint32) (int32, error)
	SetControl(id uint32, value int32) error
}

// Machine is the per-device state machine. Transitions are total but every
// successful one is audited; entering LOCKDOWN is audited twice.
type Machine struct {
	ctrl   Controls
	ctrlID uint32
	devID  uint32
	layer  uint32
	role   string

	mu     sync.Mutex
	cached State
}

// NewMachine creates a machine with the initial cached state DISABLED.
// A ctrlID of zero marks the device as having no TEMPEST control.
func NewMachine(ctrl Controls, ctrlID, devID, layer uint32, role string) *Machine {
	return &Machine{ctrl: ctrl, ctrlID: ctrlID, devID: devID, layer: layer, role: role}
}

// Cached returns the cached state without touching the driver.
func (m *Machine) Cached() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached
}

// State reads the driver control and refreshes the cache. A read error
// returns the cache without update; a device with no control is DISABLED.
func (m *Machine) State() State {
	if m.ctrlID == 0 {
		return Disabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	value, err := m.ctrl.GetControl(m.ctrlID)
	if err != nil {
		return m.cached
	}

	s := State(value)
	if !Valid(s) {
		s = Disabled
	}
	m.cached = s

	rt.EmitSimple(m.devID, types.EventTempestQuery, types.SevDebug, uint32(s))
	return s
}

// SetState writes the driver control and updates the cache. A write failure
// surfaces the driver error and leaves the cache unchanged.
func (m *Machine) SetState(newState State) error {
	if m.ctrlID == 0 {
		return ErrUnsupported
	}
	if !Valid(newState) {
		return fmt.Errorf("%w: %d", ErrInvalidState, newState)
	}

	old := m.State()

	m.mu.Lock()
	if err := m.ctrl.SetControl(m.ctrlID, int32(newState)); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("tempest control write: %w", err)
	}
	m.cached = newState
	m.mu.Unlock()

	ev := types.Event{
		DevID:    m.devID,
		Type:     types.EventTempestTransition,
		Severity: types.SevCritical,
		Aux:      uint32(old)<<16 | uint32(newState),
		Layer:    m.layer,
	}
	ev.SetRole(m.role)
	rt.Emit(ev)

	if newState == Lockdown {
		rt.EmitSimple(m.devID, types.EventTempestLockdown, types.SevCritical, 0)
	}

	return nil
}
