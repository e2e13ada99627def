// Package policy holds the process-wide threat condition, the layer policy
// table, clearance mediation, and capture authorization.
//
// Capture operations do not accept raw devices: they accept a Grant, whose
// only producer is Authorize. The proof obligation "policy was consulted
// with the then-current TEMPEST state" therefore lives in the type
// signature, not in caller discipline.
package policy

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/tempest"
	"github.com/swordworks/dsv4l2/types"
)

// ThreatCon is the process-wide threat condition.
type ThreatCon int32

const (
	ThreatNormal    ThreatCon = 0
	ThreatAlpha     ThreatCon = 1
	ThreatBravo     ThreatCon = 2
	ThreatCharlie   ThreatCon = 3
	ThreatDelta     ThreatCon = 4
	ThreatEmergency ThreatCon = 5
)

func (t ThreatCon) String() string {
	switch t {
	case ThreatNormal:
		return "NORMAL"
	case ThreatAlpha:
		return "ALPHA"
	case ThreatBravo:
		return "BRAVO"
	case ThreatCharlie:
		return "CHARLIE"
	case ThreatDelta:
		return "DELTA"
	case ThreatEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors.
var (
	// ErrDenied is the policy refusal: lockdown, insufficient clearance,
	// or an unmet layer minimum.
	ErrDenied = errors.New("denied by policy")
	// ErrInvalidArgument rejects out-of-range enums and unknown layers.
	ErrInvalidArgument = errors.New("invalid argument")
)

// current is the process-wide threat condition, shared across threads with
// atomic ordering.
var current atomic.Int32

// SetThreatCon sets the process-wide threat condition. Out-of-range levels
// are rejected.
func SetThreatCon(level ThreatCon) error {
	if level < ThreatNormal || level > ThreatEmergency {
		return fmt.Errorf("%w: threatcon %d", ErrInvalidArgument, level)
	}
	current.Store(int32(level))
	return nil
}

// GetThreatCon returns the process-wide threat condition.
func GetThreatCon() ThreatCon { return ThreatCon(current.Load()) }

// threatconTempest maps each threat condition to the TEMPEST state it
// mandates.
var threatconTempest = [6]tempest.State{
	tempest.Disabled, // NORMAL
	tempest.Low,      // ALPHA
	tempest.Low,      // BRAVO
	tempest.High,     // CHARLIE
	tempest.High,     // DELTA
	tempest.Lockdown, // EMERGENCY
}

// TempestForThreatCon returns the TEMPEST state mandated by level.
func TempestForThreatCon(level ThreatCon) tempest.State {
	return threatconTempest[level]
}

// Subject is the slice of a device handle the policy engine evaluates.
type Subject interface {
	DeviceID() uint32
	Role() string
	Layer() uint32
	Tempest() *tempest.Machine
}

// ApplyThreatCon drives the device to the TEMPEST state mandated by the
// current threat condition.
func ApplyThreatCon(dev Subject) error {
	if dev == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	return dev.Tempest().SetState(threatconTempest[GetThreatCon()])
}

// LayerPolicy is one entry of the constant layer policy table.
type LayerPolicy struct {
	MaxWidth   uint32
	MaxHeight  uint32
	MinTempest tempest.State
}

// layerPolicies indexes layers 0..8 of the trust stack.
var layerPolicies = [9]LayerPolicy{
	{MaxWidth: 0, MaxHeight: 0, MinTempest: tempest.Disabled},      // L0 hardware
	{MaxWidth: 0, MaxHeight: 0, MinTempest: tempest.Disabled},      // L1 drivers
	{MaxWidth: 640, MaxHeight: 480, MinTempest: tempest.Disabled},  // L2 HAL
	{MaxWidth: 1280, MaxHeight: 720, MinTempest: tempest.Disabled}, // L3 sensors
	{MaxWidth: 1920, MaxHeight: 1080, MinTempest: tempest.Low},     // L4 application
	{MaxWidth: 1920, MaxHeight: 1080, MinTempest: tempest.Low},     // L5 policy
	{MaxWidth: 1920, MaxHeight: 1080, MinTempest: tempest.Low},     // L6 data fusion
	{MaxWidth: 3840, MaxHeight: 2160, MinTempest: tempest.High},    // L7 accelerator
	{MaxWidth: 3840, MaxHeight: 2160, MinTempest: tempest.High},    // L8 orchestration
}

// LayerPolicyFor returns the constant policy entry for a layer.
func LayerPolicyFor(layer uint32) (LayerPolicy, error) {
	if layer >= uint32(len(layerPolicies)) {
		return LayerPolicy{}, fmt.Errorf("%w: layer %d", ErrInvalidArgument, layer)
	}
	return layerPolicies[layer], nil
}

// CheckCaptureAllowed evaluates the capture gate against a TEMPEST state the
// caller has already refreshed: LOCKDOWN blocks everything, and the device's
// layer imposes a minimum state.
func CheckCaptureAllowed(dev Subject, state tempest.State) error {
	if dev == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	if state == tempest.Lockdown {
		return fmt.Errorf("%w: tempest lockdown", ErrDenied)
	}
	lp, err := LayerPolicyFor(dev.Layer())
	if err != nil {
		return err
	}
	if state < lp.MinTempest {
		return fmt.Errorf("%w: layer %d requires tempest %s, have %s",
			ErrDenied, dev.Layer(), lp.MinTempest, state)
	}
	return nil
}

// Authorize performs the capture-gate consultation: refresh the device's
// TEMPEST state through the driver, evaluate CheckCaptureAllowed, and mint a
// single-use Grant recording the consulted state. Denials emit a
// PolicyViolation event carrying the state and fail with ErrDenied.
func Authorize(dev Subject, context string) (*Grant, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	state := dev.Tempest().State()
	if err := CheckCaptureAllowed(dev, state); err != nil {
		if errors.Is(err, ErrDenied) {
			ev := types.Event{
				DevID:    dev.DeviceID(),
				Type:     types.EventPolicyViolation,
				Severity: types.SevCritical,
				Aux:      uint32(state),
				Layer:    dev.Layer(),
			}
			ev.SetRole(dev.Role())
			rt.Emit(ev)
		}
		return nil, fmt.Errorf("%s: %w", context, err)
	}
	return &Grant{devID: dev.DeviceID(), state: state}, nil
}

// Grant is the capture authorization token. It records the TEMPEST state
// consulted at authorization time and is consumed by exactly one capture
// call.
type Grant struct {
	devID uint32
	state tempest.State
	used  atomic.Bool
}

// State returns the TEMPEST state consulted when the grant was minted.
func (g *Grant) State() tempest.State { return g.state }

// DeviceID returns the device the grant covers.
func (g *Grant) DeviceID() uint32 { return g.devID }

// Consume marks the grant used for the given device. It fails when the grant
// is nil, covers a different device, or was already consumed.
func (g *Grant) Consume(devID uint32) error {
	if g == nil {
		return fmt.Errorf("%w: nil grant", ErrInvalidArgument)
	}
	if g.devID != devID {
		return fmt.Errorf("%w: grant covers device %08x, not %08x", ErrInvalidArgument, g.devID, devID)
	}
	if g.used.Swap(true) {
		return fmt.Errorf("%w: grant already consumed", ErrInvalidArgument)
	}
	return nil
}
