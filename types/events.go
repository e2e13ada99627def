// Package types defines the core event vocabulary and wire formats shared by
// the runtime, sinks, and the capture planes.
package types

// EventType identifies what happened. The numeric vocabulary is stable: it is
// written verbatim into the binary event stream and must not be renumbered.
type EventType uint16

const (
	EventDeviceOpen        EventType = 0x0001
	EventDeviceClose       EventType = 0x0002
	EventCaptureStart      EventType = 0x0010
	EventCaptureStop       EventType = 0x0011
	EventFrameAcquired     EventType = 0x0012
	EventFrameDropped      EventType = 0x0013
	EventTempestTransition EventType = 0x0020
	EventTempestQuery      EventType = 0x0021
	EventTempestLockdown   EventType = 0x0022
	EventFormatChange      EventType = 0x0030
	EventResolutionChange  EventType = 0x0031
	EventFPSChange         EventType = 0x0032
	EventControlChange     EventType = 0x0033
	EventIrisModeEnter     EventType = 0x0040
	EventIrisModeExit      EventType = 0x0041
	EventIrisCapture       EventType = 0x0042
	EventMetaRead          EventType = 0x0050
	EventFusedCapture      EventType = 0x0051
	EventError             EventType = 0x0100
	EventPolicyViolation   EventType = 0x0101
	EventSecretLeakAttempt EventType = 0x0102
	EventPolicyCheck       EventType = 0x0103
)

// eventNames maps event types to display names for logs and the monitor TUI.
var eventNames = map[EventType]string{
	EventDeviceOpen:        "DEVICE_OPEN",
	EventDeviceClose:       "DEVICE_CLOSE",
	EventCaptureStart:      "CAPTURE_START",
	EventCaptureStop:       "CAPTURE_STOP",
	EventFrameAcquired:     "FRAME_ACQUIRED",
	EventFrameDropped:      "FRAME_DROPPED",
	EventTempestTransition: "TEMPEST_TRANSITION",
	EventTempestQuery:      "TEMPEST_QUERY",
	EventTempestLockdown:   "TEMPEST_LOCKDOWN",
	EventFormatChange:      "FORMAT_CHANGE",
	EventResolutionChange:  "RESOLUTION_CHANGE",
	EventFPSChange:         "FPS_CHANGE",
	EventControlChange:     "CONTROL_CHANGE",
	EventIrisModeEnter:     "IRIS_MODE_ENTER",
	EventIrisModeExit:      "IRIS_MODE_EXIT",
	EventIrisCapture:       "IRIS_CAPTURE",
	EventMetaRead:          "META_READ",
	EventFusedCapture:      "FUSED_CAPTURE",
	EventError:             "ERROR",
	EventPolicyViolation:   "POLICY_VIOLATION",
	EventSecretLeakAttempt: "SECRET_LEAK_ATTEMPT",
	EventPolicyCheck:       "POLICY_CHECK",
}

// String returns the display name, or "UNKNOWN" for unregistered values.
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Severity grades an event for triage. Higher is worse.
type Severity uint16

const (
	SevDebug    Severity = 0
	SevInfo     Severity = 1
	SevMedium   Severity = 2
	SevHigh     Severity = 3
	SevCritical Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SevDebug:
		return "DEBUG"
	case SevInfo:
		return "INFO"
	case SevMedium:
		return "MEDIUM"
	case SevHigh:
		return "HIGH"
	case SevCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Field width limits for the fixed-layout record.
const (
	RoleLen    = 16
	MissionLen = 32
)

// Event is the fixed-layout audit record. Every field participates in the
// wire image; Role and Mission are NUL-padded.
type Event struct {
	// TsNs is a monotonic nanosecond timestamp. Filled by the runtime at
	// emission when zero.
	TsNs uint64
	// DevID is the 32-bit digest of the originating device path.
	DevID uint32
	// Type discriminates the record.
	Type EventType
	// Severity grades the record.
	Severity Severity
	// Aux carries event-specific data: a TEMPEST state, an errno, a packed
	// (old<<16)|new transition, a byte count.
	Aux uint32
	// Layer is the originating device's trust-stack layer (0-8).
	Layer uint32
	// Role is the device role, truncated to RoleLen.
	Role [RoleLen]byte
	// Mission is the mission context tag, truncated to MissionLen.
	Mission [MissionLen]byte
}

// SetRole copies role into the fixed field, truncating as needed.
func (e *Event) SetRole(role string) {
	e.Role = [RoleLen]byte{}
	copy(e.Role[:], role)
}

// SetMission copies mission into the fixed field, truncating as needed.
func (e *Event) SetMission(mission string) {
	e.Mission = [MissionLen]byte{}
	copy(e.Mission[:], mission)
}

// RoleString returns the role with NUL padding stripped.
func (e *Event) RoleString() string { return cstr(e.Role[:]) }

// MissionString returns the mission tag with NUL padding stripped.
func (e *Event) MissionString() string { return cstr(e.Mission[:]) }

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
