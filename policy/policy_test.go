package policy

import (
	"errors"
	"sync"
	"testing"

	"github.com/swordworks/dsv4l2/tempest"
)

const testCtrlID = 0x009a0902

type fakeControls struct {
	values map[uint32]int32
}

func newFakeControls() *fakeControls {
	return &fakeControls{values: map[uint32]int32{testCtrlID: 0}}
}

func (f *fakeControls) GetControl(id uint32) (int32, error) {
	v, ok := f.values[id]
	if !ok {
		return 0, errors.New("no such control")
	}
	return v, nil
}

func (f *fakeControls) SetControl(id uint32, value int32) error {
	if _, ok := f.values[id]; !ok {
		return errors.New("no such control")
	}
	f.values[id] = value
	return nil
}

// testSubject is a minimal policy subject over a real state machine.
type testSubject struct {
	devID   uint32
	role    string
	layer   uint32
	machine *tempest.Machine
}

func (s *testSubject) DeviceID() uint32          { return s.devID }
func (s *testSubject) Role() string              { return s.role }
func (s *testSubject) Layer() uint32             { return s.layer }
func (s *testSubject) Tempest() *tempest.Machine { return s.machine }

func newSubject(layer uint32) (*testSubject, *fakeControls) {
	ctrl := newFakeControls()
	return &testSubject{
		devID:   0xC0FFEE,
		role:    "generic_webcam",
		layer:   layer,
		machine: tempest.NewMachine(ctrl, testCtrlID, 0xC0FFEE, layer, "generic_webcam"),
	}, ctrl
}

// resetClearance forgets the cached user clearance so a test can vary the
// environment.
func resetClearance() { clearanceOnce = sync.Once{} }

func TestSetThreatConValidation(t *testing.T) {
	t.Cleanup(func() { _ = SetThreatCon(ThreatNormal) })

	if err := SetThreatCon(ThreatCon(6)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetThreatCon(6) = %v, want ErrInvalidArgument", err)
	}
	if err := SetThreatCon(ThreatCon(-1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetThreatCon(-1) = %v, want ErrInvalidArgument", err)
	}
	if err := SetThreatCon(ThreatDelta); err != nil {
		t.Fatalf("SetThreatCon(DELTA) failed: %v", err)
	}
	if got := GetThreatCon(); got != ThreatDelta {
		t.Errorf("GetThreatCon = %v, want DELTA", got)
	}
}

func TestThreatConTempestMapping(t *testing.T) {
	tests := []struct {
		level ThreatCon
		want  tempest.State
	}{
		{ThreatNormal, tempest.Disabled},
		{ThreatAlpha, tempest.Low},
		{ThreatBravo, tempest.Low},
		{ThreatCharlie, tempest.High},
		{ThreatDelta, tempest.High},
		{ThreatEmergency, tempest.Lockdown},
	}
	for _, tt := range tests {
		if got := TempestForThreatCon(tt.level); got != tt.want {
			t.Errorf("TempestForThreatCon(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestApplyThreatConDrivesDevice(t *testing.T) {
	t.Cleanup(func() { _ = SetThreatCon(ThreatNormal) })

	for _, tt := range []struct {
		level ThreatCon
		want  tempest.State
	}{
		{ThreatNormal, tempest.Disabled},
		{ThreatCharlie, tempest.High},
		{ThreatEmergency, tempest.Lockdown},
	} {
		sub, _ := newSubject(3)
		if err := SetThreatCon(tt.level); err != nil {
			t.Fatalf("SetThreatCon(%v) failed: %v", tt.level, err)
		}
		if err := ApplyThreatCon(sub); err != nil {
			t.Fatalf("ApplyThreatCon under %v failed: %v", tt.level, err)
		}
		if got := sub.machine.Cached(); got != tt.want {
			t.Errorf("device state under %v = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLayerPolicyTable(t *testing.T) {
	lp, err := LayerPolicyFor(3)
	if err != nil {
		t.Fatalf("LayerPolicyFor(3) failed: %v", err)
	}
	if lp.MaxWidth != 1280 || lp.MaxHeight != 720 || lp.MinTempest != tempest.Disabled {
		t.Errorf("layer 3 policy = %+v", lp)
	}

	lp, err = LayerPolicyFor(7)
	if err != nil {
		t.Fatalf("LayerPolicyFor(7) failed: %v", err)
	}
	if lp.MinTempest != tempest.High {
		t.Errorf("layer 7 min tempest = %v, want HIGH", lp.MinTempest)
	}

	if _, err := LayerPolicyFor(9); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("LayerPolicyFor(9) = %v, want ErrInvalidArgument", err)
	}
}

func TestCheckCaptureAllowed(t *testing.T) {
	tests := []struct {
		name   string
		layer  uint32
		state  tempest.State
		denied bool
	}{
		{"lockdown blocks every layer", 3, tempest.Lockdown, true},
		{"layer 3 allows disabled", 3, tempest.Disabled, false},
		{"layer 4 requires at least low", 4, tempest.Disabled, true},
		{"layer 4 with low allowed", 4, tempest.Low, false},
		{"layer 7 requires high", 7, tempest.Low, true},
		{"layer 7 with high allowed", 7, tempest.High, false},
		{"layer 8 with high allowed", 8, tempest.High, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, _ := newSubject(tt.layer)
			err := CheckCaptureAllowed(sub, tt.state)
			if tt.denied && !errors.Is(err, ErrDenied) {
				t.Errorf("CheckCaptureAllowed = %v, want ErrDenied", err)
			}
			if !tt.denied && err != nil {
				t.Errorf("CheckCaptureAllowed = %v, want nil", err)
			}
		})
	}
}

func TestAuthorizeMintsSingleUseGrant(t *testing.T) {
	sub, ctrl := newSubject(3)
	ctrl.values[testCtrlID] = int32(tempest.Low)

	grant, err := Authorize(sub, "test")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if grant.State() != tempest.Low {
		t.Errorf("grant state = %v, want LOW (the consulted state)", grant.State())
	}

	if err := grant.Consume(sub.devID); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if err := grant.Consume(sub.devID); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("second Consume = %v, want ErrInvalidArgument", err)
	}
}

func TestGrantRejectsWrongDevice(t *testing.T) {
	sub, _ := newSubject(3)
	grant, err := Authorize(sub, "test")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := grant.Consume(sub.devID + 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Consume for wrong device = %v, want ErrInvalidArgument", err)
	}
}

func TestAuthorizeDeniesLockdown(t *testing.T) {
	sub, ctrl := newSubject(3)
	ctrl.values[testCtrlID] = int32(tempest.Lockdown)

	if _, err := Authorize(sub, "test"); !errors.Is(err, ErrDenied) {
		t.Errorf("Authorize under lockdown = %v, want ErrDenied", err)
	}
}

func TestClearanceFromClassification(t *testing.T) {
	tests := []struct {
		in   string
		want Clearance
	}{
		{"TOP_SECRET", ClearanceTopSecret},
		{"TOP SECRET//SI", ClearanceTopSecret},
		{"SECRET_BIOMETRIC", ClearanceSecret},
		{"SECRET", ClearanceSecret},
		{"CONFIDENTIAL", ClearanceConfidential},
		{"UNCLASSIFIED", ClearanceUnclassified},
		{"top_secret", ClearanceNone}, // scanning is case-sensitive
		{"", ClearanceNone},
	}
	for _, tt := range tests {
		if got := ClearanceFromClassification(tt.in); got != tt.want {
			t.Errorf("ClearanceFromClassification(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoleClearanceRequirement(t *testing.T) {
	tests := []struct {
		role string
		want Clearance
	}{
		{"generic_webcam", ClearanceUnclassified},
		{"ir_sensor", ClearanceConfidential},
		{"iris_scanner", ClearanceSecret},
		{"tempest_cam", ClearanceTopSecret},
		{"unheard_of", ClearanceUnclassified},
	}
	for _, tt := range tests {
		if got := RoleClearanceRequirement(tt.role); got != tt.want {
			t.Errorf("RoleClearanceRequirement(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestUserClearanceDefaultsToUnclassified(t *testing.T) {
	resetClearance()
	t.Setenv(EnvClearance, "")
	t.Cleanup(resetClearance)

	if got := UserClearance(); got != ClearanceUnclassified {
		t.Errorf("UserClearance with empty env = %v, want UNCLASSIFIED", got)
	}
}

func TestUserClearanceReadOnceAndCached(t *testing.T) {
	resetClearance()
	t.Setenv(EnvClearance, "SECRET")
	t.Cleanup(resetClearance)

	if got := UserClearance(); got != ClearanceSecret {
		t.Fatalf("UserClearance = %v, want SECRET", got)
	}

	// A later environment change must not be observed.
	t.Setenv(EnvClearance, "TOP_SECRET")
	if got := UserClearance(); got != ClearanceSecret {
		t.Errorf("UserClearance after env change = %v, want cached SECRET", got)
	}
}

func TestCheckClearance(t *testing.T) {
	tests := []struct {
		name           string
		user           string
		role           string
		classification string
		denied         bool
	}{
		{"unclassified user on webcam", "UNCLASSIFIED", "generic_webcam", "UNCLASSIFIED", false},
		{"unclassified user on ir sensor", "UNCLASSIFIED", "ir_sensor", "CONFIDENTIAL", true},
		{"secret user on iris scanner", "SECRET", "iris_scanner", "SECRET_BIOMETRIC", false},
		{"secret user on tempest cam", "SECRET", "tempest_cam", "TOP_SECRET", true},
		{"classification governs over role", "CONFIDENTIAL", "generic_webcam", "SECRET", true},
		{"role governs over classification", "CONFIDENTIAL", "iris_scanner", "UNCLASSIFIED", true},
		{"top secret user passes everything", "TOP SECRET", "tempest_cam", "TOP_SECRET", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetClearance()
			t.Setenv(EnvClearance, tt.user)
			t.Cleanup(resetClearance)

			err := CheckClearance(tt.role, tt.classification)
			if tt.denied && !errors.Is(err, ErrDenied) {
				t.Errorf("CheckClearance = %v, want ErrDenied", err)
			}
			if !tt.denied && err != nil {
				t.Errorf("CheckClearance = %v, want nil", err)
			}
		})
	}
}
