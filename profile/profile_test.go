package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/swordworks/dsv4l2/profile"
)

func writeProfile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600); err != nil {
		t.Fatalf("write profile %s: %v", name, err)
	}
}

const webcamProfile = `id: "046d:0825"
vendor: Logitech
model: C270 HD Webcam
role: generic_webcam
classification: UNCLASSIFIED
layer: 3
pixel_format: YUYV
width: 1280
height: 720
fps: 30
tempest_ctrl_id: 0x9a0902
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "webcam.yaml", webcamProfile)
	writeProfile(t, dir, "iris.yaml", `id: "2821:6001"
vendor: IriTech
role: iris_scanner
classification: SECRET_BIOMETRIC
layer: 5
tempest_ctrl_id: 10094850
`)

	r, err := profile.LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("loaded %d profiles, want 2", r.Count())
	}

	p := r.Find("046d:0825")
	if p == nil {
		t.Fatal("Find(046d:0825) returned nil")
	}
	if p.Vendor != "Logitech" || p.Width != 1280 || p.FPS != 30 {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.TempestCtrlID != 0x9a0902 {
		t.Errorf("hex ctrl id = %#x, want 0x9a0902", uint32(p.TempestCtrlID))
	}
	if p.Filename != "webcam.yaml" {
		t.Errorf("filename = %q, want webcam.yaml", p.Filename)
	}

	iris := r.FindByRole("iris_scanner")
	if iris == nil {
		t.Fatal("FindByRole(iris_scanner) returned nil")
	}
	// Decimal spelling of the same control id.
	if iris.TempestCtrlID != 0x9a0902 {
		t.Errorf("decimal ctrl id = %#x, want 0x9a0902", uint32(iris.TempestCtrlID))
	}
}

func TestLoadDirSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "good.yaml", webcamProfile)
	writeProfile(t, dir, "no-id.yaml", "role: generic_webcam\n")
	writeProfile(t, dir, "no-role.yaml", "id: \"dead:beef\"\n")
	writeProfile(t, dir, "garbage.yaml", "{{{not yaml\n")
	writeProfile(t, dir, "ignored.txt", webcamProfile)

	r, err := profile.LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("loaded %d profiles, want only the valid one", r.Count())
	}
}

func TestLoadDirIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "extra.yaml", `id: "aaaa:bbbb"
role: ir_sensor
firmware_blob: /lib/firmware/ir.bin
calibration_profile: indoor
`)

	r, err := profile.LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("loaded %d profiles, want 1", r.Count())
	}
}

func TestLoadDirDefaults(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "min.yaml", "id: \"1111:2222\"\nrole: generic_webcam\n")

	r, err := profile.LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	p := r.At(0)
	if p.Classification != "UNCLASSIFIED" {
		t.Errorf("default classification = %q", p.Classification)
	}
	if p.Layer != 3 {
		t.Errorf("default layer = %d, want 3", p.Layer)
	}
	if p.TempestCtrlID != profile.DefaultTempestCtrlID {
		t.Errorf("default ctrl id = %#x", uint32(p.TempestCtrlID))
	}
}

func TestRegistryLookupMisses(t *testing.T) {
	r, err := profile.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if r.Find("none") != nil || r.FindByRole("none") != nil || r.At(0) != nil {
		t.Error("empty registry returned a profile")
	}
	if r.At(-1) != nil {
		t.Error("negative index returned a profile")
	}
}

func TestDefaultForRole(t *testing.T) {
	p := profile.DefaultForRole("iris_scanner")
	if p.Role != "iris_scanner" {
		t.Errorf("role = %q", p.Role)
	}
	if p.Classification != "SECRET_BIOMETRIC" {
		t.Errorf("classification = %q, want SECRET_BIOMETRIC", p.Classification)
	}
	if p.Layer != 3 || p.TempestCtrlID != profile.DefaultTempestCtrlID {
		t.Errorf("defaults = %+v", p)
	}

	unknown := profile.DefaultForRole("mystery")
	if unknown.Classification != "UNCLASSIFIED" {
		t.Errorf("unknown role classification = %q", unknown.Classification)
	}
}
