// Package profile catalogues device profiles: vendor identity, role,
// classification, trust layer, TEMPEST control id, and preferred capture
// format. Profiles load once at startup and are immutable thereafter.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/swordworks/dsv4l2/log"
)

// MaxProfiles bounds the registry. Directories with more profiles load the
// first MaxProfiles in directory order.
const MaxProfiles = 64

// DefaultTempestCtrlID is the driver control id assumed when a profile does
// not name one.
const DefaultTempestCtrlID = 0x009a0902

// Profile describes one device class.
type Profile struct {
	// ID is the vendor:product identifier, e.g. "046d:0825".
	ID     string `yaml:"id"`
	Vendor string `yaml:"vendor"`
	Model  string `yaml:"model"`
	// Role names the device function; it keys clearance requirements.
	Role string `yaml:"role"`
	// Classification is the free-form classification tag.
	Classification string `yaml:"classification"`
	// Layer is the trust-stack layer, 0-8.
	Layer uint32 `yaml:"layer"`
	// TempestCtrlID is the driver control id for the TEMPEST posture.
	// Zero means the device has no TEMPEST control.
	TempestCtrlID CtrlID `yaml:"tempest_ctrl_id"`
	// Preferred capture settings.
	PixelFormat string `yaml:"pixel_format"`
	Width       uint32 `yaml:"width"`
	Height      uint32 `yaml:"height"`
	FPS         uint32 `yaml:"fps"`
	// Filename records the originating file, set by the loader.
	Filename string `yaml:"-"`
}

// CtrlID is an opaque 32-bit driver control id. Profile files may spell it
// in decimal or 0x-prefixed hexadecimal.
type CtrlID uint32

// UnmarshalYAML accepts decimal integers and 0x-prefixed hex strings.
func (c *CtrlID) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		return nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return fmt.Errorf("invalid tempest_ctrl_id %q: %w", value.Value, err)
	}
	*c = CtrlID(v)
	return nil
}

// defaultClassifications keys the fallback classification on role.
var defaultClassifications = map[string]string{
	"generic_webcam": "UNCLASSIFIED",
	"ir_sensor":      "CONFIDENTIAL",
	"iris_scanner":   "SECRET_BIOMETRIC",
	"tempest_cam":    "TOP_SECRET",
}

// DefaultForRole builds the fallback profile used when no file matches a
// role.
func DefaultForRole(role string) Profile {
	classification := defaultClassifications[role]
	if classification == "" {
		classification = "UNCLASSIFIED"
	}
	return Profile{
		ID:             "default:" + role,
		Role:           role,
		Classification: classification,
		Layer:          3,
		TempestCtrlID:  DefaultTempestCtrlID,
		PixelFormat:    "YUYV",
		Width:          640,
		Height:         480,
		FPS:            30,
	}
}

// Registry is the immutable in-memory profile catalogue.
type Registry struct {
	profiles []Profile
}

// NewRegistry builds a registry from pre-parsed profiles, applying the same
// validation as the directory loader.
func NewRegistry(profiles []Profile) (*Registry, error) {
	r := &Registry{profiles: make([]Profile, 0, len(profiles))}
	for _, p := range profiles {
		if err := validate(&p); err != nil {
			return nil, err
		}
		if len(r.profiles) >= MaxProfiles {
			break
		}
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

// LoadDir ingests every .yaml file in dir. Files that fail to parse or lack
// the required id/role keys are skipped with a warning; the registry may be
// empty. Unknown keys in profile files are ignored.
func LoadDir(dir string, logger *log.Logger) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory %s: %w", dir, err)
	}

	r := &Registry{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if len(r.profiles) >= MaxProfiles {
			break
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping profile", map[string]any{
					"file":  entry.Name(),
					"error": err.Error(),
				})
			}
			continue
		}
		p.Filename = entry.Name()
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

func loadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		Classification: "UNCLASSIFIED",
		Layer:          3,
		TempestCtrlID:  DefaultTempestCtrlID,
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validate(&p); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func validate(p *Profile) error {
	if p.ID == "" {
		return fmt.Errorf("missing required key: id")
	}
	if p.Role == "" {
		return fmt.Errorf("missing required key: role")
	}
	return nil
}

// Count returns the number of loaded profiles.
func (r *Registry) Count() int { return len(r.profiles) }

// At returns the profile at index i, or nil when out of range.
func (r *Registry) At(i int) *Profile {
	if i < 0 || i >= len(r.profiles) {
		return nil
	}
	return &r.profiles[i]
}

// Find returns the profile with the exact vendor:product id, or nil.
func (r *Registry) Find(id string) *Profile {
	for i := range r.profiles {
		if r.profiles[i].ID == id {
			return &r.profiles[i]
		}
	}
	return nil
}

// FindByRole returns the first profile with the given role, or nil.
func (r *Registry) FindByRole(role string) *Profile {
	for i := range r.profiles {
		if r.profiles[i].Role == role {
			return &r.profiles[i]
		}
	}
	return nil
}
