// Package pkgref parses and normalizes package coordinates of the form
// name:version@preset.
package pkgref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
)

const (
	// DefaultVersion is used when a reference carries no version.
	DefaultVersion = "latest"
	// DefaultPreset is used when a reference carries no preset.
	DefaultPreset = "main"
)

var pattern = regexp.MustCompile(`^(?P<name>@?[a-z0-9][A-Za-z0-9-]{1,29}[a-z0-9])(?::(?P<version>[^@]+))?(@(?P<preset>[^\s]+))?$`)

var (
	nameGroup    = pattern.SubexpIndex("name")
	versionGroup = pattern.SubexpIndex("version")
	presetGroup  = pattern.SubexpIndex("preset")
)

// Partial holds the components of a reference exactly as written.
// Empty Version or Preset means the component was omitted.
type Partial struct {
	Name    string
	Version string
	Preset  string
}

// Reference is a parsed package coordinate with defaults applied.
// The zero value is not a valid reference.
type Reference struct {
	name    string
	version string
	preset  string
}

// IsValid reports whether ref matches the reference grammar.
func IsValid(ref string) bool {
	return pattern.MatchString(ref)
}

// ParsePartial decomposes ref without filling in defaults.
func ParsePartial(ref string) (Partial, error) {
	m := pattern.FindStringSubmatch(ref)
	if m == nil || m[nameGroup] == "" {
		return Partial{}, fmt.Errorf("invalid package name %q: should be of the format <package-name>:<version> or <package-name>:<version>@<preset>: %w", ref, errdefs.ErrInvalidArgument)
	}
	return Partial{
		Name:    m[nameGroup],
		Version: m[versionGroup],
		Preset:  m[presetGroup],
	}, nil
}

// Parse decomposes ref and applies the default version and preset.
func Parse(ref string) (Reference, error) {
	p, err := ParsePartial(ref)
	if err != nil {
		return Reference{}, err
	}
	return newReference(p.Name, p.Version, p.Preset), nil
}

// From builds a reference from its components, filling in defaults.
// The assembled reference must itself be valid.
func From(name, version, preset string) (Reference, error) {
	r := newReference(name, version, preset)
	return Parse(r.name + ":" + r.version + "@" + r.preset)
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(ref string) Reference {
	r, err := Parse(ref)
	if err != nil {
		panic(err)
	}
	return r
}

func newReference(name, version, preset string) Reference {
	if version == "" {
		version = DefaultVersion
	}
	if preset == "" {
		preset = DefaultPreset
	}
	return Reference{name: name, version: version, preset: preset}
}

func (r Reference) Name() string    { return r.name }
func (r Reference) Version() string { return r.version }
func (r Reference) Preset() string  { return r.preset }

// PackageRef returns name:version. The assembled string is validated
// on every call so a reference built from untrusted fragments can never
// reach a registry key unchecked.
func (r Reference) PackageRef() (string, error) {
	res := r.name + ":" + r.version
	if !IsValid(res) {
		return "", fmt.Errorf("invalid package reference %q: %w", res, errdefs.ErrInvalidArgument)
	}
	return res, nil
}

// FullPackageRef returns name:version@preset, validated like PackageRef.
func (r Reference) FullPackageRef() (string, error) {
	res := r.name + ":" + r.version + "@" + r.preset
	if !IsValid(res) {
		return "", fmt.Errorf("invalid package reference %q: %w", res, errdefs.ErrInvalidArgument)
	}
	return res, nil
}

// WithVersion returns a copy of r carrying a different version.
func (r Reference) WithVersion(version string) Reference {
	return newReference(r.name, version, r.preset)
}

// WithPreset returns a copy of r carrying a different preset.
func (r Reference) WithPreset(preset string) Reference {
	return newReference(r.name, r.version, preset)
}

func (r Reference) String() string {
	full, err := r.FullPackageRef()
	if err != nil {
		return r.name + ":" + r.version + "@" + r.preset
	}
	return full
}

// Variant formats the legacy chain/preset selector "<chainId>-<preset>".
func Variant(chainID int64, preset string) string {
	if preset == "" {
		preset = DefaultPreset
	}
	return strconv.FormatInt(chainID, 10) + "-" + preset
}

// ParseVariant splits a "<chainId>-<preset>" selector. Everything after
// the first dash is the preset, so presets may themselves contain dashes.
func ParseVariant(variant string) (int64, string, error) {
	idx := strings.IndexByte(variant, '-')
	if idx <= 0 || idx == len(variant)-1 {
		return 0, "", fmt.Errorf("invalid variant %q: expected <chainId>-<preset>: %w", variant, errdefs.ErrInvalidArgument)
	}
	chainID, err := strconv.ParseInt(variant[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid variant %q: chain id: %w", variant, errdefs.ErrInvalidArgument)
	}
	return chainID, variant[idx+1:], nil
}
