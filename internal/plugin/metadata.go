package plugin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/diva/internal/processor"
)

var (
	semverPattern     = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	constraintPattern = regexp.MustCompile(`^(\d+)\.x$`)
)

// Metadata describes a processor service.
type Metadata struct {
	Name        string
	Version     string
	Description string
	// Capabilities advertised by instances of the service.
	Capabilities processor.Capability
	Inputs       []processor.PortSpec
	Outputs      []processor.PortSpec
}

// Validate ensures metadata is well-formed.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("service metadata requires a non-empty Name")
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("service '%s' has invalid Version '%s' (expected format: X.Y.Z)", m.Name, m.Version)
	}
	seen := make(map[string]struct{}, len(m.Inputs)+len(m.Outputs))
	for _, spec := range append(append([]processor.PortSpec(nil), m.Inputs...), m.Outputs...) {
		if spec.Key == "" {
			return fmt.Errorf("service '%s' declares a port with an empty key", m.Name)
		}
		if _, dup := seen[spec.Key]; dup {
			return fmt.Errorf("service '%s' declares port '%s' more than once", m.Name, spec.Key)
		}
		seen[spec.Key] = struct{}{}
	}
	return nil
}

// VersionConstraint pins a service to one major version ("1.x").
type VersionConstraint struct {
	Major int
}

// ParseVersionConstraint parses "N.x". An empty string means any version and
// yields a nil constraint.
func ParseVersionConstraint(s string) (*VersionConstraint, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	match := constraintPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return nil, fmt.Errorf("invalid version constraint '%s' (expected format: N.x)", s)
	}
	major, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, fmt.Errorf("invalid major version in constraint '%s'", s)
	}
	return &VersionConstraint{Major: major}, nil
}

// Satisfies reports whether version has the constrained major version. A nil
// constraint accepts every version.
func (vc *VersionConstraint) Satisfies(version string) bool {
	if vc == nil {
		return true
	}
	head, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	major, err := strconv.Atoi(head)
	return err == nil && major == vc.Major
}

func (vc *VersionConstraint) String() string {
	if vc == nil {
		return "any"
	}
	return fmt.Sprintf("%d.x", vc.Major)
}
