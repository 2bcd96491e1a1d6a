package plugin

import (
	"fmt"
	"strconv"
	"strings"
)

// APIVersion is a host API revision. Compatibility is decided on Major and
// Minor only; Build is informational.
type APIVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Build int `json:"build,omitempty"`
}

// Targets returns an annotation for the given major.minor revision.
func Targets(major, minor int) *APIVersion {
	return &APIVersion{Major: major, Minor: minor}
}

// ParseAPIVersion parses "major.minor" or "major.minor.build".
func ParseAPIVersion(s string) (APIVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return APIVersion{}, fmt.Errorf("invalid api version %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return APIVersion{}, fmt.Errorf("invalid api version %q", s)
		}
		nums[i] = n
	}
	return APIVersion{Major: nums[0], Minor: nums[1], Build: nums[2]}, nil
}

// Compatible reports whether v and other share major and minor.
func (v APIVersion) Compatible(other APIVersion) bool {
	return v.Major == other.Major && v.Minor == other.Minor
}

// Short formats the version as "major.minor".
func (v APIVersion) Short() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}
