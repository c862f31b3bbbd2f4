package model

import (
	"fmt"
	"strconv"
)

// ScanLevel is the clearance level of an object, describing how aggressively
// it may be scanned. Valid levels are 0 through 4.
type ScanLevel int

// Valid scan levels.
const (
	ScanLevel0 ScanLevel = iota
	ScanLevel1
	ScanLevel2
	ScanLevel3
	ScanLevel4
)

// Valid reports whether the level is within the 0-4 range.
func (l ScanLevel) Valid() bool {
	return l >= ScanLevel0 && l <= ScanLevel4
}

func (l ScanLevel) String() string {
	return strconv.Itoa(int(l))
}

// ScanProfileType tags how an object's scan level came to be.
type ScanProfileType string

const (
	// ScanProfileDeclared is explicitly set by a user or process. A
	// declared level is authoritative and never auto-transitions.
	ScanProfileDeclared ScanProfileType = "declared"

	// ScanProfileInherited is computed by walking the relation graph; it is
	// recomputed whenever an ancestor in the inheritance graph changes.
	ScanProfileInherited ScanProfileType = "inherited"

	// ScanProfileEmpty means no profile has been set; the effective level
	// is 0.
	ScanProfileEmpty ScanProfileType = "empty"
)

// ScanProfile is the per-object clearance descriptor.
type ScanProfile struct {
	Type      ScanProfileType `json:"scan_profile_type"`
	Reference Reference       `json:"reference"`
	Level     ScanLevel       `json:"level"`
	UserID    *int            `json:"user_id,omitempty"`
}

// NewEmptyScanProfile returns the profile of an object with no declared or
// inherited clearance.
func NewEmptyScanProfile(ref Reference) *ScanProfile {
	return &ScanProfile{Type: ScanProfileEmpty, Reference: ref, Level: ScanLevel0}
}

// NewDeclaredScanProfile returns a profile explicitly set to the given level.
func NewDeclaredScanProfile(ref Reference, level ScanLevel) *ScanProfile {
	return &ScanProfile{Type: ScanProfileDeclared, Reference: ref, Level: level}
}

// NewInheritedScanProfile returns a computed profile at the given level.
func NewInheritedScanProfile(ref Reference, level ScanLevel) *ScanProfile {
	return &ScanProfile{Type: ScanProfileInherited, Reference: ref, Level: level}
}

// HumanReadable formats the profile level as e.g. "L2".
func (p *ScanProfile) HumanReadable() string {
	return fmt.Sprintf("L%d", p.Level)
}

// EffectiveLevel returns the profile's level, treating a nil profile as
// level 0.
func (p *ScanProfile) EffectiveLevel() ScanLevel {
	if p == nil {
		return ScanLevel0
	}
	return p.Level
}
