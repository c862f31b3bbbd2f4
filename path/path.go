// Package path implements the relation-path query language used to walk
// the object graph: dot-separated steps starting at a type name, where a
// plain step follows an outgoing relation and a "<prop[is Type]" step
// follows a relation backwards from the type declaring it.
//
// Example:
//
//	p, err := path.Parse(reg, "Hostname.<hostname[is Website].certificate")
//	// p walks from a hostname to the websites served on it, then on to
//	// each website's certificate.
package path

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openkat/octopoes/model"
)

// ErrInvalidPath indicates a path string that does not parse against the
// registry: unknown types, malformed steps, or an incoming step without
// its [is Type] clause.
var ErrInvalidPath = errors.New("invalid path")

// Direction tells whether a segment follows a relation as declared or
// backwards.
type Direction int

const (
	// Outgoing follows a relation declared on the segment's source type.
	Outgoing Direction = iota
	// Incoming follows a relation declared on the segment's target type,
	// pointing back at the source.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Segment is one hop of a path. TargetType is empty when the step names a
// plain attribute rather than a relation; such a segment terminates the
// path.
type Segment struct {
	SourceType string
	Direction  Direction
	Property   string
	TargetType string
}

// Equal compares segments by source, direction and property. The target
// type is derived and does not participate, matching how segments are
// deduplicated in neighbor enumeration.
func (s Segment) Equal(other Segment) bool {
	return s.SourceType == other.SourceType &&
		s.Direction == other.Direction &&
		s.Property == other.Property
}

// Reverse flips a segment: the target becomes the source and the
// direction inverts. A segment without a target type cannot be reversed.
func (s Segment) Reverse() (Segment, error) {
	if s.TargetType == "" {
		return Segment{}, fmt.Errorf("%w: segment %q has no target type", ErrInvalidPath, s.String())
	}
	direction := Incoming
	if s.Direction == Incoming {
		direction = Outgoing
	}
	return Segment{
		SourceType: s.TargetType,
		Direction:  direction,
		Property:   s.Property,
		TargetType: s.SourceType,
	}, nil
}

func (s Segment) String() string {
	if s.Direction == Incoming {
		return fmt.Sprintf("<%s[is %s]", s.Property, s.TargetType)
	}
	return s.Property
}

// Path is a parsed sequence of segments, each one starting at the target
// type of the previous.
type Path struct {
	Segments []Segment
}

// Parse builds a path from its string form. The first dot-separated token
// names the start type; each following token is a step. Steps after a
// plain-attribute step are dropped, since there is nothing left to walk.
func Parse(reg *model.Registry, s string) (Path, error) {
	tokens := strings.Split(s, ".")
	if len(tokens) < 2 {
		return Path{}, fmt.Errorf("%w: %q needs a start type and at least one step", ErrInvalidPath, s)
	}

	startType := strings.TrimSpace(tokens[0])
	if !reg.IsRegistered(startType) {
		return Path{}, fmt.Errorf("%w: unknown start type %q", ErrInvalidPath, startType)
	}

	segments := make([]Segment, 0, len(tokens)-1)
	source := startType
	for _, token := range tokens[1:] {
		segment, err := parseStep(reg, source, token)
		if err != nil {
			return Path{}, err
		}
		segments = append(segments, segment)
		if segment.TargetType == "" {
			break
		}
		source = segment.TargetType
	}
	return Path{Segments: segments}, nil
}

// MustParse is Parse for statically known paths, panicking on error.
func MustParse(reg *model.Registry, s string) Path {
	p, err := Parse(reg, s)
	if err != nil {
		panic(err)
	}
	return p
}

// parseStep decodes one step against the source type. Incoming steps
// require an explicit "[is Type]" clause because the declaring type cannot
// be derived from the property name alone.
func parseStep(reg *model.Registry, source, token string) (Segment, error) {
	step := strings.ReplaceAll(token, " ", "")
	if step == "" {
		return Segment{}, fmt.Errorf("%w: empty step", ErrInvalidPath)
	}

	incoming := strings.HasPrefix(step, "<")
	if incoming {
		step = step[1:]
	}

	property := step
	explicitTarget := ""
	if at := strings.Index(step, "["); at >= 0 {
		clause := step[at:]
		if !strings.HasPrefix(clause, "[is") || !strings.HasSuffix(clause, "]") {
			return Segment{}, fmt.Errorf("%w: malformed type clause in step %q", ErrInvalidPath, token)
		}
		property = step[:at]
		explicitTarget = clause[len("[is") : len(clause)-1]
	}
	if property == "" {
		return Segment{}, fmt.Errorf("%w: step %q has no property name", ErrInvalidPath, token)
	}

	if explicitTarget != "" {
		if !reg.IsRegistered(explicitTarget) {
			return Segment{}, fmt.Errorf("%w: unknown type %q in step %q", ErrInvalidPath, explicitTarget, token)
		}
		direction := Outgoing
		if incoming {
			direction = Incoming
		}
		return Segment{SourceType: source, Direction: direction, Property: property, TargetType: explicitTarget}, nil
	}

	if incoming {
		return Segment{}, fmt.Errorf("%w: incoming step %q needs an [is Type] clause", ErrInvalidPath, token)
	}

	// No explicit target: derive it from the relation declaration,
	// falling back to the source's subtypes. A property that is not a
	// relation anywhere yields a terminal attribute segment.
	if rel, ok := reg.ResolveRelation(source, property); ok {
		return Segment{SourceType: source, Direction: Outgoing, Property: property, TargetType: rel.Types[0]}, nil
	}
	return Segment{SourceType: source, Direction: Outgoing, Property: property}, nil
}

// Reverse returns the path walked backwards: segments in reverse order,
// each flipped. Reversing twice yields the original path.
func (p Path) Reverse() (Path, error) {
	segments := make([]Segment, 0, len(p.Segments))
	for i := len(p.Segments) - 1; i >= 0; i-- {
		segment, err := p.Segments[i].Reverse()
		if err != nil {
			return Path{}, err
		}
		segments = append(segments, segment)
	}
	return Path{Segments: segments}, nil
}

// StartType returns the type the path is anchored on.
func (p Path) StartType() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0].SourceType
}

func (p Path) String() string {
	if len(p.Segments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Segments)+1)
	parts = append(parts, p.Segments[0].SourceType)
	for _, segment := range p.Segments {
		parts = append(parts, segment.String())
	}
	return strings.Join(parts, ".")
}
