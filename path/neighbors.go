package path

import (
	"slices"
	"sort"

	"github.com/openkat/octopoes/model"
)

// PathsToNeighbors enumerates every single-segment path away from the
// given type: one outgoing path per declared relation, and one incoming
// path per concrete type declaring a relation that can target it. The
// result is sorted by path string so callers iterate deterministically.
func PathsToNeighbors(reg *model.Registry, sourceType string) ([]Path, error) {
	relations, err := reg.RelationsOf(sourceType)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var paths []Path
	add := func(p Path) {
		if _, ok := seen[p.String()]; ok {
			return
		}
		seen[p.String()] = struct{}{}
		paths = append(paths, p)
	}

	for property, rel := range relations {
		add(Path{Segments: []Segment{{
			SourceType: sourceType,
			Direction:  Outgoing,
			Property:   property,
			TargetType: rel.Types[0],
		}}})
	}

	for _, other := range reg.ConcreteTypes() {
		otherRelations, err := reg.RelationsOf(other)
		if err != nil {
			return nil, err
		}
		for property, rel := range otherRelations {
			ok, err := relationTargets(reg, rel, sourceType)
			if err != nil {
				return nil, err
			}
			if ok {
				add(Path{Segments: []Segment{{
					SourceType: sourceType,
					Direction:  Incoming,
					Property:   property,
					TargetType: other,
				}}})
			}
		}
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

// relationTargets reports whether the relation can point at objects of the
// given type, either by naming it (or a supertype) directly or through its
// concrete expansion.
func relationTargets(reg *model.Registry, rel model.Relation, typeName string) (bool, error) {
	for _, declared := range rel.Types {
		if declared == typeName {
			return true, nil
		}
	}
	concrete, err := reg.ToConcrete(rel.Types)
	if err != nil {
		return false, err
	}
	return slices.Contains(concrete, typeName), nil
}

// MaxScanLevelInheritance returns the cap on the level the segment's
// source may inherit from its target, or nil when the edge does not
// propagate inward. For outgoing segments the cap is declared on the
// source's relation; for incoming segments it is the issuance cap of the
// declaring type, since inheriting backwards over an edge is the target
// issuing forwards.
func MaxScanLevelInheritance(reg *model.Registry, s Segment) *model.ScanLevel {
	if s.Direction == Incoming {
		if rel, ok := reg.ResolveRelation(s.TargetType, s.Property); ok {
			return rel.MaxIssueScanLevel
		}
		return nil
	}
	if rel, ok := reg.ResolveRelation(s.SourceType, s.Property); ok {
		return rel.MaxInheritScanLevel
	}
	return nil
}

// MaxScanLevelIssuance returns the cap on the level the segment's source
// may issue to its target, the mirror image of MaxScanLevelInheritance.
func MaxScanLevelIssuance(reg *model.Registry, s Segment) *model.ScanLevel {
	if s.Direction == Incoming {
		if rel, ok := reg.ResolveRelation(s.TargetType, s.Property); ok {
			return rel.MaxInheritScanLevel
		}
		return nil
	}
	if rel, ok := reg.ResolveRelation(s.SourceType, s.Property); ok {
		return rel.MaxIssueScanLevel
	}
	return nil
}
