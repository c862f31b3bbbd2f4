package path

import (
	"fmt"

	"github.com/openkat/octopoes/model"
)

// Clause is one storage-executable hop of a compiled path. Both type sets
// are fully concrete: the storage layer joins on concrete type tags and
// never sees abstract names.
type Clause struct {
	SourceTypes []string
	Direction   Direction
	Property    string
	TargetTypes []string
}

// Compile lowers a path to storage clauses, expanding every abstract type
// into the disjunction of its concrete leaves. A path ending in a plain
// attribute segment cannot be compiled; such segments only appear in
// display paths.
func (p Path) Compile(reg *model.Registry) ([]Clause, error) {
	if len(p.Segments) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	clauses := make([]Clause, 0, len(p.Segments))
	for _, segment := range p.Segments {
		if segment.TargetType == "" {
			return nil, fmt.Errorf("%w: segment %q is not a relation", ErrInvalidPath, segment.String())
		}
		sources, err := reg.ToConcrete([]string{segment.SourceType})
		if err != nil {
			return nil, err
		}
		targets, err := reg.ToConcrete([]string{segment.TargetType})
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, Clause{
			SourceTypes: sources,
			Direction:   segment.Direction,
			Property:    segment.Property,
			TargetTypes: targets,
		})
	}
	return clauses, nil
}
