package model

// AnyObjectType is the pseudo type name used in Relation.Types for
// relations that may target any object in the graph, such as the subject
// of a finding. Registry.ToConcrete expands it to every concrete type.
const AnyObjectType = "OOI"

// Relation describes a typed reference field from one object type to
// another: the declared target types (more than one for union-typed
// relations), whether the field may be unset, and the scan-level caps that
// bound clearance inheritance across the edge.
type Relation struct {
	// Types are the declared target type names. Abstract names are
	// expanded with Registry.ToConcrete before storage queries.
	Types []string

	// Optional marks relations that may hold a zero Reference.
	Optional bool

	// MaxIssueScanLevel caps the level the source may issue to the target
	// through this edge. Nil means the edge does not propagate in that
	// direction.
	MaxIssueScanLevel *ScanLevel

	// MaxInheritScanLevel caps the level the source may inherit from the
	// target through this edge. Nil means no inheritance over this edge.
	MaxInheritScanLevel *ScanLevel

	// ReverseName is the name under which the inverse of this relation is
	// presented, e.g. "dns_records" for DNSRecord.hostname. Empty means
	// the default "<Type>_<property>" form.
	ReverseName string
}

// Cap is a convenience for building scan-level cap pointers in descriptor
// tables.
func Cap(l ScanLevel) *ScanLevel { return &l }

// Descriptor is the per-type metadata table driving key decoding, relation
// discovery and traversal. Descriptors are built once at registration time;
// the traversal hot path never reflects over struct fields.
type Descriptor struct {
	// Name is the unique object type name, e.g. "DNSTXTRecord".
	Name string

	// Parent is the name of the supertype this type specializes, or empty
	// for types directly under the implicit root. A type with registered
	// subtypes is abstract; leaf types are concrete.
	Parent string

	// NaturalKey lists the attribute names whose values form the natural
	// key, in order. An attribute that is also a key in Relations
	// contributes the target's natural key recursively.
	NaturalKey []string

	// Relations maps property names to relation metadata.
	Relations map[string]Relation

	// InformationValue lists the attributes used for knowledge-base
	// lookups, independent from identity.
	InformationValue []string

	// Traversable marks whether clearance inheritance walks through
	// objects of this type. Network and finding-type objects are shared
	// across unrelated subgraphs and are not traversed.
	Traversable bool

	// New returns a zero value of the concrete type, used to decode stored
	// documents. Nil for abstract types.
	New func() Object

	// HumanReadable formats a reference of this type for display. Nil
	// means the raw reference string is used.
	HumanReadable func(reg *Registry, ref Reference) string
}

// ReverseRelationName returns the name under which the given relation is
// exposed in the inverse direction.
func (d *Descriptor) ReverseRelationName(property string) string {
	if rel, ok := d.Relations[property]; ok && rel.ReverseName != "" {
		return rel.ReverseName
	}
	return d.Name + "_" + property
}
