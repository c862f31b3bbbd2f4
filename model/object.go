package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Object is the capability interface every entity in the graph implements.
//
// Identity is value-based: two objects of the same type whose natural-key
// parts are equal are the same object, regardless of any other field
// differences. The storage layer upserts by primary key, which is what
// makes re-deriving the same object idempotent.
type Object interface {
	// ObjectType returns the registered type name, e.g. "Hostname".
	ObjectType() string

	// NaturalKeyParts returns the ordered natural-key parts of this object.
	// A nil/unset field contributes an empty string; parts are never
	// skipped, since position matters for decoding. A part that is itself
	// a Reference contributes that reference's natural key.
	NaturalKeyParts() []string

	// Relations returns the relation fields that are currently set, keyed
	// by property name. Unset optional relations are omitted.
	Relations() map[string]Reference

	// ScanProfile returns the clearance descriptor attached to this
	// object, or nil when none has been populated.
	ScanProfile() *ScanProfile

	// SetScanProfile attaches a clearance descriptor.
	SetScanProfile(*ScanProfile)
}

// Meta carries the fields shared by every object. Concrete types embed it.
type Meta struct {
	Profile *ScanProfile `json:"scan_profile,omitempty"`
}

// ScanProfile implements part of the Object interface.
func (m *Meta) ScanProfile() *ScanProfile { return m.Profile }

// SetScanProfile implements part of the Object interface.
func (m *Meta) SetScanProfile(p *ScanProfile) { m.Profile = p }

// NaturalKey joins the object's natural-key parts with "|".
func NaturalKey(o Object) string {
	return strings.Join(o.NaturalKeyParts(), "|")
}

// PrimaryKey returns the object's reference: "<type>|<natural key>".
func PrimaryKey(o Object) Reference {
	return MakeReference(o.ObjectType(), NaturalKey(o))
}

// Equal reports whether two objects denote the same entity, i.e. whether
// their primary keys are equal. Non-key fields do not participate.
func Equal(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return PrimaryKey(a) == PrimaryKey(b)
}

// InformationValued is implemented by types that expose attributes used to
// look up auxiliary knowledge-base information, independent from identity.
type InformationValued interface {
	InformationValues() []string
}

// InformationID returns the knowledge-base lookup key for an object: its
// type name joined with its information-value attributes.
func InformationID(o Object) string {
	parts := []string{o.ObjectType()}
	if iv, ok := o.(InformationValued); ok {
		parts = append(parts, iv.InformationValues()...)
	}
	return strings.Join(parts, "|")
}

// KeyPart normalizes a single natural-key field value into its string form:
// References contribute their natural key, Stringers their String(), and a
// nil pointer the empty string.
func KeyPart(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case Reference:
		return t.NaturalKey()
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
