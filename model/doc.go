// Package model provides the core object model for the OOI (Object of
// Interest) graph: string-encoded references, the Object capability
// interface, the type registry with per-type metadata descriptors,
// primary-key tokenization, and scan profiles.
//
// Every object in the graph is identified by a Reference of the form
//
//	<ObjectType>|<natural_key_part_1>|<natural_key_part_2>|...
//
// The natural key is derived from an ordered list of the object's own
// fields, so two objects of the same type with the same natural-key values
// are the same object. The registry maps each object type name to a
// Descriptor describing its natural-key attributes, its relations to other
// types, and its position in the type hierarchy; all graph traversal and
// key decoding is driven by these metadata tables rather than reflection.
package model
