package model

import (
	"fmt"
	"strings"
)

// Reference is the string-encoded primary key of an object in the graph,
// in the form "<ObjectType>|<natural_key>". The natural key itself may
// contain further "|"-separated parts; positional decoding is handled by
// Registry.Tokenize.
type Reference string

// ParseReference validates and returns a Reference from its string form.
// The string must contain at least one "|" separating the object type from
// the natural key.
func ParseReference(s string) (Reference, error) {
	if !strings.Contains(s, "|") {
		return "", fmt.Errorf("%w: %q has no object type separator", ErrInvalidReference, s)
	}
	if strings.HasPrefix(s, "|") {
		return "", fmt.Errorf("%w: %q has an empty object type", ErrInvalidReference, s)
	}
	return Reference(s), nil
}

// MakeReference builds a Reference from an object type name and a natural key.
func MakeReference(objectType, naturalKey string) Reference {
	return Reference(objectType + "|" + naturalKey)
}

// ObjectType returns the type-name component of the reference, or the empty
// string if the reference is malformed.
func (r Reference) ObjectType() string {
	objectType, _, ok := strings.Cut(string(r), "|")
	if !ok {
		return ""
	}
	return objectType
}

// NaturalKey returns the natural-key component of the reference: everything
// after the first "|".
func (r Reference) NaturalKey() string {
	_, naturalKey, _ := strings.Cut(string(r), "|")
	return naturalKey
}

// IsZero reports whether the reference is unset. Optional relation fields
// hold a zero Reference when no target is linked.
func (r Reference) IsZero() bool {
	return r == ""
}

func (r Reference) String() string {
	return string(r)
}

// FormatIDShort shortens ids longer than 33 characters for display,
// keeping the head and tail.
func FormatIDShort(id string) string {
	if len(id) > 33 {
		return id[:15] + "..." + id[len(id)-15:]
	}
	return id
}
