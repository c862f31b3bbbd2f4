package model

import "errors"

// Sentinel errors for registry and reference operations.
var (
	// ErrTypeNotFound indicates that the requested object type is not in the
	// registry. Registry misuse is a programmer error and should surface
	// immediately rather than be caught and retried.
	ErrTypeNotFound = errors.New("object type not found")

	// ErrDuplicateType indicates that an object type with the same name has
	// already been registered.
	ErrDuplicateType = errors.New("object type already registered")

	// ErrInvalidReference indicates a malformed reference string or a
	// natural-key part count that does not match the expected token tree.
	// A reference either fully decodes or is rejected; callers must not
	// attempt partial recovery.
	ErrInvalidReference = errors.New("invalid reference")
)
