// Package storage defines the repository contract for the object graph
// and an in-memory bitemporal reference implementation. Production
// deployments use the sqlitestore subpackage, optionally fronted by the
// rediscache read-through cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/path"
)

var (
	// ErrObjectNotFound indicates that no object version is valid at the
	// requested time for the given reference.
	ErrObjectNotFound = errors.New("object not found")

	// ErrOriginNotFound indicates an unknown origin id.
	ErrOriginNotFound = errors.New("origin not found")
)

// OriginType tags how a set of objects entered the graph.
type OriginType string

const (
	// OriginDeclaration is a user-asserted object, such as a manually
	// added hostname.
	OriginDeclaration OriginType = "declaration"

	// OriginObservation is a set of objects produced by normalizing a raw
	// scan result.
	OriginObservation OriginType = "observation"

	// OriginAffirmation refreshes attributes of an existing object
	// without claiming to have observed it.
	OriginAffirmation OriginType = "affirmation"

	// OriginInference is a set of objects produced by a derivation rule.
	OriginInference OriginType = "inference"
)

// Origin records the provenance of a set of objects: the rule or
// normalizer that produced them, the object it ran on, and its results.
// Saving an origin replaces its previous result set, which is what makes
// rule output converge instead of accrete.
type Origin struct {
	Type    OriginType        `json:"origin_type"`
	Method  string            `json:"method"`
	Source  model.Reference   `json:"source"`
	Results []model.Reference `json:"results,omitempty"`
}

// ID returns the origin's stable identity. Two runs of the same method on
// the same source are the same origin.
func (o Origin) ID() string {
	return fmt.Sprintf("%s|%s|%s", o.Type, o.Method, o.Source)
}

// Repository is the persistence contract for the object graph. All reads
// and writes are anchored at a valid time: an object version is visible at
// time t when its valid window contains t.
type Repository interface {
	// Get returns the object version valid at the given time, with its
	// scan profile populated when one is stored. Fails with
	// ErrObjectNotFound when no version is valid.
	Get(ctx context.Context, valid time.Time, ref model.Reference) (model.Object, error)

	// List returns all objects of the given concrete types valid at the
	// given time. Abstract names must be expanded by the caller.
	List(ctx context.Context, valid time.Time, types []string) ([]model.Object, error)

	// Walk follows a compiled path from the anchor objects and returns
	// the objects reached by the final segment, deduplicated by primary
	// key.
	Walk(ctx context.Context, valid time.Time, p path.Path, anchors []model.Reference) ([]model.Object, error)

	// SaveDeclaration upserts a user-asserted object.
	SaveDeclaration(ctx context.Context, valid time.Time, obj model.Object) error

	// SaveObservation upserts the objects produced by one method run and
	// replaces the origin's previous result set.
	SaveObservation(ctx context.Context, valid time.Time, origin Origin, objs []model.Object) error

	// SaveAffirmation upserts attribute refreshes for an object that is
	// already in the graph; it does not create new objects.
	SaveAffirmation(ctx context.Context, valid time.Time, obj model.Object) error

	// Delete ends the valid window of the object's current version.
	Delete(ctx context.Context, valid time.Time, ref model.Reference) error

	// Origins lists the origins whose result sets contain the reference.
	// An object with no remaining origins is a candidate for cleanup.
	Origins(ctx context.Context, valid time.Time, result model.Reference) ([]Origin, error)

	// GetScanProfile returns the stored clearance of an object, or
	// ErrObjectNotFound when none is stored.
	GetScanProfile(ctx context.Context, valid time.Time, ref model.Reference) (*model.ScanProfile, error)

	// SaveScanProfile upserts the clearance descriptor for the profile's
	// reference.
	SaveScanProfile(ctx context.Context, valid time.Time, profile *model.ScanProfile) error

	// ListScanProfiles returns all stored profiles of the given type; the
	// empty type lists every profile.
	ListScanProfiles(ctx context.Context, valid time.Time, profileType model.ScanProfileType) ([]*model.ScanProfile, error)
}
