// Package clearance computes scan-profile inheritance over the object
// graph. Declared profiles are authoritative; every other object gets an
// inherited level by propagation from the declared ones, bounded per edge
// by the relation's issuance cap, or an empty profile when nothing
// reaches it.
package clearance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/path"
	"github.com/openkat/octopoes/storage"
)

// Calculator recomputes inherited scan profiles.
type Calculator struct {
	repo storage.Repository
	reg  *model.Registry
	log  *slog.Logger
}

// NewCalculator returns a calculator over the given repository. A nil
// logger is replaced with slog.Default().
func NewCalculator(repo storage.Repository, reg *model.Registry, log *slog.Logger) *Calculator {
	if log == nil {
		log = slog.Default()
	}
	return &Calculator{repo: repo, reg: reg, log: log}
}

// Recalculate recomputes every non-declared scan profile at the given
// valid time. Levels propagate outward from declared profiles,
// breadth-first, each hop capped by the edge's issuance cap; an object's
// inherited level is the maximum over all levels that reach it.
// Propagation is monotone and levels are bounded, so cycles terminate:
// a cycle with no declared member never raises itself above level 0.
func (c *Calculator) Recalculate(ctx context.Context, valid time.Time) error {
	declared, err := c.repo.ListScanProfiles(ctx, valid, model.ScanProfileDeclared)
	if err != nil {
		return fmt.Errorf("list declared profiles: %w", err)
	}

	assigned := make(map[model.Reference]model.ScanLevel)
	isDeclared := make(map[model.Reference]bool, len(declared))
	queue := make([]model.Reference, 0, len(declared))
	for _, profile := range declared {
		// Skip declared profiles whose object is gone.
		if _, err := c.repo.Get(ctx, valid, profile.Reference); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return err
		}
		assigned[profile.Reference] = profile.Level
		isDeclared[profile.Reference] = true
		queue = append(queue, profile.Reference)
	}

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		level := assigned[ref]
		if level == model.ScanLevel0 {
			continue
		}

		neighbors, err := c.issuableNeighbors(ctx, valid, ref, level)
		if err != nil {
			return err
		}
		for neighborRef, grant := range neighbors {
			if isDeclared[neighborRef] {
				continue
			}
			if grant > assigned[neighborRef] {
				assigned[neighborRef] = grant
				queue = append(queue, neighborRef)
			}
		}
	}

	return c.applyProfiles(ctx, valid, assigned, isDeclared)
}

// issuableNeighbors returns the neighbors of ref together with the level
// the object may issue to each, capped per edge. Neighbors of
// non-traversable types are skipped: shared objects such as networks and
// finding types must not leak clearance between unrelated subgraphs.
func (c *Calculator) issuableNeighbors(ctx context.Context, valid time.Time, ref model.Reference, level model.ScanLevel) (map[model.Reference]model.ScanLevel, error) {
	paths, err := path.PathsToNeighbors(c.reg, ref.ObjectType())
	if err != nil {
		return nil, err
	}

	out := make(map[model.Reference]model.ScanLevel)
	for _, p := range paths {
		segment := p.Segments[0]
		limit := path.MaxScanLevelIssuance(c.reg, segment)
		if limit == nil || *limit == model.ScanLevel0 {
			continue
		}
		grant := min(level, *limit)

		neighbors, err := c.repo.Walk(ctx, valid, p, []model.Reference{ref})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		for _, neighbor := range neighbors {
			descriptor, err := c.reg.Resolve(neighbor.ObjectType())
			if err != nil {
				return nil, err
			}
			if !descriptor.Traversable {
				continue
			}
			neighborRef := model.PrimaryKey(neighbor)
			if grant > out[neighborRef] {
				out[neighborRef] = grant
			}
		}
	}
	return out, nil
}

// applyProfiles writes inherited and empty profiles for every live
// object, leaving declared profiles alone and skipping writes that would
// not change anything.
func (c *Calculator) applyProfiles(ctx context.Context, valid time.Time, assigned map[model.Reference]model.ScanLevel, isDeclared map[model.Reference]bool) error {
	objects, err := c.repo.List(ctx, valid, c.reg.ConcreteTypes())
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	var updated int
	for _, obj := range objects {
		ref := model.PrimaryKey(obj)
		if isDeclared[ref] {
			continue
		}

		var next *model.ScanProfile
		if level, ok := assigned[ref]; ok && level > model.ScanLevel0 {
			next = model.NewInheritedScanProfile(ref, level)
		} else {
			next = model.NewEmptyScanProfile(ref)
		}

		current, err := c.repo.GetScanProfile(ctx, valid, ref)
		if err == nil && current.Type == next.Type && current.Level == next.Level {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return err
		}

		if err := c.repo.SaveScanProfile(ctx, valid, next); err != nil {
			return fmt.Errorf("save scan profile for %s: %w", ref, err)
		}
		updated++
	}

	c.log.DebugContext(ctx, "recalculated scan profiles",
		slog.Int("declared", len(isDeclared)),
		slog.Int("updated", updated))
	return nil
}
