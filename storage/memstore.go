package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/path"
)

// version is one valid window of an object. An open window has a nil
// validTo.
type version[T any] struct {
	value     T
	validFrom time.Time
	validTo   *time.Time
}

func (v version[T]) covers(t time.Time) bool {
	if t.Before(v.validFrom) {
		return false
	}
	return v.validTo == nil || t.Before(*v.validTo)
}

// MemStore is the in-memory Repository. It implements the same bitemporal
// upsert semantics as the persistent stores and backs unit tests and the
// clearance and rules test suites; it is not meant to hold a production
// graph.
type MemStore struct {
	reg *model.Registry

	mu       sync.RWMutex
	objects  map[model.Reference][]version[model.Object]
	origins  map[string][]version[Origin]
	profiles map[model.Reference][]version[*model.ScanProfile]
}

var _ Repository = (*MemStore)(nil)

// NewMemStore returns an empty in-memory repository decoding against the
// given registry.
func NewMemStore(reg *model.Registry) *MemStore {
	return &MemStore{
		reg:      reg,
		objects:  make(map[model.Reference][]version[model.Object]),
		origins:  make(map[string][]version[Origin]),
		profiles: make(map[model.Reference][]version[*model.ScanProfile]),
	}
}

// upsert closes the current open version at valid and opens a new one.
func upsert[T any](versions []version[T], valid time.Time, value T) []version[T] {
	if n := len(versions); n > 0 && versions[n-1].validTo == nil {
		end := valid
		versions[n-1].validTo = &end
	}
	return append(versions, version[T]{value: value, validFrom: valid})
}

func at[T any](versions []version[T], valid time.Time) (T, bool) {
	// Later versions win when windows touch.
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].covers(valid) {
			return versions[i].value, true
		}
	}
	var zero T
	return zero, false
}

func (s *MemStore) Get(ctx context.Context, valid time.Time, ref model.Reference) (model.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(valid, ref)
}

func (s *MemStore) getLocked(valid time.Time, ref model.Reference) (model.Object, error) {
	obj, ok := at(s.objects[ref], valid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	if profile, ok := at(s.profiles[ref], valid); ok {
		obj.SetScanProfile(profile)
	}
	return obj, nil
}

func (s *MemStore) List(ctx context.Context, valid time.Time, types []string) ([]model.Object, error) {
	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Object
	for ref := range s.objects {
		if _, ok := wanted[ref.ObjectType()]; !ok {
			continue
		}
		if obj, err := s.getLocked(valid, ref); err == nil {
			out = append(out, obj)
		}
	}
	sortObjects(out)
	return out, nil
}

func (s *MemStore) Walk(ctx context.Context, valid time.Time, p path.Path, anchors []model.Reference) ([]model.Object, error) {
	clauses, err := p.Compile(s.reg)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	frontier := make(map[model.Reference]struct{}, len(anchors))
	for _, ref := range anchors {
		frontier[ref] = struct{}{}
	}

	for _, clause := range clauses {
		next := make(map[model.Reference]struct{})
		switch clause.Direction {
		case path.Outgoing:
			targets := typeSet(clause.TargetTypes)
			for ref := range frontier {
				obj, err := s.getLocked(valid, ref)
				if err != nil {
					continue
				}
				target, ok := obj.Relations()[clause.Property]
				if !ok || target.IsZero() {
					continue
				}
				if _, ok := targets[target.ObjectType()]; ok {
					next[target] = struct{}{}
				}
			}
		case path.Incoming:
			// The declaring types are the clause targets; scan their
			// objects for relations pointing into the frontier.
			declaring := typeSet(clause.TargetTypes)
			for ref := range s.objects {
				if _, ok := declaring[ref.ObjectType()]; !ok {
					continue
				}
				obj, err := s.getLocked(valid, ref)
				if err != nil {
					continue
				}
				target, ok := obj.Relations()[clause.Property]
				if !ok {
					continue
				}
				if _, ok := frontier[target]; ok {
					next[ref] = struct{}{}
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	out := make([]model.Object, 0, len(frontier))
	for ref := range frontier {
		if obj, err := s.getLocked(valid, ref); err == nil {
			out = append(out, obj)
		}
	}
	sortObjects(out)
	return out, nil
}

func (s *MemStore) SaveDeclaration(ctx context.Context, valid time.Time, obj model.Object) error {
	origin := Origin{
		Type:    OriginDeclaration,
		Method:  "manual",
		Source:  model.PrimaryKey(obj),
		Results: []model.Reference{model.PrimaryKey(obj)},
	}
	return s.SaveObservation(ctx, valid, origin, []model.Object{obj})
}

func (s *MemStore) SaveObservation(ctx context.Context, valid time.Time, origin Origin, objs []model.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, hadPrevious := at(s.origins[origin.ID()], valid)

	origin.Results = origin.Results[:0:0]
	kept := make(map[model.Reference]struct{}, len(objs))
	for _, obj := range objs {
		ref := model.PrimaryKey(obj)
		s.objects[ref] = upsert(s.objects[ref], valid, obj)
		origin.Results = append(origin.Results, ref)
		kept[ref] = struct{}{}
	}
	s.origins[origin.ID()] = upsert(s.origins[origin.ID()], valid, origin)

	// An observation replaces the origin's whole result set: whatever
	// dropped out is retracted, unless some other origin still yields it.
	if hadPrevious {
		for _, ref := range previous.Results {
			if _, ok := kept[ref]; ok {
				continue
			}
			if s.referencedLocked(ref, valid) {
				continue
			}
			if versions := s.objects[ref]; len(versions) > 0 && versions[len(versions)-1].validTo == nil {
				end := valid
				versions[len(versions)-1].validTo = &end
			}
		}
	}
	return nil
}

// referencedLocked reports whether any origin live at valid still lists
// the reference in its results.
func (s *MemStore) referencedLocked(ref model.Reference, valid time.Time) bool {
	for _, versions := range s.origins {
		origin, ok := at(versions, valid)
		if !ok {
			continue
		}
		for _, result := range origin.Results {
			if result == ref {
				return true
			}
		}
	}
	return false
}

func (s *MemStore) SaveAffirmation(ctx context.Context, valid time.Time, obj model.Object) error {
	ref := model.PrimaryKey(obj)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := at(s.objects[ref], valid); !ok {
		return fmt.Errorf("%w: cannot affirm %s", ErrObjectNotFound, ref)
	}
	s.objects[ref] = upsert(s.objects[ref], valid, obj)

	origin := Origin{Type: OriginAffirmation, Method: "affirmation", Source: ref, Results: []model.Reference{ref}}
	s.origins[origin.ID()] = upsert(s.origins[origin.ID()], valid, origin)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, valid time.Time, ref model.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.objects[ref]
	if n := len(versions); n > 0 && versions[n-1].validTo == nil {
		end := valid
		versions[n-1].validTo = &end
		return nil
	}
	return fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
}

func (s *MemStore) Origins(ctx context.Context, valid time.Time, result model.Reference) ([]Origin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Origin
	for _, versions := range s.origins {
		origin, ok := at(versions, valid)
		if !ok {
			continue
		}
		for _, ref := range origin.Results {
			if ref == result {
				out = append(out, origin)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (s *MemStore) GetScanProfile(ctx context.Context, valid time.Time, ref model.Reference) (*model.ScanProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := at(s.profiles[ref], valid)
	if !ok {
		return nil, fmt.Errorf("%w: no scan profile for %s", ErrObjectNotFound, ref)
	}
	return profile, nil
}

func (s *MemStore) SaveScanProfile(ctx context.Context, valid time.Time, profile *model.ScanProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Reference] = upsert(s.profiles[profile.Reference], valid, profile)
	return nil
}

func (s *MemStore) ListScanProfiles(ctx context.Context, valid time.Time, profileType model.ScanProfileType) ([]*model.ScanProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.ScanProfile
	for _, versions := range s.profiles {
		profile, ok := at(versions, valid)
		if !ok {
			continue
		}
		if profileType == "" || profile.Type == profileType {
			out = append(out, profile)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func typeSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func sortObjects(objs []model.Object) {
	sort.Slice(objs, func(i, j int) bool {
		return model.PrimaryKey(objs[i]) < model.PrimaryKey(objs[j])
	})
}
