// Package rediscache fronts a storage.Repository with a Redis read-through
// cache. Point reads by reference are the hot path of the derivation
// engine, which re-reads the same objects every round; everything else is
// passed through. Cached entries are keyed by reference and valid time,
// and entries for a reference are dropped on every write to it.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/path"
	"github.com/openkat/octopoes/storage"
)

// DefaultTTL bounds the lifetime of cached entries, so a flushed or
// restarted cache converges even when an invalidation was lost.
const DefaultTTL = 5 * time.Minute

// Cache is a Repository decorator. Cache misses and Redis errors fall
// through to the wrapped repository: a broken cache degrades to slow, not
// to wrong.
type Cache struct {
	inner storage.Repository
	rdb   *redis.Client
	reg   *model.Registry
	ttl   time.Duration

	// An observation retracts whatever dropped out of the origin's
	// previous result set, so those entries need invalidating too. The
	// map is per-instance best effort; the TTL covers the rest.
	mu            sync.Mutex
	originResults map[string][]model.Reference
}

var _ storage.Repository = (*Cache)(nil)

// New wraps a repository with a Redis cache.
func New(inner storage.Repository, rdb *redis.Client, reg *model.Registry, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		inner:         inner,
		rdb:           rdb,
		reg:           reg,
		ttl:           ttl,
		originResults: make(map[string][]model.Reference),
	}
}

type cachedObject struct {
	ObjectType string          `json:"object_type"`
	Document   json.RawMessage `json:"document"`
}

func objectKey(ref model.Reference, valid time.Time) string {
	return fmt.Sprintf("ooi:%s@%d", ref, valid.UnixNano())
}

// refPattern matches every cached valid time of a reference.
func refPattern(ref model.Reference) string {
	return fmt.Sprintf("ooi:%s@*", ref)
}

func (c *Cache) Get(ctx context.Context, valid time.Time, ref model.Reference) (model.Object, error) {
	key := objectKey(ref, valid)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		if obj, err := c.decode(raw); err == nil {
			return obj, nil
		}
	}

	obj, err := c.inner.Get(ctx, valid, ref)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, obj)
	return obj, nil
}

func (c *Cache) put(ctx context.Context, key string, obj model.Object) {
	document, err := json.Marshal(obj)
	if err != nil {
		return
	}
	entry, err := json.Marshal(cachedObject{ObjectType: obj.ObjectType(), Document: document})
	if err != nil {
		return
	}
	// Best effort: a failed SET only costs the next read a repository hit.
	c.rdb.Set(ctx, key, entry, c.ttl)
}

func (c *Cache) decode(raw []byte) (model.Object, error) {
	var entry cachedObject
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	obj, err := c.reg.New(entry.ObjectType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entry.Document, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// invalidate drops all cached valid times of the given references.
func (c *Cache) invalidate(ctx context.Context, refs ...model.Reference) {
	for _, ref := range refs {
		iter := c.rdb.Scan(ctx, 0, refPattern(ref), 0).Iterator()
		for iter.Next(ctx) {
			c.rdb.Del(ctx, iter.Val())
		}
	}
}

func (c *Cache) List(ctx context.Context, valid time.Time, types []string) ([]model.Object, error) {
	return c.inner.List(ctx, valid, types)
}

func (c *Cache) Walk(ctx context.Context, valid time.Time, p path.Path, anchors []model.Reference) ([]model.Object, error) {
	return c.inner.Walk(ctx, valid, p, anchors)
}

func (c *Cache) SaveDeclaration(ctx context.Context, valid time.Time, obj model.Object) error {
	if err := c.inner.SaveDeclaration(ctx, valid, obj); err != nil {
		return err
	}
	c.invalidate(ctx, model.PrimaryKey(obj))
	return nil
}

func (c *Cache) SaveObservation(ctx context.Context, valid time.Time, origin storage.Origin, objs []model.Object) error {
	if err := c.inner.SaveObservation(ctx, valid, origin, objs); err != nil {
		return err
	}
	refs := make([]model.Reference, 0, len(objs))
	for _, obj := range objs {
		refs = append(refs, model.PrimaryKey(obj))
	}

	c.mu.Lock()
	previous := c.originResults[origin.ID()]
	c.originResults[origin.ID()] = refs
	c.mu.Unlock()

	c.invalidate(ctx, append(previous, refs...)...)
	return nil
}

func (c *Cache) SaveAffirmation(ctx context.Context, valid time.Time, obj model.Object) error {
	if err := c.inner.SaveAffirmation(ctx, valid, obj); err != nil {
		return err
	}
	c.invalidate(ctx, model.PrimaryKey(obj))
	return nil
}

func (c *Cache) Delete(ctx context.Context, valid time.Time, ref model.Reference) error {
	if err := c.inner.Delete(ctx, valid, ref); err != nil {
		return err
	}
	c.invalidate(ctx, ref)
	return nil
}

func (c *Cache) Origins(ctx context.Context, valid time.Time, result model.Reference) ([]storage.Origin, error) {
	return c.inner.Origins(ctx, valid, result)
}

func (c *Cache) GetScanProfile(ctx context.Context, valid time.Time, ref model.Reference) (*model.ScanProfile, error) {
	return c.inner.GetScanProfile(ctx, valid, ref)
}

func (c *Cache) SaveScanProfile(ctx context.Context, valid time.Time, profile *model.ScanProfile) error {
	if err := c.inner.SaveScanProfile(ctx, valid, profile); err != nil {
		return err
	}
	// Profiles ride along on Get results, so a profile write invalidates
	// the object entries too.
	c.invalidate(ctx, profile.Reference)
	return nil
}

func (c *Cache) ListScanProfiles(ctx context.Context, valid time.Time, profileType model.ScanProfileType) ([]*model.ScanProfile, error) {
	return c.inner.ListScanProfiles(ctx, valid, profileType)
}
