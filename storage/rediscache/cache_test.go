package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/storage"
	"github.com/openkat/octopoes/storage/rediscache"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newCache(t *testing.T) (*rediscache.Cache, *storage.MemStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	inner := storage.NewMemStore(domain.Types())
	return rediscache.New(inner, rdb, domain.Types(), time.Minute), inner, mr
}

func TestCacheReadThrough(t *testing.T) {
	cache, inner, mr := newCache(t)
	ctx := context.Background()

	host := &domain.Hostname{Network: model.Reference("Network|internet"), Name: "example.com"}
	require.NoError(t, inner.SaveDeclaration(ctx, t0, host))
	ref := model.PrimaryKey(host)
	valid := t0.Add(time.Hour)

	// First read misses and populates the cache.
	obj, err := cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, model.PrimaryKey(obj))
	assert.NotEmpty(t, mr.Keys())

	// Second read is served from the cache even when the inner store no
	// longer has the object.
	require.NoError(t, inner.Delete(ctx, t0.Add(time.Minute), ref))
	obj, err = cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	assert.Equal(t, "example.com", obj.(*domain.Hostname).Name)
}

func TestCacheMissPropagatesNotFound(t *testing.T) {
	cache, _, _ := newCache(t)

	_, err := cache.Get(context.Background(), t0, model.Reference("Hostname|internet|nope.example.com"))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestCacheInvalidationOnWrite(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	host := &domain.Hostname{Network: model.Reference("Network|internet"), Name: "example.com"}
	require.NoError(t, cache.SaveDeclaration(ctx, t0, host))
	ref := model.PrimaryKey(host)
	valid := t0.Add(time.Hour)

	_, err := cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	// Updating the object drops its cached entries.
	updated := &domain.Hostname{
		Network: model.Reference("Network|internet"),
		Name:    "example.com",
		DNSZone: model.Reference("DNSZone|internet|example.com"),
	}
	require.NoError(t, cache.SaveDeclaration(ctx, t0.Add(30*time.Minute), updated))
	assert.Empty(t, mr.Keys())

	obj, err := cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	assert.False(t, obj.(*domain.Hostname).DNSZone.IsZero())
}

func TestCacheScanProfileWriteInvalidates(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	host := &domain.Hostname{Network: model.Reference("Network|internet"), Name: "example.com"}
	require.NoError(t, cache.SaveDeclaration(ctx, t0, host))
	ref := model.PrimaryKey(host)
	valid := t0.Add(time.Hour)

	_, err := cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	require.NoError(t, cache.SaveScanProfile(ctx, t0.Add(30*time.Minute),
		model.NewDeclaredScanProfile(ref, model.ScanLevel2)))
	assert.Empty(t, mr.Keys())

	obj, err := cache.Get(ctx, valid, ref)
	require.NoError(t, err)
	require.NotNil(t, obj.ScanProfile())
	assert.Equal(t, model.ScanLevel2, obj.ScanProfile().Level)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, inner, mr := newCache(t)
	ctx := context.Background()

	host := &domain.Hostname{Network: model.Reference("Network|internet"), Name: "example.com"}
	require.NoError(t, inner.SaveDeclaration(ctx, t0, host))

	_, err := cache.Get(ctx, t0.Add(time.Hour), model.PrimaryKey(host))
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())
}

func TestCacheObservationInvalidatesRetractedResults(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	network := &domain.Network{Name: "internet"}
	host := &domain.Hostname{Network: model.PrimaryKey(network), Name: "example.com"}
	origin := storage.Origin{
		Type:   storage.OriginObservation,
		Method: "normalizer/dns_records",
		Source: model.PrimaryKey(host),
	}
	require.NoError(t, cache.SaveObservation(ctx, t0, origin, []model.Object{network, host}))

	hostRef := model.PrimaryKey(host)
	valid := t0.Add(time.Hour)
	_, err := cache.Get(ctx, valid, hostRef)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	// The next run of the same method no longer yields the hostname. Its
	// retraction must reach the cache, not just the objects still yielded.
	t1 := t0.Add(30 * time.Minute)
	require.NoError(t, cache.SaveObservation(ctx, t1, origin, []model.Object{network}))

	_, err = cache.Get(ctx, valid, hostRef)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
