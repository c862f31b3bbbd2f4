package clearance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/clearance"
	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/storage"
)

var (
	t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

type fixture struct {
	store *storage.MemStore
	calc  *clearance.Calculator
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemStore(domain.Types())
	return &fixture{
		store: store,
		calc:  clearance.NewCalculator(store, domain.Types(), nil),
		ctx:   context.Background(),
	}
}

func (f *fixture) save(t *testing.T, objs ...model.Object) {
	t.Helper()
	origin := storage.Origin{Type: storage.OriginObservation, Method: "test", Source: model.PrimaryKey(objs[0])}
	require.NoError(t, f.store.SaveObservation(f.ctx, t0, origin, objs))
}

func (f *fixture) declare(t *testing.T, ref model.Reference, level model.ScanLevel) {
	t.Helper()
	require.NoError(t, f.store.SaveScanProfile(f.ctx, t0, model.NewDeclaredScanProfile(ref, level)))
}

func (f *fixture) levelOf(t *testing.T, ref model.Reference) (model.ScanProfileType, model.ScanLevel) {
	t.Helper()
	profile, err := f.store.GetScanProfile(f.ctx, t1, ref)
	require.NoError(t, err)
	return profile.Type, profile.Level
}

func TestInheritanceOverResolvedHostname(t *testing.T) {
	f := newFixture(t)

	network := &domain.Network{Name: "internet"}
	host := &domain.Hostname{Network: model.PrimaryKey(network), Name: "example.com"}
	addr := &domain.IPAddressV4{IPAddress: domain.IPAddress{Network: model.PrimaryKey(network), Address: "192.0.2.7"}}
	resolved := &domain.ResolvedHostname{Hostname: model.PrimaryKey(host), Address: model.PrimaryKey(addr)}
	f.save(t, network, host, addr, resolved)

	f.declare(t, model.PrimaryKey(host), model.ScanLevel4)
	require.NoError(t, f.calc.Recalculate(f.ctx, t0))

	// Hostname issues 4 to the resolution, which issues 4 on to the
	// address.
	typ, level := f.levelOf(t, model.PrimaryKey(resolved))
	assert.Equal(t, model.ScanProfileInherited, typ)
	assert.Equal(t, model.ScanLevel4, level)

	typ, level = f.levelOf(t, model.PrimaryKey(addr))
	assert.Equal(t, model.ScanProfileInherited, typ)
	assert.Equal(t, model.ScanLevel4, level)

	// The shared network is not traversable and inherits nothing.
	typ, _ = f.levelOf(t, model.PrimaryKey(network))
	assert.Equal(t, model.ScanProfileEmpty, typ)
}

func TestEdgeCapsBoundInheritance(t *testing.T) {
	f := newFixture(t)

	network := &domain.Network{Name: "internet"}
	host := &domain.Hostname{Network: model.PrimaryKey(network), Name: "example.com"}
	ns := &domain.Hostname{Network: model.PrimaryKey(network), Name: "ns1.example.org"}
	record := &domain.DNSNSRecord{
		DNSRecord:          domain.DNSRecord{Hostname: model.PrimaryKey(host), Value: "ns1.example.org."},
		NameServerHostname: model.PrimaryKey(ns),
	}
	f.save(t, network, host, ns, record)

	f.declare(t, model.PrimaryKey(host), model.ScanLevel4)
	require.NoError(t, f.calc.Recalculate(f.ctx, t0))

	// The record inherits at most 2 from its hostname, and issues at
	// most 1 on to the name server.
	_, level := f.levelOf(t, model.PrimaryKey(record))
	assert.Equal(t, model.ScanLevel2, level)

	_, level = f.levelOf(t, model.PrimaryKey(ns))
	assert.Equal(t, model.ScanLevel1, level)
}

func TestDeclaredProfilesAreAuthoritative(t *testing.T) {
	f := newFixture(t)

	network := &domain.Network{Name: "internet"}
	host := &domain.Hostname{Network: model.PrimaryKey(network), Name: "example.com"}
	addr := &domain.IPAddressV4{IPAddress: domain.IPAddress{Network: model.PrimaryKey(network), Address: "192.0.2.7"}}
	resolved := &domain.ResolvedHostname{Hostname: model.PrimaryKey(host), Address: model.PrimaryKey(addr)}
	f.save(t, network, host, addr, resolved)

	f.declare(t, model.PrimaryKey(host), model.ScanLevel4)
	// The address is pinned low by hand; inheritance must not raise it.
	f.declare(t, model.PrimaryKey(addr), model.ScanLevel1)
	require.NoError(t, f.calc.Recalculate(f.ctx, t0))

	typ, level := f.levelOf(t, model.PrimaryKey(addr))
	assert.Equal(t, model.ScanProfileDeclared, typ)
	assert.Equal(t, model.ScanLevel1, level)
}

func TestCycleWithoutDeclaredStaysEmpty(t *testing.T) {
	f := newFixture(t)

	network := &domain.Network{Name: "internet"}
	a := &domain.Hostname{Network: model.PrimaryKey(network), Name: "a.example.com"}
	b := &domain.Hostname{Network: model.PrimaryKey(network), Name: "b.example.com"}
	// Two CNAME records pointing the hostnames at each other.
	ab := &domain.DNSCNAMERecord{
		DNSRecord:      domain.DNSRecord{Hostname: model.PrimaryKey(a), Value: "b.example.com."},
		TargetHostname: model.PrimaryKey(b),
	}
	ba := &domain.DNSCNAMERecord{
		DNSRecord:      domain.DNSRecord{Hostname: model.PrimaryKey(b), Value: "a.example.com."},
		TargetHostname: model.PrimaryKey(a),
	}
	f.save(t, network, a, b, ab, ba)

	require.NoError(t, f.calc.Recalculate(f.ctx, t0))

	for _, obj := range []model.Object{a, b, ab, ba} {
		typ, level := f.levelOf(t, model.PrimaryKey(obj))
		assert.Equal(t, model.ScanProfileEmpty, typ)
		assert.Equal(t, model.ScanLevel0, level)
	}
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)

	network := &domain.Network{Name: "internet"}
	host := &domain.Hostname{Network: model.PrimaryKey(network), Name: "example.com"}
	f.save(t, network, host)
	f.declare(t, model.PrimaryKey(host), model.ScanLevel2)

	require.NoError(t, f.calc.Recalculate(f.ctx, t0))
	first, err := f.store.ListScanProfiles(f.ctx, t1, "")
	require.NoError(t, err)

	require.NoError(t, f.calc.Recalculate(f.ctx, t0))
	second, err := f.store.ListScanProfiles(f.ctx, t1, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
