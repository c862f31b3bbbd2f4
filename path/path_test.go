package path_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/path"
)

func reg() *model.Registry { return domain.Types() }

func TestParseOutgoing(t *testing.T) {
	p, err := path.Parse(reg(), "ResolvedHostname.hostname")
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)

	seg := p.Segments[0]
	assert.Equal(t, "ResolvedHostname", seg.SourceType)
	assert.Equal(t, path.Outgoing, seg.Direction)
	assert.Equal(t, "hostname", seg.Property)
	assert.Equal(t, "Hostname", seg.TargetType)
}

func TestParseIncoming(t *testing.T) {
	p, err := path.Parse(reg(), "Hostname.<hostname [is ResolvedHostname]")
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)

	seg := p.Segments[0]
	assert.Equal(t, path.Incoming, seg.Direction)
	assert.Equal(t, "hostname", seg.Property)
	assert.Equal(t, "ResolvedHostname", seg.TargetType)
}

func TestParseDeeper(t *testing.T) {
	p, err := path.Parse(reg(), "DNSCNAMERecord.target_hostname.<hostname[is ResolvedHostname].address")
	require.NoError(t, err)
	require.Len(t, p.Segments, 3)

	assert.Equal(t, "Hostname", p.Segments[0].TargetType)
	assert.Equal(t, "ResolvedHostname", p.Segments[1].TargetType)
	assert.Equal(t, "IPAddress", p.Segments[2].TargetType)
}

func TestParseAbstractSource(t *testing.T) {
	p, err := path.Parse(reg(), "IPAddress.<address [is IPPort]")
	require.NoError(t, err)
	assert.Equal(t, "IPAddress", p.Segments[0].SourceType)
	assert.Equal(t, "IPPort", p.Segments[0].TargetType)
}

func TestParsePlainAttributeTerminates(t *testing.T) {
	// "name" is a scalar field, not a relation: the segment has no target
	// and any trailing steps are dropped.
	p, err := path.Parse(reg(), "Hostname.name.anything")
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	assert.Empty(t, p.Segments[0].TargetType)
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"Hostname",
		"Nonexistent.hostname",
		"Hostname.<hostname",
		"Hostname.<hostname[is Nonexistent]",
		"Hostname.",
	}
	for _, input := range cases {
		_, err := path.Parse(reg(), input)
		assert.ErrorIs(t, err, path.ErrInvalidPath, input)
	}
}

func TestReverse(t *testing.T) {
	p := path.MustParse(reg(), "IPAddress.<address [is IPPort]")
	rev, err := p.Reverse()
	require.NoError(t, err)

	seg := rev.Segments[0]
	assert.Equal(t, "IPPort", seg.SourceType)
	assert.Equal(t, path.Outgoing, seg.Direction)
	assert.Equal(t, "address", seg.Property)
	assert.Equal(t, "IPAddress", seg.TargetType)
}

func TestReverseDeep(t *testing.T) {
	p := path.MustParse(reg(), "DNSCNAMERecord.target_hostname.<hostname[is ResolvedHostname].address")
	rev, err := p.Reverse()
	require.NoError(t, err)

	assert.Equal(t,
		"IPAddress.<address[is ResolvedHostname].hostname.<target_hostname[is DNSCNAMERecord]",
		rev.String())
}

func TestDoubleReverseIsIdentity(t *testing.T) {
	p := path.MustParse(reg(), "DNSCNAMERecord.target_hostname.<hostname[is ResolvedHostname].address")
	rev, err := p.Reverse()
	require.NoError(t, err)
	back, err := rev.Reverse()
	require.NoError(t, err)
	assert.Equal(t, p.String(), back.String())
}

func TestReverseFailsOnAttributeSegment(t *testing.T) {
	p := path.MustParse(reg(), "Hostname.name")
	_, err := p.Reverse()
	assert.ErrorIs(t, err, path.ErrInvalidPath)
}

func TestPathsToNeighbors(t *testing.T) {
	paths, err := path.PathsToNeighbors(reg(), "IPAddressV4")
	require.NoError(t, err)

	var rendered []string
	for _, p := range paths {
		rendered = append(rendered, p.String())
	}

	// Outgoing to the network, incoming from everything that can point at
	// an IPv4 address, including union-typed relations like Finding.ooi.
	assert.Contains(t, rendered, "IPAddressV4.network")
	assert.Contains(t, rendered, "IPAddressV4.<address[is IPPort]")
	assert.Contains(t, rendered, "IPAddressV4.<address[is ResolvedHostname]")
	assert.Contains(t, rendered, "IPAddressV4.<address[is DNSARecord]")
	assert.Contains(t, rendered, "IPAddressV4.<ooi[is Finding]")
	assert.NotContains(t, rendered, "IPAddressV4.<address[is DNSAAAARecord]")

	// Deterministic order.
	again, err := path.PathsToNeighbors(reg(), "IPAddressV4")
	require.NoError(t, err)
	assert.Equal(t, paths, again)
}

func TestMaxScanLevelInheritance(t *testing.T) {
	r := reg()

	// Outgoing: IPPort inherits up to 4 from its address.
	outgoing := path.MustParse(r, "IPPort.address").Segments[0]
	require.NotNil(t, path.MaxScanLevelInheritance(r, outgoing))
	assert.Equal(t, model.ScanLevel4, *path.MaxScanLevelInheritance(r, outgoing))

	// Incoming: an address inherits nothing from its ports, since IPPort
	// issues at most 0 over that edge.
	incoming := path.MustParse(r, "IPAddress.<address [is IPPort]").Segments[0]
	require.NotNil(t, path.MaxScanLevelInheritance(r, incoming))
	assert.Equal(t, model.ScanLevel0, *path.MaxScanLevelInheritance(r, incoming))

	// An edge with no declared caps propagates nothing.
	network := path.MustParse(r, "Hostname.network").Segments[0]
	assert.Nil(t, path.MaxScanLevelInheritance(r, network))
}

func TestMaxScanLevelIssuance(t *testing.T) {
	r := reg()

	outgoing := path.MustParse(r, "IPPort.address").Segments[0]
	require.NotNil(t, path.MaxScanLevelIssuance(r, outgoing))
	assert.Equal(t, model.ScanLevel0, *path.MaxScanLevelIssuance(r, outgoing))

	incoming := path.MustParse(r, "IPAddress.<address [is IPPort]").Segments[0]
	require.NotNil(t, path.MaxScanLevelIssuance(r, incoming))
	assert.Equal(t, model.ScanLevel4, *path.MaxScanLevelIssuance(r, incoming))
}

func TestCompileExpandsAbstractTypes(t *testing.T) {
	r := reg()

	p := path.MustParse(r, "IPPort.address")
	clauses, err := p.Compile(r)
	require.NoError(t, err)
	require.Len(t, clauses, 1)

	assert.Equal(t, []string{"IPPort"}, clauses[0].SourceTypes)
	assert.Equal(t, []string{"IPAddressV4", "IPAddressV6"}, clauses[0].TargetTypes)

	_, err = path.MustParse(r, "Hostname.name").Compile(r)
	assert.ErrorIs(t, err, path.ErrInvalidPath)
}
