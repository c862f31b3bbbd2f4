package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules/catalog"
)

func txtRecord(value string) *domain.DNSTXTRecord {
	return &domain.DNSTXTRecord{DNSRecord: domain.DNSRecord{
		Hostname: "Hostname|internet|example.com",
		Value:    value,
	}}
}

func runSPF(t *testing.T, value string) []model.Object {
	t.Helper()
	out, err := catalog.SPFDiscovery().Run(txtRecord(value), nil, map[string]string{})
	require.NoError(t, err)
	return out
}

func objectsOfType[T model.Object](out []model.Object) []T {
	var found []T
	for _, obj := range out {
		if typed, ok := obj.(T); ok {
			found = append(found, typed)
		}
	}
	return found
}

func TestSPFDiscoveryIgnoresPlainTXT(t *testing.T) {
	assert.Empty(t, runSPF(t, "google-site-verification=abcdef"))
}

func TestSPFDiscoveryParsesRecord(t *testing.T) {
	out := runSPF(t, "v=spf1 ip4:198.51.100.1 ip6:2001:db8::1 mx a:mail.example.com include:spf.mailhost.net ~all")

	records := objectsOfType[*domain.DNSSPFRecord](out)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, "DNSTXTRecord|internet|example.com", string(record.DNSTXTRecord)[:len("DNSTXTRecord|internet|example.com")])
	assert.Equal(t, "~", record.All)

	ips := objectsOfType[*domain.DNSSPFMechanismIP](out)
	require.Len(t, ips, 2)
	assert.Equal(t, "ip4", ips[0].Mechanism)
	assert.Equal(t, "IPAddressV4|internet|198.51.100.1", string(ips[0].IP))
	assert.Equal(t, "ip6", ips[1].Mechanism)
	assert.Equal(t, "IPAddressV6|internet|2001:db8::1", string(ips[1].IP))

	hosts := objectsOfType[*domain.DNSSPFMechanismHostname](out)
	require.Len(t, hosts, 3)
	assert.Equal(t, "mx", hosts[0].Mechanism)
	assert.Equal(t, "Hostname|internet|example.com", string(hosts[0].Hostname))
	assert.Equal(t, "a", hosts[1].Mechanism)
	assert.Equal(t, "Hostname|internet|mail.example.com", string(hosts[1].Hostname))
	assert.Equal(t, "include", hosts[2].Mechanism)
	assert.Equal(t, "Hostname|internet|spf.mailhost.net", string(hosts[2].Hostname))

	// The referenced hostnames are emitted too, but not the record's own.
	hostnames := objectsOfType[*domain.Hostname](out)
	names := make([]string, 0, len(hostnames))
	for _, h := range hostnames {
		names = append(names, h.Name)
	}
	assert.ElementsMatch(t, []string{"mail.example.com", "spf.mailhost.net"}, names)
}

func TestSPFDiscoveryQualifiers(t *testing.T) {
	out := runSPF(t, "v=spf1 -include:spam.example.net ?mx -all")

	hosts := objectsOfType[*domain.DNSSPFMechanismHostname](out)
	require.Len(t, hosts, 2)
	assert.Equal(t, domain.QualifierFail, hosts[0].Qualifier)
	assert.Equal(t, domain.QualifierNeutral, hosts[1].Qualifier)

	records := objectsOfType[*domain.DNSSPFRecord](out)
	require.Len(t, records, 1)
	assert.Equal(t, "-", records[0].All)
}

func TestSPFDiscoverySkipsServiceLabels(t *testing.T) {
	out := runSPF(t, "v=spf1 include:_spf.google.com -all")
	assert.Empty(t, objectsOfType[*domain.DNSSPFMechanismHostname](out))
	require.Len(t, objectsOfType[*domain.DNSSPFRecord](out), 1)
}

func TestSPFDiscoveryRedirect(t *testing.T) {
	out := runSPF(t, "v=spf1 redirect=spf.example.org")

	records := objectsOfType[*domain.DNSSPFRecord](out)
	require.Len(t, records, 1)
	assert.Equal(t, "spf.example.org", records[0].Redirect)

	hosts := objectsOfType[*domain.DNSSPFMechanismHostname](out)
	require.Len(t, hosts, 1)
	assert.Equal(t, "redirect", hosts[0].Mechanism)
}

func TestSPFDiscoveryInvalidRecord(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "bad ip", value: "v=spf1 ip4:not.an.ip.addr -all"},
		{name: "ip without address", value: "v=spf1 ip4 -all"},
		{name: "include without domain", value: "v=spf1 include -all"},
		{name: "unknown mechanism", value: "v=spf1 frobnicate -all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runSPF(t, tt.value)
			require.Len(t, out, 2)
			ft, ok := out[0].(*domain.KATFindingType)
			require.True(t, ok)
			assert.Equal(t, "KAT-INVALID-SPF", ft.ID)
			finding, ok := out[1].(*domain.Finding)
			require.True(t, ok)
			assert.Equal(t, "This SPF record is invalid", finding.Description)
		})
	}
}

func TestSPFDiscoveryMacroExpansion(t *testing.T) {
	out := runSPF(t, "v=spf1 exists:%(d) -all")

	hosts := objectsOfType[*domain.DNSSPFMechanismHostname](out)
	require.Len(t, hosts, 1)
	assert.Equal(t, "Hostname|internet|example.com", string(hosts[0].Hostname))
}
