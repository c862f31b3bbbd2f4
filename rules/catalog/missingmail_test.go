package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
	"github.com/openkat/octopoes/rules/catalog"
)

func hostnameObject(name string) *domain.Hostname {
	return &domain.Hostname{Network: "Network|internet", Name: name}
}

func runMailNibble(t *testing.T, def *rules.NibbleDefinition, args ...model.Object) []model.Object {
	t.Helper()
	out, err := def.Run(args, map[string]string{})
	require.NoError(t, err)
	return out
}

func TestMissingMailNibblesSignature(t *testing.T) {
	for _, def := range []*rules.NibbleDefinition{
		catalog.MissingDKIM(), catalog.MissingDMARC(), catalog.MissingSPF(),
	} {
		require.Len(t, def.Signature, 3)
		assert.Equal(t, "Hostname", def.TriggerType())
		assert.False(t, def.Signature[0].Optional)
		assert.True(t, def.Signature[1].Optional)
		assert.True(t, def.Signature[2].Optional)
		assert.Equal(t, "nxdomain", def.Signature[2].Name)
	}
}

func TestMissingMailRecordAbsent(t *testing.T) {
	tests := []struct {
		def  *rules.NibbleDefinition
		want string
	}{
		{def: catalog.MissingDKIM(), want: "KAT-NO-DKIM"},
		{def: catalog.MissingDMARC(), want: "KAT-NO-DMARC"},
		{def: catalog.MissingSPF(), want: "KAT-NO-SPF"},
	}
	for _, tt := range tests {
		t.Run(tt.def.ID, func(t *testing.T) {
			host := hostnameObject("example.com")
			out := runMailNibble(t, tt.def, host, nil, nil)
			require.Len(t, out, 2)
			ft, ok := out[0].(*domain.KATFindingType)
			require.True(t, ok)
			assert.Equal(t, tt.want, ft.ID)
			finding, ok := out[1].(*domain.Finding)
			require.True(t, ok)
			assert.Equal(t, model.PrimaryKey(host), finding.OOI)
		})
	}
}

func TestMissingMailSkipsSubdomains(t *testing.T) {
	for _, name := range []string{"www.example.com", "mail.sub.example.org"} {
		out := runMailNibble(t, catalog.MissingDMARC(), hostnameObject(name), nil, nil)
		assert.Empty(t, out, name)
	}
}

func TestMissingMailSkipsBareTLD(t *testing.T) {
	out := runMailNibble(t, catalog.MissingDMARC(), hostnameObject("com"), nil, nil)
	assert.Empty(t, out)
}

func TestMissingMailRecordPresent(t *testing.T) {
	host := hostnameObject("example.com")
	dmarc := &domain.DMARCTXTRecord{
		Hostname: model.PrimaryKey(host),
		Value:    "v=DMARC1; p=reject;",
	}
	out := runMailNibble(t, catalog.MissingDMARC(), host, dmarc, nil)
	assert.Empty(t, out)
}

func TestMissingMailNXDOMAIN(t *testing.T) {
	host := hostnameObject("example.com")
	nx := &domain.NXDOMAIN{Hostname: model.PrimaryKey(host)}
	out := runMailNibble(t, catalog.MissingDKIM(), host, nil, nx)
	assert.Empty(t, out)
}

func TestMissingMailRederivesSameKeys(t *testing.T) {
	host := hostnameObject("example.com")
	first := runMailNibble(t, catalog.MissingDMARC(), host, nil, nil)
	second := runMailNibble(t, catalog.MissingDMARC(), host, nil, nil)
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, model.PrimaryKey(first[i]), model.PrimaryKey(second[i]))
	}
}
