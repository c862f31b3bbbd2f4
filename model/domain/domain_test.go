package domain_test

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
)

func internet() model.Reference {
	return model.PrimaryKey(&domain.Network{Name: "internet"})
}

func hostname(name string) *domain.Hostname {
	return &domain.Hostname{Network: internet(), Name: name}
}

func TestNaturalKeys(t *testing.T) {
	host := hostname("example.com")
	assert.Equal(t, model.Reference("Hostname|internet|example.com"), model.PrimaryKey(host))

	addr := &domain.IPAddressV4{IPAddress: domain.IPAddress{Network: internet(), Address: "192.0.2.7"}}
	assert.Equal(t, model.Reference("IPAddressV4|internet|192.0.2.7"), model.PrimaryKey(addr))

	port := &domain.IPPort{Address: model.PrimaryKey(addr), Protocol: domain.ProtocolTCP, Port: 443}
	assert.Equal(t, model.Reference("IPPort|internet|192.0.2.7|tcp|443"), model.PrimaryKey(port))
}

func TestTXTRecordKeyMasksValue(t *testing.T) {
	host := hostname("example.com")
	txt := &domain.DNSTXTRecord{DNSRecord: domain.DNSRecord{
		Hostname: model.PrimaryKey(host),
		Value:    "v=spf1 -all",
	}}

	sum := sha1.Sum([]byte("v=spf1 -all"))
	want := model.MakeReference("DNSTXTRecord", "internet|example.com|"+hex.EncodeToString(sum[:]))
	assert.Equal(t, want, model.PrimaryKey(txt))

	// Same value, same key: re-derivation converges on one object.
	again := &domain.DNSTXTRecord{DNSRecord: domain.DNSRecord{
		Hostname: model.PrimaryKey(host),
		Value:    "v=spf1 -all",
	}}
	assert.True(t, model.Equal(txt, again))
}

func TestFindingKeyCarriesFullTargetReference(t *testing.T) {
	ft := &domain.KATFindingType{FindingType: domain.FindingType{ID: "KAT-NO-SPF"}}
	target := model.PrimaryKey(hostname("example.com"))

	finding := &domain.Finding{FindingType: model.PrimaryKey(ft), OOI: target}
	assert.Equal(t,
		model.Reference("Finding|Hostname|internet|example.com|KAT-NO-SPF"),
		model.PrimaryKey(finding))
}

func TestEqualityIgnoresNonKeyFields(t *testing.T) {
	a := hostname("example.com")
	b := hostname("example.com")
	b.SetScanProfile(model.NewDeclaredScanProfile(model.PrimaryKey(b), model.ScanLevel2))

	assert.True(t, model.Equal(a, b))
	assert.False(t, model.Equal(a, hostname("other.example.com")))
}

func TestRegistryHasCtorForEveryConcreteType(t *testing.T) {
	reg := domain.NewRegistry()
	for _, name := range reg.ConcreteTypes() {
		obj, err := reg.New(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, obj.ObjectType(), name)
	}
}

func TestRegistryRejectsAbstractCtor(t *testing.T) {
	reg := domain.Types()
	_, err := reg.New("DNSRecord")
	assert.Error(t, err)
	_, err = reg.New("FindingType")
	assert.Error(t, err)
}

func TestDomainHierarchy(t *testing.T) {
	reg := domain.Types()

	subs, err := reg.SubtypesOf("DNSRecord")
	require.NoError(t, err)
	assert.Contains(t, subs, "DNSTXTRecord")
	assert.Contains(t, subs, "DNSARecord")

	concrete, err := reg.ToConcrete([]string{"IPAddress"})
	require.NoError(t, err)
	assert.Equal(t, []string{"IPAddressV4", "IPAddressV6"}, concrete)

	assert.True(t, reg.IsSubtype("KATFindingType", "FindingType"))
	assert.False(t, reg.IsConcrete("WebURL"))
}

func TestHumanReadable(t *testing.T) {
	reg := domain.Types()

	tests := []struct {
		ref  model.Reference
		want string
	}{
		{model.Reference("Network|internet"), "internet"},
		{model.Reference("Hostname|internet|example.com"), "example.com"},
		{model.Reference("IPAddressV4|internet|192.0.2.7"), "192.0.2.7"},
		{model.Reference("IPPort|internet|192.0.2.7|tcp|443"), "192.0.2.7:443/tcp"},
		{model.Reference("DNSARecord|internet|example.com|192.0.2.7"), "example.com A 192.0.2.7"},
		{model.Reference("KATFindingType|KAT-NO-SPF"), "KAT-NO-SPF"},
		{
			model.Reference("Finding|Hostname|internet|example.com|KAT-NO-SPF"),
			"KAT-NO-SPF @ example.com",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg.HumanReadable(tt.ref), string(tt.ref))
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []domain.RiskSeverity{
		domain.SeverityUnknown,
		domain.SeverityPending,
		domain.SeverityRecommendation,
		domain.SeverityLow,
		domain.SeverityMedium,
		domain.SeverityHigh,
		domain.SeverityCritical,
	}
	for i := 1; i < len(order); i++ {
		assert.Negative(t, order[i-1].Compare(order[i]))
		assert.Positive(t, order[i].Compare(order[i-1]))
	}
	assert.Zero(t, domain.SeverityHigh.Compare(domain.SeverityHigh))

	assert.Equal(t, domain.SeverityCritical, domain.ParseSeverity(" Critical "))
	assert.Equal(t, domain.SeverityUnknown, domain.ParseSeverity("bogus"))
}

func TestCVEIDNormalization(t *testing.T) {
	a := domain.NewCVEFindingType("cve-2021-44228")
	b := domain.NewCVEFindingType("CVE-2021-44228")
	assert.True(t, model.Equal(a, b))
}

func TestInformationID(t *testing.T) {
	host := hostname("example.com")
	assert.Equal(t, "Hostname|example.com", model.InformationID(host))

	soft := &domain.Software{Name: "jquery", Version: "1.9.0"}
	assert.Equal(t, "Software|jquery|1.9.0", model.InformationID(soft))

	// Network exposes no information values.
	assert.Equal(t, "Network", model.InformationID(&domain.Network{Name: "internet"}))
}

func TestConfigAccessors(t *testing.T) {
	cfg := domain.Config{Config: map[string]string{
		"enabled":   "true",
		"max_ports": "25",
		"allowed":   `["22","443"]`,
		"broken":    "{not json",
	}}

	assert.True(t, cfg.GetBool("enabled", false))
	assert.False(t, cfg.GetBool("missing", false))
	assert.Equal(t, 25, cfg.GetInt("max_ports", 0))
	assert.Equal(t, 7, cfg.GetInt("missing", 7))
	assert.Equal(t, []string{"22", "443"}, cfg.GetList("allowed", nil))
	assert.Equal(t, []string{"x"}, cfg.GetList("broken", []string{"x"}))
}
