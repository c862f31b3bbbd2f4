package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules/catalog"
)

func ipPort(port int, protocol domain.Protocol) *domain.IPPort {
	return &domain.IPPort{
		Address:  "IPAddressV4|internet|1.1.1.1",
		Protocol: protocol,
		Port:     port,
	}
}

func runPortClassification(t *testing.T, port *domain.IPPort, cfg map[string]string) []model.Object {
	t.Helper()
	if cfg == nil {
		cfg = map[string]string{}
	}
	out, err := catalog.PortClassification().Run(port, nil, cfg)
	require.NoError(t, err)
	return out
}

func findingTypeID(t *testing.T, out []model.Object) string {
	t.Helper()
	require.Len(t, out, 2)
	ft, ok := out[0].(*domain.KATFindingType)
	require.True(t, ok)
	return ft.ID
}

func TestPortClassification(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		protocol domain.Protocol
		want     string
	}{
		{name: "ssh", port: 22, protocol: domain.ProtocolTCP, want: "KAT-OPEN-SYSADMIN-PORT"},
		{name: "telnet", port: 23, protocol: domain.ProtocolTCP, want: "KAT-OPEN-SYSADMIN-PORT"},
		{name: "mysql", port: 3306, protocol: domain.ProtocolTCP, want: "KAT-OPEN-DATABASE-PORT"},
		{name: "postgres", port: 5432, protocol: domain.ProtocolTCP, want: "KAT-OPEN-DATABASE-PORT"},
		{name: "rdp", port: 3389, protocol: domain.ProtocolTCP, want: "KAT-REMOTE-DESKTOP-PORT"},
		{name: "uncommon tcp", port: 1234, protocol: domain.ProtocolTCP, want: "KAT-UNCOMMON-OPEN-PORT"},
		{name: "uncommon udp", port: 1194, protocol: domain.ProtocolUDP, want: "KAT-UNCOMMON-OPEN-PORT"},
		{name: "https", port: 443, protocol: domain.ProtocolTCP, want: ""},
		{name: "dns udp", port: 53, protocol: domain.ProtocolUDP, want: ""},
		{name: "smtp", port: 25, protocol: domain.ProtocolTCP, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runPortClassification(t, ipPort(tt.port, tt.protocol), nil)
			if tt.want == "" {
				assert.Empty(t, out)
				return
			}
			assert.Equal(t, tt.want, findingTypeID(t, out))
		})
	}
}

func TestPortClassificationFindingTargetsPort(t *testing.T) {
	port := ipPort(22, domain.ProtocolTCP)
	out := runPortClassification(t, port, nil)
	require.Len(t, out, 2)
	finding, ok := out[1].(*domain.Finding)
	require.True(t, ok)
	assert.Equal(t, model.PrimaryKey(port), finding.OOI)
	assert.Equal(t, "Port 22/tcp is a system administrator port and should possibly not be open.", finding.Description)
}

func TestPortClassificationConfigOverride(t *testing.T) {
	// 1194 declared common, 443 no longer is.
	cfg := map[string]string{"common_tcp_ports": "1194, 443"}
	assert.Empty(t, runPortClassification(t, ipPort(1194, domain.ProtocolTCP), cfg))

	cfg = map[string]string{"common_tcp_ports": "80"}
	out := runPortClassification(t, ipPort(443, domain.ProtocolTCP), cfg)
	assert.Equal(t, "KAT-UNCOMMON-OPEN-PORT", findingTypeID(t, out))
}

func TestPortClassificationEmptyConfigValueClearsList(t *testing.T) {
	cfg := map[string]string{"sa_tcp_ports": ""}
	out := runPortClassification(t, ipPort(22, domain.ProtocolTCP), cfg)
	// Port 22 falls through to the uncommon check.
	assert.Equal(t, "KAT-UNCOMMON-OPEN-PORT", findingTypeID(t, out))
}

func TestPortClassificationAggregate(t *testing.T) {
	port := ipPort(3306, domain.ProtocolTCP)
	out := runPortClassification(t, port, map[string]string{"aggregate_findings": "true"})
	require.Len(t, out, 2)
	finding, ok := out[1].(*domain.Finding)
	require.True(t, ok)
	assert.Equal(t, port.Address, finding.OOI)
	assert.Equal(t, "KAT-UNCOMMON-OPEN-PORT", findingTypeID(t, out))
}
