package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// Port lists used when the config does not override them.
var (
	commonTCPPorts = []int{
		25,  // SMTP
		53,  // DNS
		80,  // HTTP
		110, // POP3
		143, // IMAP
		443, // HTTPS
		465, // SMTPS
		587, // SMTP message submission
		993, // IMAPS
		995, // POP3S
	}
	commonUDPPorts = []int{
		53, // DNS
	}
	sysadminTCPPorts = []int{
		21,   // FTP
		22,   // SSH
		23,   // Telnet
		5900, // VNC
	}
	databaseTCPPorts = []int{
		1433, // MS SQL Server
		1434, // MS SQL Server
		3050, // Interbase/Firebird
		3306, // MySQL
		5432, // PostgreSQL
	}
	rdpPorts = []int{
		3389, // Microsoft Remote Desktop
	}
)

// PortClassification flags open ports that plain web hosting does not
// need: sysadmin access ports, database ports, remote desktop and
// anything else outside the common set. All lists are tunable through the
// rule config; aggregate_findings collapses the result into one finding
// on the address.
func PortClassification() *rules.BitDefinition {
	return &rules.BitDefinition{
		ID:          "port_classification_ip",
		TriggerType: "IPPort",
		Run:         runPortClassification,
	}
}

func runPortClassification(trigger model.Object, _ []model.Object, cfg map[string]string) ([]model.Object, error) {
	ipPort, ok := trigger.(*domain.IPPort)
	if !ok {
		return nil, fmt.Errorf("unexpected trigger type %s", trigger.ObjectType())
	}

	aggregate := strings.EqualFold(cfg["aggregate_findings"], "true")

	commonTCP := portsFromConfig(cfg, "common_tcp_ports", commonTCPPorts)
	commonUDP := portsFromConfig(cfg, "common_udp_ports", commonUDPPorts)
	sysadmin := portsFromConfig(cfg, "sa_tcp_ports", sysadminTCPPorts)
	database := portsFromConfig(cfg, "db_tcp_ports", databaseTCPPorts)
	rdp := portsFromConfig(cfg, "microsoft_rdp_ports", rdpPorts)

	port, proto := ipPort.Port, ipPort.Protocol
	ref := model.PrimaryKey(ipPort)

	var id, description string
	switch {
	case proto == domain.ProtocolTCP && containsInt(sysadmin, port):
		id = "KAT-OPEN-SYSADMIN-PORT"
		description = fmt.Sprintf(
			"Port %d/%s is a system administrator port and should possibly not be open.", port, proto)
	case proto == domain.ProtocolTCP && containsInt(database, port):
		id = "KAT-OPEN-DATABASE-PORT"
		description = fmt.Sprintf("Port %d/%s is a database port and should not be open.", port, proto)
	case containsInt(rdp, port):
		id = "KAT-REMOTE-DESKTOP-PORT"
		description = fmt.Sprintf(
			"Port %d/%s is a Microsoft Remote Desktop port and should possibly not be open.", port, proto)
	case (proto == domain.ProtocolTCP && !containsInt(commonTCP, port)) ||
		(proto == domain.ProtocolUDP && !containsInt(commonUDP, port)):
		id = "KAT-UNCOMMON-OPEN-PORT"
		description = fmt.Sprintf("Port %d/%s is not a common port and should possibly not be open.", port, proto)
	default:
		return nil, nil
	}

	if aggregate {
		// One rolled-up finding on the address instead of one per port.
		return katFinding(ipPort.Address, "KAT-UNCOMMON-OPEN-PORT", fmt.Sprintf(
			"Port %d is not a common port and should possibly not be open.", port)), nil
	}
	return katFinding(ref, id, description), nil
}

// portsFromConfig parses a comma-separated port list from the config. An
// absent key keeps the default; a present empty value clears the list.
func portsFromConfig(cfg map[string]string, key string, def []int) []int {
	raw, ok := cfg[key]
	if !ok {
		return def
	}
	if raw == "" {
		return nil
	}
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ports = append(ports, n)
	}
	return ports
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
