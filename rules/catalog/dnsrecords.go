package catalog

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// dnsScanDocument is the raw output of a DNS scan: one queried hostname
// and the answers it got.
type dnsScanDocument struct {
	Network  string          `json:"network"`
	Hostname string          `json:"hostname"`
	Records  []dnsScanRecord `json:"records"`
}

type dnsScanRecord struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	TTL        *int   `json:"ttl,omitempty"`
	Preference *int   `json:"preference,omitempty"`
}

// DNSRecords parses raw DNS scan output into record objects plus the
// addresses and hostnames the records point at. A malformed document
// yields nothing at all.
func DNSRecords() *rules.NormalizerDefinition {
	return &rules.NormalizerDefinition{
		ID:        "dns_records",
		MimeTypes: []string{"application/json", "boefje/dns-records"},
		Run:       runDNSRecords,
	}
}

func runDNSRecords(raw []byte, meta rules.NormalizerMeta) ([]model.Object, error) {
	var doc dnsScanDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &rules.NormalizationError{Normalizer: "dns_records", Reason: err.Error()}
	}
	if doc.Network == "" || doc.Hostname == "" {
		return nil, &rules.NormalizationError{Normalizer: "dns_records", Reason: "document without network or hostname"}
	}

	network := &domain.Network{Name: doc.Network}
	networkRef := model.PrimaryKey(network)
	hostname := &domain.Hostname{Network: networkRef, Name: canonicalName(doc.Hostname)}
	hostnameRef := model.PrimaryKey(hostname)

	out := []model.Object{network, hostname}
	for i, rec := range doc.Records {
		base := domain.DNSRecord{Hostname: hostnameRef, Value: rec.Value, TTL: rec.TTL}

		switch strings.ToUpper(rec.Type) {
		case "A", "AAAA":
			addr, err := netip.ParseAddr(rec.Value)
			if err != nil {
				return nil, &rules.NormalizationError{
					Normalizer: "dns_records",
					Reason:     fmt.Sprintf("record %d: bad address %q", i, rec.Value),
				}
			}
			var ip model.Object
			if addr.Is4() {
				ip = &domain.IPAddressV4{IPAddress: domain.IPAddress{Network: networkRef, Address: rec.Value}}
				out = append(out, ip, &domain.DNSARecord{DNSRecord: base, Address: model.PrimaryKey(ip)})
			} else {
				ip = &domain.IPAddressV6{IPAddress: domain.IPAddress{Network: networkRef, Address: rec.Value}}
				out = append(out, ip, &domain.DNSAAAARecord{DNSRecord: base, Address: model.PrimaryKey(ip)})
			}
			out = append(out, &domain.ResolvedHostname{Hostname: hostnameRef, Address: model.PrimaryKey(ip)})
		case "TXT":
			out = append(out, &domain.DNSTXTRecord{DNSRecord: base})
		case "MX":
			record := &domain.DNSMXRecord{DNSRecord: base, Preference: rec.Preference}
			if name := canonicalName(rec.Value); name != "" {
				mail := &domain.Hostname{Network: networkRef, Name: name}
				record.MailHostname = model.PrimaryKey(mail)
				out = append(out, mail)
			}
			out = append(out, record)
		case "NS":
			name := canonicalName(rec.Value)
			if name == "" {
				return nil, &rules.NormalizationError{
					Normalizer: "dns_records",
					Reason:     fmt.Sprintf("record %d: NS record without a name server", i),
				}
			}
			ns := &domain.Hostname{Network: networkRef, Name: name}
			out = append(out, ns, &domain.DNSNSRecord{DNSRecord: base, NameServerHostname: model.PrimaryKey(ns)})
		case "CNAME":
			name := canonicalName(rec.Value)
			if name == "" {
				return nil, &rules.NormalizationError{
					Normalizer: "dns_records",
					Reason:     fmt.Sprintf("record %d: CNAME record without a target", i),
				}
			}
			target := &domain.Hostname{Network: networkRef, Name: name}
			out = append(out, target, &domain.DNSCNAMERecord{DNSRecord: base, TargetHostname: model.PrimaryKey(target)})
		default:
			return nil, &rules.NormalizationError{
				Normalizer: "dns_records",
				Reason:     fmt.Sprintf("record %d: unsupported record type %q", i, rec.Type),
			}
		}
	}
	return out, nil
}

// canonicalName lowercases a DNS name and strips the trailing dot.
func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}
