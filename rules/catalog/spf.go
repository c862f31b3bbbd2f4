package catalog

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// spfDomainShape accepts the domain-spec of a mechanism: at least one dot,
// label characters only. Macro expansion has already happened by the time
// the record is checked.
var spfDomainShape = regexp.MustCompile(`^[A-Za-z0-9._-]+\.[A-Za-z]{2,}\.?$`)

// SPFDiscovery parses TXT records that carry an SPF policy into the SPF
// record object and one mechanism object per designated sender. A policy
// that does not parse yields KAT-INVALID-SPF instead.
func SPFDiscovery() *rules.BitDefinition {
	return &rules.BitDefinition{
		ID:          "spf_discovery",
		TriggerType: "DNSTXTRecord",
		Run:         runSPFDiscovery,
	}
}

func runSPFDiscovery(trigger model.Object, _ []model.Object, cfg map[string]string) ([]model.Object, error) {
	txt, ok := trigger.(*domain.DNSTXTRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected trigger type %s", trigger.ObjectType())
	}
	if !strings.HasPrefix(txt.Value, "v=spf1") {
		return nil, nil
	}

	hostName, networkName := hostnameParts(txt.Hostname)
	value := strings.ReplaceAll(txt.Value, "%(d)", hostName)

	terms, valid := parseSPF(value)
	if !valid {
		return katFinding(model.PrimaryKey(txt), "KAT-INVALID-SPF", "This SPF record is invalid"), nil
	}

	record := &domain.DNSSPFRecord{
		DNSTXTRecord: model.PrimaryKey(txt),
		Value:        txt.Value,
		TTL:          txt.TTL,
	}
	networkRef := model.MakeReference("Network", networkName)
	recordRef := model.PrimaryKey(record)

	var out []model.Object
	for _, term := range terms {
		switch term.name {
		case "ip4", "ip6":
			target, _, _ := strings.Cut(term.arg, "/")
			addr, err := netip.ParseAddr(target)
			if err != nil {
				continue
			}
			var ip model.Object
			if addr.Is4() {
				ip = &domain.IPAddressV4{IPAddress: domain.IPAddress{Network: networkRef, Address: target}}
			} else {
				ip = &domain.IPAddressV6{IPAddress: domain.IPAddress{Network: networkRef, Address: target}}
			}
			out = append(out, ip, &domain.DNSSPFMechanismIP{
				DNSSPFMechanism: domain.DNSSPFMechanism{
					SPFRecord: recordRef,
					Mechanism: term.name,
					Qualifier: term.qualifier,
				},
				IP: model.PrimaryKey(ip),
			})
		case "a", "mx", "ptr", "include", "exists":
			targetName := term.arg
			if targetName == "" {
				targetName = hostName
			}
			// Strip a prefix-length suffix; only the name matters here.
			targetName, _, _ = strings.Cut(targetName, "/")
			// Service labels are not hostnames in the model.
			if strings.HasPrefix(targetName, "_") {
				continue
			}
			host := &domain.Hostname{Network: networkRef, Name: strings.ToLower(targetName)}
			if targetName != hostName {
				out = append(out, host)
			}
			out = append(out, &domain.DNSSPFMechanismHostname{
				DNSSPFMechanism: domain.DNSSPFMechanism{
					SPFRecord: recordRef,
					Mechanism: term.name,
					Qualifier: term.qualifier,
				},
				Hostname: model.PrimaryKey(host),
			})
		case "redirect":
			record.Redirect = term.arg
			if strings.HasPrefix(term.arg, "_") {
				continue
			}
			host := &domain.Hostname{Network: networkRef, Name: strings.ToLower(term.arg)}
			out = append(out, host, &domain.DNSSPFMechanismHostname{
				DNSSPFMechanism: domain.DNSSPFMechanism{
					SPFRecord: recordRef,
					Mechanism: term.name,
					Qualifier: term.qualifier,
				},
				Hostname: model.PrimaryKey(host),
			})
		case "exp":
			record.Exp = term.arg
		case "all":
			record.All = string(term.qualifier)
		}
	}

	out = append(out, record)
	return out, nil
}

// spfTerm is one mechanism or modifier of a policy.
type spfTerm struct {
	qualifier domain.MechanismQualifier
	name      string
	arg       string
}

// parseSPF splits an SPF policy into terms and validates each of them.
// The second return is false when any term is malformed; a policy is
// either fully understood or rejected.
func parseSPF(value string) ([]spfTerm, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 || fields[0] != "v=spf1" {
		return nil, false
	}

	var terms []spfTerm
	for _, field := range fields[1:] {
		term, ok := parseSPFTerm(field)
		if !ok {
			return nil, false
		}
		terms = append(terms, term)
	}
	return terms, true
}

func parseSPFTerm(field string) (spfTerm, bool) {
	term := spfTerm{qualifier: domain.QualifierPass}
	if len(field) > 0 && domain.MechanismQualifier(field[:1]).Valid() {
		term.qualifier = domain.MechanismQualifier(field[:1])
		field = field[1:]
	}
	if field == "" {
		return term, false
	}

	// Modifiers use name=value.
	if name, arg, ok := strings.Cut(field, "="); ok {
		switch name {
		case "redirect", "exp":
			term.name, term.arg = name, arg
			return term, arg != "" && spfDomainShape.MatchString(strings.TrimSuffix(arg, "."))
		default:
			// Unknown modifiers are permitted by RFC 7208 and ignored.
			term.name, term.arg = name, arg
			return term, true
		}
	}

	head, arg, hasArg := strings.Cut(field, ":")
	// Only a and mx take a dual-cidr suffix on the bare form, as in
	// "a/24".
	name, _, hasPrefix := strings.Cut(head, "/")
	if hasPrefix && name != "a" && name != "mx" {
		return term, false
	}
	term.name, term.arg = name, arg
	switch name {
	case "all":
		return term, !hasArg
	case "ip4", "ip6":
		if !hasArg {
			return term, false
		}
		target, _, _ := strings.Cut(arg, "/")
		_, err := netip.ParseAddr(target)
		return term, err == nil
	case "a", "mx":
		if !hasArg {
			// Bare form designates the current domain.
			return term, true
		}
		host, _, _ := strings.Cut(arg, "/")
		return term, spfDomainShape.MatchString(host) || strings.HasPrefix(host, "_")
	case "ptr":
		if !hasArg {
			return term, true
		}
		return term, spfDomainShape.MatchString(arg)
	case "include", "exists":
		return term, hasArg && (spfDomainShape.MatchString(arg) || strings.HasPrefix(arg, "_"))
	}
	return term, false
}

// hostnameParts splits a Hostname reference into its name and network
// name using the type registry.
func hostnameParts(ref model.Reference) (name, network string) {
	tok, err := domain.Types().Tokenize(ref)
	if err != nil {
		key := ref.NaturalKey()
		if i := strings.LastIndex(key, "|"); i >= 0 {
			return key[i+1:], key[:i]
		}
		return key, ""
	}
	return tok.Get("name"), tok.Get("network", "name")
}
