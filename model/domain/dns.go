package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/openkat/octopoes/model"
)

// Hostname is a DNS name inside a network. The name is stored lowercased
// and without a trailing dot by the normalizers that produce it.
type Hostname struct {
	model.Meta
	Network model.Reference `json:"network"`
	Name    string          `json:"name"`
	DNSZone model.Reference `json:"dns_zone,omitempty"`

	// RegisteredDomain points at the hostname of the registrable domain
	// (eTLD+1) this name falls under, when known. It is empty on the
	// registrable domain itself.
	RegisteredDomain model.Reference `json:"registered_domain,omitempty"`
}

func (Hostname) ObjectType() string { return "Hostname" }

func (h Hostname) NaturalKeyParts() []string {
	return []string{h.Network.NaturalKey(), h.Name}
}

func (h Hostname) Relations() map[string]model.Reference {
	rels := map[string]model.Reference{"network": h.Network}
	if !h.DNSZone.IsZero() {
		rels["dns_zone"] = h.DNSZone
	}
	if !h.RegisteredDomain.IsZero() {
		rels["registered_domain"] = h.RegisteredDomain
	}
	return rels
}

// InformationValues implements model.InformationValued.
func (h Hostname) InformationValues() []string { return []string{h.Name} }

// DNSZone is the zone a set of hostnames is authoritatively served from.
type DNSZone struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
	Parent   model.Reference `json:"parent,omitempty"`
}

func (DNSZone) ObjectType() string { return "DNSZone" }

func (z DNSZone) NaturalKeyParts() []string {
	return []string{z.Hostname.NaturalKey()}
}

func (z DNSZone) Relations() map[string]model.Reference {
	rels := map[string]model.Reference{"hostname": z.Hostname}
	if !z.Parent.IsZero() {
		rels["parent"] = z.Parent
	}
	return rels
}

// ResolvedHostname links a hostname to an address it resolves to.
type ResolvedHostname struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
	Address  model.Reference `json:"address"`
}

func (ResolvedHostname) ObjectType() string { return "ResolvedHostname" }

func (r ResolvedHostname) NaturalKeyParts() []string {
	return []string{r.Hostname.NaturalKey(), r.Address.NaturalKey()}
}

func (r ResolvedHostname) Relations() map[string]model.Reference {
	return map[string]model.Reference{"hostname": r.Hostname, "address": r.Address}
}

// NXDOMAIN records that a hostname got an NXDOMAIN response, so rules can
// distinguish "record absent" from "name does not exist".
type NXDOMAIN struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
}

func (NXDOMAIN) ObjectType() string { return "NXDOMAIN" }

func (n NXDOMAIN) NaturalKeyParts() []string {
	return []string{n.Hostname.NaturalKey()}
}

func (n NXDOMAIN) Relations() map[string]model.Reference {
	return map[string]model.Reference{"hostname": n.Hostname}
}

// DNSRecord carries the fields shared by every record type. Records can
// issue nothing to their hostname but inherit up to level 2 from it.
type DNSRecord struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
	Value    string          `json:"value"`
	TTL      *int            `json:"ttl,omitempty"`
}

func (r DNSRecord) NaturalKeyParts() []string {
	return []string{r.Hostname.NaturalKey(), r.Value}
}

func (r DNSRecord) Relations() map[string]model.Reference {
	return map[string]model.Reference{"hostname": r.Hostname}
}

// DNSARecord is an A record pointing a hostname at an IPv4 address.
type DNSARecord struct {
	DNSRecord
	Address model.Reference `json:"address"`
}

func (DNSARecord) ObjectType() string { return "DNSARecord" }

func (r DNSARecord) Relations() map[string]model.Reference {
	rels := r.DNSRecord.Relations()
	rels["address"] = r.Address
	return rels
}

// DNSAAAARecord is an AAAA record pointing a hostname at an IPv6 address.
type DNSAAAARecord struct {
	DNSRecord
	Address model.Reference `json:"address"`
}

func (DNSAAAARecord) ObjectType() string { return "DNSAAAARecord" }

func (r DNSAAAARecord) Relations() map[string]model.Reference {
	rels := r.DNSRecord.Relations()
	rels["address"] = r.Address
	return rels
}

// DNSTXTRecord is a TXT record. TXT values are free-form and can exceed
// the reference length budget, so the natural key masks the value with its
// SHA-1 digest; the full value stays in the document.
type DNSTXTRecord struct {
	DNSRecord
}

func (DNSTXTRecord) ObjectType() string { return "DNSTXTRecord" }

func (r DNSTXTRecord) NaturalKeyParts() []string {
	return []string{r.Hostname.NaturalKey(), hashKeyPart(r.Value)}
}

// DNSMXRecord is an MX record naming a mail exchanger for the hostname.
type DNSMXRecord struct {
	DNSRecord
	MailHostname model.Reference `json:"mail_hostname,omitempty"`
	Preference   *int            `json:"preference,omitempty"`
}

func (DNSMXRecord) ObjectType() string { return "DNSMXRecord" }

func (r DNSMXRecord) Relations() map[string]model.Reference {
	rels := r.DNSRecord.Relations()
	if !r.MailHostname.IsZero() {
		rels["mail_hostname"] = r.MailHostname
	}
	return rels
}

// DNSNSRecord is an NS record delegating the hostname to a name server.
type DNSNSRecord struct {
	DNSRecord
	NameServerHostname model.Reference `json:"name_server_hostname"`
}

func (DNSNSRecord) ObjectType() string { return "DNSNSRecord" }

func (r DNSNSRecord) Relations() map[string]model.Reference {
	rels := r.DNSRecord.Relations()
	rels["name_server_hostname"] = r.NameServerHostname
	return rels
}

// DNSCNAMERecord is a CNAME record aliasing the hostname to another name.
type DNSCNAMERecord struct {
	DNSRecord
	TargetHostname model.Reference `json:"target_hostname"`
}

func (DNSCNAMERecord) ObjectType() string { return "DNSCNAMERecord" }

func (r DNSCNAMERecord) Relations() map[string]model.Reference {
	rels := r.DNSRecord.Relations()
	rels["target_hostname"] = r.TargetHostname
	return rels
}

// hashKeyPart masks a free-form value for use in a natural key.
func hashKeyPart(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// dnsRecordRelations is the shared relation table of the record types. The
// hostname edge issues nothing downward and inherits at most level 2.
func dnsRecordRelations() map[string]model.Relation {
	return map[string]model.Relation{
		"hostname": {
			Types:               []string{"Hostname"},
			MaxIssueScanLevel:   model.Cap(0),
			MaxInheritScanLevel: model.Cap(2),
			ReverseName:         "dns_records",
		},
	}
}

func recordHR(kind string) func(*model.Registry, model.Reference) string {
	return func(reg *model.Registry, ref model.Reference) string {
		tok, err := reg.Tokenize(ref)
		if err != nil {
			return string(ref)
		}
		return fmt.Sprintf("%s %s %s", tok.Get("hostname", "name"), kind, tok.Get("value"))
	}
}

func registerDNS(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:       "Hostname",
		NaturalKey: []string{"network", "name"},
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
			"dns_zone": {
				Types:             []string{"DNSZone"},
				Optional:          true,
				MaxIssueScanLevel: model.Cap(1),
				ReverseName:       "hostnames",
			},
			"registered_domain": {
				Types:       []string{"Hostname"},
				Optional:    true,
				ReverseName: "subdomains",
			},
		},
		InformationValue: []string{"name"},
		Traversable:      true,
		New:              func() model.Object { return &Hostname{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return tok.Get("name")
		},
	})
	r.MustRegister(&model.Descriptor{
		Name:       "DNSZone",
		NaturalKey: []string{"hostname"},
		Relations: map[string]model.Relation{
			"hostname": {
				Types:               []string{"Hostname"},
				MaxInheritScanLevel: model.Cap(2),
				ReverseName:         "zone_of",
			},
			"parent": {
				Types:       []string{"DNSZone"},
				Optional:    true,
				ReverseName: "child_zones",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &DNSZone{} },
	})
	r.MustRegister(&model.Descriptor{
		Name:       "ResolvedHostname",
		NaturalKey: []string{"hostname", "address"},
		Relations: map[string]model.Relation{
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "resolved_hostnames",
			},
			"address": {
				Types:               []string{"IPAddress"},
				MaxIssueScanLevel:   model.Cap(4),
				MaxInheritScanLevel: model.Cap(0),
				ReverseName:         "reverse_resolutions",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &ResolvedHostname{} },
	})
	r.MustRegister(&model.Descriptor{
		Name:       "NXDOMAIN",
		NaturalKey: []string{"hostname"},
		Relations: map[string]model.Relation{
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(2),
				ReverseName:         "nxdomain_responses",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &NXDOMAIN{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return "NXDOMAIN response on " + tok.Get("hostname", "name")
		},
	})

	r.MustRegister(&model.Descriptor{
		Name:        "DNSRecord",
		NaturalKey:  []string{"hostname", "value"},
		Relations:   dnsRecordRelations(),
		Traversable: true,
	})

	type record struct {
		name string
		kind string
		more map[string]model.Relation
		ctor func() model.Object
	}
	records := []record{
		{"DNSARecord", "A", map[string]model.Relation{
			"address": {Types: []string{"IPAddressV4"}, ReverseName: "dns_a_records"},
		}, func() model.Object { return &DNSARecord{} }},
		{"DNSAAAARecord", "AAAA", map[string]model.Relation{
			"address": {Types: []string{"IPAddressV6"}, ReverseName: "dns_aaaa_records"},
		}, func() model.Object { return &DNSAAAARecord{} }},
		{"DNSTXTRecord", "TXT", nil, func() model.Object { return &DNSTXTRecord{} }},
		{"DNSMXRecord", "MX", map[string]model.Relation{
			"mail_hostname": {Types: []string{"Hostname"}, Optional: true, ReverseName: "mail_server_of"},
		}, func() model.Object { return &DNSMXRecord{} }},
		{"DNSNSRecord", "NS", map[string]model.Relation{
			"name_server_hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(1),
				MaxInheritScanLevel: model.Cap(0),
				ReverseName:         "name_server_of",
			},
		}, func() model.Object { return &DNSNSRecord{} }},
		{"DNSCNAMERecord", "CNAME", map[string]model.Relation{
			"target_hostname": {Types: []string{"Hostname"}, ReverseName: "cname_target_of"},
		}, func() model.Object { return &DNSCNAMERecord{} }},
	}
	for _, rec := range records {
		rels := dnsRecordRelations()
		for name, rel := range rec.more {
			rels[name] = rel
		}
		r.MustRegister(&model.Descriptor{
			Name:          rec.name,
			Parent:        "DNSRecord",
			NaturalKey:    []string{"hostname", "value"},
			Relations:     rels,
			Traversable:   true,
			New:           rec.ctor,
			HumanReadable: recordHR(rec.kind),
		})
	}
}
