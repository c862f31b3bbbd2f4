package domain

import (
	"github.com/openkat/octopoes/model"
)

// MechanismQualifier is the action prefix of an SPF mechanism.
type MechanismQualifier string

const (
	QualifierPass     MechanismQualifier = "+"
	QualifierFail     MechanismQualifier = "-"
	QualifierSoftFail MechanismQualifier = "~"
	QualifierNeutral  MechanismQualifier = "?"
)

// Valid reports whether the qualifier is one of the four SPF actions.
func (q MechanismQualifier) Valid() bool {
	switch q {
	case QualifierPass, QualifierFail, QualifierSoftFail, QualifierNeutral:
		return true
	}
	return false
}

// DNSSPFRecord is the parsed SPF policy found in a TXT record. Like TXT
// values, the policy text is masked with its SHA-1 digest in the natural
// key.
type DNSSPFRecord struct {
	model.Meta
	DNSTXTRecord model.Reference `json:"dns_txt_record"`
	Value        string          `json:"value"`
	TTL          *int            `json:"ttl,omitempty"`
	All          string          `json:"all,omitempty"`
	Exp          string          `json:"exp,omitempty"`
	Redirect     string          `json:"redirect,omitempty"`
}

func (DNSSPFRecord) ObjectType() string { return "DNSSPFRecord" }

func (r DNSSPFRecord) NaturalKeyParts() []string {
	return []string{r.DNSTXTRecord.NaturalKey(), hashKeyPart(r.Value)}
}

func (r DNSSPFRecord) Relations() map[string]model.Reference {
	return map[string]model.Reference{"dns_txt_record": r.DNSTXTRecord}
}

// DNSSPFMechanism carries the fields shared by the SPF mechanism types.
type DNSSPFMechanism struct {
	model.Meta
	SPFRecord model.Reference    `json:"spf_record"`
	Mechanism string             `json:"mechanism"`
	Qualifier MechanismQualifier `json:"qualifier"`
}

func (m DNSSPFMechanism) Relations() map[string]model.Reference {
	return map[string]model.Reference{"spf_record": m.SPFRecord}
}

// DNSSPFMechanismIP is an SPF mechanism that designates an address, such
// as ip4: or ip6:.
type DNSSPFMechanismIP struct {
	DNSSPFMechanism
	IP model.Reference `json:"ip"`
}

func (DNSSPFMechanismIP) ObjectType() string { return "DNSSPFMechanismIP" }

func (m DNSSPFMechanismIP) NaturalKeyParts() []string {
	return []string{m.SPFRecord.NaturalKey(), m.Mechanism, m.IP.NaturalKey(), string(m.Qualifier)}
}

func (m DNSSPFMechanismIP) Relations() map[string]model.Reference {
	rels := m.DNSSPFMechanism.Relations()
	rels["ip"] = m.IP
	return rels
}

// DNSSPFMechanismHostname is an SPF mechanism that designates a hostname,
// such as a:, mx: or include:.
type DNSSPFMechanismHostname struct {
	DNSSPFMechanism
	Hostname model.Reference `json:"hostname"`
}

func (DNSSPFMechanismHostname) ObjectType() string { return "DNSSPFMechanismHostname" }

func (m DNSSPFMechanismHostname) NaturalKeyParts() []string {
	return []string{m.SPFRecord.NaturalKey(), m.Mechanism, m.Hostname.NaturalKey(), string(m.Qualifier)}
}

func (m DNSSPFMechanismHostname) Relations() map[string]model.Reference {
	rels := m.DNSSPFMechanism.Relations()
	rels["hostname"] = m.Hostname
	return rels
}

// DMARCTXTRecord is the DMARC policy published at _dmarc.<hostname>.
type DMARCTXTRecord struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
	Value    string          `json:"value"`
	TTL      *int            `json:"ttl,omitempty"`
}

func (DMARCTXTRecord) ObjectType() string { return "DMARCTXTRecord" }

func (r DMARCTXTRecord) NaturalKeyParts() []string {
	return []string{r.Hostname.NaturalKey(), r.Value}
}

func (r DMARCTXTRecord) Relations() map[string]model.Reference {
	return map[string]model.Reference{"hostname": r.Hostname}
}

// DKIMExists records that at least one DKIM selector answers for the
// hostname.
type DKIMExists struct {
	model.Meta
	Hostname model.Reference `json:"hostname"`
}

func (DKIMExists) ObjectType() string { return "DKIMExists" }

func (d DKIMExists) NaturalKeyParts() []string {
	return []string{d.Hostname.NaturalKey()}
}

func (d DKIMExists) Relations() map[string]model.Reference {
	return map[string]model.Reference{"hostname": d.Hostname}
}

func registerEmail(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:       "DNSSPFRecord",
		NaturalKey: []string{"dns_txt_record", "value"},
		Relations: map[string]model.Relation{
			"dns_txt_record": {
				Types:               []string{"DNSTXTRecord"},
				MaxInheritScanLevel: model.Cap(1),
				ReverseName:         "spf_records",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &DNSSPFRecord{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return "SPF record of " + tok.Get("dns_txt_record", "hostname", "name")
		},
	})

	mechanismRelations := func() map[string]model.Relation {
		return map[string]model.Relation{
			"spf_record": {
				Types:               []string{"DNSSPFRecord"},
				MaxInheritScanLevel: model.Cap(1),
				ReverseName:         "mechanisms",
			},
		}
	}
	r.MustRegister(&model.Descriptor{
		Name:        "DNSSPFMechanism",
		NaturalKey:  []string{"spf_record", "mechanism"},
		Relations:   mechanismRelations(),
		Traversable: true,
	})
	ipRels := mechanismRelations()
	ipRels["ip"] = model.Relation{Types: []string{"IPAddress"}, ReverseName: "spf_designations"}
	r.MustRegister(&model.Descriptor{
		Name:        "DNSSPFMechanismIP",
		Parent:      "DNSSPFMechanism",
		NaturalKey:  []string{"spf_record", "mechanism", "ip", "qualifier"},
		Relations:   ipRels,
		Traversable: true,
		New:         func() model.Object { return &DNSSPFMechanismIP{} },
	})
	hostRels := mechanismRelations()
	hostRels["hostname"] = model.Relation{Types: []string{"Hostname"}, ReverseName: "spf_designations"}
	r.MustRegister(&model.Descriptor{
		Name:        "DNSSPFMechanismHostname",
		Parent:      "DNSSPFMechanism",
		NaturalKey:  []string{"spf_record", "mechanism", "hostname", "qualifier"},
		Relations:   hostRels,
		Traversable: true,
		New:         func() model.Object { return &DNSSPFMechanismHostname{} },
	})

	r.MustRegister(&model.Descriptor{
		Name:       "DMARCTXTRecord",
		NaturalKey: []string{"hostname", "value"},
		Relations: map[string]model.Relation{
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(2),
				ReverseName:         "dmarc_records",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &DMARCTXTRecord{} },
	})
	r.MustRegister(&model.Descriptor{
		Name:       "DKIMExists",
		NaturalKey: []string{"hostname"},
		Relations: map[string]model.Relation{
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(2),
				ReverseName:         "dkim_proofs",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &DKIMExists{} },
	})
}
