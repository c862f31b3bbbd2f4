package catalog

import (
	"fmt"

	"golang.org/x/net/publicsuffix"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// The mail security nibbles share one shape: they fire on a hostname when
// the relevant record slot is empty. Subdomains are skipped because the
// policies live on the registrable domain, and an NXDOMAIN marker means
// the name does not exist at all, which is not a policy gap.

// MissingDKIM flags registrable domains without any answering DKIM
// selector.
func MissingDKIM() *rules.NibbleDefinition {
	return missingMailRecord(
		"missing_dkim",
		rules.NibbleParameter{
			Name: "dkim", Type: "DKIMExists",
			Path: "<hostname [is DKIMExists]", Optional: true,
		},
		"KAT-NO-DKIM",
		"This hostname does not support a DKIM record",
	)
}

// MissingDMARC flags registrable domains without a DMARC policy record.
func MissingDMARC() *rules.NibbleDefinition {
	return missingMailRecord(
		"missing_dmarc",
		rules.NibbleParameter{
			Name: "dmarc", Type: "DMARCTXTRecord",
			Path: "<hostname [is DMARCTXTRecord]", Optional: true,
		},
		"KAT-NO-DMARC",
		"This hostname does not have a DMARC record",
	)
}

// MissingSPF flags registrable domains whose TXT records contain no
// parsed SPF policy.
func MissingSPF() *rules.NibbleDefinition {
	return missingMailRecord(
		"missing_spf",
		rules.NibbleParameter{
			Name: "spf", Type: "DNSSPFRecord",
			Path: "<hostname [is DNSTXTRecord].<dns_txt_record [is DNSSPFRecord]", Optional: true,
		},
		"KAT-NO-SPF",
		"This hostname does not have an SPF record",
	)
}

func missingMailRecord(id string, record rules.NibbleParameter, findingID, description string) *rules.NibbleDefinition {
	return &rules.NibbleDefinition{
		ID: id,
		Signature: []rules.NibbleParameter{
			{Name: "hostname", Type: "Hostname"},
			record,
			{Name: "nxdomain", Type: "NXDOMAIN", Path: "<hostname [is NXDOMAIN]", Optional: true},
		},
		Run: func(args []model.Object, cfg map[string]string) ([]model.Object, error) {
			hostname, ok := args[0].(*domain.Hostname)
			if !ok {
				return nil, fmt.Errorf("unexpected trigger type %s", args[0].ObjectType())
			}
			if args[1] != nil || args[2] != nil {
				return nil, nil
			}
			if !isRegistrableDomain(hostname.Name) {
				return nil, nil
			}
			return katFinding(model.PrimaryKey(hostname), findingID, description), nil
		},
	}
}

// isRegistrableDomain reports whether the name is exactly an eTLD+1, the
// level mail sender policies are published at.
func isRegistrableDomain(name string) bool {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return false
	}
	return etld1 == name
}
