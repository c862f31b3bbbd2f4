package catalog

import (
	"sort"
	"strings"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// internetNLFindingIDs are the finding types that count against the
// internet.nl compliance baseline. Any of them present on a hostname or
// one of its websites rolls up into one KAT-INTERNETNL finding.
var internetNLFindingIDs = func() map[string]bool {
	ids := []string{
		"KAT-WEBSERVER-NO-IPV6",
		"KAT-NAMESERVER-NO-TWO-IPV6",
		"KAT-NO-DNSSEC",
		"KAT-INVALID-DNSSEC",
		"KAT-NO-HSTS",
		"KAT-NO-CSP",
		"KAT-NO-X-FRAME-OPTIONS",
		"KAT-NO-X-CONTENT-TYPE-OPTIONS",
		"KAT-CSP-VULNERABILITIES",
		"KAT-HSTS-VULNERABILITIES",
		"KAT-NO-CERTIFICATE",
		"KAT-HTTPS-NOT-AVAILABLE",
		"KAT-SSL-CERT-HOSTNAME-MISMATCH",
		"KAT-HTTPS-REDIRECT",
		"KAT-NO-DMARC",
		"KAT-NO-DKIM",
		"KAT-NO-SPF",
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}()

// InternetNL folds the hostname's individual baseline findings into one
// composite finding, so a report can show internet.nl compliance as a
// single entry.
func InternetNL() *rules.BitDefinition {
	return &rules.BitDefinition{
		ID:          "internetnl",
		TriggerType: "Hostname",
		Parameters: []rules.BitParameter{
			{Type: "Finding", Path: "<ooi [is Finding]"},
			{Type: "Finding", Path: "<hostname [is Website].<ooi [is Finding]"},
		},
		Run: runInternetNL,
	}
}

func runInternetNL(trigger model.Object, additional []model.Object, cfg map[string]string) ([]model.Object, error) {
	var matched []string
	seen := make(map[model.Reference]bool)
	for _, obj := range additional {
		finding, ok := obj.(*domain.Finding)
		if !ok {
			continue
		}
		pk := model.PrimaryKey(finding)
		if seen[pk] {
			continue
		}
		seen[pk] = true
		if !internetNLFindingIDs[finding.FindingType.NaturalKey()] {
			continue
		}
		description := finding.Description
		if description == "" {
			description = finding.FindingType.NaturalKey()
		}
		matched = append(matched, description)
	}
	if len(matched) == 0 {
		return nil, nil
	}
	// The composite description must not depend on graph walk order.
	sort.Strings(matched)

	description := "This hostname has at least one of the following finding types: " +
		strings.Join(matched, "; ")
	return katFinding(model.PrimaryKey(trigger), "KAT-INTERNETNL", description), nil
}
