// Package catalog bundles the built-in derivation rules: the bits,
// nibbles and normalizers shipped with the platform. Each rule lives in
// its own file together with its defaults; Default wires them all into
// one rules.Catalog.
package catalog

import (
	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// Default returns a catalog with every built-in rule registered.
func Default() *rules.Catalog {
	c := rules.NewCatalog()
	c.AddBit(CheckCSPHeader())
	c.AddBit(PortClassification())
	c.AddBit(SPFDiscovery())
	c.AddBit(InternetNL())
	c.AddNibble(MissingDKIM())
	c.AddNibble(MissingDMARC())
	c.AddNibble(MissingSPF())
	c.AddNibble(RetireJS())
	c.AddNormalizer(DNSRecords())
	return c
}

// katFinding yields the standard pair a rule emits for a violation: the
// finding type catalog entry and the finding pointing at the subject.
func katFinding(subject model.Reference, id, description string) []model.Object {
	ft := &domain.KATFindingType{FindingType: domain.FindingType{ID: id}}
	return []model.Object{
		ft,
		&domain.Finding{
			FindingType: model.PrimaryKey(ft),
			OOI:         subject,
			Description: description,
		},
	}
}
