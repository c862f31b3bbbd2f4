package domain

import (
	"github.com/openkat/octopoes/model"
)

// Software is a product at a specific version, keyed by name, version and
// CPE. Any of version and cpe may be unknown; the empty key part keeps the
// part count stable.
type Software struct {
	model.Meta
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	CPE     string `json:"cpe,omitempty"`
}

func (Software) ObjectType() string { return "Software" }

func (s Software) NaturalKeyParts() []string {
	return []string{s.Name, s.Version, s.CPE}
}

func (Software) Relations() map[string]model.Reference { return nil }

// InformationValues implements model.InformationValued.
func (s Software) InformationValues() []string { return []string{s.Name, s.Version} }

// SoftwareInstance records that a piece of software runs on some object:
// a website serving a JavaScript library, a port running a daemon. The
// subject may be any object, so the natural key carries its full
// reference and instance keys are not tokenizable.
type SoftwareInstance struct {
	model.Meta
	OOI      model.Reference `json:"ooi"`
	Software model.Reference `json:"software"`
}

func (SoftwareInstance) ObjectType() string { return "SoftwareInstance" }

func (s SoftwareInstance) NaturalKeyParts() []string {
	return []string{string(s.OOI), s.Software.NaturalKey()}
}

func (s SoftwareInstance) Relations() map[string]model.Reference {
	return map[string]model.Reference{"ooi": s.OOI, "software": s.Software}
}

func registerSoftware(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:             "Software",
		NaturalKey:       []string{"name", "version", "cpe"},
		InformationValue: []string{"name", "version"},
		Traversable:      false,
		New:              func() model.Object { return &Software{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			if v := tok.Get("version"); v != "" {
				return tok.Get("name") + " " + v
			}
			return tok.Get("name")
		},
	})
	r.MustRegister(&model.Descriptor{
		Name: "SoftwareInstance",
		Relations: map[string]model.Relation{
			"ooi": {
				Types:               []string{model.AnyObjectType},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "software_instances",
			},
			"software": {
				Types:       []string{"Software"},
				ReverseName: "instances",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &SoftwareInstance{} },
	})
}
