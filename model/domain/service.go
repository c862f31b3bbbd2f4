package domain

import (
	"fmt"

	"github.com/openkat/octopoes/model"
)

// Service is a named protocol-level service such as "http" or "ssh". Like
// Network it is shared between unrelated subgraphs and never traversed for
// clearance.
type Service struct {
	model.Meta
	Name string `json:"name"`
}

func (Service) ObjectType() string { return "Service" }

func (s Service) NaturalKeyParts() []string { return []string{s.Name} }

func (Service) Relations() map[string]model.Reference { return nil }

// InformationValues implements model.InformationValued.
func (s Service) InformationValues() []string { return []string{s.Name} }

// IPService binds a service to the port it was observed on.
type IPService struct {
	model.Meta
	IPPort  model.Reference `json:"ip_port"`
	Service model.Reference `json:"service"`
}

func (IPService) ObjectType() string { return "IPService" }

func (s IPService) NaturalKeyParts() []string {
	return []string{s.IPPort.NaturalKey(), s.Service.NaturalKey()}
}

func (s IPService) Relations() map[string]model.Reference {
	return map[string]model.Reference{"ip_port": s.IPPort, "service": s.Service}
}

func registerService(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:        "Service",
		NaturalKey:  []string{"name"},
		Traversable: false,
		New:         func() model.Object { return &Service{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			return ref.NaturalKey()
		},
		InformationValue: []string{"name"},
	})
	r.MustRegister(&model.Descriptor{
		Name:       "IPService",
		NaturalKey: []string{"ip_port", "service"},
		Relations: map[string]model.Relation{
			"ip_port": {
				Types:               []string{"IPPort"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "ip_services",
			},
			"service": {
				Types:       []string{"Service"},
				ReverseName: "instances",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &IPService{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return fmt.Sprintf("%s on %s:%s/%s",
				tok.Get("service", "name"),
				tok.Get("ip_port", "address", "address"),
				tok.Get("ip_port", "port"),
				tok.Get("ip_port", "protocol"))
		},
	})
}
