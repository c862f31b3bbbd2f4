package domain

import (
	"fmt"

	"github.com/openkat/octopoes/model"
)

// Protocol is a transport protocol tag on ports and services.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// Valid reports whether the protocol is a known tag.
func (p Protocol) Valid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// PortState describes the observed state of a port.
type PortState string

const (
	PortStateOpen       PortState = "open"
	PortStateClosed     PortState = "closed"
	PortStateFiltered   PortState = "filtered"
	PortStateUnfiltered PortState = "unfiltered"
	PortStateOpenFiltered   PortState = "open|filtered"
	PortStateClosedFiltered PortState = "closed|filtered"
)

// Network is the scope root for everything addressable: hostnames and IP
// addresses are keyed under the network they live in, so "internet" and an
// internal lab network never collide.
type Network struct {
	model.Meta
	Name string `json:"name"`
}

func (Network) ObjectType() string { return "Network" }

func (n Network) NaturalKeyParts() []string { return []string{n.Name} }

func (Network) Relations() map[string]model.Reference { return nil }

// IPAddress carries the fields shared by the v4 and v6 address types.
type IPAddress struct {
	model.Meta
	Network model.Reference `json:"network"`
	Address string          `json:"address"`
}

func (a IPAddress) NaturalKeyParts() []string {
	return []string{a.Network.NaturalKey(), a.Address}
}

func (a IPAddress) Relations() map[string]model.Reference {
	return map[string]model.Reference{"network": a.Network}
}

// InformationValues implements model.InformationValued.
func (a IPAddress) InformationValues() []string { return []string{a.Address} }

// IPAddressV4 is an IPv4 address inside a network.
type IPAddressV4 struct {
	IPAddress
}

func (IPAddressV4) ObjectType() string { return "IPAddressV4" }

// IPAddressV6 is an IPv6 address inside a network.
type IPAddressV6 struct {
	IPAddress
}

func (IPAddressV6) ObjectType() string { return "IPAddressV6" }

// IPPort is an observed port on an address.
type IPPort struct {
	model.Meta
	Address  model.Reference `json:"address"`
	Protocol Protocol        `json:"protocol"`
	Port     int             `json:"port"`
	State    PortState       `json:"state,omitempty"`
}

func (IPPort) ObjectType() string { return "IPPort" }

func (p IPPort) NaturalKeyParts() []string {
	return []string{p.Address.NaturalKey(), string(p.Protocol), model.KeyPart(p.Port)}
}

func (p IPPort) Relations() map[string]model.Reference {
	return map[string]model.Reference{"address": p.Address}
}

func registerNetwork(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:        "Network",
		NaturalKey:  []string{"name"},
		Traversable: false,
		New:         func() model.Object { return &Network{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			return ref.NaturalKey()
		},
	})
	r.MustRegister(&model.Descriptor{
		Name:       "IPAddress",
		NaturalKey: []string{"network", "address"},
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
		},
		InformationValue: []string{"address"},
		Traversable:      true,
	})
	addrHR := func(reg *model.Registry, ref model.Reference) string {
		tok, err := reg.Tokenize(ref)
		if err != nil {
			return string(ref)
		}
		return tok.Get("address")
	}
	r.MustRegister(&model.Descriptor{
		Name:       "IPAddressV4",
		Parent:     "IPAddress",
		NaturalKey: []string{"network", "address"},
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
		},
		InformationValue: []string{"address"},
		Traversable:      true,
		New:              func() model.Object { return &IPAddressV4{} },
		HumanReadable:    addrHR,
	})
	r.MustRegister(&model.Descriptor{
		Name:       "IPAddressV6",
		Parent:     "IPAddress",
		NaturalKey: []string{"network", "address"},
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
		},
		InformationValue: []string{"address"},
		Traversable:      true,
		New:              func() model.Object { return &IPAddressV6{} },
		HumanReadable:    addrHR,
	})
	r.MustRegister(&model.Descriptor{
		Name:       "IPPort",
		NaturalKey: []string{"address", "protocol", "port"},
		Relations: map[string]model.Relation{
			"address": {
				Types:               []string{"IPAddress"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "ports",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &IPPort{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return fmt.Sprintf("%s:%s/%s",
				tok.Get("address", "address"), tok.Get("port"), tok.Get("protocol"))
		},
	})
}
