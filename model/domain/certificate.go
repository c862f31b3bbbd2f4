package domain

import (
	"time"

	"github.com/openkat/octopoes/model"
)

// X509Certificate is a served TLS certificate, keyed by issuer and serial
// number. The issuer may be absent on self-signed or malformed chains, in
// which case the key part is empty.
type X509Certificate struct {
	model.Meta
	Subject      string          `json:"subject,omitempty"`
	Issuer       string          `json:"issuer,omitempty"`
	ValidFrom    time.Time       `json:"valid_from"`
	ValidUntil   time.Time       `json:"valid_until"`
	SerialNumber string          `json:"serial_number"`
	SignedBy     model.Reference `json:"signed_by,omitempty"`
}

func (X509Certificate) ObjectType() string { return "X509Certificate" }

func (c X509Certificate) NaturalKeyParts() []string {
	return []string{c.Issuer, c.SerialNumber}
}

func (c X509Certificate) Relations() map[string]model.Reference {
	if c.SignedBy.IsZero() {
		return nil
	}
	return map[string]model.Reference{"signed_by": c.SignedBy}
}

// Expired reports whether the certificate is past its validity window at
// the given time.
func (c X509Certificate) Expired(at time.Time) bool {
	return at.After(c.ValidUntil)
}

func registerCertificate(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:       "X509Certificate",
		NaturalKey: []string{"issuer", "serial_number"},
		Relations: map[string]model.Relation{
			"signed_by": {
				Types:               []string{"X509Certificate"},
				Optional:            true,
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "signed_certificates",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &X509Certificate{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return "certificate " + tok.Get("serial_number")
		},
	})
}
