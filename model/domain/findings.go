package domain

import (
	"strings"

	"github.com/openkat/octopoes/model"
)

// RiskSeverity is the qualitative severity of a finding type.
type RiskSeverity string

const (
	SeverityUnknown        RiskSeverity = "unknown"
	SeverityPending        RiskSeverity = "pending"
	SeverityRecommendation RiskSeverity = "recommendation"
	SeverityLow            RiskSeverity = "low"
	SeverityMedium         RiskSeverity = "medium"
	SeverityHigh           RiskSeverity = "high"
	SeverityCritical       RiskSeverity = "critical"
)

// severityOrder ranks severities from least to most severe. Unknown sorts
// below everything so unscored finding types never outrank scored ones.
var severityOrder = map[RiskSeverity]int{
	SeverityUnknown:        0,
	SeverityPending:        1,
	SeverityRecommendation: 2,
	SeverityLow:            3,
	SeverityMedium:         4,
	SeverityHigh:           5,
	SeverityCritical:       6,
}

// Valid reports whether the severity is a known level.
func (s RiskSeverity) Valid() bool {
	_, ok := severityOrder[s]
	return ok
}

// Compare orders two severities: negative when s is less severe than
// other, zero when equal, positive when more severe. An unknown string
// ranks below every valid severity.
func (s RiskSeverity) Compare(other RiskSeverity) int {
	return severityOrder[s] - severityOrder[other]
}

// ParseSeverity maps a free-form severity string to a RiskSeverity,
// defaulting to unknown.
func ParseSeverity(s string) RiskSeverity {
	sev := RiskSeverity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return SeverityUnknown
}

// DefaultRiskScore gives the default numeric score for a severity, used
// when a finding type has no score of its own. Nil for severities that
// carry no score.
func (s RiskSeverity) DefaultRiskScore() *float64 {
	var score float64
	switch s {
	case SeverityCritical:
		score = 10
	case SeverityHigh:
		score = 8.9
	case SeverityMedium:
		score = 6.9
	case SeverityLow:
		score = 3.9
	case SeverityRecommendation:
		score = 0.1
	default:
		return nil
	}
	return &score
}

// FindingType carries the fields shared by every finding-type catalog
// entry. Catalog entries are shared metadata, never traversed for
// clearance, and keyed solely by their id.
type FindingType struct {
	model.Meta
	ID             string       `json:"id"`
	Description    string       `json:"description,omitempty"`
	Source         string       `json:"source,omitempty"`
	Impact         string       `json:"impact,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
	RiskScore      *float64     `json:"risk_score,omitempty"`
	RiskSeverity   RiskSeverity `json:"risk_severity,omitempty"`
}

func (t FindingType) NaturalKeyParts() []string { return []string{t.ID} }

func (FindingType) Relations() map[string]model.Reference { return nil }

// InformationValues implements model.InformationValued.
func (t FindingType) InformationValues() []string { return []string{t.ID} }

// Score returns the effective numeric score: the explicit one when set,
// else the severity default.
func (t FindingType) Score() *float64 {
	if t.RiskScore != nil {
		return t.RiskScore
	}
	return t.RiskSeverity.DefaultRiskScore()
}

// ADRFindingType is an API design rule violation.
type ADRFindingType struct{ FindingType }

func (ADRFindingType) ObjectType() string { return "ADRFindingType" }

// CVEFindingType references a CVE entry. Use NewCVEFindingType to get the
// canonical uppercase id form.
type CVEFindingType struct{ FindingType }

func (CVEFindingType) ObjectType() string { return "CVEFindingType" }

// NewCVEFindingType builds a CVE finding type with the id uppercased, so
// "cve-2021-44228" and "CVE-2021-44228" are the same catalog entry.
func NewCVEFindingType(id string) *CVEFindingType {
	return &CVEFindingType{FindingType{ID: strings.ToUpper(id)}}
}

// CWEFindingType references a CWE weakness class.
type CWEFindingType struct{ FindingType }

func (CWEFindingType) ObjectType() string { return "CWEFindingType" }

// CAPECFindingType references a CAPEC attack pattern.
type CAPECFindingType struct{ FindingType }

func (CAPECFindingType) ObjectType() string { return "CAPECFindingType" }

// RetireJSFindingType references an entry in the RetireJS vulnerability
// database, with ids of the form RetireJS-<name>-<hash prefix>.
type RetireJSFindingType struct{ FindingType }

func (RetireJSFindingType) ObjectType() string { return "RetireJSFindingType" }

// SnykFindingType references a Snyk advisory.
type SnykFindingType struct{ FindingType }

func (SnykFindingType) ObjectType() string { return "SnykFindingType" }

// KATFindingType is a finding class defined by the platform's own rules,
// with KAT- prefixed ids.
type KATFindingType struct{ FindingType }

func (KATFindingType) ObjectType() string { return "KATFindingType" }

// Finding attaches a finding type to a subject object. The natural key
// carries the subject's full reference, so a finding on
// "Hostname|internet|example.com" and one on an IPPort with a colliding
// natural key never merge.
type Finding struct {
	model.Meta
	FindingType model.Reference `json:"finding_type"`
	OOI         model.Reference `json:"ooi"`
	Proof       string          `json:"proof,omitempty"`
	Description string          `json:"description,omitempty"`
	Reproduce   string          `json:"reproduce,omitempty"`
}

func (Finding) ObjectType() string { return "Finding" }

func (f Finding) NaturalKeyParts() []string {
	return []string{string(f.OOI), f.FindingType.NaturalKey()}
}

func (f Finding) Relations() map[string]model.Reference {
	return map[string]model.Reference{"finding_type": f.FindingType, "ooi": f.OOI}
}

// MutedFinding suppresses a finding from reporting without deleting it
// from the graph.
type MutedFinding struct {
	model.Meta
	Finding model.Reference `json:"finding"`
	Reason  string          `json:"reason,omitempty"`
}

func (MutedFinding) ObjectType() string { return "MutedFinding" }

func (m MutedFinding) NaturalKeyParts() []string {
	return []string{m.Finding.NaturalKey()}
}

func (m MutedFinding) Relations() map[string]model.Reference {
	return map[string]model.Reference{"finding": m.Finding}
}

func registerFindings(r *model.Registry) {
	ftHR := func(reg *model.Registry, ref model.Reference) string {
		tok, err := reg.Tokenize(ref)
		if err != nil {
			return string(ref)
		}
		return tok.Get("id")
	}
	r.MustRegister(&model.Descriptor{
		Name:             "FindingType",
		NaturalKey:       []string{"id"},
		InformationValue: []string{"id"},
		Traversable:      false,
	})
	for _, name := range []string{
		"ADRFindingType", "CVEFindingType", "CWEFindingType", "CAPECFindingType",
		"RetireJSFindingType", "SnykFindingType", "KATFindingType",
	} {
		ctor := findingTypeCtor(name)
		r.MustRegister(&model.Descriptor{
			Name:             name,
			Parent:           "FindingType",
			NaturalKey:       []string{"id"},
			InformationValue: []string{"id"},
			Traversable:      false,
			New:              ctor,
			HumanReadable:    ftHR,
		})
	}

	r.MustRegister(&model.Descriptor{
		Name: "Finding",
		Relations: map[string]model.Relation{
			"finding_type": {
				Types:       []string{"FindingType"},
				ReverseName: "findings",
			},
			"ooi": {
				Types:               []string{model.AnyObjectType},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "findings",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &Finding{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			key := ref.NaturalKey()
			at := strings.LastIndex(key, "|")
			if at < 0 {
				return key
			}
			target := model.Reference(key[:at])
			return key[at+1:] + " @ " + reg.HumanReadable(target)
		},
	})
	r.MustRegister(&model.Descriptor{
		Name: "MutedFinding",
		Relations: map[string]model.Relation{
			"finding": {
				Types:       []string{"Finding"},
				ReverseName: "mutes",
			},
		},
		Traversable: false,
		New:         func() model.Object { return &MutedFinding{} },
	})
}

func findingTypeCtor(name string) func() model.Object {
	switch name {
	case "ADRFindingType":
		return func() model.Object { return &ADRFindingType{} }
	case "CVEFindingType":
		return func() model.Object { return &CVEFindingType{} }
	case "CWEFindingType":
		return func() model.Object { return &CWEFindingType{} }
	case "CAPECFindingType":
		return func() model.Object { return &CAPECFindingType{} }
	case "RetireJSFindingType":
		return func() model.Object { return &RetireJSFindingType{} }
	case "SnykFindingType":
		return func() model.Object { return &SnykFindingType{} }
	default:
		return func() model.Object { return &KATFindingType{} }
	}
}
