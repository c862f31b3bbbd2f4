package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-semver/semver"

	_ "embed"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

//go:embed data/retirejs.json
var retireJSData []byte

// retireJSEntry is one library in the bundled vulnerability database.
type retireJSEntry struct {
	Vulnerabilities []retireJSVulnerability `json:"vulnerabilities"`
}

type retireJSVulnerability struct {
	AtOrAbove   string              `json:"atOrAbove,omitempty"`
	Below       string              `json:"below"`
	Severity    string              `json:"severity,omitempty"`
	Identifiers retireJSIdentifiers `json:"identifiers"`
}

type retireJSIdentifiers struct {
	CVE     []string `json:"CVE,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

var retireJSDB = sync.OnceValue(func() map[string]retireJSEntry {
	var db map[string]retireJSEntry
	if err := json.Unmarshal(retireJSData, &db); err != nil {
		panic(fmt.Sprintf("bundled retirejs database: %v", err))
	}
	return db
})

// RetireJS matches observed software versions against the bundled
// RetireJS vulnerability database and emits one finding pair per matched
// vulnerability.
func RetireJS() *rules.NibbleDefinition {
	return &rules.NibbleDefinition{
		ID: "retirejs",
		Signature: []rules.NibbleParameter{
			{Name: "software", Type: "Software"},
		},
		Run: runRetireJS,
	}
}

func runRetireJS(args []model.Object, cfg map[string]string) ([]model.Object, error) {
	software, ok := args[0].(*domain.Software)
	if !ok {
		return nil, fmt.Errorf("unexpected trigger type %s", args[0].ObjectType())
	}
	if software.Name == "" || software.Version == "" {
		return nil, nil
	}

	entry, ok := retireJSDB()[normalizeSoftwareName(software.Name)]
	if !ok {
		return nil, nil
	}
	version, err := parseLooseVersion(software.Version)
	if err != nil {
		return nil, nil
	}

	subject := model.PrimaryKey(software)
	var out []model.Object
	for _, vuln := range entry.Vulnerabilities {
		if !vuln.matches(version) {
			continue
		}
		description := vuln.Identifiers.Summary
		if description == "" {
			description = fmt.Sprintf("%s versions below %s are vulnerable", software.Name, vuln.Below)
		}
		if len(vuln.Identifiers.CVE) > 0 {
			for _, cve := range vuln.Identifiers.CVE {
				ft := domain.NewCVEFindingType(cve)
				out = append(out, ft, &domain.Finding{
					FindingType: model.PrimaryKey(ft),
					OOI:         subject,
					Description: description,
				})
			}
			continue
		}
		ft := &domain.RetireJSFindingType{FindingType: domain.FindingType{
			ID:           retireJSFindingID(software.Name, vuln),
			RiskSeverity: domain.ParseSeverity(vuln.Severity),
		}}
		out = append(out, ft, &domain.Finding{
			FindingType: model.PrimaryKey(ft),
			OOI:         subject,
			Description: description,
		})
	}
	return out, nil
}

func (v retireJSVulnerability) matches(version *semver.Version) bool {
	below, err := parseLooseVersion(v.Below)
	if err != nil {
		return false
	}
	if !version.LessThan(*below) {
		return false
	}
	if v.AtOrAbove != "" {
		atOrAbove, err := parseLooseVersion(v.AtOrAbove)
		if err != nil {
			return false
		}
		if version.LessThan(*atOrAbove) {
			return false
		}
	}
	return true
}

// normalizeSoftwareName maps reported names onto database keys: lowercase
// with separators stripped, so "jQuery", "jquery-ui" and "Angular.JS"
// line up with their entries.
func normalizeSoftwareName(name string) string {
	name = strings.ToLower(name)
	for _, sep := range []string{"-", "_", ".", " "} {
		name = strings.ReplaceAll(name, sep, "")
	}
	return name
}

// parseLooseVersion accepts the short version forms found in the wild,
// padding "1" and "1.6" out to full semver.
func parseLooseVersion(s string) (*semver.Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	switch strings.Count(s, ".") {
	case 0:
		s += ".0.0"
	case 1:
		s += ".0"
	}
	return semver.NewVersion(s)
}

// retireJSFindingID derives a stable id for database entries without a
// CVE assignment.
func retireJSFindingID(name string, v retireJSVulnerability) string {
	sum := sha1.Sum([]byte(v.Identifiers.Summary + "|" + v.AtOrAbove + "|" + v.Below))
	return fmt.Sprintf("RetireJS-%s-%s", normalizeSoftwareName(name), hex.EncodeToString(sum[:4]))
}
