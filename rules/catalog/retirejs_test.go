package catalog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules/catalog"
)

func runRetireJS(t *testing.T, name, version string) []model.Object {
	t.Helper()
	software := &domain.Software{Name: name, Version: version}
	out, err := catalog.RetireJS().Run([]model.Object{software}, map[string]string{})
	require.NoError(t, err)
	return out
}

func TestRetireJSVulnerableVersion(t *testing.T) {
	out := runRetireJS(t, "jQuery", "1.6.0")
	require.Len(t, out, 2)

	ft, ok := out[0].(*domain.CVEFindingType)
	require.True(t, ok)
	assert.Equal(t, "CVE-2011-4969", ft.ID)

	finding, ok := out[1].(*domain.Finding)
	require.True(t, ok)
	assert.Equal(t, model.PrimaryKey(ft), finding.FindingType)
	assert.Equal(t, "Software|jQuery|1.6.0|", string(finding.OOI))
}

func TestRetireJSVersionBoundaries(t *testing.T) {
	tests := []struct {
		version string
		matched bool
	}{
		{version: "1.0.0", matched: true},  // atOrAbove is inclusive
		{version: "1.6.2", matched: true},
		{version: "1.6.3", matched: false}, // below is exclusive
		{version: "1.9.0", matched: false},
		{version: "0.9.0", matched: false}, // before atOrAbove
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			out := runRetireJS(t, "jquery", tt.version)
			if tt.matched {
				assert.Len(t, out, 2)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestRetireJSNormalizesNames(t *testing.T) {
	for _, name := range []string{"Angular.JS", "angular-js", "angularjs", "ANGULAR JS"} {
		out := runRetireJS(t, name, "1.7.9")
		assert.Len(t, out, 2, name)
	}
}

func TestRetireJSShortVersionForm(t *testing.T) {
	out := runRetireJS(t, "jquery", "1.6")
	assert.Len(t, out, 2)
}

func TestRetireJSWithoutCVEUsesRetireJSID(t *testing.T) {
	out := runRetireJS(t, "bootstrap", "4.1.0")
	require.Len(t, out, 2)
	ft, ok := out[0].(*domain.RetireJSFindingType)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(ft.ID, "RetireJS-bootstrap-"))
	assert.Equal(t, domain.SeverityMedium, ft.RiskSeverity)

	// Identical input derives the identical id.
	again := runRetireJS(t, "bootstrap", "4.1.0")
	require.Len(t, again, 2)
	assert.Equal(t, model.PrimaryKey(out[0]), model.PrimaryKey(again[0]))
}

func TestRetireJSUnknownSoftware(t *testing.T) {
	assert.Empty(t, runRetireJS(t, "left-pad", "1.3.0"))
	assert.Empty(t, runRetireJS(t, "jquery", ""))
	assert.Empty(t, runRetireJS(t, "jquery", "not-a-version"))
}
