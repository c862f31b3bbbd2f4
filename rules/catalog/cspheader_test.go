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

func cspFixture(headers map[string]string) (model.Object, []model.Object) {
	website := model.Reference("Website|internet|1.1.1.1|tcp|80|http|internet|example.com")
	webURL := model.Reference("HostnameHTTPURL|http|internet|example.com|80|/")
	resource := &domain.HTTPResource{Website: website, WebURL: webURL}

	var additional []model.Object
	for key, value := range headers {
		additional = append(additional, &domain.HTTPHeader{
			Resource: model.PrimaryKey(resource),
			Key:      key,
			Value:    value,
		})
	}
	return resource, additional
}

func runCSP(t *testing.T, headers map[string]string) []model.Object {
	t.Helper()
	resource, additional := cspFixture(headers)
	out, err := catalog.CheckCSPHeader().Run(resource, additional, map[string]string{})
	require.NoError(t, err)
	return out
}

func cspDescription(t *testing.T, out []model.Object) string {
	t.Helper()
	require.Len(t, out, 2)
	ft, ok := out[0].(*domain.KATFindingType)
	require.True(t, ok)
	assert.Equal(t, "KAT-CSP-VULNERABILITIES", ft.ID)
	finding, ok := out[1].(*domain.Finding)
	require.True(t, ok)
	return finding.Description
}

func TestCheckCSPHeaderCleanPolicy(t *testing.T) {
	out := runCSP(t, map[string]string{
		"content-type":            "text/html",
		"content-security-policy": "frame-ancestors 'self'; default-src 'self'; script-src 'self'; frame-src 'self'",
	})
	assert.Empty(t, out)
}

func TestCheckCSPHeaderMissingFrameAncestors(t *testing.T) {
	out := runCSP(t, map[string]string{
		"content-type":            "text/html",
		"content-security-policy": "default-src 'self'",
	})
	description := cspDescription(t, out)
	assert.Equal(t, "List of CSP findings:\n 1. frame-ancestors has not been defined.", description)
}

func TestCheckCSPHeaderNoHeader(t *testing.T) {
	assert.Empty(t, runCSP(t, map[string]string{"content-type": "text/html"}))
	assert.Empty(t, runCSP(t, nil))
}

func TestCheckCSPHeaderNonXSSCapable(t *testing.T) {
	out := runCSP(t, map[string]string{
		"content-type":            "application/json",
		"content-security-policy": "default-src http://example.com",
	})
	assert.Empty(t, out)
}

func TestCheckCSPHeaderMissingContentTypeAssumesCapable(t *testing.T) {
	out := runCSP(t, map[string]string{
		"content-security-policy": "default-src 'self' http://example.com; frame-ancestors 'self'",
	})
	description := cspDescription(t, out)
	assert.Contains(t, description, "Http should not be used")
}

func TestCheckCSPHeaderViolations(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "wildcard host",
			header: "default-src 'self'; frame-ancestors 'self'; img-src https://*.co",
			want:   "The wildcard * for the scheme and host part of any URL should never be used",
		},
		{
			name:   "unsafe inline",
			header: "default-src 'self'; script-src 'self' unsafe-inline; frame-ancestors 'self'",
			want:   "unsafe-inline, unsafe-eval and unsafe-hashes should not be used",
		},
		{
			name:   "missing frame-src fallback",
			header: "script-src example.com; frame-ancestors 'self'",
			want:   "frame-src has not been defined or does not have a fallback.",
		},
		{
			name:   "missing script-src fallback",
			header: "frame-src example.com; frame-ancestors 'self'",
			want:   "script-src has not been defined or does not have a fallback.",
		},
		{
			name:   "missing default-src",
			header: "script-src example.com; frame-src example.com; frame-ancestors 'self'",
			want:   "default-src has not been defined.",
		},
		{
			name:   "deprecated directive",
			header: "default-src 'self'; frame-ancestors 'self'; block-all-mixed-content",
			want:   "Deprecated CSP directive found: block-all-mixed-content",
		},
		{
			name:   "report-uri",
			header: "default-src 'self'; frame-ancestors 'self'; report-uri https://report.example.com",
			want:   "report-uri is superseded by report-to",
		},
		{
			name:   "directive without value",
			header: "default-src 'self'; frame-ancestors 'self'; sandbox",
			want:   "CSP setting has no value.",
		},
		{
			name:   "data in script-src",
			header: "default-src 'self'; frame-ancestors 'self'; script-src data:",
			want:   "'data:' should not be used in the value of default-src, object-src and script-src",
		},
		{
			name:   "bare wildcard source",
			header: "default-src 'self'; frame-ancestors 'self'; img-src *",
			want:   "A wildcard source should not be used in the value of any type",
		},
		{
			name:   "blanket protocol source",
			header: "default-src 'self'; frame-ancestors 'self'; img-src https:",
			want:   "a blanket protocol source should not be used",
		},
		{
			name:   "private address",
			header: "default-src 'self'; frame-ancestors 'self'; connect-src 192.168.1.10",
			want:   "Private, local, reserved, multicast, loopback ips should not be allowed",
		},
		{
			name:   "default-src without self or none",
			header: "default-src example.com; frame-ancestors 'self'",
			want:   "default-src has not been correctly defined.",
		},
		{
			name:   "frame-ancestors with invalid source",
			header: "default-src 'self'; frame-ancestors !!",
			want:   "frame-ancestors has not been correctly defined.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runCSP(t, map[string]string{
				"content-type":            "text/html",
				"content-security-policy": tt.header,
			})
			description := cspDescription(t, out)
			assert.Contains(t, description, tt.want)
		})
	}
}

func TestCheckCSPHeaderNumbersFindings(t *testing.T) {
	out := runCSP(t, map[string]string{
		"content-type":            "text/html",
		"content-security-policy": "default-src example.com",
	})
	description := cspDescription(t, out)
	assert.True(t, strings.HasPrefix(description, "List of CSP findings:\n 1. "))
	assert.Contains(t, description, "\n 2. ")
}
