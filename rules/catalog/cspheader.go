package catalog

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/rules"
)

// xssCapableTypes lists the content types a browser will execute script
// in. A CSP on anything else is inert, so those resources are skipped.
var xssCapableTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"application/xml":       true,
	"text/xml":              true,
	"image/svg+xml":         true,
}

var deprecatedDirectives = []string{"block-all-mixed-content", "prefetch-src"}

var (
	nonDecimal = regexp.MustCompile(`[^\d.]+`)

	// A wildcard in the host part: something, "*.", a 2-3 char TLD,
	// ended by whitespace, ";", a port or the end of the header.
	wildcardHost = regexp.MustCompile(`\S+\*\.\S{2,3}(\s+|$|;|:\d+)`)

	// Loose domain shape used to accept a source value.
	domainShape = regexp.MustCompile(`\S+\.\S{2,3}(\s+|$|;|:\d+)`)
)

var sourceKeywords = map[string]bool{
	"'none'":        true,
	"'self'":        true,
	"data:":         true,
	"unsafe-inline": true,
	"unsafe-eval":   true,
	"unsafe-hashes": true,
	"report-sample": true,
}

// CheckCSPHeader inspects the Content-Security-Policy of an HTTP resource
// and aggregates every weakness it finds into one numbered finding.
func CheckCSPHeader() *rules.BitDefinition {
	return &rules.BitDefinition{
		ID:          "check_csp_header",
		TriggerType: "HTTPResource",
		Parameters: []rules.BitParameter{
			{Type: "HTTPHeader", Path: "<resource [is HTTPHeader]"},
		},
		Run: runCheckCSPHeader,
	}
}

func runCheckCSPHeader(trigger model.Object, additional []model.Object, cfg map[string]string) ([]model.Object, error) {
	if len(additional) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(additional))
	for _, obj := range additional {
		if h, ok := obj.(*domain.HTTPHeader); ok {
			headers[strings.ToLower(h.Key)] = h.Value
		}
	}

	// Without a content type we cannot rule out script execution, so the
	// resource counts as XSS capable.
	if ct := headers["content-type"]; ct != "" && !isXSSCapable(ct) {
		return nil, nil
	}

	header := headers["content-security-policy"]
	if header == "" {
		return nil, nil
	}

	messages := checkCSP(header)
	if len(messages) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("List of CSP findings:")
	for i, msg := range messages {
		fmt.Fprintf(&b, "\n %d. %s", i+1, msg)
	}
	return katFinding(model.PrimaryKey(trigger), "KAT-CSP-VULNERABILITIES", b.String()), nil
}

func checkCSP(header string) []string {
	var messages []string

	if strings.Contains(header, "http://") {
		messages = append(messages, "Http should not be used in the CSP settings of an HTTP Header.")
	}
	if wildcardHost.MatchString(header) {
		messages = append(messages,
			"The wildcard * for the scheme and host part of any URL should never be used in CSP settings.")
	}
	if strings.Contains(header, "unsafe-inline") ||
		strings.Contains(header, "unsafe-eval") ||
		strings.Contains(header, "unsafe-hashes") {
		messages = append(messages,
			"unsafe-inline, unsafe-eval and unsafe-hashes should not be used in the CSP settings of an HTTP Header.")
	}
	if !strings.Contains(header, "frame-src") &&
		!strings.Contains(header, "default-src") &&
		!strings.Contains(header, "child-src") {
		messages = append(messages, "frame-src has not been defined or does not have a fallback.")
	}
	if !strings.Contains(header, "script-src") && !strings.Contains(header, "default-src") {
		messages = append(messages, "script-src has not been defined or does not have a fallback.")
	}
	if !strings.Contains(header, "frame-ancestors") {
		messages = append(messages, "frame-ancestors has not been defined.")
	}
	if !strings.Contains(header, "default-src") {
		messages = append(messages, "default-src has not been defined.")
	}
	for _, directive := range deprecatedDirectives {
		if strings.Contains(header, directive) {
			messages = append(messages, fmt.Sprintf("Deprecated CSP directive found: %s", directive))
		}
	}
	if strings.Contains(header, "report-uri") {
		messages = append(messages, "Deprecated CSP directive found. report-uri is superseded by report-to: "+
			"https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Content-Security-Policy/report-uri")
	}

	for _, raw := range strings.Split(header, ";") {
		policy := strings.Fields(strings.TrimSpace(raw))
		if len(policy) < 2 {
			messages = append(messages, "CSP setting has no value.")
			continue
		}
		directive, sources := policy[0], policy[1:]

		switch directive {
		case "frame-src", "frame-ancestors":
			if !sourcesValid(sources) {
				messages = append(messages, fmt.Sprintf("%s has not been correctly defined.", directive))
			}
		case "default-src":
			if (!contains(policy, "'none'") && !contains(policy, "'self'")) || !sourcesValid(policy[2:]) {
				messages = append(messages, "default-src has not been correctly defined.")
			}
		}

		if directive == "default-src" || directive == "object-src" || directive == "script-src" {
			if contains(policy, "data:") {
				messages = append(messages,
					"'data:' should not be used in the value of default-src, object-src and script-src in the CSP settings.")
			}
		}

		if strings.HasSuffix(directive, "-uri") &&
			(contains(policy[2:], "unsafe-eval") ||
				contains(policy[2:], "unsafe-hashes") ||
				contains(policy[2:], "unsafe-inline") ||
				contains(policy[2:], "strict-dynamic")) {
			messages = append(messages, fmt.Sprintf("%s has illogical values.", directive))
		}

		if sources[0] == "*" {
			messages = append(messages,
				"A wildcard source should not be used in the value of any type in the CSP settings.")
		}
		if sources[0] == "http:" || sources[0] == "https:" {
			messages = append(messages,
				"a blanket protocol source should not be used in the value of any type in the CSP settings.")
		}
		for _, source := range sources {
			if !sourceIPGlobal(source) {
				messages = append(messages,
					"Private, local, reserved, multicast, loopback ips should not be allowed in the CSP settings.")
			}
		}
	}
	return messages
}

func isXSSCapable(contentType string) bool {
	main, _, _ := strings.Cut(contentType, ";")
	return xssCapableTypes[strings.ToLower(strings.TrimSpace(main))]
}

func sourcesValid(sources []string) bool {
	for _, value := range sources {
		if !domainShape.MatchString(value) && !sourceKeywords[value] {
			return false
		}
	}
	return true
}

// sourceIPGlobal reports whether the source, when it hides an IP address
// between its non-numeric characters, is a globally routable one. Sources
// without an address pass.
func sourceIPGlobal(source string) bool {
	ipStr := nonDecimal.ReplaceAllString(source, "")
	if ipStr == "" {
		return true
	}
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return true
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return false
	}
	return true
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
