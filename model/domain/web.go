package domain

import (
	"fmt"

	"github.com/openkat/octopoes/model"
)

// WebScheme is the URL scheme of a web resource.
type WebScheme string

const (
	SchemeHTTP  WebScheme = "http"
	SchemeHTTPS WebScheme = "https"
)

// Website is an HTTP(S) site: a hostname served by a concrete ip_service,
// optionally with the certificate it presents.
type Website struct {
	model.Meta
	IPService   model.Reference `json:"ip_service"`
	Hostname    model.Reference `json:"hostname"`
	Certificate model.Reference `json:"certificate,omitempty"`
}

func (Website) ObjectType() string { return "Website" }

func (w Website) NaturalKeyParts() []string {
	return []string{w.IPService.NaturalKey(), w.Hostname.NaturalKey()}
}

func (w Website) Relations() map[string]model.Reference {
	rels := map[string]model.Reference{
		"ip_service": w.IPService,
		"hostname":   w.Hostname,
	}
	if !w.Certificate.IsZero() {
		rels["certificate"] = w.Certificate
	}
	return rels
}

// WebURL carries the fields shared by the URL types.
type WebURL struct {
	model.Meta
	Network model.Reference `json:"network"`
	Scheme  WebScheme       `json:"scheme"`
	Port    int             `json:"port"`
	Path    string          `json:"path"`
}

// HostnameHTTPURL is a URL whose authority is a hostname.
type HostnameHTTPURL struct {
	WebURL
	Netloc model.Reference `json:"netloc"`
}

func (HostnameHTTPURL) ObjectType() string { return "HostnameHTTPURL" }

func (u HostnameHTTPURL) NaturalKeyParts() []string {
	return []string{string(u.Scheme), u.Netloc.NaturalKey(), model.KeyPart(u.Port), u.Path}
}

func (u HostnameHTTPURL) Relations() map[string]model.Reference {
	return map[string]model.Reference{"network": u.Network, "netloc": u.Netloc}
}

// IPAddressHTTPURL is a URL whose authority is a bare address.
type IPAddressHTTPURL struct {
	WebURL
	Netloc model.Reference `json:"netloc"`
}

func (IPAddressHTTPURL) ObjectType() string { return "IPAddressHTTPURL" }

func (u IPAddressHTTPURL) NaturalKeyParts() []string {
	return []string{string(u.Scheme), u.Netloc.NaturalKey(), model.KeyPart(u.Port), u.Path}
}

func (u IPAddressHTTPURL) Relations() map[string]model.Reference {
	return map[string]model.Reference{"network": u.Network, "netloc": u.Netloc}
}

// HTTPResource is a URL as served by a specific website. The same URL
// served from two addresses is two resources.
type HTTPResource struct {
	model.Meta
	Website model.Reference `json:"website"`
	WebURL  model.Reference `json:"web_url"`
}

func (HTTPResource) ObjectType() string { return "HTTPResource" }

func (r HTTPResource) NaturalKeyParts() []string {
	return []string{r.Website.NaturalKey(), r.WebURL.NaturalKey()}
}

func (r HTTPResource) Relations() map[string]model.Reference {
	return map[string]model.Reference{"website": r.Website, "web_url": r.WebURL}
}

// HTTPHeader is a single response header observed on a resource.
type HTTPHeader struct {
	model.Meta
	Resource model.Reference `json:"resource"`
	Key      string          `json:"key"`
	Value    string          `json:"value"`
}

func (HTTPHeader) ObjectType() string { return "HTTPHeader" }

func (h HTTPHeader) NaturalKeyParts() []string {
	return []string{h.Resource.NaturalKey(), h.Key}
}

func (h HTTPHeader) Relations() map[string]model.Reference {
	return map[string]model.Reference{"resource": h.Resource}
}

// URL is a raw URL string found somewhere in scope, before it is resolved
// into a typed web URL.
type URL struct {
	model.Meta
	Network model.Reference `json:"network"`
	Raw     string          `json:"raw"`
	WebURL  model.Reference `json:"web_url,omitempty"`
}

func (URL) ObjectType() string { return "URL" }

func (u URL) NaturalKeyParts() []string {
	return []string{u.Network.NaturalKey(), u.Raw}
}

func (u URL) Relations() map[string]model.Reference {
	rels := map[string]model.Reference{"network": u.Network}
	if !u.WebURL.IsZero() {
		rels["web_url"] = u.WebURL
	}
	return rels
}

// HTTPHeaderURL is a URL extracted from a header value, such as a Location
// redirect target.
type HTTPHeaderURL struct {
	model.Meta
	Header model.Reference `json:"header"`
	URL    model.Reference `json:"url"`
}

func (HTTPHeaderURL) ObjectType() string { return "HTTPHeaderURL" }

func (h HTTPHeaderURL) NaturalKeyParts() []string {
	return []string{h.Header.NaturalKey(), h.URL.NaturalKey()}
}

func (h HTTPHeaderURL) Relations() map[string]model.Reference {
	return map[string]model.Reference{"header": h.Header, "url": h.URL}
}

// HTTPHeaderHostname is a hostname extracted from a header value.
type HTTPHeaderHostname struct {
	model.Meta
	Header   model.Reference `json:"header"`
	Hostname model.Reference `json:"hostname"`
}

func (HTTPHeaderHostname) ObjectType() string { return "HTTPHeaderHostname" }

func (h HTTPHeaderHostname) NaturalKeyParts() []string {
	return []string{h.Header.NaturalKey(), h.Hostname.NaturalKey()}
}

func (h HTTPHeaderHostname) Relations() map[string]model.Reference {
	return map[string]model.Reference{"header": h.Header, "hostname": h.Hostname}
}

func registerWeb(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name:       "Website",
		NaturalKey: []string{"ip_service", "hostname"},
		Relations: map[string]model.Relation{
			"ip_service": {
				Types:               []string{"IPService"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "websites",
			},
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "websites",
			},
			"certificate": {
				Types:             []string{"X509Certificate"},
				Optional:          true,
				MaxIssueScanLevel: model.Cap(1),
				ReverseName:       "served_by",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &Website{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return fmt.Sprintf("%s://%s",
				tok.Get("ip_service", "service", "name"), tok.Get("hostname", "name"))
		},
	})

	webURLKey := []string{"scheme", "netloc", "port", "path"}
	urlHR := func(reg *model.Registry, ref model.Reference) string {
		tok, err := reg.Tokenize(ref)
		if err != nil {
			return string(ref)
		}
		netloc := tok.Get("netloc", "name")
		if netloc == "" {
			netloc = tok.Get("netloc", "address")
		}
		return fmt.Sprintf("%s://%s:%s%s",
			tok.Get("scheme"), netloc, tok.Get("port"), tok.Get("path"))
	}
	r.MustRegister(&model.Descriptor{
		Name:       "WebURL",
		NaturalKey: webURLKey,
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
		},
		Traversable: true,
	})
	r.MustRegister(&model.Descriptor{
		Name:       "HostnameHTTPURL",
		Parent:     "WebURL",
		NaturalKey: webURLKey,
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
			"netloc": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(2),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "urls",
			},
		},
		Traversable:   true,
		New:           func() model.Object { return &HostnameHTTPURL{} },
		HumanReadable: urlHR,
	})
	r.MustRegister(&model.Descriptor{
		Name:       "IPAddressHTTPURL",
		Parent:     "WebURL",
		NaturalKey: webURLKey,
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
			"netloc": {
				Types:               []string{"IPAddress"},
				MaxIssueScanLevel:   model.Cap(1),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "urls",
			},
		},
		Traversable:   true,
		New:           func() model.Object { return &IPAddressHTTPURL{} },
		HumanReadable: urlHR,
	})
	r.MustRegister(&model.Descriptor{
		Name:       "HTTPResource",
		NaturalKey: []string{"website", "web_url"},
		Relations: map[string]model.Relation{
			"website": {
				Types:               []string{"Website"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "resources",
			},
			"web_url": {
				Types:               []string{"WebURL"},
				MaxIssueScanLevel:   model.Cap(1),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "resources",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &HTTPResource{} },
	})
	r.MustRegister(&model.Descriptor{
		Name:       "HTTPHeader",
		NaturalKey: []string{"resource", "key"},
		Relations: map[string]model.Relation{
			"resource": {
				Types:               []string{"HTTPResource"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(4),
				ReverseName:         "headers",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &HTTPHeader{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return tok.Get("key")
		},
	})
	r.MustRegister(&model.Descriptor{
		Name:       "URL",
		NaturalKey: []string{"network", "raw"},
		Relations: map[string]model.Relation{
			"network": {Types: []string{"Network"}},
			"web_url": {
				Types:             []string{"WebURL"},
				Optional:          true,
				MaxIssueScanLevel: model.Cap(2),
				ReverseName:       "raw_urls",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &URL{} },
		HumanReadable: func(reg *model.Registry, ref model.Reference) string {
			tok, err := reg.Tokenize(ref)
			if err != nil {
				return string(ref)
			}
			return tok.Get("raw")
		},
	})
	r.MustRegister(&model.Descriptor{
		Name:       "HTTPHeaderURL",
		NaturalKey: []string{"header", "url"},
		Relations: map[string]model.Relation{
			"header": {
				Types:               []string{"HTTPHeader"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(1),
				ReverseName:         "urls",
			},
			"url": {
				Types:               []string{"URL"},
				MaxIssueScanLevel:   model.Cap(1),
				MaxInheritScanLevel: model.Cap(0),
				ReverseName:         "found_in_headers",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &HTTPHeaderURL{} },
	})
	r.MustRegister(&model.Descriptor{
		Name:       "HTTPHeaderHostname",
		NaturalKey: []string{"header", "hostname"},
		Relations: map[string]model.Relation{
			"header": {
				Types:               []string{"HTTPHeader"},
				MaxIssueScanLevel:   model.Cap(0),
				MaxInheritScanLevel: model.Cap(1),
				ReverseName:         "hostnames",
			},
			"hostname": {
				Types:               []string{"Hostname"},
				MaxIssueScanLevel:   model.Cap(1),
				MaxInheritScanLevel: model.Cap(0),
				ReverseName:         "found_in_headers",
			},
		},
		Traversable: true,
		New:         func() model.Object { return &HTTPHeaderHostname{} },
	})
}
