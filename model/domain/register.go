package domain

import (
	"sync"

	"github.com/openkat/octopoes/model"
)

var (
	defaultRegistry     *model.Registry
	defaultRegistryOnce sync.Once
)

// NewRegistry builds a fresh registry holding the full object taxonomy.
// Tests that add private types should build their own registry rather than
// mutate the shared one.
func NewRegistry() *model.Registry {
	r := model.NewRegistry()
	registerNetwork(r)
	registerDNS(r)
	registerEmail(r)
	registerService(r)
	registerCertificate(r)
	registerWeb(r)
	registerSoftware(r)
	registerFindings(r)
	registerConfig(r)
	return r
}

// Types returns the process-wide registry, built once on first use.
func Types() *model.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
