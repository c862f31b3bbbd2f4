// Package domain provides the concrete object taxonomy for the scan graph:
// networks, addresses and ports, DNS zones and records, email security
// records, web resources, services, software, certificates, findings and
// per-object rule configuration.
//
// Each type implements model.Object and has a matching metadata descriptor
// registered by NewRegistry. Types() returns a process-wide registry built
// once on first use.
package domain
