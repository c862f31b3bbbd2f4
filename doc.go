// Package octopoes models a network under scrutiny as a typed graph of
// objects of interest and keeps that graph consistent: every write
// triggers scan-profile inheritance and a run of the derivation rules to
// fixed point.
//
// # Core Concepts
//
// The module is organized around a few key concepts:
//
//   - Objects: typed entities identified by a compound natural key, such
//     as "Hostname|internet|example.com"
//   - References: the string form of an object's primary key, used for
//     all cross-object links
//   - Scan profiles: per-object clearance levels (0-4) that are either
//     declared by a user or inherited over relations
//   - Origins: provenance records tying a set of objects to the method
//     that produced them; re-running a method replaces its result set
//   - Rules: pure functions (bits, nibbles, normalizers) that derive new
//     objects, typically findings, from existing ones
//
// # Architecture
//
// The packages form layers:
//
//   - model, model/domain: type registry and the concrete taxonomy
//   - path: the relation-path query language
//   - storage: the bitemporal repository contract with in-memory,
//     SQLite and Redis-cached implementations
//   - clearance: the scan-profile inheritance calculator
//   - rules, rules/catalog: the derivation engine and the built-in rules
//
// # Getting Started
//
// Create a Service over a repository and declare an object:
//
//	import (
//		"github.com/openkat/octopoes"
//		"github.com/openkat/octopoes/model/domain"
//		"github.com/openkat/octopoes/storage"
//	)
//
//	svc, err := octopoes.New(storage.NewMemStore(domain.Types()))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	network := &domain.Network{Name: "internet"}
//	if err := svc.Declare(ctx, time.Now(), network, model.ScanLevel(2)); err != nil {
//		log.Fatal(err)
//	}
//
// Declared objects propagate clearance to their neighbors, rules run on
// everything that cleared their scan threshold, and derived findings
// appear in the graph with inference origins. Reads are anchored at a
// valid time, so historical states stay queryable:
//
//	obj, err := svc.Get(ctx, lastWeek, model.PrimaryKey(network))
//
// # Extending the Rule Catalog
//
// Register additional rules on a fresh catalog and pass it in:
//
//	cat := catalog.Default()
//	cat.AddBit(&rules.BitDefinition{
//		ID:          "my_check",
//		TriggerType: "Hostname",
//		Run:         runMyCheck,
//	})
//	svc, err := octopoes.New(repo, octopoes.WithCatalog(cat))
package octopoes
