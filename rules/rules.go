// Package rules implements the derivation engine: pure rules that consume
// objects from the graph and produce derived objects, most prominently
// findings. Rules never talk to the network or the clock; everything they
// need arrives as arguments, which is what makes derivation replayable at
// any valid time.
//
// Three rule kinds exist. Bits react to one trigger object plus a set of
// related objects gathered along relation paths. Nibbles take a named
// signature where optional arguments may be absent. Normalizers turn raw
// scanner output into objects and sit at the edge of the system rather
// than in the derivation loop.
package rules

import (
	"errors"
	"fmt"

	"github.com/openkat/octopoes/model"
)

// ErrRuleNotFound indicates an unknown rule id.
var ErrRuleNotFound = errors.New("rule not found")

// RuleError wraps a failure of a single rule invocation. The engine
// isolates these: one failing rule never stops a derivation round.
type RuleError struct {
	Op      string
	Rule    string
	Trigger model.Reference
	Err     error
}

func (e *RuleError) Error() string {
	if e.Trigger != "" {
		return fmt.Sprintf("%s: rule %s on %s: %v", e.Op, e.Rule, e.Trigger, e.Err)
	}
	return fmt.Sprintf("%s: rule %s: %v", e.Op, e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// BitParameter declares an extra input of a bit: the objects of the given
// type reachable from the trigger along the relation path. The path is
// anchored on the trigger's type.
type BitParameter struct {
	Type string
	Path string
}

// BitDefinition is a derivation rule triggered by one object type.
type BitDefinition struct {
	// ID names the rule; it doubles as the origin method of its results.
	ID string

	// TriggerType is the object type the bit consumes. Abstract types
	// trigger on every concrete subtype.
	TriggerType string

	// Parameters are the additional inputs gathered per trigger.
	Parameters []BitParameter

	// MinScanLevel gates the rule on the trigger's clearance. Zero runs
	// the rule on everything.
	MinScanLevel model.ScanLevel

	// Run derives objects from the trigger and its gathered parameters.
	// cfg carries the merged rule settings; it is never nil. The result
	// replaces everything this rule previously derived from this
	// trigger.
	Run func(trigger model.Object, additional []model.Object, cfg map[string]string) ([]model.Object, error)
}

// NibbleParameter is one named slot of a nibble signature.
type NibbleParameter struct {
	Name string
	Type string
	// Path locates the argument relative to the first parameter, which
	// is always the trigger itself and has an empty path.
	Path string
	// Optional slots receive nil when no object is found; required slots
	// suppress the invocation instead.
	Optional bool
}

// NibbleDefinition is a derivation rule with a named, partially optional
// signature. The presence or absence of an optional argument is signal:
// a missing-SPF rule fires exactly when the SPF slot is nil.
type NibbleDefinition struct {
	ID           string
	Signature    []NibbleParameter
	MinScanLevel model.ScanLevel

	// Run receives the arguments in signature order; optional absent
	// slots are nil.
	Run func(args []model.Object, cfg map[string]string) ([]model.Object, error)
}

// TriggerType returns the type of the nibble's first slot.
func (d *NibbleDefinition) TriggerType() string {
	if len(d.Signature) == 0 {
		return ""
	}
	return d.Signature[0].Type
}

// NormalizerMeta describes the provenance of a raw document.
type NormalizerMeta struct {
	// Source is the object the raw document was produced about.
	Source model.Reference
	// MimeType tags the document format, e.g. "application/json".
	MimeType string
}

// NormalizationError indicates a malformed raw document. A normalizer
// that fails emits nothing: partial yields would leave half-linked
// objects in the graph.
type NormalizationError struct {
	Normalizer string
	Reason     string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizer %s: %s", e.Normalizer, e.Reason)
}

// NormalizerDefinition turns raw scanner output into objects.
type NormalizerDefinition struct {
	ID        string
	MimeTypes []string
	Run       func(raw []byte, meta NormalizerMeta) ([]model.Object, error)
}

// Catalog holds the registered rules. Registration happens at startup;
// the catalog is read-only afterwards.
type Catalog struct {
	bits        map[string]*BitDefinition
	nibbles     map[string]*NibbleDefinition
	normalizers map[string]*NormalizerDefinition
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		bits:        make(map[string]*BitDefinition),
		nibbles:     make(map[string]*NibbleDefinition),
		normalizers: make(map[string]*NormalizerDefinition),
	}
}

// AddBit registers a bit, panicking on a duplicate id. Rule ids are
// startup-time constants.
func (c *Catalog) AddBit(d *BitDefinition) {
	if _, ok := c.bits[d.ID]; ok {
		panic(fmt.Sprintf("duplicate bit %s", d.ID))
	}
	c.bits[d.ID] = d
}

// AddNibble registers a nibble, panicking on a duplicate id.
func (c *Catalog) AddNibble(d *NibbleDefinition) {
	if _, ok := c.nibbles[d.ID]; ok {
		panic(fmt.Sprintf("duplicate nibble %s", d.ID))
	}
	c.nibbles[d.ID] = d
}

// AddNormalizer registers a normalizer, panicking on a duplicate id.
func (c *Catalog) AddNormalizer(d *NormalizerDefinition) {
	if _, ok := c.normalizers[d.ID]; ok {
		panic(fmt.Sprintf("duplicate normalizer %s", d.ID))
	}
	c.normalizers[d.ID] = d
}

// Bits returns the registered bits keyed by id.
func (c *Catalog) Bits() map[string]*BitDefinition { return c.bits }

// Nibbles returns the registered nibbles keyed by id.
func (c *Catalog) Nibbles() map[string]*NibbleDefinition { return c.nibbles }

// Normalizer returns the normalizer with the given id.
func (c *Catalog) Normalizer(id string) (*NormalizerDefinition, error) {
	d, ok := c.normalizers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return d, nil
}
