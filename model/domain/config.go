package domain

import (
	"encoding/json"
	"strconv"

	"github.com/openkat/octopoes/model"
)

// Config attaches rule parameters to an object in the graph, keyed by the
// subject's full reference and the rule id it tunes. Storing tuning as an
// object means a parameter change re-triggers the rules that consume it.
type Config struct {
	model.Meta
	OOI    model.Reference   `json:"ooi"`
	BitID  string            `json:"bit_id"`
	Config map[string]string `json:"config,omitempty"`
}

func (Config) ObjectType() string { return "Config" }

func (c Config) NaturalKeyParts() []string {
	return []string{string(c.OOI), c.BitID}
}

func (c Config) Relations() map[string]model.Reference {
	return map[string]model.Reference{"ooi": c.OOI}
}

// Get returns a setting value and whether it was present.
func (c Config) Get(key string) (string, bool) {
	v, ok := c.Config[key]
	return v, ok
}

// GetInt returns an integer setting, or the fallback when the key is
// absent or not a number.
func (c Config) GetInt(key string, fallback int) int {
	v, ok := c.Config[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetBool returns a boolean setting, or the fallback when the key is
// absent or not parseable.
func (c Config) GetBool(key string, fallback bool) bool {
	v, ok := c.Config[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// GetList returns a setting stored as a JSON array of strings, or the
// fallback when absent or malformed.
func (c Config) GetList(key string, fallback []string) []string {
	v, ok := c.Config[key]
	if !ok {
		return fallback
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return fallback
	}
	return out
}

func registerConfig(r *model.Registry) {
	r.MustRegister(&model.Descriptor{
		Name: "Config",
		Relations: map[string]model.Relation{
			"ooi": {
				Types:       []string{model.AnyObjectType},
				ReverseName: "configs",
			},
		},
		Traversable: false,
		New:         func() model.Object { return &Config{} },
	})
}
