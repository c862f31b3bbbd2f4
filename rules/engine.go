package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/path"
	"github.com/openkat/octopoes/storage"
)

const (
	// DefaultMaxRounds bounds the fixed-point loop. Rules deriving from
	// each other's output converge in a handful of rounds; hitting the
	// bound means a rule pair oscillates and is a bug worth surfacing.
	DefaultMaxRounds = 10

	instrumentationName = "github.com/openkat/octopoes/rules"
)

// Engine drives derivation: it applies every cataloged bit and nibble to
// the graph until no rule changes its output, isolating per-rule failures
// and recording each rule's results as an inference origin.
type Engine struct {
	repo    storage.Repository
	reg     *model.Registry
	catalog *Catalog
	config  ConfigSource
	mute    *MuteFilter
	log     *slog.Logger

	maxRounds int
	timeout   time.Duration

	tracer   trace.Tracer
	runs     metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram

	// lastResults remembers each origin's result set across rounds, which
	// is how the fixed point is detected.
	lastResults map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfigSource sets the source of per-rule settings.
func WithConfigSource(src ConfigSource) Option {
	return func(e *Engine) { e.config = src }
}

// WithMuteFilter pairs matching findings with MutedFinding objects.
func WithMuteFilter(f *MuteFilter) Option {
	return func(e *Engine) { e.mute = f }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMaxRounds overrides the fixed-point round bound.
func WithMaxRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// WithTimeout bounds a whole Run invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine builds an engine over the repository and rule catalog.
func NewEngine(repo storage.Repository, reg *model.Registry, catalog *Catalog, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		reg:         reg,
		catalog:     catalog,
		config:      StaticSource{},
		log:         slog.Default(),
		maxRounds:   DefaultMaxRounds,
		tracer:      otel.Tracer(instrumentationName),
		lastResults: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter(instrumentationName)
	e.runs, _ = meter.Int64Counter("rules.invocations",
		metric.WithDescription("Rule invocations, by rule id"))
	e.failures, _ = meter.Int64Counter("rules.failures",
		metric.WithDescription("Failed rule invocations, by rule id"))
	e.duration, _ = meter.Float64Histogram("rules.run.duration",
		metric.WithDescription("Duration of whole derivation runs"),
		metric.WithUnit("s"))
	return e
}

// Run derives to a fixed point at the given valid time: rounds repeat
// until no rule's result set changes. Individual rule failures are logged
// and skipped; Run only fails on storage errors.
func (e *Engine) Run(ctx context.Context, valid time.Time) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	invocation := uuid.NewString()
	log := e.log.With(slog.String("invocation", invocation))
	ctx, span := e.tracer.Start(ctx, "rules.Run",
		trace.WithAttributes(attribute.String("invocation", invocation)))
	defer span.End()

	start := time.Now()
	defer func() {
		e.duration.Record(ctx, time.Since(start).Seconds())
	}()

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("derivation aborted in round %d: %w", round, err)
		}
		changed, err := e.runRound(ctx, valid, log, round)
		if err != nil {
			return err
		}
		if !changed {
			log.InfoContext(ctx, "derivation converged", slog.Int("rounds", round))
			return nil
		}
		if round >= e.maxRounds {
			log.WarnContext(ctx, "derivation did not converge", slog.Int("rounds", round))
			return nil
		}
	}
}

func (e *Engine) runRound(ctx context.Context, valid time.Time, log *slog.Logger, round int) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "rules.round",
		trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	changed := false

	for _, id := range sortedKeys(e.catalog.Bits()) {
		def := e.catalog.Bits()[id]
		triggers, err := e.listTriggers(ctx, valid, def.TriggerType)
		if err != nil {
			return false, err
		}
		for _, trigger := range triggers {
			c, err := e.applyBit(ctx, valid, log, def, trigger)
			if err != nil {
				return false, err
			}
			changed = changed || c
		}
	}

	for _, id := range sortedKeys(e.catalog.Nibbles()) {
		def := e.catalog.Nibbles()[id]
		triggers, err := e.listTriggers(ctx, valid, def.TriggerType())
		if err != nil {
			return false, err
		}
		for _, trigger := range triggers {
			c, err := e.applyNibble(ctx, valid, log, def, trigger)
			if err != nil {
				return false, err
			}
			changed = changed || c
		}
	}

	return changed, nil
}

func (e *Engine) listTriggers(ctx context.Context, valid time.Time, triggerType string) ([]model.Object, error) {
	concrete, err := e.reg.ToConcrete([]string{triggerType})
	if err != nil {
		return nil, err
	}
	return e.repo.List(ctx, valid, concrete)
}

// applyBit runs one bit on one trigger and saves the results as the
// rule's inference origin for that trigger. It reports whether the
// origin's result set changed.
func (e *Engine) applyBit(ctx context.Context, valid time.Time, log *slog.Logger, def *BitDefinition, trigger model.Object) (bool, error) {
	triggerRef := model.PrimaryKey(trigger)
	origin := storage.Origin{Type: storage.OriginInference, Method: "bit/" + def.ID, Source: triggerRef}

	var results []model.Object
	if trigger.ScanProfile().EffectiveLevel() >= def.MinScanLevel {
		additional, err := e.gatherBitParameters(ctx, valid, def, triggerRef)
		if err != nil {
			return false, err
		}
		cfg, err := e.resolveConfig(ctx, valid, def.ID, trigger)
		if err != nil {
			return false, err
		}

		results = e.invoke(ctx, log, "bit", def.ID, triggerRef, func() ([]model.Object, error) {
			return def.Run(trigger, additional, cfg)
		})
	}

	return e.saveResults(ctx, valid, origin, results)
}

func (e *Engine) gatherBitParameters(ctx context.Context, valid time.Time, def *BitDefinition, triggerRef model.Reference) ([]model.Object, error) {
	var additional []model.Object
	for _, param := range def.Parameters {
		p, err := path.Parse(e.reg, def.TriggerType+"."+param.Path)
		if err != nil {
			return nil, fmt.Errorf("bit %s parameter path: %w", def.ID, err)
		}
		objs, err := e.repo.Walk(ctx, valid, p, []model.Reference{triggerRef})
		if err != nil {
			return nil, fmt.Errorf("bit %s gather %s: %w", def.ID, param.Path, err)
		}
		additional = append(additional, objs...)
	}
	return additional, nil
}

// applyNibble resolves the nibble's signature for one trigger and invokes
// it once per argument combination, accumulating all results under one
// origin. An empty optional slot contributes a nil argument; an empty
// required slot suppresses the invocation.
func (e *Engine) applyNibble(ctx context.Context, valid time.Time, log *slog.Logger, def *NibbleDefinition, trigger model.Object) (bool, error) {
	triggerRef := model.PrimaryKey(trigger)
	origin := storage.Origin{Type: storage.OriginInference, Method: "nibble/" + def.ID, Source: triggerRef}

	var results []model.Object
	if trigger.ScanProfile().EffectiveLevel() >= def.MinScanLevel {
		slots, ok, err := e.resolveSignature(ctx, valid, def, trigger, triggerRef)
		if err != nil {
			return false, err
		}
		if ok {
			cfg, err := e.resolveConfig(ctx, valid, def.ID, trigger)
			if err != nil {
				return false, err
			}
			for _, args := range combinations(slots) {
				args := args
				results = append(results, e.invoke(ctx, log, "nibble", def.ID, triggerRef, func() ([]model.Object, error) {
					return def.Run(args, cfg)
				})...)
			}
		}
	}

	return e.saveResults(ctx, valid, origin, results)
}

func (e *Engine) resolveSignature(ctx context.Context, valid time.Time, def *NibbleDefinition, trigger model.Object, triggerRef model.Reference) ([][]model.Object, bool, error) {
	slots := make([][]model.Object, len(def.Signature))
	slots[0] = []model.Object{trigger}

	for i, param := range def.Signature[1:] {
		p, err := path.Parse(e.reg, def.TriggerType()+"."+param.Path)
		if err != nil {
			return nil, false, fmt.Errorf("nibble %s parameter path: %w", def.ID, err)
		}
		objs, err := e.repo.Walk(ctx, valid, p, []model.Reference{triggerRef})
		if err != nil {
			return nil, false, fmt.Errorf("nibble %s resolve %s: %w", def.ID, param.Name, err)
		}
		if len(objs) == 0 {
			if !param.Optional {
				return nil, false, nil
			}
			objs = []model.Object{nil}
		}
		slots[i+1] = objs
	}
	return slots, true, nil
}

// invoke runs a rule body with panic isolation. A failing rule logs,
// counts, and contributes nothing.
func (e *Engine) invoke(ctx context.Context, log *slog.Logger, kind, id string, trigger model.Reference, run func() ([]model.Object, error)) []model.Object {
	ctx, span := e.tracer.Start(ctx, "rules.invoke",
		trace.WithAttributes(
			attribute.String("rule.kind", kind),
			attribute.String("rule.id", id),
		))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("rule.id", id))
	e.runs.Add(ctx, 1, attrs)

	results, err := func() (out []model.Object, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return run()
	}()
	if err != nil {
		e.failures.Add(ctx, 1, attrs)
		ruleErr := &RuleError{Op: "rules.invoke", Rule: kind + "/" + id, Trigger: trigger, Err: err}
		span.RecordError(ruleErr)
		log.ErrorContext(ctx, "rule failed",
			slog.String("rule", kind+"/"+id),
			slog.String("trigger", model.FormatIDShort(string(trigger))),
			slog.String("error", err.Error()))
		return nil
	}
	return results
}

// saveResults applies the mute filter, persists the origin's new result
// set, and reports whether it differs from the previous round.
func (e *Engine) saveResults(ctx context.Context, valid time.Time, origin storage.Origin, results []model.Object) (bool, error) {
	if e.mute != nil {
		results = append(results, e.mute.Apply(results)...)
	}

	signature := resultSignature(results)
	if previous, ok := e.lastResults[origin.ID()]; ok && previous == signature {
		return false, nil
	}

	if err := e.repo.SaveObservation(ctx, valid, origin, results); err != nil {
		return false, fmt.Errorf("save results of %s: %w", origin.Method, err)
	}
	e.lastResults[origin.ID()] = signature
	return true, nil
}

// resolveConfig merges rule settings: the config source first, then any
// Config object on the trigger itself or on its network, most specific
// last.
func (e *Engine) resolveConfig(ctx context.Context, valid time.Time, ruleID string, trigger model.Object) (map[string]string, error) {
	cfg, err := e.config.Get(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("rule config for %s: %w", ruleID, err)
	}
	if cfg == nil {
		cfg = make(map[string]string)
	}

	probes := []model.Reference{model.PrimaryKey(trigger)}
	if network, ok := trigger.Relations()["network"]; ok {
		probes = append(probes, network)
	}
	// Most specific last, so the trigger's own Config wins.
	for i := len(probes) - 1; i >= 0; i-- {
		ref := model.MakeReference("Config", string(probes[i])+"|"+ruleID)
		obj, err := e.repo.Get(ctx, valid, ref)
		if err != nil {
			continue
		}
		if config, ok := obj.(*domain.Config); ok {
			for k, v := range config.Config {
				cfg[k] = v
			}
		}
	}
	return cfg, nil
}

// Normalize runs a cataloged normalizer on a raw document and persists
// its yield as an observation. A malformed document yields nothing: the
// error is returned and no partial object set is written.
func (e *Engine) Normalize(ctx context.Context, valid time.Time, normalizerID string, raw []byte, meta NormalizerMeta) ([]model.Object, error) {
	def, err := e.catalog.Normalizer(normalizerID)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "rules.normalize",
		trace.WithAttributes(attribute.String("rule.id", normalizerID)))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("rule.id", normalizerID))
	e.runs.Add(ctx, 1, attrs)

	results, err := def.Run(raw, meta)
	if err != nil {
		e.failures.Add(ctx, 1, attrs)
		span.RecordError(err)
		return nil, &RuleError{Op: "rules.normalize", Rule: "normalizer/" + normalizerID, Trigger: meta.Source, Err: err}
	}

	origin := storage.Origin{
		Type:   storage.OriginObservation,
		Method: "normalizer/" + normalizerID,
		Source: meta.Source,
	}
	if err := e.repo.SaveObservation(ctx, valid, origin, results); err != nil {
		return nil, fmt.Errorf("save normalizer yield: %w", err)
	}
	return results, nil
}

// combinations expands slot candidates into argument tuples.
func combinations(slots [][]model.Object) [][]model.Object {
	tuples := [][]model.Object{{}}
	for _, slot := range slots {
		var next [][]model.Object
		for _, tuple := range tuples {
			for _, candidate := range slot {
				extended := make([]model.Object, len(tuple), len(tuple)+1)
				copy(extended, tuple)
				next = append(next, append(extended, candidate))
			}
		}
		tuples = next
	}
	return tuples
}

// resultSignature is a stable fingerprint of a result set: sorted primary
// keys joined together.
func resultSignature(results []model.Object) string {
	keys := make([]string, 0, len(results))
	for _, obj := range results {
		keys = append(keys, string(model.PrimaryKey(obj)))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x1f")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
