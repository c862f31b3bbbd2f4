package octopoes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openkat/octopoes/clearance"
	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
	"github.com/openkat/octopoes/path"
	"github.com/openkat/octopoes/rules"
	"github.com/openkat/octopoes/rules/catalog"
	"github.com/openkat/octopoes/storage"
)

// Service is the top-level entry point for the object graph. It wraps a
// repository with the two reactions every write triggers: scan-profile
// recalculation and a rule-engine run to fixed point. Reads pass through
// to the repository unchanged.
//
// Example:
//
//	svc, err := octopoes.New(storage.NewMemStore(domain.Types()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = svc.Declare(ctx, time.Now(), &domain.Hostname{Network: net, Name: "example.com"}, model.ScanLevel(2))
type Service struct {
	repo    storage.Repository
	reg     *model.Registry
	catalog *rules.Catalog
	calc    *clearance.Calculator
	engine  *rules.Engine
	log     *slog.Logger
}

type serviceConfig struct {
	logger  *slog.Logger
	reg     *model.Registry
	catalog *rules.Catalog
	engine  []rules.Option
}

// Option configures a Service during construction.
type Option func(*serviceConfig)

// WithLogger sets the logger used by the service, the clearance
// calculator and the rule engine.
func WithLogger(log *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = log }
}

// WithRegistry overrides the default type registry. Tests use this to
// run the service against a reduced taxonomy.
func WithRegistry(reg *model.Registry) Option {
	return func(c *serviceConfig) { c.reg = reg }
}

// WithCatalog overrides the default rule catalog.
func WithCatalog(cat *rules.Catalog) Option {
	return func(c *serviceConfig) { c.catalog = cat }
}

// WithEngineOptions passes options through to the rule engine, such as
// rules.WithConfigSource or rules.WithMuteFilter.
func WithEngineOptions(opts ...rules.Option) Option {
	return func(c *serviceConfig) { c.engine = append(c.engine, opts...) }
}

// New creates a Service on top of the given repository. By default it
// uses the full domain taxonomy and the built-in rule catalog.
func New(repo storage.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("octopoes: repository is required")
	}

	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.reg == nil {
		cfg.reg = domain.Types()
	}
	if cfg.catalog == nil {
		cfg.catalog = catalog.Default()
	}

	engineOpts := append([]rules.Option{rules.WithLogger(cfg.logger)}, cfg.engine...)
	return &Service{
		repo:    repo,
		reg:     cfg.reg,
		catalog: cfg.catalog,
		calc:    clearance.NewCalculator(repo, cfg.reg, cfg.logger),
		engine:  rules.NewEngine(repo, cfg.reg, cfg.catalog, engineOpts...),
		log:     cfg.logger,
	}, nil
}

// Get returns the object version valid at the given time.
func (s *Service) Get(ctx context.Context, valid time.Time, ref model.Reference) (model.Object, error) {
	return s.repo.Get(ctx, valid, ref)
}

// List returns all objects of the given types valid at the given time.
// Abstract type names select all their concrete subtypes.
func (s *Service) List(ctx context.Context, valid time.Time, types ...string) ([]model.Object, error) {
	concrete, err := s.reg.ToConcrete(types)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, valid, concrete)
}

// Query follows a relation-path expression from the anchor objects and
// returns the objects reached by its final segment.
func (s *Service) Query(ctx context.Context, valid time.Time, expr string, anchors ...model.Reference) ([]model.Object, error) {
	p, err := path.Parse(s.reg, expr)
	if err != nil {
		return nil, err
	}
	return s.repo.Walk(ctx, valid, p, anchors)
}

// Declare persists a user-asserted object with a declared clearance,
// then reconciles the graph. A declared profile is authoritative and
// propagates to neighbors during recalculation.
func (s *Service) Declare(ctx context.Context, valid time.Time, obj model.Object, level model.ScanLevel) error {
	if !level.Valid() {
		return fmt.Errorf("octopoes: scan level %d out of range", level)
	}
	if err := s.repo.SaveDeclaration(ctx, valid, obj); err != nil {
		return fmt.Errorf("save declaration: %w", err)
	}
	profile := model.NewDeclaredScanProfile(model.PrimaryKey(obj), level)
	if err := s.repo.SaveScanProfile(ctx, valid, profile); err != nil {
		return fmt.Errorf("save scan profile: %w", err)
	}
	return s.Reconcile(ctx, valid)
}

// Observe persists the objects produced by one run of an external
// method on a source object, then reconciles the graph. A later
// observation by the same method on the same source replaces this one.
func (s *Service) Observe(ctx context.Context, valid time.Time, method string, source model.Reference, objs []model.Object) error {
	origin := storage.Origin{
		Type:   storage.OriginObservation,
		Method: method,
		Source: source,
	}
	if err := s.repo.SaveObservation(ctx, valid, origin, objs); err != nil {
		return fmt.Errorf("save observation: %w", err)
	}
	return s.Reconcile(ctx, valid)
}

// Normalize runs a cataloged normalizer on a raw document, persists its
// yield as an observation and reconciles the graph. The returned objects
// are the normalizer's yield.
func (s *Service) Normalize(ctx context.Context, valid time.Time, normalizerID string, raw []byte, meta rules.NormalizerMeta) ([]model.Object, error) {
	results, err := s.engine.Normalize(ctx, valid, normalizerID, raw, meta)
	if err != nil {
		return nil, err
	}
	return results, s.Reconcile(ctx, valid)
}

// Affirm refreshes attributes of an object already in the graph, then
// reconciles. It does not create new objects.
func (s *Service) Affirm(ctx context.Context, valid time.Time, obj model.Object) error {
	if err := s.repo.SaveAffirmation(ctx, valid, obj); err != nil {
		return fmt.Errorf("save affirmation: %w", err)
	}
	return s.Reconcile(ctx, valid)
}

// Delete ends the object's current version and reconciles, so rules
// whose inputs disappeared retract their output.
func (s *Service) Delete(ctx context.Context, valid time.Time, ref model.Reference) error {
	if err := s.repo.Delete(ctx, valid, ref); err != nil {
		return err
	}
	return s.Reconcile(ctx, valid)
}

// SetScanLevel declares a clearance for an existing object and
// reconciles, so rules gated on the new level pick it up.
func (s *Service) SetScanLevel(ctx context.Context, valid time.Time, ref model.Reference, level model.ScanLevel) error {
	if !level.Valid() {
		return fmt.Errorf("octopoes: scan level %d out of range", level)
	}
	if err := s.repo.SaveScanProfile(ctx, valid, model.NewDeclaredScanProfile(ref, level)); err != nil {
		return fmt.Errorf("save scan profile: %w", err)
	}
	return s.Reconcile(ctx, valid)
}

// ForgetScanLevel drops the declared clearance back to empty. The object
// keeps any level it inherits from neighbors after recalculation.
func (s *Service) ForgetScanLevel(ctx context.Context, valid time.Time, ref model.Reference) error {
	if err := s.repo.SaveScanProfile(ctx, valid, model.NewEmptyScanProfile(ref)); err != nil {
		return fmt.Errorf("save scan profile: %w", err)
	}
	return s.Reconcile(ctx, valid)
}

// Reconcile recalculates scan-profile inheritance and runs the rule
// engine to fixed point at the given valid time. Every mutating
// operation calls it; it is exposed for callers that batch raw
// repository writes themselves.
func (s *Service) Reconcile(ctx context.Context, valid time.Time) error {
	if err := s.calc.Recalculate(ctx, valid); err != nil {
		return fmt.Errorf("recalculate scan profiles: %w", err)
	}
	if err := s.engine.Run(ctx, valid); err != nil {
		return fmt.Errorf("run rules: %w", err)
	}
	return nil
}

// Registry returns the type registry the service was built with.
func (s *Service) Registry() *model.Registry { return s.reg }

// Catalog returns the rule catalog the service was built with.
func (s *Service) Catalog() *rules.Catalog { return s.catalog }
