package gaudit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mickamy/gaudit/expr"
)

var (
	// ErrConfiguration reports audit metadata that cannot be resolved.
	ErrConfiguration = errors.New("gaudit: configuration error")
	// ErrPartialCommit matches *PartialCommitError.
	ErrPartialCommit = errors.New("gaudit: partial commit")
	// ErrNotAuditable is returned when querying an entity without an audit table.
	ErrNotAuditable = errors.New("gaudit: entity is not audited")

	ErrUnsupportedExpression = expr.ErrUnsupported
	ErrInvalidArgument       = expr.ErrInvalidArgument
)

// PartialCommitError reports that primary changes were committed but their audit rows
// were not. Rows holds the audit rows that were staged and not persisted.
type PartialCommitError struct {
	Affected int
	Rows     []AuditRow
	Err      error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("gaudit: partial commit: %d changes persisted, %d audit rows lost: %v", e.Affected, len(e.Rows), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

// Options is the recognized configuration surface.
type Options struct {
	AuditTableNameTemplate     string `mapstructure:"audit_table_name_template"`
	AuditOldColumnNameTemplate string `mapstructure:"audit_old_column_name_template"`
	PersistIntervalSeconds     int    `mapstructure:"persist_interval_seconds"`
	SynchronousPersistence     bool   `mapstructure:"synchronous_persistence"`
	InMemoryAuditThreshold     int    `mapstructure:"in_memory_audit_threshold"`
	ForceSchema                string `mapstructure:"force_schema"`
}

// DefaultOptions returns the defaults: "{0}_Audit" tables and "{0}_Old" columns.
func DefaultOptions() Options {
	return Options{
		AuditTableNameTemplate:     Placeholder + "_Audit",
		AuditOldColumnNameTemplate: Placeholder + "_Old",
		PersistIntervalSeconds:     600,
		InMemoryAuditThreshold:     100,
	}
}

// Validate checks templates and the persistence knobs. The knobs are carried but
// persistence always happens inside SaveChanges.
func (o Options) Validate() error {
	if !strings.Contains(o.AuditTableNameTemplate, Placeholder) {
		return fmt.Errorf("%w: audit table name template %q lacks %s", ErrConfiguration, o.AuditTableNameTemplate, Placeholder)
	}
	if !strings.Contains(o.AuditOldColumnNameTemplate, Placeholder) {
		return fmt.Errorf("%w: old column name template %q lacks %s", ErrConfiguration, o.AuditOldColumnNameTemplate, Placeholder)
	}
	if o.PersistIntervalSeconds < 0 {
		return fmt.Errorf("%w: negative persist interval %d", ErrConfiguration, o.PersistIntervalSeconds)
	}
	if o.InMemoryAuditThreshold < 0 {
		return fmt.Errorf("%w: negative in-memory audit threshold %d", ErrConfiguration, o.InMemoryAuditThreshold)
	}
	return nil
}

type settings struct {
	opts     Options
	naming   NamingPolicy
	actor    ActorResolver
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	cache    *Cache
	now      func() time.Time
	synth    Synthesizer
}

// Option configures New.
type Option func(*settings)

// WithOptions replaces the DefaultOptions the context starts from.
func WithOptions(o Options) Option { return func(s *settings) { s.opts = o } }

// WithNaming overrides the template naming derived from Options. Missing functions
// fall back to the templates.
func WithNaming(n NamingPolicy) Option { return func(s *settings) { s.naming = n } }

// WithActorResolver sets how the acting user of a commit is found.
func WithActorResolver(r ActorResolver) Option { return func(s *settings) { s.actor = r } }

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

// WithTracer sets the tracer that spans SaveChanges.
func WithTracer(t trace.Tracer) Option { return func(s *settings) { s.tracer = t } }

// WithObserver receives commit outcomes and audit row counts.
func WithObserver(o Observer) Option { return func(s *settings) { s.observer = o } }

// WithCache replaces DefaultCache, mostly for tests.
func WithCache(c *Cache) Option { return func(s *settings) { s.cache = c } }

// WithClock sets the source of AuditCreateDate.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// WithSynthesizer replaces Synthesize for every context sharing the cache entry
// this context creates.
func WithSynthesizer(fn Synthesizer) Option { return func(s *settings) { s.synth = fn } }

// Context audits the changes persisted through a Store.
type Context struct {
	key      string
	store    Store
	entry    *CacheEntry
	actor    ActorResolver
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time
}

// New binds store to the audit tables discovered from src. Discovery runs once per
// src.ContextKey(); later contexts with the same key reuse the first one's options,
// naming and definitions.
func New(src MetadataSource, store Store, opts ...Option) (*Context, error) {
	if src == nil || store == nil {
		return nil, fmt.Errorf("%w: nil metadata source or store", ErrInvalidArgument)
	}
	s := settings{
		opts:     DefaultOptions(),
		actor:    ActorFromContext,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/mickamy/gaudit"),
		observer: nopObserver{},
		cache:    DefaultCache,
		now:      time.Now,
		synth:    Synthesize,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}

	key := src.ContextKey()
	entry, err := s.cache.GetOrCreate(key, s.opts, s.naming.complete(s.opts), func(e *CacheEntry) error {
		sets, err := src.EntitySets()
		if err != nil {
			return fmt.Errorf("%w: enumerate entity sets: %w", ErrConfiguration, err)
		}
		defs, err := Discover(sets, e.Naming, e.Options.ForceSchema)
		if err != nil {
			return err
		}
		e.Definitions = defs
		e.Synthesizer = s.synth
		s.logger.Info("audit tables discovered", zap.String("context", key), zap.Int("tables", defs.Len()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Context{
		key:      key,
		store:    store,
		entry:    entry,
		actor:    s.actor,
		logger:   s.logger.With(zap.String("context", key)),
		tracer:   s.tracer,
		observer: s.observer,
		now:      s.now,
	}, nil
}

func (c *Context) Key() string { return c.key }

func (c *Context) Store() Store { return c.store }

// Definitions returns the audit tables shared by every context with this key.
func (c *Context) Definitions() Definitions { return c.entry.Definitions }

// Definition returns the audit table of an entity.
func (c *Context) Definition(entity string) (*TableDefinition, bool) {
	return c.entry.Definitions.Lookup(entity)
}

// SaveChanges is SaveChangesWith(ctx, true).
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	return c.SaveChangesWith(ctx, true)
}

// SaveChangesWith persists pending changes, then the audit rows synthesized from
// them, in two store calls. It returns the count of the first call.
//
// A failure of the first call is returned as is, wrapped. Once the first call
// succeeded, any failure, including cancellation of ctx, is a *PartialCommitError.
func (c *Context) SaveChangesWith(ctx context.Context, acceptAll bool) (int, error) {
	start := c.now()
	commitID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "gaudit.SaveChanges",
		trace.WithAttributes(
			attribute.String("gaudit.context", c.key),
			attribute.String("gaudit.commit_id", commitID),
		),
	)
	defer span.End()
	log := c.logger.With(zap.String("commit_id", commitID))

	if extractSkip(ctx) {
		n, err := c.store.Persist(ctx, acceptAll)
		if err != nil {
			return 0, c.fail(span, log, start, fmt.Errorf("gaudit: persist changes: %w", err))
		}
		log.Debug("audit skipped", zap.Int("affected", n))
		c.observer.ObserveCommit(OutcomeSkipped, time.Since(start))
		return n, nil
	}

	records := Capture(c.store.PendingMutations(), c.entry.Definitions, c.entry.Naming)

	n, err := c.store.Persist(ctx, acceptAll)
	if err != nil {
		return 0, c.fail(span, log, start, fmt.Errorf("gaudit: persist changes: %w", err))
	}
	span.AddEvent("changes persisted", trace.WithAttributes(attribute.Int("gaudit.affected", n)))

	rows := c.entry.Synthesizer(records, c.resolveActor(ctx), c.now())
	if err := ctx.Err(); err != nil {
		return n, c.partial(span, log, start, n, rows, err)
	}
	for _, r := range rows {
		c.store.RecordSet(r.Table).Add(r.Data)
		c.observer.ObserveAuditRows(r.Table, 1)
	}
	if _, err := c.store.Persist(ctx, acceptAll); err != nil {
		return n, c.partial(span, log, start, n, rows, err)
	}

	span.SetAttributes(attribute.Int("gaudit.audit_rows", len(rows)))
	log.Debug("changes audited", zap.Int("affected", n), zap.Int("audit_rows", len(rows)))
	c.observer.ObserveCommit(OutcomeCommitted, time.Since(start))
	return n, nil
}

func (c *Context) resolveActor(ctx context.Context) string {
	if c.actor == nil {
		return ActorNotSet
	}
	if id := c.actor(ctx); id != "" {
		return id
	}
	return ActorNotSet
}

func (c *Context) fail(span trace.Span, log *zap.Logger, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("save changes failed", zap.Error(err))
	c.observer.ObserveCommit(OutcomeFailed, time.Since(start))
	return err
}

func (c *Context) partial(span trace.Span, log *zap.Logger, start time.Time, n int, rows []AuditRow, cause error) error {
	err := &PartialCommitError{Affected: n, Rows: rows, Err: cause}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("audit rows not persisted", zap.Int("affected", n), zap.Int("audit_rows", len(rows)), zap.Error(cause))
	c.observer.ObserveCommit(OutcomePartial, time.Since(start))
	return err
}
