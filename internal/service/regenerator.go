package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/repository"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/logger"
	"github.com/utafrali/urlrewrite/pkg/tracing"
)

// Locker serializes runs across processes.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Regenerator runs a whole regeneration: it resolves the stores, drives the
// category and product drivers for each of them and triggers the post-run
// hooks.
type Regenerator struct {
	stores     repository.StoreSource
	rewrites   repository.RewriteStore
	categories *CategoryRegenerator
	products   *ProductRegenerator
	lock       Locker
	reindexer  Reindexer
	cache      CacheInvalidator
	logger     *slog.Logger
	now        func() time.Time
}

// RegeneratorOption configures optional collaborators.
type RegeneratorOption func(*Regenerator)

// WithLocker makes runs refuse to start while another run holds the lock.
func WithLocker(l Locker) RegeneratorOption {
	return func(r *Regenerator) { r.lock = l }
}

// WithReindexer sets the reindex hook.
func WithReindexer(ri Reindexer) RegeneratorOption {
	return func(r *Regenerator) { r.reindexer = ri }
}

// WithCacheInvalidator sets the cache hook.
func WithCacheInvalidator(c CacheInvalidator) RegeneratorOption {
	return func(r *Regenerator) { r.cache = c }
}

// NewRegenerator creates the orchestrator.
func NewRegenerator(
	stores repository.StoreSource,
	rewrites repository.RewriteStore,
	categories *CategoryRegenerator,
	products *ProductRegenerator,
	logger *slog.Logger,
	opts ...RegeneratorOption,
) *Regenerator {
	r := &Regenerator{
		stores:     stores,
		rewrites:   rewrites,
		categories: categories,
		products:   products,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run regenerates the rewrites opts selects. Invalid options and unknown
// stores are rejected before anything is written. Failures of single
// entities and of the hooks end up in the report; only fatal errors are
// returned, together with the report of the work done so far.
func (r *Regenerator) Run(ctx context.Context, opts domain.RegenerationOptions) (*domain.RunReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	categoryFilter, _ := opts.CategoryFilter()
	productFilter, _ := opts.ProductFilter()

	stores, err := r.resolveStores(ctx, opts)
	if err != nil {
		return nil, err
	}

	if r.lock != nil {
		locked, err := r.lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("take regeneration lock: %w", err)
		}
		if !locked {
			return nil, apperrors.Locked("another url rewrite regeneration is running")
		}
		defer func() {
			if err := r.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.ErrorContext(ctx, "failed to release regeneration lock", slog.String("error", err.Error()))
			}
		}()
	}

	report := &domain.RunReport{RunID: uuid.NewString(), StartedAt: r.now()}
	ctx = logger.WithRunID(ctx, report.RunID)
	ctx, end := tracing.StartSpan(ctx, tracerName, "regenerate.run",
		attribute.String("run.id", report.RunID),
		attribute.String("entity_type", opts.EntityType),
	)
	var runErr error
	defer func() { end(runErr) }()
	log := logger.WithContext(ctx, r.logger)
	log.InfoContext(ctx, "regeneration started",
		slog.String("entity_type", opts.EntityType),
		slog.Int("stores", len(stores)),
		slog.Bool("save_old_urls", opts.SaveOldURLs),
	)

	if opts.Purge && len(stores) > 0 {
		ids := make([]int64, len(stores))
		for i, s := range stores {
			ids[i] = s.ID
		}
		report.Purged, err = r.rewrites.DeleteStores(ctx, ids)
		if err != nil {
			runErr = fmt.Errorf("purge rewrites: %w", err)
			return report, runErr
		}
		log.InfoContext(ctx, "purged store rewrites", slog.Int64("deleted", report.Purged))
	}

	for _, store := range stores {
		storeReport, err := r.runStore(logger.WithStoreID(ctx, store.ID), store, categoryFilter, productFilter, opts)
		report.Stores = append(report.Stores, storeReport)
		if err != nil {
			report.FinishedAt = r.now()
			runErr = fmt.Errorf("store %d (%s): %w", store.ID, store.Code, err)
			return report, runErr
		}
	}
	report.FinishedAt = r.now()

	r.runHooks(ctx, opts, report)

	totals := report.Totals()
	log.InfoContext(ctx, "regeneration finished",
		slog.Int("categories", totals.Categories),
		slog.Int("products", totals.Products),
		slog.Int("rewrites_saved", totals.RewritesSaved),
		slog.Int("collisions", totals.Collisions),
		slog.Int("diagnostics", totals.Diagnostics.Len()+report.Diagnostics.Len()),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Regenerator) resolveStores(ctx context.Context, opts domain.RegenerationOptions) ([]domain.Store, error) {
	if opts.StoreID == nil {
		return r.stores.ListStores(ctx)
	}
	store, err := r.stores.GetStore(ctx, *opts.StoreID)
	if err != nil {
		return nil, err
	}
	return []domain.Store{*store}, nil
}

func (r *Regenerator) runStore(ctx context.Context, store domain.Store, categoryFilter, productFilter domain.IDFilter, opts domain.RegenerationOptions) (sr domain.StoreReport, err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "regenerate.store",
		attribute.Int64("store.id", store.ID),
		attribute.String("store.code", store.Code),
	)
	defer func() { end(err) }()

	sr.Store = store

	if opts.RegeneratesCategories() && r.categories != nil {
		stats, err := r.categories.RegenerateRange(ctx, categoryFilter, store.ID, opts)
		if err != nil {
			return sr, fmt.Errorf("categories: %w", err)
		}
		sr.Stats.Add(stats)
	}
	if opts.RegeneratesProducts() && r.products != nil {
		stats, err := r.products.RegenerateRange(ctx, productFilter, store.ID, opts)
		if err != nil {
			return sr, fmt.Errorf("products: %w", err)
		}
		sr.Stats.Add(stats)
	}
	return sr, nil
}

// runHooks triggers reindexing and cache invalidation. Their failures are
// reported, never fatal.
func (r *Regenerator) runHooks(ctx context.Context, opts domain.RegenerationOptions, report *domain.RunReport) {
	hook := func(name string, enabled bool, fn func(context.Context) error) {
		if !enabled {
			return
		}
		if err := fn(ctx); err != nil {
			report.Diagnostics.Addf("%s: %v", name, err)
			r.logger.WarnContext(ctx, "post-run hook failed",
				slog.String("hook", name),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.reindexer != nil {
		hook("reindex", opts.RunReindex, func(ctx context.Context) error {
			return r.reindexer.Reindex(ctx, report)
		})
	}
	if r.cache != nil {
		hook("cache clean", opts.RunCacheClean, r.cache.Clean)
		hook("cache flush", opts.RunCacheFlush, r.cache.Flush)
	}
}
