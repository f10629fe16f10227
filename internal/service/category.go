package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/generator"
	"github.com/utafrali/urlrewrite/internal/repository"
	"github.com/utafrali/urlrewrite/pkg/logger"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

// CategoryRegenerator regenerates category url keys, paths and rewrites and
// cascades into the products of each regenerated subtree.
type CategoryRegenerator struct {
	categories repository.CategorySource
	stores     repository.StoreSource
	rewrites   repository.RewriteStore
	generator  CategoryRewriteGenerator
	products   *ProductRegenerator
	cache      *generator.Cache
	progress   Progress
	logger     *slog.Logger
}

// NewCategoryRegenerator creates a category driver. progress may be nil.
func NewCategoryRegenerator(
	categories repository.CategorySource,
	stores repository.StoreSource,
	rewrites repository.RewriteStore,
	gen CategoryRewriteGenerator,
	products *ProductRegenerator,
	cache *generator.Cache,
	progress Progress,
	logger *slog.Logger,
) *CategoryRegenerator {
	if progress == nil {
		progress = NoProgress
	}
	return &CategoryRegenerator{
		categories: categories,
		stores:     stores,
		rewrites:   rewrites,
		generator:  gen,
		products:   products,
		cache:      cache,
		progress:   progress,
		logger:     logger,
	}
}

// RegenerateRange regenerates the categories filter selects in one store.
// Without a filter only the top level is selected; every selected category
// brings its whole subtree along. Associations are reconciled once at the
// end.
func (s *CategoryRegenerator) RegenerateRange(ctx context.Context, filter domain.IDFilter, storeID int64, opts domain.RegenerationOptions) (*domain.RunStats, error) {
	rootID, err := storeRoot(ctx, s.stores, storeID)
	if err != nil {
		return nil, err
	}

	cascade, err := s.cascadesProducts(ctx, storeID, opts)
	if err != nil {
		return nil, err
	}

	progress := s.progress
	if !opts.ShowProgress {
		progress = NoProgress
	}

	q := repository.CategoryQuery{StoreID: storeID, RootID: rootID, Filter: filter}
	total, err := s.categories.CountCategories(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := &domain.RunStats{}
	progress.Start("categories", total)

	for page := pagination.DefaultParams(CategoryPageSize); ; page = page.Next() {
		categories, err := s.categories.ListCategories(ctx, q, page)
		if err != nil {
			progress.Finish()
			return nil, err
		}

		for i := range categories {
			if err := ctx.Err(); err != nil {
				progress.Finish()
				return nil, err
			}
			c := categories[i]
			if err := s.processCategory(ctx, c, storeID, rootID, cascade, opts, stats); err != nil {
				if isFatal(ctx, err) {
					progress.Finish()
					return nil, err
				}
				stats.Diagnostics.Addf("category %d (store %d): %v", c.ID, storeID, err)
				logger.WithContext(ctx, s.logger).WarnContext(ctx, "category regeneration failed",
					slog.Int64("category_id", c.ID),
					slog.Int64("store_id", storeID),
					slog.String("error", err.Error()),
				)
			}
			progress.Advance(1)
		}

		if len(categories) < page.PerPage || page.Page >= pagination.LastPage(total, page.PerPage) {
			break
		}
	}
	progress.Finish()

	res, err := s.rewrites.ReconcileAssociations(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile associations: %w", err)
	}
	stats.AddReconcile(res)
	return stats, nil
}

// cascadesProducts decides whether product rewrites follow their categories.
// Unless asked to check, the store setting is ignored and products always
// follow.
func (s *CategoryRegenerator) cascadesProducts(ctx context.Context, storeID int64, opts domain.RegenerationOptions) (bool, error) {
	if s.products == nil {
		return false, nil
	}
	if !opts.CheckUseCategoryInProductURL {
		return true, nil
	}
	on, err := generator.Flag(ctx, s.stores, generator.ConfigProductUseCategories, storeID)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", generator.ConfigProductUseCategories, err)
	}
	return on, nil
}

func (s *CategoryRegenerator) processCategory(ctx context.Context, c domain.Category, storeID, rootID int64, cascade bool, opts domain.RegenerationOptions, stats *domain.RunStats) error {
	scope := s.cache.Acquire()
	defer scope.Release()

	attrs := repository.URLAttributes{}
	if !opts.NoRegenURLKey {
		c.SetURLKey(generator.URLKey(c.GetName()))
		key := c.GetURLKey()
		attrs.URLKey = &key
	}
	if c.GetURLKey() == "" {
		return errors.New("no url key could be derived from the category name")
	}

	path, err := s.generator.URLPath(ctx, scope, &c, storeID)
	if err != nil {
		return err
	}
	c.SetURLPath(path)
	attrs.URLPath = &path
	if err := s.categories.UpdateCategoryAttributes(ctx, c.ID, storeID, attrs); err != nil {
		return err
	}
	scope.Remember(storeID, c.ID, path)

	descendants, err := s.categories.ListDescendants(ctx, &c, storeID)
	if err != nil {
		return err
	}
	for i := range descendants {
		if err := s.refreshDescendant(ctx, scope, &descendants[i], storeID, opts); err != nil {
			return fmt.Errorf("descendant %d: %w", descendants[i].ID, err)
		}
	}

	subtree := make([]domain.Category, 0, 1+len(descendants))
	subtree = append(subtree, c)
	subtree = append(subtree, descendants...)

	candidates, err := s.generator.Rewrites(ctx, subtree, storeID)
	if err != nil {
		return err
	}

	owners := make([]domain.RewriteOwner, len(subtree))
	ids := make([]int64, len(subtree))
	for i, sc := range subtree {
		owners[i] = domain.RewriteOwner{EntityType: domain.EntityTypeCategory, EntityID: sc.ID, StoreID: storeID}
		ids[i] = sc.ID
	}

	res, err := s.rewrites.Save(ctx, candidates, owners, opts.SaveOldURLs)
	if err != nil {
		return err
	}
	stats.Categories += len(subtree)
	stats.AddSave(res)
	addSkipped(stats, res)

	if !cascade {
		return nil
	}
	productIDs, err := s.categories.ProductIDsInCategories(ctx, ids)
	if err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}
	productStats, err := s.products.regenerate(ctx, domain.IDs(productIDs...), storeID, rootID, opts, NoProgress)
	if err != nil {
		return fmt.Errorf("regenerate products of subtree: %w", err)
	}
	stats.Add(productStats)
	return nil
}

// refreshDescendant recomputes the url path of a category below the one being
// regenerated. Parents are refreshed first, so their new path is in scope.
// Descendants keep their url key; one is derived only when missing.
func (s *CategoryRegenerator) refreshDescendant(ctx context.Context, scope *generator.Scope, d *domain.Category, storeID int64, opts domain.RegenerationOptions) error {
	attrs := repository.URLAttributes{}
	if d.URLKey == "" && !opts.NoRegenURLKey {
		d.SetURLKey(generator.URLKey(d.GetName()))
		key := d.GetURLKey()
		attrs.URLKey = &key
	}

	path, err := s.generator.URLPath(ctx, scope, d, storeID)
	if err != nil {
		return err
	}
	if path != d.URLPath {
		d.SetURLPath(path)
		attrs.URLPath = &path
	}
	scope.Remember(storeID, d.ID, path)

	if attrs.URLKey == nil && attrs.URLPath == nil {
		return nil
	}
	return s.categories.UpdateCategoryAttributes(ctx, d.ID, storeID, attrs)
}
