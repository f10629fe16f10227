package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/generator"
	"github.com/utafrali/urlrewrite/internal/repository"
	"github.com/utafrali/urlrewrite/internal/rewrite"
	"github.com/utafrali/urlrewrite/pkg/logger"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

// ProductRegenerator regenerates product url keys and rewrites.
type ProductRegenerator struct {
	products  repository.ProductSource
	stores    repository.StoreSource
	rewrites  repository.RewriteStore
	generator ProductRewriteGenerator
	cache     *generator.Cache
	progress  Progress
	logger    *slog.Logger
}

// NewProductRegenerator creates a product driver. progress may be nil.
func NewProductRegenerator(
	products repository.ProductSource,
	stores repository.StoreSource,
	rewrites repository.RewriteStore,
	gen ProductRewriteGenerator,
	cache *generator.Cache,
	progress Progress,
	logger *slog.Logger,
) *ProductRegenerator {
	if progress == nil {
		progress = NoProgress
	}
	return &ProductRegenerator{
		products:  products,
		stores:    stores,
		rewrites:  rewrites,
		generator: gen,
		cache:     cache,
		progress:  progress,
		logger:    logger,
	}
}

// RegenerateRange regenerates the products filter selects in one store, then
// reconciles the product category associations once.
func (s *ProductRegenerator) RegenerateRange(ctx context.Context, filter domain.IDFilter, storeID int64, opts domain.RegenerationOptions) (*domain.RunStats, error) {
	rootID, err := storeRoot(ctx, s.stores, storeID)
	if err != nil {
		return nil, err
	}

	progress := s.progress
	if !opts.ShowProgress {
		progress = NoProgress
	}

	stats, err := s.regenerate(ctx, filter, storeID, rootID, opts, progress)
	if err != nil {
		return nil, err
	}

	res, err := s.rewrites.ReconcileAssociations(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile associations: %w", err)
	}
	stats.AddReconcile(res)
	return stats, nil
}

// regenerate walks the selection page by page without reconciling. The
// category driver calls it for its cascades.
func (s *ProductRegenerator) regenerate(ctx context.Context, filter domain.IDFilter, storeID, rootID int64, opts domain.RegenerationOptions, progress Progress) (*domain.RunStats, error) {
	useCategories, err := generator.Flag(ctx, s.stores, generator.ConfigProductUseCategories, storeID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", generator.ConfigProductUseCategories, err)
	}

	q := repository.ProductQuery{StoreID: storeID, Filter: filter}
	total, err := s.products.CountProducts(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := &domain.RunStats{}
	progress.Start("products", total)
	defer progress.Finish()

	for page := pagination.DefaultParams(ProductPageSize); ; page = page.Next() {
		products, err := s.products.ListProducts(ctx, q, page)
		if err != nil {
			return nil, err
		}

		for i := range products {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p := &products[i]
			if err := s.processProduct(ctx, p, storeID, rootID, useCategories, opts, stats); err != nil {
				if isFatal(ctx, err) {
					return nil, err
				}
				stats.Diagnostics.Addf("product %d (store %d): %v", p.ID, storeID, err)
				logger.WithContext(ctx, s.logger).WarnContext(ctx, "product regeneration failed",
					slog.Int64("product_id", p.ID),
					slog.Int64("store_id", storeID),
					slog.String("error", err.Error()),
				)
			}
			stats.Products++
			progress.Advance(1)
		}

		if len(products) < page.PerPage || page.Page >= pagination.LastPage(total, page.PerPage) {
			break
		}
	}
	return stats, nil
}

func (s *ProductRegenerator) processProduct(ctx context.Context, p *domain.Product, storeID, rootID int64, useCategories bool, opts domain.RegenerationOptions, stats *domain.RunStats) error {
	scope := s.cache.Acquire()
	defer scope.Release()

	// An empty url_path makes the storefront resolve product urls through
	// the rewrites.
	p.SetURLPath("")
	attrs := repository.URLAttributes{URLPath: new(string)}
	if !opts.NoRegenURLKey {
		p.SetURLKey(generator.URLKey(p.GetName()))
		key := p.GetURLKey()
		attrs.URLKey = &key
	}
	if err := s.products.UpdateProductAttributes(ctx, []int64{p.ID}, storeID, attrs); err != nil {
		return err
	}

	var categories []domain.Category
	if useCategories {
		var err error
		categories, err = s.products.ListProductCategories(ctx, p.ID, storeID, rootID)
		if err != nil {
			return err
		}
	}

	candidates, err := s.generator.Rewrites(ctx, p, categories, storeID)
	if err != nil {
		return err
	}
	candidates = dropDuplicatePaths(candidates)
	if len(candidates) == 0 {
		return nil
	}

	owner := domain.RewriteOwner{EntityType: domain.EntityTypeProduct, EntityID: p.ID, StoreID: storeID}
	res, err := s.rewrites.Save(ctx, candidates, []domain.RewriteOwner{owner}, opts.SaveOldURLs)
	if err != nil {
		return err
	}
	stats.AddSave(res)
	addSkipped(stats, res)
	return nil
}

// dropDuplicatePaths keeps the first rewrite of every normalized request
// path. Duplicates within one entity's own candidates are aliases, so they
// are dropped rather than suffixed.
func dropDuplicatePaths(rewrites []domain.URLRewrite) []domain.URLRewrite {
	seen := make(map[string]struct{}, len(rewrites))
	out := rewrites[:0]
	for _, rw := range rewrites {
		path, err := rewrite.Sanitize(rw.RequestPath, 0, true)
		if err != nil {
			// Left for the persistence layer to report as skipped.
			out = append(out, rw)
			continue
		}
		key := fmt.Sprintf("%d|%s", rw.StoreID, path)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rw.RequestPath = path
		out = append(out, rw)
	}
	return out
}
