package service

import (
	"context"
	"errors"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/generator"
	"github.com/utafrali/urlrewrite/pkg/database"
)

const tracerName = "urlrewrite/service"

// Page sizes of the drivers.
const (
	CategoryPageSize = 100
	ProductPageSize  = 1000
)

// CategoryRewriteGenerator computes category url paths and rewrites.
type CategoryRewriteGenerator interface {
	URLPath(ctx context.Context, scope *generator.Scope, c *domain.Category, storeID int64) (string, error)
	Rewrites(ctx context.Context, categories []domain.Category, storeID int64) ([]domain.URLRewrite, error)
}

// ProductRewriteGenerator computes product rewrites.
type ProductRewriteGenerator interface {
	Rewrites(ctx context.Context, p *domain.Product, categories []domain.Category, storeID int64) ([]domain.URLRewrite, error)
}

// Reindexer asks the catalog to rebuild whatever depends on url rewrites.
type Reindexer interface {
	Reindex(ctx context.Context, report *domain.RunReport) error
}

// CacheInvalidator drops cached storefront pages.
type CacheInvalidator interface {
	Clean(ctx context.Context) error
	Flush(ctx context.Context) error
}

// isFatal reports whether err must end the run instead of being recorded
// against one entity.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return database.IsConnectionError(err)
}

// storeRoot returns the root category of a store. The admin scope has none
// and walks the whole tree.
func storeRoot(ctx context.Context, stores storeGetter, storeID int64) (int64, error) {
	if storeID == domain.DefaultStoreID {
		return 0, nil
	}
	store, err := stores.GetStore(ctx, storeID)
	if err != nil {
		return 0, err
	}
	return store.RootCategoryID, nil
}

type storeGetter interface {
	GetStore(ctx context.Context, storeID int64) (*domain.Store, error)
}

func addSkipped(stats *domain.RunStats, res *domain.SaveResult) {
	if res == nil {
		return
	}
	for _, s := range res.Skipped {
		stats.Diagnostics.Addf("%s %d: request path %q skipped: %s",
			s.Rewrite.EntityType, s.Rewrite.EntityID, s.Rewrite.RequestPath, s.Reason)
	}
}
