package generator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/pkg/slug"
)

// CategoryTargetPrefix is the internal route of a category page.
const CategoryTargetPrefix = "catalog/category/view/id/"

// URLKey derives a url key from an entity name.
func URLKey(name string) string {
	return slug.Generate(name)
}

// CategoryReader loads a category with attributes resolved for a store.
type CategoryReader interface {
	GetCategory(ctx context.Context, id, storeID int64) (*domain.Category, error)
}

// CategoryGenerator computes category url paths and their rewrites.
type CategoryGenerator struct {
	categories CategoryReader
	suffixes   *suffixes
}

// NewCategoryGenerator creates a category generator.
func NewCategoryGenerator(categories CategoryReader, config ConfigReader) *CategoryGenerator {
	return &CategoryGenerator{categories: categories, suffixes: newSuffixes(config)}
}

// URLPath returns the url path of c: its parent's path followed by its url
// key. Store roots and the tree root contribute nothing. Parent paths come
// from scope first; a parent that is not cached is loaded and remembered.
func (g *CategoryGenerator) URLPath(ctx context.Context, scope *Scope, c *domain.Category, storeID int64) (string, error) {
	if c.URLKey == "" {
		return "", nil
	}
	if c.Level <= domain.TopCategoryLevel {
		return c.URLKey, nil
	}

	parentPath, ok := scope.Path(storeID, c.ParentID)
	if !ok {
		parent, err := g.categories.GetCategory(ctx, c.ParentID, storeID)
		if err != nil {
			return "", fmt.Errorf("load parent of category %d: %w", c.ID, err)
		}
		parentPath = parent.URLPath
		scope.Remember(storeID, parent.ID, parentPath)
	}
	if parentPath == "" {
		return c.URLKey, nil
	}
	return parentPath + domain.CategoryPathDelim + c.URLKey, nil
}

// Rewrites returns one rewrite per category that has a url path.
func (g *CategoryGenerator) Rewrites(ctx context.Context, categories []domain.Category, storeID int64) ([]domain.URLRewrite, error) {
	suffix, err := g.suffixes.get(ctx, ConfigCategoryURLSuffix, storeID)
	if err != nil {
		return nil, fmt.Errorf("read category url suffix: %w", err)
	}

	rewrites := make([]domain.URLRewrite, 0, len(categories))
	for _, c := range categories {
		if c.URLPath == "" {
			continue
		}
		rewrites = append(rewrites, domain.URLRewrite{
			EntityType:      domain.EntityTypeCategory,
			EntityID:        c.ID,
			StoreID:         storeID,
			RequestPath:     c.URLPath + suffix,
			TargetPath:      CategoryTargetPrefix + strconv.FormatInt(c.ID, 10),
			RedirectType:    domain.RedirectNone,
			IsAutogenerated: true,
		})
	}
	return rewrites, nil
}
