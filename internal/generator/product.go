package generator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/utafrali/urlrewrite/internal/domain"
)

// ProductTargetPrefix is the internal route of a product page.
const ProductTargetPrefix = "catalog/product/view/id/"

// ProductGenerator computes product rewrites.
type ProductGenerator struct {
	suffixes *suffixes
}

// NewProductGenerator creates a product generator.
func NewProductGenerator(config ConfigReader) *ProductGenerator {
	return &ProductGenerator{suffixes: newSuffixes(config)}
}

// Rewrites returns the product's own rewrite followed by one rewrite per
// category that has a url path. Categories are only used when the caller
// passes them; a product without url key gets nothing.
func (g *ProductGenerator) Rewrites(ctx context.Context, p *domain.Product, categories []domain.Category, storeID int64) ([]domain.URLRewrite, error) {
	if p.URLKey == "" {
		return nil, nil
	}

	suffix, err := g.suffixes.get(ctx, ConfigProductURLSuffix, storeID)
	if err != nil {
		return nil, fmt.Errorf("read product url suffix: %w", err)
	}

	target := ProductTargetPrefix + strconv.FormatInt(p.ID, 10)
	rewrites := make([]domain.URLRewrite, 0, 1+len(categories))
	rewrites = append(rewrites, domain.URLRewrite{
		EntityType:      domain.EntityTypeProduct,
		EntityID:        p.ID,
		StoreID:         storeID,
		RequestPath:     p.URLKey + suffix,
		TargetPath:      target,
		RedirectType:    domain.RedirectNone,
		IsAutogenerated: true,
	})

	for _, c := range categories {
		if c.URLPath == "" {
			continue
		}
		rewrites = append(rewrites, domain.URLRewrite{
			EntityType:      domain.EntityTypeProduct,
			EntityID:        p.ID,
			StoreID:         storeID,
			RequestPath:     c.URLPath + domain.CategoryPathDelim + p.URLKey + suffix,
			TargetPath:      target + "/category/" + strconv.FormatInt(c.ID, 10),
			RedirectType:    domain.RedirectNone,
			Metadata:        domain.RewriteMetadata{CategoryID: c.ID},
			IsAutogenerated: true,
		})
	}
	return rewrites, nil
}
