package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/generator"
)

func TestProductRegenerator_SuffixesCollidingNames(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addProduct(1, "Runner")
	catalog.addProduct(2, "Runner")
	d := newTestDrivers(catalog)

	stats, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"runner-1.html", "runner.html"}, d.rewrites.paths(domain.EntityTypeProduct))
	assert.Equal(t, 2, stats.Products)
	assert.Equal(t, 1, stats.Collisions)
	assert.Equal(t, 1, d.rewrites.reconciled)

	for _, rw := range d.rewrites.rows {
		if rw.EntityID == 2 {
			assert.Equal(t, "runner-1.html", rw.RequestPath)
		}
	}
}

func TestProductRegenerator_Idempotent(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addCategory(10, 2, "Shoes")
	catalog.config[generator.ConfigProductUseCategories] = "1"
	catalog.addProduct(1, "Runner", 10)
	catalog.addProduct(2, "Runner", 10)
	d := newTestDrivers(catalog)
	shoes := catalog.categories[10]
	shoes.URLKey, shoes.URLPath = "shoes", "shoes"
	catalog.categories[10] = shoes

	_, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)
	first := append([]domain.URLRewrite(nil), d.rewrites.rows...)

	_, err = d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)

	assert.ElementsMatch(t, first, d.rewrites.rows)
	assert.Equal(t,
		[]string{"runner-1.html", "runner.html", "shoes/runner-1.html", "shoes/runner.html"},
		d.rewrites.paths(domain.EntityTypeProduct))
}

func TestProductRegenerator_SkipsInvisibleAndDisabled(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addProduct(1, "Visible")
	catalog.addProduct(2, "Hidden")
	catalog.addProduct(3, "Disabled")
	hidden := catalog.products[2]
	hidden.Visibility = domain.VisibilityNotVisible
	catalog.products[2] = hidden
	disabled := catalog.products[3]
	disabled.Status = domain.ProductStatusDisabled
	catalog.products[3] = disabled

	d := newTestDrivers(catalog)
	stats, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Products)
	assert.Equal(t, []string{"visible.html"}, d.rewrites.paths(domain.EntityTypeProduct))
}

func TestProductRegenerator_ClearsURLPathAndRegeneratesKey(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addProduct(1, "Blue Shirt")
	p := catalog.products[1]
	p.URLKey, p.URLPath = "old-key", "old/path.html"
	catalog.products[1] = p

	d := newTestDrivers(catalog)
	_, err := d.products.RegenerateRange(context.Background(), domain.IDs(1), 1, domain.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "blue-shirt", catalog.products[1].URLKey)
	assert.Empty(t, catalog.products[1].URLPath)
	assert.Equal(t, []string{"blue-shirt.html"}, d.rewrites.paths(domain.EntityTypeProduct))
}

func TestProductRegenerator_NoRegenURLKey(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addProduct(1, "Blue Shirt")
	p := catalog.products[1]
	p.URLKey = "kept-key"
	catalog.products[1] = p

	d := newTestDrivers(catalog)
	opts := domain.DefaultOptions()
	opts.NoRegenURLKey = true

	_, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept-key.html"}, d.rewrites.paths(domain.EntityTypeProduct))
}

func TestProductRegenerator_NoKeyNoRewrites(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.addProduct(1, "")
	d := newTestDrivers(catalog)

	stats, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Products)
	assert.Empty(t, d.rewrites.rows)
}

func TestProductRegenerator_RangeFilter(t *testing.T) {
	catalog := newMemoryCatalog()
	for id, name := range map[int64]string{1: "One", 2: "Two", 3: "Three", 4: "Four"} {
		catalog.addProduct(id, name)
	}
	d := newTestDrivers(catalog)

	filter, err := domain.ParseIDRange("2-3")
	require.NoError(t, err)
	_, err = d.products.RegenerateRange(context.Background(), filter, 1, domain.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"three.html", "two.html"}, d.rewrites.paths(domain.EntityTypeProduct))
}

func TestProductRegenerator_SkipsCategoriesOutsideStoreRoot(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.config[generator.ConfigProductUseCategories] = "1"
	catalog.addCategory(10, 2, "Shoes")
	catalog.addCategory(20, 3, "Other Root Shoes")
	for _, id := range []int64{10, 20} {
		c := catalog.categories[id]
		c.URLKey, c.URLPath = "shoes", "shoes"
		catalog.categories[id] = c
	}
	catalog.addProduct(1, "Runner", 10, 20)
	d := newTestDrivers(catalog)

	_, err := d.products.RegenerateRange(context.Background(), domain.IDFilter{}, 1, domain.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"runner.html", "shoes/runner.html"}, d.rewrites.paths(domain.EntityTypeProduct))
}

func TestDropDuplicatePaths(t *testing.T) {
	in := []domain.URLRewrite{
		{EntityType: domain.EntityTypeProduct, EntityID: 1, StoreID: 1, RequestPath: "shoes/runner.html", TargetPath: "a"},
		{EntityType: domain.EntityTypeProduct, EntityID: 1, StoreID: 1, RequestPath: "shoes/runner.html", TargetPath: "b"},
		{EntityType: domain.EntityTypeProduct, EntityID: 1, StoreID: 2, RequestPath: "shoes/runner.html", TargetPath: "c"},
	}

	out := dropDuplicatePaths(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].TargetPath)
	assert.Equal(t, "c", out[1].TargetPath)
}
