package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/generator"
	"github.com/utafrali/urlrewrite/internal/repository"
	"github.com/utafrali/urlrewrite/internal/rewrite"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- In-memory catalog ---

type memoryCatalog struct {
	stores            []domain.Store
	config            map[string]string
	categories        map[int64]domain.Category
	products          map[int64]domain.Product
	productCategories map[int64][]int64

	failCategoryUpdate map[int64]error
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		stores:             []domain.Store{{ID: 1, Code: "default", RootCategoryID: 2}},
		config:             map[string]string{},
		categories:         map[int64]domain.Category{},
		products:           map[int64]domain.Product{},
		productCategories:  map[int64][]int64{},
		failCategoryUpdate: map[int64]error{},
	}
}

// addCategory places a category below parentID; 2 is the store root.
func (m *memoryCatalog) addCategory(id, parentID int64, name string) {
	path := fmt.Sprintf("1/%d", parentID)
	level := 2
	if parent, ok := m.categories[parentID]; ok {
		path = parent.Path
		level = parent.Level + 1
	}
	m.categories[id] = domain.Category{
		ID: id, ParentID: parentID, Path: fmt.Sprintf("%s/%d", path, id), Level: level, Name: name,
	}
}

func (m *memoryCatalog) addProduct(id int64, name string, categoryIDs ...int64) {
	m.products[id] = domain.Product{
		ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: name,
		Visibility: domain.VisibilityBoth, Status: domain.ProductStatusEnabled,
	}
	m.productCategories[id] = categoryIDs
}

func (m *memoryCatalog) selectCategories(q repository.CategoryQuery) []domain.Category {
	var out []domain.Category
	for _, c := range m.categories {
		if q.RootID > 0 && !strings.HasPrefix(c.Path, fmt.Sprintf("1/%d/", q.RootID)) {
			continue
		}
		if q.Filter.IsEmpty() && c.Level != domain.TopCategoryLevel {
			continue
		}
		if !q.Filter.IsEmpty() && (c.Level <= domain.StoreRootLevel || !q.Filter.Contains(c.ID)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func pageOf[T any](items []T, page pagination.Params) []T {
	if page.Offset >= len(items) {
		return nil
	}
	return items[page.Offset:min(page.Offset+page.PerPage, len(items))]
}

func (m *memoryCatalog) CountCategories(_ context.Context, q repository.CategoryQuery) (int, error) {
	return len(m.selectCategories(q)), nil
}

func (m *memoryCatalog) ListCategories(_ context.Context, q repository.CategoryQuery, page pagination.Params) ([]domain.Category, error) {
	return pageOf(m.selectCategories(q), page), nil
}

func (m *memoryCatalog) GetCategory(_ context.Context, id, _ int64) (*domain.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, apperrors.NotFound("category", id)
	}
	return &c, nil
}

func (m *memoryCatalog) ListDescendants(_ context.Context, parent *domain.Category, _ int64) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range m.categories {
		if strings.HasPrefix(c.Path, parent.Path+"/") {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryCatalog) UpdateCategoryAttributes(_ context.Context, categoryID, _ int64, attrs repository.URLAttributes) error {
	if err := m.failCategoryUpdate[categoryID]; err != nil {
		return err
	}
	c := m.categories[categoryID]
	if attrs.URLKey != nil {
		c.URLKey = *attrs.URLKey
	}
	if attrs.URLPath != nil {
		c.URLPath = *attrs.URLPath
	}
	m.categories[categoryID] = c
	return nil
}

func (m *memoryCatalog) ProductIDsInCategories(_ context.Context, categoryIDs []int64) ([]int64, error) {
	var out []int64
	for pid, cids := range m.productCategories {
		for _, cid := range cids {
			if containsID(categoryIDs, cid) {
				out = append(out, pid)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memoryCatalog) selectProducts(q repository.ProductQuery) []domain.Product {
	var out []domain.Product
	for _, p := range m.products {
		if p.Status != domain.ProductStatusEnabled || !p.IsVisibleIndividually() || !q.Filter.Contains(p.ID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryCatalog) CountProducts(_ context.Context, q repository.ProductQuery) (int, error) {
	return len(m.selectProducts(q)), nil
}

func (m *memoryCatalog) ListProducts(_ context.Context, q repository.ProductQuery, page pagination.Params) ([]domain.Product, error) {
	return pageOf(m.selectProducts(q), page), nil
}

func (m *memoryCatalog) UpdateProductAttributes(_ context.Context, productIDs []int64, _ int64, attrs repository.URLAttributes) error {
	for _, id := range productIDs {
		p := m.products[id]
		if attrs.URLKey != nil {
			p.URLKey = *attrs.URLKey
		}
		if attrs.URLPath != nil {
			p.URLPath = *attrs.URLPath
		}
		m.products[id] = p
	}
	return nil
}

func (m *memoryCatalog) ListProductCategories(_ context.Context, productID, _, rootID int64) ([]domain.Category, error) {
	var out []domain.Category
	for _, cid := range m.productCategories[productID] {
		c, ok := m.categories[cid]
		if !ok || !strings.HasPrefix(c.Path, fmt.Sprintf("1/%d/", rootID)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryCatalog) ListStores(context.Context) ([]domain.Store, error) {
	return m.stores, nil
}

func (m *memoryCatalog) GetStore(_ context.Context, storeID int64) (*domain.Store, error) {
	for _, s := range m.stores {
		if s.ID == storeID {
			return &s, nil
		}
	}
	return nil, apperrors.NotFound("store", storeID)
}

func (m *memoryCatalog) ConfigValue(_ context.Context, path string, _ int64) (string, bool, error) {
	v, ok := m.config[path]
	return v, ok, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// --- In-memory rewrite store ---

type memoryRewrites struct {
	rows       []domain.URLRewrite
	reconciled int
	purged     []int64
}

func (m *memoryRewrites) PathTaken(_ context.Context, entityType string, storeID, entityID int64, requestPath string) (bool, error) {
	for _, r := range m.rows {
		if r.StoreID == storeID && r.RequestPath == requestPath && !(r.EntityType == entityType && r.EntityID == entityID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRewrites) Save(ctx context.Context, rewrites []domain.URLRewrite, owners []domain.RewriteOwner, saveHistory bool) (*domain.SaveResult, error) {
	res := &domain.SaveResult{}
	ownerSet := map[domain.RewriteOwner]bool{}
	for _, o := range owners {
		ownerSet[o] = true
	}
	if !saveHistory {
		kept := m.rows[:0]
		for _, r := range m.rows {
			if ownerSet[r.Owner()] {
				res.Deleted++
				continue
			}
			kept = append(kept, r)
		}
		m.rows = kept
	}

	resolver := rewrite.NewResolver(m)
	for _, rw := range rewrites {
		p, err := rewrite.ParsePath(rw.RequestPath)
		if err != nil {
			res.Skipped = append(res.Skipped, domain.SkippedRewrite{Rewrite: rw, Reason: err.Error()})
			continue
		}
		path, err := resolver.Resolve(ctx, p, rw.EntityType, rw.StoreID, rw.EntityID)
		if err != nil {
			return nil, err
		}
		rw.RequestPath = path
		m.upsert(rw)
		res.Saved++
	}
	res.Renamed = resolver.Renamed()
	return res, nil
}

func (m *memoryRewrites) upsert(rw domain.URLRewrite) {
	for i, r := range m.rows {
		if r.Owner() == rw.Owner() && r.RequestPath == rw.RequestPath {
			m.rows[i] = rw
			return
		}
	}
	m.rows = append(m.rows, rw)
}

func (m *memoryRewrites) ReconcileAssociations(context.Context) (*domain.ReconcileResult, error) {
	m.reconciled++
	return &domain.ReconcileResult{}, nil
}

func (m *memoryRewrites) DeleteStores(_ context.Context, storeIDs []int64) (int64, error) {
	m.purged = append(m.purged, storeIDs...)
	var deleted int64
	kept := m.rows[:0]
	for _, r := range m.rows {
		if containsID(storeIDs, r.StoreID) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *memoryRewrites) paths(entityType string) []string {
	var out []string
	for _, r := range m.rows {
		if r.EntityType == entityType {
			out = append(out, r.RequestPath)
		}
	}
	sort.Strings(out)
	return out
}

// --- Hook mocks ---

type mockReindexer struct {
	mock.Mock
}

func (m *mockReindexer) Reindex(ctx context.Context, report *domain.RunReport) error {
	return m.Called(ctx, report).Error(0)
}

type mockCacheInvalidator struct {
	mock.Mock
}

func (m *mockCacheInvalidator) Clean(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCacheInvalidator) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) TryLock(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) Unlock(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Wiring ---

type testDrivers struct {
	catalog    *memoryCatalog
	rewrites   *memoryRewrites
	products   *ProductRegenerator
	categories *CategoryRegenerator
}

func newTestDrivers(catalog *memoryCatalog) *testDrivers {
	rewrites := &memoryRewrites{}
	cache := generator.NewCache()
	log := newTestLogger()

	products := NewProductRegenerator(catalog, catalog, rewrites,
		generator.NewProductGenerator(catalog), cache, nil, log)
	categories := NewCategoryRegenerator(catalog, catalog, rewrites,
		generator.NewCategoryGenerator(catalog, catalog), products, cache, nil, log)

	return &testDrivers{catalog: catalog, rewrites: rewrites, products: products, categories: categories}
}
