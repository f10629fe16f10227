package repository

import (
	"context"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

// CategoryQuery selects the categories a driver walks.
type CategoryQuery struct {
	StoreID int64
	// RootID restricts the selection to the subtree of a store root. Zero
	// means the whole tree.
	RootID int64
	// Filter selects explicit categories at any depth below the store root.
	// An empty filter selects the top level only.
	Filter domain.IDFilter
}

// ProductQuery selects the products a driver walks.
type ProductQuery struct {
	StoreID int64
	Filter  domain.IDFilter
}

// URLAttributes are the store-scoped attributes written back to entities.
// A nil field is left untouched; a pointer to "" clears the value.
type URLAttributes struct {
	URLKey  *string
	URLPath *string
}

// CategorySource reads the category tree and writes url attributes back.
type CategorySource interface {
	// CountCategories returns how many categories q selects.
	CountCategories(ctx context.Context, q CategoryQuery) (int, error)

	// ListCategories returns one page of q ordered by level, then id.
	ListCategories(ctx context.Context, q CategoryQuery, page pagination.Params) ([]domain.Category, error)

	// GetCategory returns a category with attributes resolved for the store.
	GetCategory(ctx context.Context, id, storeID int64) (*domain.Category, error)

	// ListDescendants returns every category below parent, ordered by level,
	// then position, then id.
	ListDescendants(ctx context.Context, parent *domain.Category, storeID int64) ([]domain.Category, error)

	// UpdateCategoryAttributes stores url attributes for one category in one store.
	UpdateCategoryAttributes(ctx context.Context, categoryID, storeID int64, attrs URLAttributes) error

	// ProductIDsInCategories returns the distinct products assigned to any of
	// the given categories, ascending.
	ProductIDsInCategories(ctx context.Context, categoryIDs []int64) ([]int64, error)
}

// ProductSource reads products and writes url attributes back.
type ProductSource interface {
	// CountProducts returns how many products q selects.
	CountProducts(ctx context.Context, q ProductQuery) (int, error)

	// ListProducts returns one page of q ordered by id.
	ListProducts(ctx context.Context, q ProductQuery, page pagination.Params) ([]domain.Product, error)

	// UpdateProductAttributes stores url attributes for products in one store
	// without loading them.
	UpdateProductAttributes(ctx context.Context, productIDs []int64, storeID int64, attrs URLAttributes) error

	// ListProductCategories returns the categories a product is assigned to
	// inside the subtree of rootID, with attributes resolved for the store.
	ListProductCategories(ctx context.Context, productID, storeID, rootID int64) ([]domain.Category, error)
}

// StoreSource resolves stores and their configuration.
type StoreSource interface {
	// ListStores returns every storefront, ordered by id. The admin scope
	// (store 0) is not a storefront.
	ListStores(ctx context.Context) ([]domain.Store, error)

	// GetStore returns one storefront or a not found error.
	GetStore(ctx context.Context, storeID int64) (*domain.Store, error)

	// ConfigValue returns a configuration value, the store scope overriding
	// the default scope. ok is false when neither scope sets it.
	ConfigValue(ctx context.Context, path string, storeID int64) (value string, ok bool, err error)
}

// RewriteStore persists rewrites and the product-category association table.
type RewriteStore interface {
	// Save replaces the rewrites of owners with rewrites in one transaction.
	// With saveHistory the previous rows are kept as permanent redirects.
	Save(ctx context.Context, rewrites []domain.URLRewrite, owners []domain.RewriteOwner, saveHistory bool) (*domain.SaveResult, error)

	// ReconcileAssociations prunes association rows of missing rewrites and
	// restores rows that rewrite metadata implies.
	ReconcileAssociations(ctx context.Context) (*domain.ReconcileResult, error)

	// DeleteStores removes every category and product rewrite of the stores.
	DeleteStores(ctx context.Context, storeIDs []int64) (int64, error)
}
