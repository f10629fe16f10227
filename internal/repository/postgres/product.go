package postgres

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/repository"
	"github.com/utafrali/urlrewrite/pkg/database"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

// Products without a status are treated as disabled and products without a
// visibility as not visible individually, so neither gets rewrites.
var productColumns = []string{
	"e.entity_id", "e.sku",
	"COALESCE(s.name, d.name, '')",
	"COALESCE(s.url_key, d.url_key, '')",
	"COALESCE(s.url_path, d.url_path, '')",
	"COALESCE(s.visibility, d.visibility, 1)",
	"COALESCE(s.status, d.status, 2)",
}

// ProductRepository reads products from PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func newProductSelect(q repository.ProductQuery, cols ...string) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...)
	sb.From("catalog_product_entity e")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "catalog_product_store s",
		"s.entity_id = e.entity_id", sb.Equal("s.store_id", q.StoreID))
	sb.JoinWithOption(sqlbuilder.LeftJoin, "catalog_product_store d",
		"d.entity_id = e.entity_id", sb.Equal("d.store_id", domain.DefaultStoreID))

	if q.StoreID != domain.DefaultStoreID {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM catalog_product_store_link l WHERE l.product_id = e.entity_id AND l.store_id = %s)",
			sb.Var(q.StoreID)))
	}
	sb.Where(
		sb.Equal("COALESCE(s.status, d.status, 2)", domain.ProductStatusEnabled),
		sb.NotEqual("COALESCE(s.visibility, d.visibility, 1)", domain.VisibilityNotVisible),
	)

	switch {
	case q.Filter.IsEmpty():
	case q.Filter.IsRange():
		sb.Where(sb.Between("e.entity_id", q.Filter.From, q.Filter.To))
	default:
		sb.Where(anyID(sb, "e.entity_id", q.Filter.IDs))
	}
	return sb
}

// CountProducts returns how many products q selects.
func (r *ProductRepository) CountProducts(ctx context.Context, q repository.ProductQuery) (int, error) {
	query, args := newProductSelect(q, "COUNT(*)").Build()

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// ListProducts returns one page of enabled, individually visible products
// assigned to the store, ordered by id.
func (r *ProductRepository) ListProducts(ctx context.Context, q repository.ProductQuery, page pagination.Params) ([]domain.Product, error) {
	sb := newProductSelect(q, productColumns...)
	sb.OrderBy("e.entity_id")
	sb.Limit(page.PerPage).Offset(page.Offset)
	query, args := sb.Build()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.URLKey, &p.URLPath,
			&p.Visibility, &p.Status); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// UpdateProductAttributes stores url attributes for products in one store
// with a single statement.
func (r *ProductRepository) UpdateProductAttributes(ctx context.Context, productIDs []int64, storeID int64, attrs repository.URLAttributes) error {
	if len(productIDs) == 0 {
		return nil
	}
	query, args, ok := attributeUpsert("catalog_product_store", productIDs, storeID, attrs)
	if !ok {
		return nil
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update url attributes of %d products: %w", len(productIDs), err)
	}
	return nil
}

// ListProductCategories returns the categories below the store root that the
// product is assigned to, parents first.
func (r *ProductRepository) ListProductCategories(ctx context.Context, productID, storeID, rootID int64) ([]domain.Category, error) {
	sb := newCategorySelect(storeID, categoryColumns...)
	sb.Join("catalog_category_product cp", "cp.category_id = e.entity_id")
	sb.Where(
		sb.Equal("cp.product_id", productID),
		sb.GreaterThan("e.level", domain.StoreRootLevel),
	)
	if rootID > 0 {
		sb.Where(sb.Like("e.path", subtreePattern(rootID)))
	}
	sb.OrderBy("e.level", "e.entity_id")
	query, args := sb.Build()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories of product %d: %w", productID, err)
	}
	return scanCategories(rows)
}
