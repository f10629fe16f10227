package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/repository"
	"github.com/utafrali/urlrewrite/pkg/database"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

// categoryColumns resolve store-scoped attributes: the store row wins over
// the store 0 defaults.
var categoryColumns = []string{
	"e.entity_id", "e.parent_id", "e.path", "e.level", "e.position",
	"COALESCE(s.name, d.name, '')",
	"COALESCE(s.url_key, d.url_key, '')",
	"COALESCE(s.url_path, d.url_path, '')",
}

// CategoryRepository reads the category tree from PostgreSQL.
type CategoryRepository struct {
	pool database.DBTX
}

// NewCategoryRepository creates a new PostgreSQL-backed category repository.
func NewCategoryRepository(pool database.DBTX) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func newCategorySelect(storeID int64, cols ...string) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...)
	sb.From("catalog_category_entity e")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "catalog_category_store s",
		"s.entity_id = e.entity_id", sb.Equal("s.store_id", storeID))
	sb.JoinWithOption(sqlbuilder.LeftJoin, "catalog_category_store d",
		"d.entity_id = e.entity_id", sb.Equal("d.store_id", domain.DefaultStoreID))
	return sb
}

// subtreePattern matches the paths strictly below a store root.
func subtreePattern(rootID int64) string {
	return fmt.Sprintf("%d/%d/%%", domain.TreeRootID, rootID)
}

// anyID matches column against ids bound as a single bigint[] parameter, so
// the statement size does not grow with the number of ids.
func anyID(sb *sqlbuilder.SelectBuilder, column string, ids []int64) string {
	return fmt.Sprintf("%s = ANY(%s::bigint[])", column, sb.Var(ids))
}

func whereCategoryQuery(sb *sqlbuilder.SelectBuilder, q repository.CategoryQuery) {
	if q.RootID > 0 {
		sb.Where(sb.Like("e.path", subtreePattern(q.RootID)))
	}
	switch {
	case q.Filter.IsEmpty():
		sb.Where(sb.Equal("e.level", domain.TopCategoryLevel))
	case q.Filter.IsRange():
		sb.Where(
			sb.Between("e.entity_id", q.Filter.From, q.Filter.To),
			sb.GreaterThan("e.level", domain.StoreRootLevel),
		)
	default:
		sb.Where(
			anyID(sb, "e.entity_id", q.Filter.IDs),
			sb.GreaterThan("e.level", domain.StoreRootLevel),
		)
	}
}

func scanCategories(rows pgx.Rows) ([]domain.Category, error) {
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Path, &c.Level, &c.Position,
			&c.Name, &c.URLKey, &c.URLPath); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return categories, nil
}

// CountCategories returns how many categories q selects.
func (r *CategoryRepository) CountCategories(ctx context.Context, q repository.CategoryQuery) (int, error) {
	sb := newCategorySelect(q.StoreID, "COUNT(*)")
	whereCategoryQuery(sb, q)
	query, args := sb.Build()

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return total, nil
}

// ListCategories returns one page of q ordered by level, then id.
func (r *CategoryRepository) ListCategories(ctx context.Context, q repository.CategoryQuery, page pagination.Params) ([]domain.Category, error) {
	sb := newCategorySelect(q.StoreID, categoryColumns...)
	whereCategoryQuery(sb, q)
	sb.OrderBy("e.level", "e.entity_id")
	sb.Limit(page.PerPage).Offset(page.Offset)
	query, args := sb.Build()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return scanCategories(rows)
}

// GetCategory returns a category with attributes resolved for the store.
func (r *CategoryRepository) GetCategory(ctx context.Context, id, storeID int64) (*domain.Category, error) {
	sb := newCategorySelect(storeID, categoryColumns...)
	sb.Where(sb.Equal("e.entity_id", id))
	query, args := sb.Build()

	var c domain.Category
	err := r.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.ParentID, &c.Path, &c.Level,
		&c.Position, &c.Name, &c.URLKey, &c.URLPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("category", id)
		}
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &c, nil
}

// ListDescendants returns every category below parent, ordered by level,
// then position, then id, so parents always come before their children.
func (r *CategoryRepository) ListDescendants(ctx context.Context, parent *domain.Category, storeID int64) ([]domain.Category, error) {
	sb := newCategorySelect(storeID, categoryColumns...)
	sb.Where(sb.Like("e.path", parent.Path+domain.CategoryPathDelim+"%"))
	sb.OrderBy("e.level", "e.position", "e.entity_id")
	query, args := sb.Build()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list descendants of category %d: %w", parent.ID, err)
	}
	return scanCategories(rows)
}

// UpdateCategoryAttributes stores url attributes in the category's store row,
// creating the row when the store has no overrides yet.
func (r *CategoryRepository) UpdateCategoryAttributes(ctx context.Context, categoryID, storeID int64, attrs repository.URLAttributes) error {
	query, args, ok := attributeUpsert("catalog_category_store", []int64{categoryID}, storeID, attrs)
	if !ok {
		return nil
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update url attributes of category %d: %w", categoryID, err)
	}
	return nil
}

const productIDsInCategoriesQuery = `
	SELECT DISTINCT product_id
	FROM catalog_category_product
	WHERE category_id = ANY($1)
	ORDER BY product_id`

// ProductIDsInCategories returns the distinct products assigned to any of the
// given categories, ascending.
func (r *CategoryRepository) ProductIDsInCategories(ctx context.Context, categoryIDs []int64) ([]int64, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, productIDsInCategoriesQuery, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("list products of categories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product ids: %w", err)
	}
	return ids, nil
}

// attributeUpsert builds an upsert of url attributes into a store-scoped
// attribute table for every entity id. ok is false when attrs sets nothing.
func attributeUpsert(table string, entityIDs []int64, storeID int64, attrs repository.URLAttributes) (query string, args []any, ok bool) {
	cols := []string{"entity_id", "store_id"}
	vals := []string{"unnest($1::bigint[])", "$2"}
	args = []any{entityIDs, storeID}
	var sets []string

	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		cols = append(cols, col)
		vals = append(vals, fmt.Sprintf("$%d", len(args)))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	add("url_key", attrs.URLKey)
	add("url_path", attrs.URLPath)
	if len(sets) == 0 {
		return "", nil, false
	}

	query = fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s
		ON CONFLICT (entity_id, store_id) DO UPDATE SET %s`,
		table, strings.Join(cols, ", "), strings.Join(vals, ", "), strings.Join(sets, ", "))
	return query, args, true
}
