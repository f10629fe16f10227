package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/repository"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/pagination"
)

func categoryRows(categories ...domain.Category) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"entity_id", "parent_id", "path", "level", "position", "name", "url_key", "url_path"})
	for _, c := range categories {
		rows.AddRow(c.ID, c.ParentID, c.Path, c.Level, c.Position, c.Name, c.URLKey, c.URLPath)
	}
	return rows
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func TestCategoryRepository_ListCategories_TopLevel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	shoes := domain.Category{ID: 10, ParentID: 2, Path: "1/2/10", Level: 2, Name: "Shoes", URLKey: "shoes", URLPath: "shoes"}

	mock.ExpectQuery(`FROM catalog_category_entity e LEFT JOIN catalog_category_store s .* WHERE e.path LIKE .* AND e.level = .* ORDER BY e.level, e.entity_id LIMIT`).
		WillReturnRows(categoryRows(shoes))

	got, err := repo.ListCategories(context.Background(),
		repository.CategoryQuery{StoreID: 1, RootID: 2}, pagination.DefaultParams(100))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shoes, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_CountCategories_Range(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_category_entity e .* e.entity_id BETWEEN .* AND e.level > `).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountCategories(context.Background(),
		repository.CategoryQuery{StoreID: 1, Filter: domain.IDFilter{From: 10, To: 20}})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_GetCategory_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	mock.ExpectQuery("FROM catalog_category_entity e").WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetCategory(context.Background(), 99, 1)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ListDescendants(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	parent := &domain.Category{ID: 10, Path: "1/2/10", Level: 2}
	running := domain.Category{ID: 11, ParentID: 10, Path: "1/2/10/11", Level: 3, Name: "Running"}

	mock.ExpectQuery(`e.path LIKE .* ORDER BY e.level, e.position, e.entity_id`).
		WillReturnRows(categoryRows(running))

	got, err := repo.ListDescendants(context.Background(), parent, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{running}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_UpdateCategoryAttributes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	mock.ExpectExec("INSERT INTO catalog_category_store").
		WithArgs([]int64{10}, int64(1), "shoes", "shoes").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.UpdateCategoryAttributes(context.Background(), 10, 1,
		repository.URLAttributes{URLKey: strPtr("shoes"), URLPath: strPtr("shoes")})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_UpdateCategoryAttributes_Nothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	require.NoError(t, repo.UpdateCategoryAttributes(context.Background(), 10, 1, repository.URLAttributes{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ProductIDsInCategories(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewCategoryRepository(mock)

	mock.ExpectQuery("SELECT DISTINCT product_id").
		WithArgs([]int64{10, 11}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow(int64(5)).AddRow(int64(6)))

	ids, err := repo.ProductIDsInCategories(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttributeUpsert(t *testing.T) {
	query, args, ok := attributeUpsert("catalog_product_store", []int64{1, 2}, 3,
		repository.URLAttributes{URLPath: strPtr("")})
	require.True(t, ok)
	assert.Contains(t, query, "INSERT INTO catalog_product_store (entity_id, store_id, url_path) SELECT unnest($1::bigint[]), $2, $3")
	assert.Contains(t, query, "url_path = EXCLUDED.url_path")
	assert.NotContains(t, query, "url_key")
	assert.Equal(t, []any{[]int64{1, 2}, int64(3), ""}, args)
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func TestProductRepository_ListProducts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`FROM catalog_product_entity e .* EXISTS \(SELECT 1 FROM catalog_product_store_link l .* ORDER BY e.entity_id LIMIT`).
		WillReturnRows(pgxmock.NewRows([]string{"entity_id", "sku", "name", "url_key", "url_path", "visibility", "status"}).
			AddRow(int64(5), "SKU-5", "Trail Runner", "trail-runner", "", 4, 1))

	got, err := repo.ListProducts(context.Background(),
		repository.ProductQuery{StoreID: 1}, pagination.DefaultParams(1000))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "trail-runner", got[0].URLKey)
	assert.True(t, got[0].IsVisibleIndividually())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_CountProducts_AdminStoreSkipsStoreLink(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProductRepository(mock)

	query, _ := newProductSelect(repository.ProductQuery{StoreID: 0}, "COUNT(*)").Build()
	assert.NotContains(t, query, "catalog_product_store_link")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_product_entity e`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.CountProducts(context.Background(), repository.ProductQuery{StoreID: 0})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func cascadeIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func TestNewProductSelect_IDFilterIsOneArgument(t *testing.T) {
	ids := cascadeIDs(70000)

	query, args := newProductSelect(repository.ProductQuery{StoreID: 1, Filter: domain.IDs(ids...)}, "COUNT(*)").Build()

	assert.Contains(t, query, "e.entity_id = ANY(")
	assert.NotContains(t, query, " IN (")
	assert.Less(t, len(args), 65535)
	assert.Contains(t, args, ids)
}

func TestProductRepository_CountProducts_CascadeIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProductRepository(mock)

	ids := cascadeIDs(70000)
	q := repository.ProductQuery{StoreID: 1, Filter: domain.IDs(ids...)}
	_, args := newProductSelect(q, "COUNT(*)").Build()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_product_entity e .* e\.entity_id = ANY\(\$\d+::bigint\[\]\)`).
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(70000))

	total, err := repo.CountProducts(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 70000, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCategorySelect_IDFilterIsOneArgument(t *testing.T) {
	ids := cascadeIDs(70000)

	sb := newCategorySelect(1, "COUNT(*)")
	whereCategoryQuery(sb, repository.CategoryQuery{StoreID: 1, RootID: 2, Filter: domain.IDs(ids...)})
	query, args := sb.Build()

	assert.Contains(t, query, "e.entity_id = ANY(")
	assert.Less(t, len(args), 65535)
	assert.Contains(t, args, ids)
}

func TestProductRepository_UpdateProductAttributes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectExec("INSERT INTO catalog_product_store").
		WithArgs([]int64{5}, int64(1), "trail-runner", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.UpdateProductAttributes(context.Background(), []int64{5}, 1,
		repository.URLAttributes{URLKey: strPtr("trail-runner"), URLPath: strPtr("")})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ListProductCategories(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProductRepository(mock)

	running := domain.Category{ID: 11, ParentID: 10, Path: "1/2/10/11", Level: 3, URLPath: "shoes/running"}

	mock.ExpectQuery(`JOIN catalog_category_product cp ON cp.category_id = e.entity_id`).
		WillReturnRows(categoryRows(running))

	got, err := repo.ListProductCategories(context.Background(), 5, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{running}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

func TestStoreRepository_ListStores(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewStoreRepository(mock)

	mock.ExpectQuery("FROM store s").
		WillReturnRows(pgxmock.NewRows([]string{"store_id", "code", "root_category_id"}).
			AddRow(int64(1), "default", int64(2)).
			AddRow(int64(2), "french", int64(2)))

	stores, err := repo.ListStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Store{
		{ID: 1, Code: "default", RootCategoryID: 2},
		{ID: 2, Code: "french", RootCategoryID: 2},
	}, stores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRepository_GetStore_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewStoreRepository(mock)

	mock.ExpectQuery("FROM store s").
		WithArgs(int64(9), 0).
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetStore(context.Background(), 9)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, apperrors.ExitNotFound, apperrors.ExitCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRepository_ConfigValue(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock pgxmock.PgxPoolIface)
		wantValue string
		wantOK    bool
		wantErr   bool
	}{
		{
			name: "store scope value",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM core_config_data").
					WithArgs("catalog/seo/product_url_suffix", ScopeStores, int64(1), ScopeDefault).
					WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(".htm"))
			},
			wantValue: ".htm",
			wantOK:    true,
		},
		{
			name: "unset",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM core_config_data").WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "query failure",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM core_config_data").WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setup(mock)

			value, ok, err := NewStoreRepository(mock).ConfigValue(context.Background(), "catalog/seo/product_url_suffix", 1)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
