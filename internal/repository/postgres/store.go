package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/pkg/database"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
)

// Configuration scopes of core_config_data.
const (
	ScopeDefault = "default"
	ScopeStores  = "stores"
)

const storeColumns = `s.store_id, s.code, COALESCE(g.root_category_id, 0)`

// StoreRepository reads stores and their configuration from PostgreSQL.
type StoreRepository struct {
	pool database.DBTX
}

// NewStoreRepository creates a new PostgreSQL-backed store repository.
func NewStoreRepository(pool database.DBTX) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// ListStores returns every storefront ordered by id. The admin scope is not
// a storefront and is left out.
func (r *StoreRepository) ListStores(ctx context.Context) ([]domain.Store, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM store s
		LEFT JOIN store_group g ON g.group_id = s.group_id
		WHERE s.store_id <> $1
		ORDER BY s.store_id`, storeColumns)

	rows, err := r.pool.Query(ctx, query, domain.DefaultStoreID)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var stores []domain.Store
	for rows.Next() {
		var s domain.Store
		if err := rows.Scan(&s.ID, &s.Code, &s.RootCategoryID); err != nil {
			return nil, fmt.Errorf("scan store row: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store rows: %w", err)
	}
	return stores, nil
}

// GetStore returns one storefront.
func (r *StoreRepository) GetStore(ctx context.Context, storeID int64) (*domain.Store, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM store s
		LEFT JOIN store_group g ON g.group_id = s.group_id
		WHERE s.store_id = $1 AND s.store_id <> $2`, storeColumns)

	var s domain.Store
	err := r.pool.QueryRow(ctx, query, storeID, domain.DefaultStoreID).Scan(&s.ID, &s.Code, &s.RootCategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("store", storeID)
		}
		return nil, fmt.Errorf("get store %d: %w", storeID, err)
	}
	return &s, nil
}

const configValueQuery = `
	SELECT value
	FROM core_config_data
	WHERE path = $1 AND value IS NOT NULL
	  AND ((scope = $2 AND scope_id = $3) OR (scope = $4 AND scope_id = 0))
	ORDER BY CASE WHEN scope = $2 THEN 0 ELSE 1 END
	LIMIT 1`

// ConfigValue returns the store-scoped value of path, falling back to the
// default scope.
func (r *StoreRepository) ConfigValue(ctx context.Context, path string, storeID int64) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, configValueQuery, path, ScopeStores, storeID, ScopeDefault).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read config %s for store %d: %w", path, storeID, err)
	}
	return value, true, nil
}
