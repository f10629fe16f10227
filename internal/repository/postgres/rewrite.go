package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/rewrite"
	"github.com/utafrali/urlrewrite/pkg/database"
)

const (
	tableURLRewrite = "url_rewrite"

	// Statement sizes stay well below the 65535 bind parameter limit.
	ownerChunkSize    = 1000
	upsertChunkSize   = 500
	reconcilePageSize = 1000
)

var upsertColumns = []string{
	"entity_type", "entity_id", "store_id", "request_path",
	"target_path", "redirect_type", "metadata", "is_autogenerated",
}

const upsertConflict = ` ON CONFLICT (entity_type, entity_id, store_id, request_path) DO UPDATE SET
	target_path = EXCLUDED.target_path,
	redirect_type = EXCLUDED.redirect_type,
	metadata = EXCLUDED.metadata,
	is_autogenerated = EXCLUDED.is_autogenerated`

// queryer is satisfied by both the pool and a pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RewriteRepository implements rewrite persistence using PostgreSQL.
type RewriteRepository struct {
	pool database.DBTX
}

// NewRewriteRepository creates a new PostgreSQL-backed rewrite repository.
func NewRewriteRepository(pool database.DBTX) *RewriteRepository {
	return &RewriteRepository{pool: pool}
}

const pathTakenQuery = `
	SELECT EXISTS (
		SELECT 1 FROM url_rewrite
		WHERE store_id = $1 AND request_path = $2
		  AND NOT (entity_type = $3 AND entity_id = $4)
	)`

func pathTaken(ctx context.Context, q queryer, entityType string, storeID, entityID int64, requestPath string) (bool, error) {
	var taken bool
	err := q.QueryRow(ctx, pathTakenQuery, storeID, requestPath, entityType, entityID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check request path: %w", err)
	}
	return taken, nil
}

// PathTaken reports whether another entity already owns requestPath in the
// store. Paths are unique per store across entity types.
func (r *RewriteRepository) PathTaken(ctx context.Context, entityType string, storeID, entityID int64, requestPath string) (bool, error) {
	return pathTaken(ctx, r.pool, entityType, storeID, entityID, requestPath)
}

// txLookup answers path lookups inside the saving transaction, so rows the
// transaction already deleted do not count as collisions.
type txLookup struct {
	q queryer
}

func (l txLookup) PathTaken(ctx context.Context, entityType string, storeID, entityID int64, requestPath string) (bool, error) {
	return pathTaken(ctx, l.q, entityType, storeID, entityID, requestPath)
}

type preparedRewrite struct {
	rewrite domain.URLRewrite
	path    rewrite.Path
}

// prepare normalizes request paths. Rewrites that normalize to nothing are
// reported as skipped.
func prepare(rewrites []domain.URLRewrite, res *domain.SaveResult) []preparedRewrite {
	out := make([]preparedRewrite, 0, len(rewrites))
	for _, rw := range rewrites {
		p, err := rewrite.ParsePath(rw.RequestPath)
		if err != nil {
			res.Skipped = append(res.Skipped, domain.SkippedRewrite{Rewrite: rw, Reason: err.Error()})
			continue
		}
		out = append(out, preparedRewrite{rewrite: rw, path: p})
	}
	return out
}

func distinctOwners(rewrites []preparedRewrite) []domain.RewriteOwner {
	seen := make(map[domain.RewriteOwner]struct{}, len(rewrites))
	owners := make([]domain.RewriteOwner, 0, len(rewrites))
	for _, p := range rewrites {
		o := p.rewrite.Owner()
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		owners = append(owners, o)
	}
	return owners
}

// Save replaces the rewrites of owners. Owners default to the entities of the
// given rewrites. Everything happens in one transaction: without history the
// owners' rows are deleted first, with history the rows that are not
// regenerated become permanent redirects to the owner's new primary path.
// Paths are then made unique and upserted. A batch that hits a duplicate key
// is retried row by row; rows that still fail are returned in
// SaveResult.Failed instead of aborting the transaction.
func (r *RewriteRepository) Save(ctx context.Context, rewrites []domain.URLRewrite, owners []domain.RewriteOwner, saveHistory bool) (res *domain.SaveResult, err error) {
	ctx, end := database.TraceQuery(ctx, "SaveRewrites", "replace url_rewrite rows of owners")
	defer func() { end(err) }()

	res = &domain.SaveResult{}
	prepared := prepare(rewrites, res)
	if len(owners) == 0 {
		owners = distinctOwners(prepared)
	}
	if len(owners) == 0 {
		return res, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if !saveHistory {
		if res.Deleted, err = deleteOwnerRows(ctx, tx, owners); err != nil {
			return nil, err
		}
	}

	final, err := resolvePaths(ctx, tx, prepared, res)
	if err != nil {
		return nil, err
	}

	if saveHistory {
		if res.Retired, err = retireOwnerRows(ctx, tx, owners, final); err != nil {
			return nil, err
		}
	}

	for start := 0; start < len(final); start += upsertChunkSize {
		chunk := final[start:min(start+upsertChunkSize, len(final))]
		if err = upsertChunk(ctx, tx, chunk, res); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit save transaction: %w", err)
	}
	return res, nil
}

func resolvePaths(ctx context.Context, tx queryer, prepared []preparedRewrite, res *domain.SaveResult) ([]domain.URLRewrite, error) {
	resolver := rewrite.NewResolver(txLookup{q: tx})
	final := make([]domain.URLRewrite, 0, len(prepared))
	for _, p := range prepared {
		rw := p.rewrite
		path, err := resolver.Resolve(ctx, p.path, rw.EntityType, rw.StoreID, rw.EntityID)
		if errors.Is(err, rewrite.ErrTooManyCollisions) {
			res.Failed = append(res.Failed, domain.FailedRewrite{Rewrite: rw, Err: err})
			continue
		}
		if err != nil {
			return nil, err
		}
		rw.RequestPath = path
		final = append(final, rw)
	}
	res.Renamed = resolver.Renamed()
	return final, nil
}

func deleteOwnerRows(ctx context.Context, tx queryer, owners []domain.RewriteOwner) (int, error) {
	deleted := 0
	for start := 0; start < len(owners); start += ownerChunkSize {
		chunk := owners[start:min(start+ownerChunkSize, len(owners))]

		db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		db.DeleteFrom(tableURLRewrite)
		conds := make([]string, 0, len(chunk))
		for _, o := range chunk {
			conds = append(conds, db.And(
				db.Equal("entity_type", o.EntityType),
				db.Equal("entity_id", o.EntityID),
				db.Equal("store_id", o.StoreID),
			))
		}
		db.Where(db.Or(conds...))

		query, args := db.Build()
		ct, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return deleted, fmt.Errorf("delete previous rewrites: %w", err)
		}
		deleted += int(ct.RowsAffected())
	}
	return deleted, nil
}

const retireQuery = `
	UPDATE url_rewrite
	SET redirect_type = $1, target_path = $2, is_autogenerated = FALSE
	WHERE entity_type = $3 AND entity_id = $4 AND store_id = $5
	  AND request_path <> ALL($6)`

// retireOwnerRows turns the stored rows of each owner that are not part of
// the new set into redirects to the owner's primary path, which is its first
// rewrite without category context. Owners without new rewrites keep their
// rows unchanged.
func retireOwnerRows(ctx context.Context, tx queryer, owners []domain.RewriteOwner, final []domain.URLRewrite) (int, error) {
	primary := make(map[domain.RewriteOwner]string, len(owners))
	paths := make(map[domain.RewriteOwner][]string, len(owners))
	for _, rw := range final {
		o := rw.Owner()
		paths[o] = append(paths[o], rw.RequestPath)
		if _, ok := primary[o]; !ok && rw.Metadata.IsZero() {
			primary[o] = rw.RequestPath
		}
	}

	retired := 0
	for _, o := range owners {
		target, ok := primary[o]
		if !ok {
			continue
		}
		ct, err := tx.Exec(ctx, retireQuery, domain.RedirectPermanent, target, o.EntityType, o.EntityID, o.StoreID, paths[o])
		if err != nil {
			return retired, fmt.Errorf("keep previous rewrites of %s as redirects: %w", o, err)
		}
		retired += int(ct.RowsAffected())
	}
	return retired, nil
}

func metadataValue(m domain.RewriteMetadata) ([]byte, error) {
	if m.IsZero() {
		return nil, nil
	}
	return json.Marshal(m)
}

func upsertRows(ctx context.Context, tx queryer, rows []domain.URLRewrite) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableURLRewrite)
	ib.Cols(upsertColumns...)
	for _, rw := range rows {
		meta, err := metadataValue(rw.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", rw.Owner(), err)
		}
		ib.Values(rw.EntityType, rw.EntityID, rw.StoreID, rw.RequestPath,
			rw.TargetPath, rw.RedirectType, meta, rw.IsAutogenerated)
	}

	query, args := ib.Build()
	_, err := tx.Exec(ctx, query+upsertConflict, args...)
	return err
}

// upsertChunk writes rows under a savepoint and falls back to one savepoint
// per row when the batch collides.
func upsertChunk(ctx context.Context, tx queryer, rows []domain.URLRewrite, res *domain.SaveResult) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT rewrite_batch"); err != nil {
		return fmt.Errorf("create batch savepoint: %w", err)
	}

	err := upsertRows(ctx, tx, rows)
	if err == nil {
		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT rewrite_batch"); err != nil {
			return fmt.Errorf("release batch savepoint: %w", err)
		}
		res.Saved += len(rows)
		return nil
	}
	if !database.IsDuplicateKey(err) {
		return fmt.Errorf("upsert rewrites: %w", err)
	}

	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT rewrite_batch"); err != nil {
		return fmt.Errorf("roll back batch savepoint: %w", err)
	}
	res.RetriedRow = true

	for _, rw := range rows {
		if _, err := tx.Exec(ctx, "SAVEPOINT rewrite_row"); err != nil {
			return fmt.Errorf("create row savepoint: %w", err)
		}
		if err := upsertRows(ctx, tx, []domain.URLRewrite{rw}); err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return fmt.Errorf("upsert rewrite %q: %w", rw.RequestPath, err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT rewrite_row"); rbErr != nil {
				return fmt.Errorf("roll back row savepoint: %w", rbErr)
			}
			res.Failed = append(res.Failed, domain.FailedRewrite{Rewrite: rw, Err: err})
			continue
		}
		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT rewrite_row"); err != nil {
			return fmt.Errorf("release row savepoint: %w", err)
		}
		res.Saved++
	}
	return nil
}

const (
	pruneAssociationsQuery = `
		DELETE FROM catalog_url_rewrite_product_category AS a
		WHERE NOT EXISTS (
			SELECT 1 FROM url_rewrite u WHERE u.url_rewrite_id = a.url_rewrite_id
		)`

	missingAssociationsQuery = `
		SELECT u.url_rewrite_id, u.entity_id, u.metadata->>'category_id'
		FROM url_rewrite u
		LEFT JOIN catalog_url_rewrite_product_category a ON a.url_rewrite_id = u.url_rewrite_id
		WHERE u.entity_type = 'product'
		  AND a.url_rewrite_id IS NULL
		  AND (u.metadata->>'category_id') ~ '^[0-9]+$'
		  AND u.url_rewrite_id > $1
		ORDER BY u.url_rewrite_id
		LIMIT $2`

	insertAssociationQuery = `
		INSERT INTO catalog_url_rewrite_product_category (url_rewrite_id, category_id, product_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (url_rewrite_id) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			product_id = EXCLUDED.product_id`
)

func pruneAssociations(ctx context.Context, q queryer) (int, error) {
	ct, err := q.Exec(ctx, pruneAssociationsQuery)
	if err != nil {
		return 0, fmt.Errorf("prune product category associations: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func missingAssociations(ctx context.Context, q queryer, afterID int64) ([]domain.ProductCategoryLink, error) {
	rows, err := q.Query(ctx, missingAssociationsQuery, afterID, reconcilePageSize)
	if err != nil {
		return nil, fmt.Errorf("find missing associations: %w", err)
	}
	defer rows.Close()

	var links []domain.ProductCategoryLink
	for rows.Next() {
		var (
			link       domain.ProductCategoryLink
			categoryID string
		)
		if err := rows.Scan(&link.URLRewriteID, &link.ProductID, &categoryID); err != nil {
			return nil, fmt.Errorf("scan missing association: %w", err)
		}
		// The pattern in the query guarantees digits; overflow is the only failure.
		if link.CategoryID, err = strconv.ParseInt(categoryID, 10, 64); err != nil {
			continue
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing associations: %w", err)
	}
	return links, nil
}

// ReconcileAssociations removes association rows whose rewrite is gone, then
// inserts one row per product rewrite whose metadata names a category but has
// no association yet. Inserts run one by one because metadata may name
// categories or products that no longer exist; such rows are reported and
// skipped.
func (r *RewriteRepository) ReconcileAssociations(ctx context.Context) (res *domain.ReconcileResult, err error) {
	ctx, end := database.TraceQuery(ctx, "ReconcileAssociations", pruneAssociationsQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	res = &domain.ReconcileResult{}
	if res.Pruned, err = pruneAssociations(ctx, tx); err != nil {
		return nil, err
	}

	var afterID int64
	for {
		links, err := missingAssociations(ctx, tx, afterID)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 {
			break
		}
		for _, link := range links {
			afterID = link.URLRewriteID
			if err := insertAssociation(ctx, tx, link, res); err != nil {
				return nil, err
			}
		}
		if len(links) < reconcilePageSize {
			break
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reconcile transaction: %w", err)
	}
	return res, nil
}

func insertAssociation(ctx context.Context, tx queryer, link domain.ProductCategoryLink, res *domain.ReconcileResult) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT association_row"); err != nil {
		return fmt.Errorf("create association savepoint: %w", err)
	}
	_, err := tx.Exec(ctx, insertAssociationQuery, link.URLRewriteID, link.CategoryID, link.ProductID)
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return fmt.Errorf("insert association for rewrite %d: %w", link.URLRewriteID, err)
		}
		if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT association_row"); err != nil {
			return fmt.Errorf("roll back association savepoint: %w", err)
		}
		res.Failed = append(res.Failed, fmt.Sprintf(
			"association of rewrite %d (product %d, category %d) could not be restored: %s",
			link.URLRewriteID, link.ProductID, link.CategoryID, pgErr.Message))
		return nil
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT association_row"); err != nil {
		return fmt.Errorf("release association savepoint: %w", err)
	}
	res.Inserted++
	return nil
}

// DeleteStores removes every category and product rewrite of the stores and
// prunes the associations left behind.
func (r *RewriteRepository) DeleteStores(ctx context.Context, storeIDs []int64) (deleted int64, err error) {
	if len(storeIDs) == 0 {
		return 0, nil
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(tableURLRewrite)
	db.Where(
		db.In("entity_type", domain.EntityTypeCategory, domain.EntityTypeProduct),
		db.In("store_id", sqlbuilder.Flatten(storeIDs)...),
	)
	query, args := db.Build()

	ctx, end := database.TraceQuery(ctx, "DeleteStoreRewrites", query)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin purge transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete rewrites of stores %s: %w", joinIDs(storeIDs), err)
	}
	if _, err = pruneAssociations(ctx, tx); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purge transaction: %w", err)
	}
	return ct.RowsAffected(), nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
