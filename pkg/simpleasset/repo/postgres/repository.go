package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Beginner opens transactions. *pgxpool.Pool, *pgx.Conn and pgx.Tx all
// satisfy it; a pgx.Tx begins a savepoint.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements simpleasset.Catalog using PostgreSQL. Every query
// runs on the pgx.Tx handed in as the unit of work.
type Repository struct {
	db Beginner
}

// New creates a new PostgreSQL catalog
func New(db Beginner) *Repository {
	return &Repository{db: db}
}

// Begin opens a transaction to be used as the unit of work
func (r *Repository) Begin(ctx context.Context) (simpleasset.UnitOfWork, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, r.handlePostgresError("begin", err)
	}
	return tx, nil
}

func (r *Repository) conn(uow simpleasset.UnitOfWork) (DBTX, error) {
	db, ok := uow.(DBTX)
	if !ok {
		return nil, fmt.Errorf("unit of work %T is not a postgres transaction", uow)
	}
	return db, nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "user_asset") {
				return fmt.Errorf("ownership relation already exists: %w", err)
			}
			return fmt.Errorf("duplicate entry: %w", err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found: %w", err)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing: %w", pgErr.ColumnName, err)
		case "23514": // check_violation
			return fmt.Errorf("constraint %s violated: %w", pgErr.ConstraintName, err)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const assetColumns = `a.id, a.kind, a.filename, a.content_type, a.size, a.duration_seconds,
		a.date_taken, a.is_public, a.is_deleted, a.object_key, a.created_at, a.updated_at`

func scanAsset(row pgx.Row) (*simpleasset.Asset, error) {
	var asset simpleasset.Asset
	err := row.Scan(
		&asset.ID, &asset.Kind, &asset.Filename, &asset.ContentType, &asset.Size, &asset.DurationSeconds,
		&asset.DateTaken, &asset.IsPublic, &asset.IsDeleted, &asset.ObjectKey, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, uow simpleasset.UnitOfWork, asset *simpleasset.Asset, ownerID int64) error {
	db, err := r.conn(uow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO asset (
			kind, filename, content_type, size, duration_seconds,
			date_taken, is_public, is_deleted, object_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err = db.QueryRow(ctx, query,
		asset.Kind, asset.Filename, asset.ContentType, asset.Size, asset.DurationSeconds,
		asset.DateTaken, asset.IsPublic, asset.IsDeleted, asset.ObjectKey, asset.CreatedAt, asset.UpdatedAt,
	).Scan(&asset.ID)
	if err != nil {
		return r.handlePostgresError("create asset", err)
	}

	_, err = db.Exec(ctx, `INSERT INTO user_asset (user_id, asset_id) VALUES ($1, $2)`, ownerID, asset.ID)
	if err != nil {
		return r.handlePostgresError("create ownership relation", err)
	}

	return nil
}

func (r *Repository) GetVisibleAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) (*simpleasset.Asset, error) {
	return r.getAsset(ctx, uow, `
		SELECT `+assetColumns+`
		FROM asset a
		WHERE a.id = $1 AND a.is_public = TRUE AND a.is_deleted = FALSE`, id)
}

func (r *Repository) GetAnyAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) (*simpleasset.Asset, error) {
	return r.getAsset(ctx, uow, `
		SELECT `+assetColumns+`
		FROM asset a
		WHERE a.id = $1`, id)
}

func (r *Repository) getAsset(ctx context.Context, uow simpleasset.UnitOfWork, query string, id int64) (*simpleasset.Asset, error) {
	db, err := r.conn(uow)
	if err != nil {
		return nil, err
	}

	asset, err := scanAsset(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleasset.ErrAssetNotFound
		}
		return nil, r.handlePostgresError("get asset", err)
	}
	return asset, nil
}

func (r *Repository) GetOwnershipRelation(ctx context.Context, uow simpleasset.UnitOfWork, assetID, ownerID int64) (*simpleasset.OwnershipRelation, error) {
	db, err := r.conn(uow)
	if err != nil {
		return nil, err
	}

	var rel simpleasset.OwnershipRelation
	err = db.QueryRow(ctx, `
		SELECT id, user_id, asset_id
		FROM user_asset
		WHERE asset_id = $1 AND user_id = $2`, assetID, ownerID,
	).Scan(&rel.ID, &rel.OwnerID, &rel.AssetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleasset.ErrRelationNotFound
		}
		return nil, r.handlePostgresError("get ownership relation", err)
	}
	return &rel, nil
}

// ownerAssetsFilter is shared by the page query and the count query so the
// total is always computed under the same predicate as the page.
const ownerAssetsFilter = `
		FROM asset a
		JOIN user_asset ua ON ua.asset_id = a.id
		WHERE ua.user_id = $1 AND a.is_deleted = FALSE`

func (r *Repository) ListOwnerAssets(ctx context.Context, uow simpleasset.UnitOfWork, ownerID int64, skip, limit int) ([]*simpleasset.Asset, int64, error) {
	db, err := r.conn(uow)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `SELECT `+assetColumns+ownerAssetsFilter+`
		ORDER BY a.id
		OFFSET $2 LIMIT $3`, ownerID, skip, limit)
	if err != nil {
		return nil, 0, r.handlePostgresError("list owner assets", err)
	}
	defer rows.Close()

	var assets []*simpleasset.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, 0, r.handlePostgresError("scan owner asset", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("list owner assets", err)
	}

	var total int64
	if err := db.QueryRow(ctx, `SELECT count(*)`+ownerAssetsFilter, ownerID).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count owner assets", err)
	}

	return assets, total, nil
}

func (r *Repository) ToggleSoftDelete(ctx context.Context, uow simpleasset.UnitOfWork, id int64, deleting bool) error {
	db, err := r.conn(uow)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `UPDATE asset SET is_deleted = $2, updated_at = now() WHERE id = $1`, id, deleting)
	if err != nil {
		return r.handlePostgresError("toggle soft delete", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleasset.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) HardDeleteAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) error {
	db, err := r.conn(uow)
	if err != nil {
		return err
	}

	// Relations first so none ever points at a missing asset.
	if _, err := db.Exec(ctx, `DELETE FROM user_asset WHERE asset_id = $1`, id); err != nil {
		return r.handlePostgresError("delete ownership relations", err)
	}

	tag, err := db.Exec(ctx, `DELETE FROM asset WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleasset.ErrAssetNotFound
	}
	return nil
}

var _ simpleasset.Catalog = (*Repository)(nil)
