package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autopark.kz/internal/fleet"
)

// Columns the asset list may be ordered by without touching the jsonb
// document. Field-level ordering goes through fields->>.
var assetOrderColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"id":         "id",
}

func (s *Store) CreateAsset(ctx context.Context, asset fleet.Asset) (fleet.Asset, error) {
	fieldsJSON, err := json.Marshal(asset.Fields)
	if err != nil {
		return fleet.Asset{}, fmt.Errorf("marshal fields: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into assets (id, fields, version, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
		returning id, fields, version, created_at, updated_at
	`, asset.ID, fieldsJSON, asset.Version, asset.CreatedAt, asset.UpdatedAt)
	created, err := scanAsset(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fleet.Asset{}, fmt.Errorf("%w: asset %s", fleet.ErrInvalidInput, asset.ID)
		}
		return fleet.Asset{}, err
	}
	return created, nil
}

func (s *Store) GetAsset(ctx context.Context, assetID string) (fleet.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, fields, version, created_at, updated_at
		from assets
		where id = $1
	`, assetID)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Asset{}, fleet.ErrNotFound
	}
	if err != nil {
		return fleet.Asset{}, err
	}
	return asset, nil
}

func (s *Store) ListAssets(ctx context.Context, filter fleet.ListFilter) (fleet.AssetPage, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from assets`).Scan(&total); err != nil {
		return fleet.AssetPage{}, err
	}

	orderClause := orderClauseFor(filter.OrderBy, filter.OrderType)
	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`
		select id, fields, version, created_at, updated_at
		from assets
		order by %s
		limit $1 offset $2
	`, orderClause)
	rows, err := s.db.QueryContext(ctx, query, filter.Limit, offset)
	if err != nil {
		return fleet.AssetPage{}, err
	}
	defer rows.Close()

	page := fleet.AssetPage{
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalCount: total,
		TotalPages: totalPages(total, filter.Limit),
	}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return fleet.AssetPage{}, err
		}
		page.Assets = append(page.Assets, asset)
	}
	if err := rows.Err(); err != nil {
		return fleet.AssetPage{}, err
	}
	return page, nil
}

// UpdateAssetFields merges the submitted fields into the jsonb document and
// bumps the version, but only when the stored version still matches. A
// missing row distinguishes not-found from a version conflict afterwards.
func (s *Store) UpdateAssetFields(ctx context.Context, assetID string, expectedVersion int64, fields map[string]string, now time.Time) (fleet.Asset, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fleet.Asset{}, fmt.Errorf("marshal fields: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		update assets
		set fields = fields || $3::jsonb,
		    version = version + 1,
		    updated_at = $4
		where id = $1 and version = $2
		returning id, fields, version, created_at, updated_at
	`, assetID, expectedVersion, fieldsJSON, now)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx, `select exists(select 1 from assets where id = $1)`, assetID).Scan(&exists); checkErr != nil {
			return fleet.Asset{}, checkErr
		}
		if exists {
			return fleet.Asset{}, fleet.ErrConflict
		}
		return fleet.Asset{}, fleet.ErrNotFound
	}
	if err != nil {
		return fleet.Asset{}, err
	}
	return asset, nil
}

func (s *Store) DeleteAsset(ctx context.Context, assetID string) error {
	res, err := s.db.ExecContext(ctx, `delete from assets where id = $1`, assetID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fleet.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (fleet.Asset, error) {
	var (
		asset     fleet.Asset
		rawFields []byte
	)
	if err := row.Scan(&asset.ID, &rawFields, &asset.Version, &asset.CreatedAt, &asset.UpdatedAt); err != nil {
		return fleet.Asset{}, err
	}
	asset.Fields = map[string]string{}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &asset.Fields); err != nil {
			return fleet.Asset{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	return asset, nil
}

// orderClauseFor builds a safe order-by clause. Unknown columns fall through
// to ordering on the jsonb field of that name; the column name is quoted via
// jsonb text extraction, never interpolated as an identifier.
func orderClauseFor(orderBy, orderType string) string {
	direction := "asc"
	if orderType == "desc" {
		direction = "desc"
	}
	if orderBy == "" {
		return "updated_at desc"
	}
	if column, ok := assetOrderColumns[orderBy]; ok {
		return column + " " + direction
	}
	return fmt.Sprintf("fields->>%s %s, id asc", quoteLiteral(orderBy), direction)
}

func quoteLiteral(s string) string {
	out := []rune{'\''}
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
