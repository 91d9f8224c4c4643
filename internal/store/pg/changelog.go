package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autopark.kz/internal/fleet"
)

func (s *Store) AppendChanges(ctx context.Context, records []fleet.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, record := range records {
		if _, err := tx.ExecContext(ctx, `
			insert into change_records (id, asset_id, field, old_value, new_value, changed_by, changed_by_name, changed_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, record.ID, record.AssetID, record.Field, record.OldValue, record.NewValue,
			record.ChangedBy, record.ChangedByName, record.ChangedAt); err != nil {
			return fmt.Errorf("insert change record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListChanges(ctx context.Context, filter fleet.LogFilter) (fleet.LogPage, error) {
	var (
		conditions = []string{"asset_id = $1"}
		args       = []any{filter.AssetID}
		idx        = 2
	)
	if filter.Field != "" {
		conditions = append(conditions, fmt.Sprintf("field = $%d", idx))
		args = append(args, filter.Field)
		idx++
	}
	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("changed_at >= $%d", idx))
		args = append(args, filter.StartDate.UTC())
		idx++
	}
	if filter.EndDate != nil {
		// End date is a calendar day, inclusive.
		conditions = append(conditions, fmt.Sprintf("changed_at < $%d", idx))
		args = append(args, filter.EndDate.UTC().Add(24*time.Hour))
		idx++
	}
	where := strings.Join(conditions, " and ")

	var total int64
	countQuery := fmt.Sprintf(`select count(*) from change_records where %s`, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return fleet.LogPage{}, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	listQuery := fmt.Sprintf(`
		select id, asset_id, field, old_value, new_value, changed_by, changed_by_name, changed_at
		from change_records
		where %s
		order by changed_at desc, id desc
		limit $%d offset $%d
	`, where, idx, idx+1)
	args = append(args, filter.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return fleet.LogPage{}, err
	}
	defer rows.Close()

	page := fleet.LogPage{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
		TotalPages: totalPages(total, filter.PageSize),
	}
	for rows.Next() {
		var record fleet.ChangeRecord
		if err := rows.Scan(&record.ID, &record.AssetID, &record.Field, &record.OldValue,
			&record.NewValue, &record.ChangedBy, &record.ChangedByName, &record.ChangedAt); err != nil {
			return fleet.LogPage{}, err
		}
		page.Records = append(page.Records, record)
	}
	if err := rows.Err(); err != nil {
		return fleet.LogPage{}, err
	}
	return page, nil
}
