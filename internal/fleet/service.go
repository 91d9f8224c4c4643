package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/ids"
	"autopark.kz/internal/obs"
	"autopark.kz/internal/rbac"
)

const (
	defaultListLimit = 20
	defaultLogSize   = 10
	maxPageSize      = 100
)

// Gate is the authorization surface the fleet service depends on, satisfied
// by *rbac.Service.
type Gate interface {
	Resolve(ctx context.Context, userID string) (rbac.Resolution, error)
	RequirePermission(ctx context.Context, userID, key string) error
}

// ChangePublisher receives freshly appended change records for live feeds.
type ChangePublisher interface {
	PublishChanges(records []ChangeRecord)
}

// Service implements asset CRUD with field-level change auditing. Every
// operation takes the acting identity explicitly and consults the gate
// before touching storage.
type Service struct {
	assets  AssetStore
	changes ChangeLogStore
	gate    Gate
	pub     ChangePublisher
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher attaches a live-feed publisher for new change records.
func WithPublisher(pub ChangePublisher) Option {
	return func(s *Service) { s.pub = pub }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a Service around the asset and change-log stores.
func NewService(assets AssetStore, changes ChangeLogStore, gate Gate, opts ...Option) *Service {
	s := &Service{
		assets:  assets,
		changes: changes,
		gate:    gate,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAsset stores a new asset document.
func (s *Service) CreateAsset(ctx context.Context, actor auth.Actor, fields map[string]string) (Asset, error) {
	if err := s.require(ctx, actor, rbac.PermCreateAutopark); err != nil {
		return Asset{}, err
	}
	if len(fields) == 0 {
		return Asset{}, fmt.Errorf("%w: at least one field is required", ErrInvalidInput)
	}
	now := s.now()
	asset := Asset{
		ID:        ids.New(),
		Fields:    cloneFields(fields),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.assets.CreateAsset(ctx, asset)
	if err != nil {
		return Asset{}, fmt.Errorf("create asset: %w", err)
	}
	return created, nil
}

// GetAsset returns one asset with its fields projected down to the columns
// the actor's role may see.
func (s *Service) GetAsset(ctx context.Context, actor auth.Actor, assetID string) (Asset, error) {
	res, err := s.resolveWith(ctx, actor, rbac.PermViewDetails)
	if err != nil {
		return Asset{}, err
	}
	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, err
	}
	asset.Fields = projectFields(res, asset.Fields)
	return asset, nil
}

// ListAssets returns a page of assets, each projected to visible columns.
func (s *Service) ListAssets(ctx context.Context, actor auth.Actor, filter ListFilter) (AssetPage, error) {
	res, err := s.resolveWith(ctx, actor, rbac.PermViewAutopark)
	if err != nil {
		return AssetPage{}, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	page, err := s.assets.ListAssets(ctx, filter)
	if err != nil {
		return AssetPage{}, fmt.Errorf("list assets: %w", err)
	}
	for i := range page.Assets {
		page.Assets[i].Fields = projectFields(res, page.Assets[i].Fields)
	}
	return page, nil
}

// UpdateFields applies a partial field update. Only fields whose value
// actually differs from the stored document are written and audited;
// submitting an identical value is a no-op for that field. The asset write
// is guarded by expectedVersion and fails with ErrConflict when stale.
// If the asset write succeeds but the audit append fails, the result is
// returned with AuditIncomplete set instead of failing the update.
func (s *Service) UpdateFields(ctx context.Context, actor auth.Actor, assetID string, expectedVersion int64, fields map[string]string) (UpdateResult, error) {
	res, err := s.resolveWith(ctx, actor, rbac.PermEditAutopark)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(fields) == 0 {
		return UpdateResult{}, fmt.Errorf("%w: no fields submitted", ErrInvalidInput)
	}

	current, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return UpdateResult{}, err
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return UpdateResult{}, fmt.Errorf("%w: asset version is %d, expected %d", ErrConflict, current.Version, expectedVersion)
	}

	changed := changedFields(current.Fields, fields)
	if len(changed) == 0 {
		return UpdateResult{Asset: current}, nil
	}
	for _, field := range changed {
		if !columnEditable(res, field) {
			return UpdateResult{}, fmt.Errorf("%w: column %s is not editable", rbac.ErrForbidden, field)
		}
	}

	now := s.now()
	records := make([]ChangeRecord, 0, len(changed))
	write := make(map[string]string, len(changed))
	for _, field := range changed {
		write[field] = fields[field]
		records = append(records, ChangeRecord{
			ID:            ids.New(),
			AssetID:       assetID,
			Field:         field,
			OldValue:      current.Fields[field],
			NewValue:      fields[field],
			ChangedBy:     actor.ID,
			ChangedByName: actor.DisplayName,
			ChangedAt:     now,
		})
	}

	updated, err := s.assets.UpdateAssetFields(ctx, assetID, current.Version, write, now)
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{Asset: updated, Changes: records}
	if err := s.changes.AppendChanges(ctx, records); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "change log append failed, update kept",
			"asset": assetID,
			"count": len(records),
			"error": err.Error(),
		})
		result.AuditIncomplete = true
		return result, nil
	}
	for range records {
		obs.ObserveChangeRecord("field")
	}
	s.publish(records)
	return result, nil
}

// DeleteAsset removes an asset document. Its change log is kept.
func (s *Service) DeleteAsset(ctx context.Context, actor auth.Actor, assetID string) error {
	if err := s.require(ctx, actor, rbac.PermDeleteAutopark); err != nil {
		return err
	}
	return s.assets.DeleteAsset(ctx, assetID)
}

// ChangeLog returns a page of an asset's change history, newest first.
// EndDate is inclusive of the whole calendar day.
func (s *Service) ChangeLog(ctx context.Context, actor auth.Actor, filter LogFilter) (LogPage, error) {
	if err := s.require(ctx, actor, rbac.PermViewHistory); err != nil {
		return LogPage{}, err
	}
	if strings.TrimSpace(filter.AssetID) == "" {
		return LogPage{}, fmt.Errorf("%w: asset id is required", ErrInvalidInput)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return LogPage{}, fmt.Errorf("%w: end date precedes start date", ErrInvalidInput)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultLogSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	page, err := s.changes.ListChanges(ctx, filter)
	if err != nil {
		return LogPage{}, fmt.Errorf("list changes: %w", err)
	}
	return page, nil
}

// RecordFileUpload appends a synthetic file_upload entry to the asset's log.
func (s *Service) RecordFileUpload(ctx context.Context, actor auth.Actor, assetID, description string) (ChangeRecord, error) {
	return s.appendSynthetic(ctx, actor, assetID, FieldFileUpload, "", description)
}

// RecordFileRemoval appends a synthetic file_delete entry whose old value
// carries the removed attachment's details as JSON.
func (s *Service) RecordFileRemoval(ctx context.Context, actor auth.Actor, assetID string, detail FileRemovalDetail) (ChangeRecord, error) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return ChangeRecord{}, fmt.Errorf("encode removal detail: %w", err)
	}
	return s.appendSynthetic(ctx, actor, assetID, FieldFileDelete, string(payload), "")
}

func (s *Service) appendSynthetic(ctx context.Context, actor auth.Actor, assetID, field, oldValue, newValue string) (ChangeRecord, error) {
	if actor.IsZero() {
		return ChangeRecord{}, rbac.ErrUnauthorized
	}
	record := ChangeRecord{
		ID:            ids.New(),
		AssetID:       assetID,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		ChangedBy:     actor.ID,
		ChangedByName: actor.DisplayName,
		ChangedAt:     s.now(),
	}
	if err := s.changes.AppendChanges(ctx, []ChangeRecord{record}); err != nil {
		return ChangeRecord{}, fmt.Errorf("append change: %w", err)
	}
	obs.ObserveChangeRecord(field)
	s.publish([]ChangeRecord{record})
	return record, nil
}

func (s *Service) publish(records []ChangeRecord) {
	if s.pub != nil {
		s.pub.PublishChanges(records)
	}
}

func (s *Service) require(ctx context.Context, actor auth.Actor, key string) error {
	if actor.IsZero() {
		return rbac.ErrUnauthorized
	}
	return s.gate.RequirePermission(ctx, actor.ID, key)
}

func (s *Service) resolveWith(ctx context.Context, actor auth.Actor, key string) (rbac.Resolution, error) {
	if actor.IsZero() {
		return rbac.Resolution{}, rbac.ErrUnauthorized
	}
	res, err := s.gate.Resolve(ctx, actor.ID)
	if err != nil {
		return rbac.Resolution{}, err
	}
	if !res.HasPermission(key) {
		return rbac.Resolution{}, fmt.Errorf("%w: %s", rbac.ErrForbidden, key)
	}
	return res, nil
}

// changedFields returns the submitted keys whose value differs from the
// stored document, sorted for deterministic record order. Absent stored
// keys compare as empty strings.
func changedFields(current, submitted map[string]string) []string {
	out := make([]string, 0, len(submitted))
	for field, value := range submitted {
		if current[field] != value {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}

// projectFields filters a field document down to the role's visible columns.
// A role with no visible-column list sees everything.
func projectFields(res rbac.Resolution, fields map[string]string) map[string]string {
	visible := res.VisibleColumns()
	if len(visible) == 0 {
		return fields
	}
	out := make(map[string]string, len(visible))
	for _, column := range visible {
		if value, ok := fields[column]; ok {
			out[column] = value
		}
	}
	return out
}

// columnEditable mirrors projectFields for writes: a role with no
// editable-column list may edit every column.
func columnEditable(res rbac.Resolution, column string) bool {
	if res.Role == nil || !res.Role.IsActive {
		return false
	}
	if len(res.Role.Permissions.EditableColumns) == 0 {
		return true
	}
	return res.Role.Permissions.ColumnEditable(column)
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
