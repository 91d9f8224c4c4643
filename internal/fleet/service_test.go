package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/rbac"
)

type memAssetStore struct {
	assets map[string]Asset
}

func newMemAssetStore() *memAssetStore {
	return &memAssetStore{assets: make(map[string]Asset)}
}

func (m *memAssetStore) CreateAsset(_ context.Context, asset Asset) (Asset, error) {
	m.assets[asset.ID] = asset
	return asset, nil
}

func (m *memAssetStore) GetAsset(_ context.Context, assetID string) (Asset, error) {
	asset, ok := m.assets[assetID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return asset, nil
}

func (m *memAssetStore) ListAssets(_ context.Context, filter ListFilter) (AssetPage, error) {
	page := AssetPage{Page: filter.Page, Limit: filter.Limit, TotalCount: int64(len(m.assets)), TotalPages: 1}
	for _, a := range m.assets {
		page.Assets = append(page.Assets, a)
	}
	return page, nil
}

func (m *memAssetStore) UpdateAssetFields(_ context.Context, assetID string, expectedVersion int64, fields map[string]string, now time.Time) (Asset, error) {
	asset, ok := m.assets[assetID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	if asset.Version != expectedVersion {
		return Asset{}, ErrConflict
	}
	for k, v := range fields {
		asset.Fields[k] = v
	}
	asset.Version++
	asset.UpdatedAt = now
	m.assets[assetID] = asset
	return asset, nil
}

func (m *memAssetStore) DeleteAsset(_ context.Context, assetID string) error {
	if _, ok := m.assets[assetID]; !ok {
		return ErrNotFound
	}
	delete(m.assets, assetID)
	return nil
}

type memChangeStore struct {
	records   []ChangeRecord
	appendErr error
}

func (m *memChangeStore) AppendChanges(_ context.Context, records []ChangeRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memChangeStore) ListChanges(_ context.Context, filter LogFilter) (LogPage, error) {
	page := LogPage{Page: filter.Page, PageSize: filter.PageSize}
	for _, r := range m.records {
		if r.AssetID == filter.AssetID {
			page.Records = append(page.Records, r)
		}
	}
	page.TotalCount = int64(len(page.Records))
	page.TotalPages = 1
	return page, nil
}

type stubGate struct {
	res rbac.Resolution
	err error
}

func (g *stubGate) Resolve(_ context.Context, _ string) (rbac.Resolution, error) {
	return g.res, g.err
}

func (g *stubGate) RequirePermission(_ context.Context, _ string, key string) error {
	if g.err != nil {
		return g.err
	}
	if !g.res.HasPermission(key) {
		return rbac.ErrForbidden
	}
	return nil
}

type capturePublisher struct {
	published []ChangeRecord
}

func (p *capturePublisher) PublishChanges(records []ChangeRecord) {
	p.published = append(p.published, records...)
}

func allPermissions() rbac.Resolution {
	role := rbac.Role{
		ID:       "role-1",
		Name:     "Administrator",
		IsActive: true,
		Permissions: rbac.PermissionBag{
			ViewAutopark:   true,
			ViewDetails:    true,
			ViewHistory:    true,
			EditAutopark:   true,
			CreateAutopark: true,
			DeleteAutopark: true,
		},
	}
	return rbac.Resolution{Role: &role, Binding: &rbac.UserRoleBinding{UserID: "u1", RoleID: role.ID}}
}

var operator = auth.Actor{ID: "u1", DisplayName: "Operator"}

func newTestService(t *testing.T, gate Gate) (*Service, *memAssetStore, *memChangeStore, *capturePublisher) {
	t.Helper()
	assets := newMemAssetStore()
	changes := &memChangeStore{}
	pub := &capturePublisher{}
	svc := NewService(assets, changes, gate, WithPublisher(pub))
	return svc, assets, changes, pub
}

func seedAsset(t *testing.T, svc *Service) Asset {
	t.Helper()
	asset, err := svc.CreateAsset(t.Context(), operator, map[string]string{
		"name":      "Excavator 12",
		"gosnumber": "123 ABC 02",
		"narabotka": "1500",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return asset
}

func TestUpdateFieldsAuditsOnlyChangedValues(t *testing.T) {
	svc, _, changes, pub := newTestService(t, &stubGate{res: allPermissions()})
	asset := seedAsset(t, svc)

	result, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{
		"gosnumber": "123 ABC 02", // unchanged
		"narabotka": "1650",
		"note":      "after service",
	})
	if err != nil {
		t.Fatalf("update fields: %v", err)
	}
	if result.AuditIncomplete {
		t.Fatal("audit must be complete")
	}
	if len(result.Changes) != 2 {
		t.Fatalf("expected 2 change records, got %d", len(result.Changes))
	}
	// Sorted by field name: narabotka before note.
	if result.Changes[0].Field != "narabotka" || result.Changes[0].OldValue != "1500" || result.Changes[0].NewValue != "1650" {
		t.Fatalf("unexpected first record: %+v", result.Changes[0])
	}
	if result.Changes[1].Field != "note" || result.Changes[1].OldValue != "" {
		t.Fatalf("new field must audit empty old value: %+v", result.Changes[1])
	}
	if result.Changes[0].ChangedBy != operator.ID || result.Changes[0].ChangedByName != operator.DisplayName {
		t.Fatalf("record not attributed to actor: %+v", result.Changes[0])
	}
	if result.Asset.Version != asset.Version+1 {
		t.Fatalf("version not bumped: %d", result.Asset.Version)
	}
	if len(changes.records) != 2 {
		t.Fatalf("records not persisted: %d", len(changes.records))
	}
	if len(pub.published) != 2 {
		t.Fatalf("records not published: %d", len(pub.published))
	}
}

func TestUpdateFieldsNoChangesIsNoOp(t *testing.T) {
	svc, _, changes, _ := newTestService(t, &stubGate{res: allPermissions()})
	asset := seedAsset(t, svc)

	result, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{
		"name": "Excavator 12",
	})
	if err != nil {
		t.Fatalf("update fields: %v", err)
	}
	if len(result.Changes) != 0 {
		t.Fatalf("expected no change records, got %d", len(result.Changes))
	}
	if result.Asset.Version != asset.Version {
		t.Fatalf("no-op must not bump version: %d", result.Asset.Version)
	}
	if len(changes.records) != 0 {
		t.Fatal("no-op must not write to the change log")
	}
}

func TestUpdateFieldsStaleVersionConflicts(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubGate{res: allPermissions()})
	asset := seedAsset(t, svc)

	if _, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{"note": "x"}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{"note": "y"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateFieldsAuditIncomplete(t *testing.T) {
	svc, assets, changes, pub := newTestService(t, &stubGate{res: allPermissions()})
	asset := seedAsset(t, svc)
	changes.appendErr = errors.New("log store down")

	result, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{"note": "x"})
	if err != nil {
		t.Fatalf("update must succeed despite audit failure: %v", err)
	}
	if !result.AuditIncomplete {
		t.Fatal("expected AuditIncomplete flag")
	}
	stored, err := assets.GetAsset(t.Context(), asset.ID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if stored.Field("note") != "x" {
		t.Fatal("asset write must not be rolled back")
	}
	if len(pub.published) != 0 {
		t.Fatal("unpersisted records must not be published")
	}
}

func TestUpdateFieldsRespectsEditableColumns(t *testing.T) {
	res := allPermissions()
	res.Role.Permissions.VisibleColumns = []string{"name", "note"}
	res.Role.Permissions.EditableColumns = []string{"note"}
	svc, _, _, _ := newTestService(t, &stubGate{res: res})
	asset := seedAsset(t, svc)

	_, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{"name": "Renamed"})
	if !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-editable column, got %v", err)
	}

	if _, err := svc.UpdateFields(t.Context(), operator, asset.ID, asset.Version, map[string]string{"note": "ok"}); err != nil {
		t.Fatalf("editable column must pass: %v", err)
	}
}

func TestGetAssetProjectsVisibleColumns(t *testing.T) {
	res := allPermissions()
	res.Role.Permissions.VisibleColumns = []string{"name"}
	svc, _, _, _ := newTestService(t, &stubGate{res: res})
	asset := seedAsset(t, svc)

	got, err := svc.GetAsset(t.Context(), operator, asset.ID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if len(got.Fields) != 1 || got.Field("name") == "" {
		t.Fatalf("fields not projected: %v", got.Fields)
	}
	if got.Field("gosnumber") != "" {
		t.Fatal("hidden column leaked")
	}
}

func TestGetAssetWithoutRestrictionSeesAll(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubGate{res: allPermissions()})
	asset := seedAsset(t, svc)

	got, err := svc.GetAsset(t.Context(), operator, asset.ID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if len(got.Fields) != 3 {
		t.Fatalf("unrestricted role must see all fields: %v", got.Fields)
	}
}

func TestPermissionDenials(t *testing.T) {
	viewer := allPermissions()
	viewer.Role.Permissions = rbac.PermissionBag{ViewAutopark: true}
	svc, _, _, _ := newTestService(t, &stubGate{res: viewer})

	if _, err := svc.CreateAsset(t.Context(), operator, map[string]string{"name": "X"}); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for create, got %v", err)
	}
	if err := svc.DeleteAsset(t.Context(), operator, "a1"); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for delete, got %v", err)
	}
	if _, err := svc.ChangeLog(t.Context(), operator, LogFilter{AssetID: "a1"}); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for history, got %v", err)
	}
	if _, err := svc.ListAssets(t.Context(), auth.Actor{}, ListFilter{}); !errors.Is(err, rbac.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous, got %v", err)
	}
}

func TestBlockedActorIsDenied(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubGate{err: &rbac.BlockedError{}})

	_, err := svc.ListAssets(t.Context(), operator, ListFilter{})
	if !errors.Is(err, rbac.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestChangeLogValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubGate{res: allPermissions()})

	if _, err := svc.ChangeLog(t.Context(), operator, LogFilter{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing asset id, got %v", err)
	}

	start := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(-24 * time.Hour)
	_, err := svc.ChangeLog(t.Context(), operator, LogFilter{AssetID: "a1", StartDate: &start, EndDate: &end})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inverted range, got %v", err)
	}
}

func TestChangeLogDefaultsPaging(t *testing.T) {
	svc, _, changes, _ := newTestService(t, &stubGate{res: allPermissions()})
	changes.records = []ChangeRecord{{ID: "c1", AssetID: "a1", Field: "note"}}

	page, err := svc.ChangeLog(t.Context(), operator, LogFilter{AssetID: "a1"})
	if err != nil {
		t.Fatalf("change log: %v", err)
	}
	if page.Page != 1 || page.PageSize != defaultLogSize {
		t.Fatalf("paging defaults not applied: page=%d size=%d", page.Page, page.PageSize)
	}
}

func TestRecordFileUpload(t *testing.T) {
	svc, _, changes, _ := newTestService(t, &stubGate{res: allPermissions()})

	record, err := svc.RecordFileUpload(t.Context(), operator, "a1", "passport scan, 2 pages")
	if err != nil {
		t.Fatalf("record upload: %v", err)
	}
	if record.Field != FieldFileUpload || record.NewValue != "passport scan, 2 pages" || record.OldValue != "" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(changes.records) != 1 {
		t.Fatal("record not persisted")
	}
}

func TestRecordFileRemovalEncodesDetail(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubGate{res: allPermissions()})

	detail := FileRemovalDetail{FileName: "techpassport.pdf", Category: "documents", FileID: "f1"}
	record, err := svc.RecordFileRemoval(t.Context(), operator, "a1", detail)
	if err != nil {
		t.Fatalf("record removal: %v", err)
	}
	if record.Field != FieldFileDelete || record.NewValue != "" {
		t.Fatalf("unexpected record: %+v", record)
	}
	var decoded FileRemovalDetail
	if err := json.Unmarshal([]byte(record.OldValue), &decoded); err != nil {
		t.Fatalf("old value is not JSON: %v", err)
	}
	if decoded != detail {
		t.Fatalf("detail round-trip mismatch: %+v", decoded)
	}
}
