package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/files"
	"autopark.kz/internal/fleet"
	"autopark.kz/internal/rbac"
	"autopark.kz/internal/stream"
)

// memStore is an in-memory implementation of rbac.Store, fleet.AssetStore
// and fleet.ChangeLogStore for exercising the full HTTP stack.
type memStore struct {
	mu       sync.Mutex
	roles    map[string]rbac.Role
	bindings map[string]rbac.UserRoleBinding
	users    map[string]auth.User
	assets   map[string]fleet.Asset
	changes  []fleet.ChangeRecord
}

func newMemStore() *memStore {
	return &memStore{
		roles:    make(map[string]rbac.Role),
		bindings: make(map[string]rbac.UserRoleBinding),
		users:    make(map[string]auth.User),
		assets:   make(map[string]fleet.Asset),
	}
}

func (m *memStore) CreateRole(_ context.Context, role rbac.Role) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return rbac.Role{}, rbac.ErrConflict
		}
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memStore) GetRole(_ context.Context, roleID string) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}

func (m *memStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rbac.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, roleID string, upd rbac.RoleUpdate) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.IsActive != nil {
		role.IsActive = *upd.IsActive
	}
	if upd.Permissions != nil {
		role.Permissions = *upd.Permissions
	}
	role.UpdatedAt = time.Now().UTC()
	m.roles[roleID] = role
	return role, nil
}

func (m *memStore) DeleteRole(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	for _, b := range m.bindings {
		if b.RoleID == roleID {
			return rbac.ErrRoleInUse
		}
	}
	delete(m.roles, roleID)
	return nil
}

func (m *memStore) CountBindingsForRole(_ context.Context, roleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.bindings {
		if b.RoleID == roleID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetBinding(_ context.Context, userID string) (rbac.UserRoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding, ok := m.bindings[userID]
	if !ok {
		return rbac.UserRoleBinding{}, rbac.ErrNotFound
	}
	return binding, nil
}

func (m *memStore) ListBindings(_ context.Context) ([]rbac.UserRoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rbac.UserRoleBinding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) AssignRole(_ context.Context, userID, roleID string) (rbac.UserRoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding := m.bindings[userID]
	binding.UserID = userID
	binding.RoleID = roleID
	if binding.BlockedUntil != nil && !binding.BlockedUntil.After(time.Now()) {
		binding.IsBlocked = false
		binding.BlockedUntil = nil
	}
	m.bindings[userID] = binding
	return binding, nil
}

func (m *memStore) SetBlock(_ context.Context, userID string, blocked bool, until *time.Time) (rbac.UserRoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	binding := m.bindings[userID]
	binding.UserID = userID
	binding.IsBlocked = blocked
	binding.BlockedUntil = until
	m.bindings[userID] = binding
	return binding, nil
}

func (m *memStore) CreateUser(_ context.Context, user auth.User) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return auth.User{}, rbac.ErrConflict
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return auth.User{}, rbac.ErrNotFound
	}
	return user, nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return auth.User{}, rbac.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.User, 0, len(m.users))
	for _, user := range m.users {
		out = append(out, user)
	}
	return out, nil
}

func (m *memStore) CreateAsset(_ context.Context, asset fleet.Asset) (fleet.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
	return asset, nil
}

func (m *memStore) GetAsset(_ context.Context, assetID string) (fleet.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return fleet.Asset{}, fleet.ErrNotFound
	}
	return asset, nil
}

func (m *memStore) ListAssets(_ context.Context, filter fleet.ListFilter) (fleet.AssetPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := fleet.AssetPage{Page: filter.Page, Limit: filter.Limit, TotalCount: int64(len(m.assets)), TotalPages: 1}
	for _, asset := range m.assets {
		page.Assets = append(page.Assets, asset)
	}
	return page, nil
}

func (m *memStore) UpdateAssetFields(_ context.Context, assetID string, expectedVersion int64, fields map[string]string, now time.Time) (fleet.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return fleet.Asset{}, fleet.ErrNotFound
	}
	if asset.Version != expectedVersion {
		return fleet.Asset{}, fleet.ErrConflict
	}
	updated := fleet.Asset{
		ID:        asset.ID,
		Fields:    map[string]string{},
		Version:   asset.Version + 1,
		CreatedAt: asset.CreatedAt,
		UpdatedAt: now,
	}
	for k, v := range asset.Fields {
		updated.Fields[k] = v
	}
	for k, v := range fields {
		updated.Fields[k] = v
	}
	m.assets[assetID] = updated
	return updated, nil
}

func (m *memStore) DeleteAsset(_ context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[assetID]; !ok {
		return fleet.ErrNotFound
	}
	delete(m.assets, assetID)
	return nil
}

func (m *memStore) AppendChanges(_ context.Context, records []fleet.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, records...)
	return nil
}

func (m *memStore) ListChanges(_ context.Context, filter fleet.LogFilter) (fleet.LogPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := fleet.LogPage{Page: filter.Page, PageSize: filter.PageSize}
	for _, record := range m.changes {
		if record.AssetID != filter.AssetID {
			continue
		}
		if filter.Field != "" && record.Field != filter.Field {
			continue
		}
		page.Records = append(page.Records, record)
	}
	page.TotalCount = int64(len(page.Records))
	if page.TotalCount > 0 {
		page.TotalPages = 1
	}
	return page, nil
}

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *memBlobStore) Put(_ context.Context, key, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *memBlobStore) List(_ context.Context, prefix string) ([]files.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []files.ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, files.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Now().UTC()})
		}
	}
	return out, nil
}

func (f *memBlobStore) Copy(_ context.Context, srcKey, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[dstKey] = f.objects[srcKey]
	return nil
}

func (f *memBlobStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *memBlobStore) PresignGet(_ context.Context, key, _ string, disposition files.Disposition, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.local/%s?d=%s", key, disposition), nil
}

func (f *memBlobStore) Health(context.Context) error { return nil }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memStore
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("AUTOPARK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := newMemStore()
	seedUser(t, store, "admin@autopark.kz", "admin-password", "Administrator", adminBag())

	rbacSvc := rbac.NewService(store)
	feed := stream.New()
	fleetSvc := fleet.NewService(store, store, rbacSvc, fleet.WithPublisher(feed))
	blobs := &memBlobStore{objects: make(map[string][]byte)}
	filesSvc := files.NewService(blobs, rbacSvc, fleetSvc)

	api := New(ReadyProbe{}, "test", rbacSvc, fleetSvc, WithFiles(filesSvc), WithStream(feed))

	srv := httptest.NewServer(RequestID(api.Handler()))
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func adminBag() rbac.PermissionBag {
	return rbac.PermissionBag{
		ManageRoles:    true,
		ManageUsers:    true,
		ViewAutopark:   true,
		ViewDetails:    true,
		ViewFiles:      true,
		ViewHistory:    true,
		EditAutopark:   true,
		CreateAutopark: true,
		DeleteAutopark: true,
		UploadFiles:    true,
		DeleteFiles:    true,
	}.Normalize()
}

// seedUser plants a user with a dedicated role directly in the store.
func seedUser(t *testing.T, store *memStore, email, password, name string, bag rbac.PermissionBag) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	userID := "user-" + strings.SplitN(email, "@", 2)[0]
	roleID := "role-" + userID
	now := time.Now().UTC()
	store.roles[roleID] = rbac.Role{ID: roleID, Name: "Role for " + email, IsActive: true, Permissions: bag, CreatedAt: now, UpdatedAt: now}
	store.users[userID] = auth.User{ID: userID, Email: email, DisplayName: name, PasswordHash: hash, Status: auth.UserStatusActive, CreatedAt: now, UpdatedAt: now}
	store.bindings[userID] = rbac.UserRoleBinding{UserID: userID, RoleID: roleID, CreatedAt: now}
	return userID
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) login(email, password string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]string{"email": email, "password": password}, nil)
	env := decodeEnvelope(c.t, resp, http.StatusOK)
	var payload loginResponse
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatal("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

func decodeEnvelope(t *testing.T, r *http.Response, wantStatus int) envelope {
	t.Helper()
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if r.StatusCode != wantStatus {
		t.Fatalf("unexpected status: %d (want %d), body: %s", r.StatusCode, wantStatus, raw)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v, body: %s", err, raw)
	}
	return env
}

func into[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return v
}

func TestAssetLifecycleWithAuditTrail(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")

	// Create an asset.
	env := decodeEnvelope(t, api.post("/v1/assets", map[string]any{
		"fields": map[string]string{
			"name":      "Excavator 12",
			"gosnumber": "123 ABC 02",
			"narabotka": "1500",
		},
	}, admin), http.StatusCreated)
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	asset := into[fleet.Asset](t, env)
	if asset.Version != 1 {
		t.Fatalf("new asset version = %d", asset.Version)
	}

	// Patch two fields, one of them unchanged.
	env = decodeEnvelope(t, api.do(http.MethodPatch, "/v1/assets/"+asset.ID, map[string]any{
		"version": asset.Version,
		"fields": map[string]string{
			"gosnumber": "123 ABC 02",
			"narabotka": "1650",
		},
	}, admin), http.StatusOK)
	result := into[fleet.UpdateResult](t, env)
	if len(result.Changes) != 1 || result.Changes[0].Field != "narabotka" {
		t.Fatalf("unexpected changes: %+v", result.Changes)
	}
	if result.Changes[0].ChangedByName != "Administrator" {
		t.Fatalf("change not attributed: %+v", result.Changes[0])
	}

	// Stale version is rejected.
	resp := api.do(http.MethodPatch, "/v1/assets/"+asset.ID, map[string]any{
		"version": asset.Version,
		"fields":  map[string]string{"note": "x"},
	}, admin)
	env = decodeEnvelope(t, resp, http.StatusConflict)
	if env.Error == nil || env.Error.Kind != kindConflict {
		t.Fatalf("unexpected error envelope: %+v", env.Error)
	}

	// History shows the change.
	env = decodeEnvelope(t, api.get("/v1/assets/"+asset.ID+"/logs", nil, admin), http.StatusOK)
	logs := into[fleet.LogPage](t, env)
	if logs.TotalCount != 1 || logs.Records[0].OldValue != "1500" || logs.Records[0].NewValue != "1650" {
		t.Fatalf("unexpected log page: %+v", logs)
	}
}

func TestHistorySurvivesAssetDeletion(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")

	env := decodeEnvelope(t, api.post("/v1/assets", map[string]any{
		"fields": map[string]string{"name": "Grader 4", "condition": "ok"},
	}, admin), http.StatusCreated)
	asset := into[fleet.Asset](t, env)

	env = decodeEnvelope(t, api.do(http.MethodPatch, "/v1/assets/"+asset.ID, map[string]any{
		"version": asset.Version,
		"fields":  map[string]string{"condition": "broken"},
	}, admin), http.StatusOK)
	if result := into[fleet.UpdateResult](t, env); len(result.Changes) != 1 {
		t.Fatalf("expected one change: %+v", result.Changes)
	}

	env = decodeEnvelope(t, api.do(http.MethodDelete, "/v1/assets/"+asset.ID, nil, admin), http.StatusOK)
	if !env.Success {
		t.Fatal("delete must succeed")
	}
	resp := api.get("/v1/assets/"+asset.ID, nil, admin)
	env = decodeEnvelope(t, resp, http.StatusNotFound)
	if env.Error == nil || env.Error.Kind != kindNotFound {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}

	// The document is gone but its history is not.
	env = decodeEnvelope(t, api.get("/v1/assets/"+asset.ID+"/logs", nil, admin), http.StatusOK)
	logs := into[fleet.LogPage](t, env)
	if logs.TotalCount != 1 || logs.Records[0].Field != "condition" || logs.Records[0].NewValue != "broken" {
		t.Fatalf("history lost after deletion: %+v", logs)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/assets", nil, nil)
	env := decodeEnvelope(t, resp, http.StatusUnauthorized)
	if env.Success || env.Error == nil || env.Error.Kind != kindUnauthorized {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestPermissionDeniedForViewer(t *testing.T) {
	api := newTestAPI(t)
	seedUser(t, api.store, "viewer@autopark.kz", "viewer-pass", "Viewer", rbac.PermissionBag{
		ViewAutopark: true,
	}.Normalize())
	viewer := api.login("viewer@autopark.kz", "viewer-pass")

	env := decodeEnvelope(t, api.get("/v1/assets", nil, viewer), http.StatusOK)
	if !env.Success {
		t.Fatal("viewer must list assets")
	}

	resp := api.post("/v1/assets", map[string]any{"fields": map[string]string{"name": "X"}}, viewer)
	env = decodeEnvelope(t, resp, http.StatusForbidden)
	if env.Error == nil || env.Error.Kind != kindForbidden {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestColumnVisibilityProjection(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")
	env := decodeEnvelope(t, api.post("/v1/assets", map[string]any{
		"fields": map[string]string{"name": "Loader 7", "gosnumber": "777 XYZ 05", "note": "internal"},
	}, admin), http.StatusCreated)
	asset := into[fleet.Asset](t, env)

	seedUser(t, api.store, "narrow@autopark.kz", "narrow-pass", "Narrow", rbac.PermissionBag{
		ViewAutopark:   true,
		ViewDetails:    true,
		VisibleColumns: []string{"name"},
	}.Normalize())
	narrow := api.login("narrow@autopark.kz", "narrow-pass")

	env = decodeEnvelope(t, api.get("/v1/assets/"+asset.ID, nil, narrow), http.StatusOK)
	got := into[fleet.Asset](t, env)
	if len(got.Fields) != 1 || got.Field("name") != "Loader 7" {
		t.Fatalf("fields not projected: %v", got.Fields)
	}
}

func TestBlockedUserIsRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")
	userID := seedUser(t, api.store, "ops@autopark.kz", "ops-pass", "Ops", adminBag())
	ops := api.login("ops@autopark.kz", "ops-pass")

	env := decodeEnvelope(t, api.do(http.MethodPut, "/v1/users/"+userID+"/block", map[string]any{
		"blocked": true,
	}, admin), http.StatusOK)
	if !env.Success {
		t.Fatal("block must succeed")
	}

	resp := api.get("/v1/assets", nil, ops)
	env = decodeEnvelope(t, resp, http.StatusForbidden)
	if env.Error == nil || env.Error.Kind != kindBlocked {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}

	// Blocked users cannot log in again either.
	resp = api.post("/v1/auth/login", map[string]string{"email": "ops@autopark.kz", "password": "ops-pass"}, nil)
	env = decodeEnvelope(t, resp, http.StatusForbidden)
	if env.Error == nil || env.Error.Kind != kindBlocked {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}
}

func TestRoleLifecycleAndDeletionGuard(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")

	env := decodeEnvelope(t, api.post("/v1/roles", map[string]any{
		"name":        "Dispatcher",
		"description": "Operational staff",
		"permissions": map[string]any{
			"canViewAutopark": true,
			"editableColumns": []string{"narabotka"},
		},
	}, admin), http.StatusCreated)
	role := into[rbac.Role](t, env)
	if !role.Permissions.ColumnVisible("narabotka") {
		t.Fatalf("editable column must become visible: %+v", role.Permissions)
	}

	// Create a user on the role, then deletion must be refused.
	env = decodeEnvelope(t, api.post("/v1/users", map[string]any{
		"email":        "dispatcher@autopark.kz",
		"password":     "dispatch-pass",
		"display_name": "Dispatcher One",
		"role_id":      role.ID,
	}, admin), http.StatusCreated)
	if !env.Success {
		t.Fatal("user creation failed")
	}

	resp := api.do(http.MethodDelete, "/v1/roles/"+role.ID, nil, admin)
	env = decodeEnvelope(t, resp, http.StatusConflict)
	if env.Error == nil || env.Error.Kind != kindRoleInUse {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}
}

func TestFileUploadListDelete(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")
	env := decodeEnvelope(t, api.post("/v1/assets", map[string]any{
		"fields": map[string]string{"name": "Crane 3"},
	}, admin), http.StatusCreated)
	asset := into[fleet.Asset](t, env)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("category", "documents")
	part, err := mw.CreateFormFile("files", "techpassport.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("pdf-bytes"))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, api.baseURL+"/v1/assets/"+asset.ID+"/files", &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", admin["Authorization"])
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	env = decodeEnvelope(t, resp, http.StatusCreated)
	summary := into[files.UploadSummary](t, env)
	if summary.Uploaded != 1 || summary.Total != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	env = decodeEnvelope(t, api.get("/v1/assets/"+asset.ID+"/files", nil, admin), http.StatusOK)
	listed := into[[]files.File](t, env)
	if len(listed) != 1 || listed[0].Name != "techpassport.pdf" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	env = decodeEnvelope(t, api.do(http.MethodDelete, "/v1/assets/"+asset.ID+"/files/"+listed[0].ID, nil, admin), http.StatusOK)
	if !env.Success {
		t.Fatal("delete must succeed")
	}

	// Upload and removal both land in the change log.
	env = decodeEnvelope(t, api.get("/v1/assets/"+asset.ID+"/logs", nil, admin), http.StatusOK)
	logs := into[fleet.LogPage](t, env)
	kinds := map[string]bool{}
	for _, record := range logs.Records {
		kinds[record.Field] = true
	}
	if !kinds[fleet.FieldFileUpload] || !kinds[fleet.FieldFileDelete] {
		t.Fatalf("file events missing from log: %+v", logs.Records)
	}
}

func TestLogDateValidation(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")

	resp := api.get("/v1/assets/a1/logs", url.Values{"start_date": []string{"02-01-2026"}}, admin)
	env := decodeEnvelope(t, resp, http.StatusBadRequest)
	if env.Error == nil || env.Error.Kind != kindInvalidInput {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@autopark.kz", "admin-password")

	env := decodeEnvelope(t, api.get("/v1/auth/me", nil, admin), http.StatusOK)
	var payload struct {
		User struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
		Role *rbac.Role `json:"role"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if payload.User.DisplayName != "Administrator" || payload.Role == nil {
		t.Fatalf("unexpected me payload: %+v", payload)
	}
}
