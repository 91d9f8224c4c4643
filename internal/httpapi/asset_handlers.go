package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autopark.kz/internal/files"
	"autopark.kz/internal/fleet"
)

type createAssetRequest struct {
	Fields map[string]string `json:"fields"`
}

type updateAssetRequest struct {
	Version int64             `json:"version"`
	Fields  map[string]string `json:"fields"`
}

const maxUploadMemory = 32 << 20

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAssets(w, r)
	case http.MethodPost:
		a.createAsset(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleAssetResource routes /v1/assets/{id}[/logs|/files[/{fileID}]].
func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assets/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	assetID := parts[0]

	switch {
	case len(parts) == 1:
		a.assetByID(w, r, assetID)
	case len(parts) == 2 && parts[1] == "logs":
		a.assetLogs(w, r, assetID)
	case len(parts) == 2 && parts[1] == "files":
		a.assetFiles(w, r, assetID)
	case len(parts) == 3 && parts[1] == "files":
		a.assetFileByID(w, r, assetID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
	}
}

func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "page must be a positive integer")
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "limit must be between 1 and 100")
		return
	}
	orderType := q.Get("order_type")
	if orderType != "" && orderType != "asc" && orderType != "desc" {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "order_type must be asc or desc")
		return
	}

	result, err := a.fleet.ListAssets(r.Context(), actor, fleet.ListFilter{
		Page:      page,
		Limit:     limit,
		OrderBy:   q.Get("order_by"),
		OrderType: orderType,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

func (a *API) createAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
		return
	}

	asset, err := a.fleet.CreateAsset(r.Context(), actor, req.Fields)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "asset.create", "asset", asset.ID, map[string]string{
		"name": asset.Field("name"),
	})
	w.Header().Set("Location", "/v1/assets/"+asset.ID)
	respond(w, http.StatusCreated, asset)
}

func (a *API) assetByID(w http.ResponseWriter, r *http.Request, assetID string) {
	switch r.Method {
	case http.MethodGet:
		actor, ok := actorFor(w, r)
		if !ok {
			return
		}
		asset, err := a.fleet.GetAsset(r.Context(), actor, assetID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, asset)

	case http.MethodPatch:
		a.updateAsset(w, r, assetID)

	case http.MethodDelete:
		actor, ok := actorFor(w, r)
		if !ok {
			return
		}
		if err := a.fleet.DeleteAsset(r.Context(), actor, assetID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "asset.delete", "asset", assetID, nil)
		respond(w, http.StatusOK, map[string]string{"id": assetID})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateAsset(w http.ResponseWriter, r *http.Request, assetID string) {
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	var req updateAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
		return
	}

	result, err := a.fleet.UpdateFields(r.Context(), actor, assetID, req.Version, req.Fields)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	changed := make([]string, 0, len(result.Changes))
	for _, rec := range result.Changes {
		changed = append(changed, rec.Field)
	}
	a.audit(r.Context(), "asset.update", "asset", assetID, map[string]string{
		"fields":           strings.Join(changed, ","),
		"audit_incomplete": strconv.FormatBool(result.AuditIncomplete),
	})
	respond(w, http.StatusOK, result)
}

func (a *API) assetLogs(w http.ResponseWriter, r *http.Request, assetID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "page must be a positive integer")
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "limit must be between 1 and 100")
		return
	}

	filter := fleet.LogFilter{
		AssetID:  assetID,
		Field:    strings.TrimSpace(q.Get("field")),
		Page:     page,
		PageSize: limit,
	}
	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, "start_date must be YYYY-MM-DD")
			return
		}
		filter.StartDate = &t
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, "end_date must be YYYY-MM-DD")
			return
		}
		filter.EndDate = &t
	}

	pageResult, err := a.fleet.ChangeLog(r.Context(), actor, filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, pageResult)
}

func (a *API) assetFiles(w http.ResponseWriter, r *http.Request, assetID string) {
	if a.files == nil {
		writeError(w, r, http.StatusServiceUnavailable, kindUnavailable, "file storage disabled")
		return
	}
	switch r.Method {
	case http.MethodGet:
		actor, ok := actorFor(w, r)
		if !ok {
			return
		}
		listed, err := a.files.List(r.Context(), actor, assetID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, listed)

	case http.MethodPost:
		a.uploadAssetFiles(w, r, assetID)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) uploadAssetFiles(w http.ResponseWriter, r *http.Request, assetID string) {
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "multipart form expected")
		return
	}
	category := r.FormValue("category")
	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "no files submitted")
		return
	}

	uploads := make([]files.UploadInput, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, "unreadable file part")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, "unreadable file part")
			return
		}
		uploads = append(uploads, files.UploadInput{
			Name:        part.Filename,
			Category:    category,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	summary, err := a.files.Upload(r.Context(), actor, assetID, uploads)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "asset.files.upload", "asset", assetID, map[string]string{
		"uploaded": strconv.Itoa(summary.Uploaded),
		"total":    strconv.Itoa(summary.Total),
	})
	code := http.StatusCreated
	if summary.Uploaded < summary.Total {
		code = http.StatusMultiStatus
	}
	respond(w, code, summary)
}

func (a *API) assetFileByID(w http.ResponseWriter, r *http.Request, assetID, fileID string) {
	if a.files == nil {
		writeError(w, r, http.StatusServiceUnavailable, kindUnavailable, "file storage disabled")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	if err := a.files.Delete(r.Context(), actor, assetID, fileID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "asset.files.delete", "asset", assetID, map[string]string{
		"file_id": fileID,
	})
	respond(w, http.StatusOK, map[string]string{"id": fileID})
}
