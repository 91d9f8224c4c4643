package files

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/fleet"
	"autopark.kz/internal/ids"
	"autopark.kz/internal/obs"
	"autopark.kz/internal/rbac"
)

const (
	defaultCategory = "documents"
	presignTTL      = 15 * time.Minute
	deletedPrefix   = "deleted/"
)

// Gate is the authorization surface the attachment service depends on.
type Gate interface {
	RequirePermission(ctx context.Context, userID, key string) error
}

// Recorder appends file lifecycle events to the asset change log, satisfied
// by *fleet.Service.
type Recorder interface {
	RecordFileUpload(ctx context.Context, actor auth.Actor, assetID, description string) (fleet.ChangeRecord, error)
	RecordFileRemoval(ctx context.Context, actor auth.Actor, assetID string, detail fleet.FileRemovalDetail) (fleet.ChangeRecord, error)
}

// Service manages per-asset attachments in object storage. Removals are
// soft: the blob moves under the deleted/ prefix so the audit trail's links
// stay resolvable by operators with bucket access.
type Service struct {
	blobs    BlobStore
	gate     Gate
	recorder Recorder
}

// NewService wires the attachment service.
func NewService(blobs BlobStore, gate Gate, recorder Recorder) *Service {
	return &Service{blobs: blobs, gate: gate, recorder: recorder}
}

// Upload stores the submitted files, skipping ones that fail so a single bad
// file does not sink the batch. Each stored file gets its own change-log
// entry attributed to the actor.
func (s *Service) Upload(ctx context.Context, actor auth.Actor, assetID string, uploads []UploadInput) (UploadSummary, error) {
	if err := s.require(ctx, actor, rbac.PermUploadFiles); err != nil {
		return UploadSummary{}, err
	}
	if len(uploads) == 0 {
		return UploadSummary{}, fmt.Errorf("%w: no files submitted", ErrInvalidInput)
	}

	summary := UploadSummary{Total: len(uploads)}
	for _, upload := range uploads {
		file, err := s.uploadOne(ctx, actor, assetID, upload)
		if err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "file upload failed",
				"asset": assetID,
				"file":  upload.Name,
				"error": err.Error(),
			})
			summary.Failed = append(summary.Failed, upload.Name)
			continue
		}
		summary.Uploaded++
		summary.Files = append(summary.Files, file)
	}
	return summary, nil
}

func (s *Service) uploadOne(ctx context.Context, actor auth.Actor, assetID string, upload UploadInput) (File, error) {
	name := strings.TrimSpace(path.Base(upload.Name))
	if name == "" || name == "." || name == "/" {
		return File{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if len(upload.Data) == 0 {
		return File{}, fmt.Errorf("%w: file %s is empty", ErrInvalidInput, name)
	}
	category := normalizeCategory(upload.Category)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileID := ids.New()
	key := objectKey(assetID, category, fileID, name)
	if err := s.blobs.Put(ctx, key, contentType, upload.Data); err != nil {
		return File{}, err
	}

	file := File{
		ID:         fileID,
		AssetID:    assetID,
		Category:   category,
		Name:       name,
		Size:       int64(len(upload.Data)),
		UploadedAt: time.Now().UTC(),
	}
	s.attachLinks(ctx, &file, key)

	description := fmt.Sprintf("%s (%s)", name, category)
	if _, err := s.recorder.RecordFileUpload(ctx, actor, assetID, description); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "file upload not audited",
			"asset": assetID,
			"file":  name,
			"error": err.Error(),
		})
	}
	return file, nil
}

// List returns the asset's live attachments with fresh presigned links.
func (s *Service) List(ctx context.Context, actor auth.Actor, assetID string) ([]File, error) {
	if err := s.require(ctx, actor, rbac.PermViewFiles); err != nil {
		return nil, err
	}
	objects, err := s.blobs.List(ctx, assetPrefix(assetID))
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make([]File, 0, len(objects))
	for _, obj := range objects {
		file, ok := fileFromKey(obj)
		if !ok {
			continue
		}
		s.attachLinks(ctx, &file, obj.Key)
		out = append(out, file)
	}
	return out, nil
}

// Delete soft-removes one attachment and writes a file_delete entry carrying
// the removed file's details.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, assetID, fileID string) error {
	if err := s.require(ctx, actor, rbac.PermDeleteFiles); err != nil {
		return err
	}
	objects, err := s.blobs.List(ctx, assetPrefix(assetID))
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	for _, obj := range objects {
		file, ok := fileFromKey(obj)
		if !ok || file.ID != fileID {
			continue
		}
		s.attachLinks(ctx, &file, obj.Key)
		if err := s.blobs.Copy(ctx, obj.Key, deletedPrefix+obj.Key); err != nil {
			return fmt.Errorf("archive attachment: %w", err)
		}
		if err := s.blobs.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete attachment: %w", err)
		}
		detail := fleet.FileRemovalDetail{
			FileName:    file.Name,
			Category:    file.Category,
			FileID:      file.ID,
			ViewURL:     file.ViewURL,
			DownloadURL: file.DownloadURL,
		}
		if _, err := s.recorder.RecordFileRemoval(ctx, actor, assetID, detail); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "file removal not audited",
				"asset": assetID,
				"file":  file.Name,
				"error": err.Error(),
			})
		}
		return nil
	}
	return ErrNotFound
}

func (s *Service) attachLinks(ctx context.Context, file *File, key string) {
	if url, err := s.blobs.PresignGet(ctx, key, file.Name, DispositionInline, presignTTL); err == nil {
		file.ViewURL = url
	}
	if url, err := s.blobs.PresignGet(ctx, key, file.Name, DispositionAttachment, presignTTL); err == nil {
		file.DownloadURL = url
	}
}

func (s *Service) require(ctx context.Context, actor auth.Actor, key string) error {
	if actor.IsZero() {
		return rbac.ErrUnauthorized
	}
	return s.gate.RequirePermission(ctx, actor.ID, key)
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(strings.ToLower(category))
	category = strings.ReplaceAll(category, "/", "-")
	if category == "" {
		return defaultCategory
	}
	return category
}

func assetPrefix(assetID string) string {
	return "assets/" + assetID + "/"
}

// objectKey builds assets/{assetID}/{category}/{fileID}__{name}. The double
// underscore separates the id from the original file name, which may itself
// contain underscores.
func objectKey(assetID, category, fileID, name string) string {
	return fmt.Sprintf("assets/%s/%s/%s__%s", assetID, category, fileID, name)
}

// fileFromKey parses an object key back into a File. Keys that do not match
// the layout (foreign objects in the bucket) are skipped.
func fileFromKey(obj ObjectInfo) (File, bool) {
	parts := strings.Split(obj.Key, "/")
	if len(parts) != 4 || parts[0] != "assets" {
		return File{}, false
	}
	idName := strings.SplitN(parts[3], "__", 2)
	if len(idName) != 2 || idName[0] == "" || idName[1] == "" {
		return File{}, false
	}
	return File{
		ID:         idName[0],
		AssetID:    parts[1],
		Category:   parts[2],
		Name:       idName[1],
		Size:       obj.Size,
		UploadedAt: obj.LastModified,
	}, true
}
