package fleet

import "time"

// Asset is one fleet vehicle stored as a flexible field document. Fields
// holds the admin-panel columns (gosnumber, brand, narabotka and so on) as
// strings; absent keys read as empty. Version increments on every field
// update and guards against lost writes.
type Asset struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns the named field value, empty for absent keys.
func (a Asset) Field(name string) string {
	return a.Fields[name]
}

// ChangeRecord is one immutable audit entry: a single field transition on a
// single asset, attributed to the actor who made it. IDs are ULIDs, so the
// id orders records created within the same timestamp.
type ChangeRecord struct {
	ID            string    `json:"id"`
	AssetID       string    `json:"asset_id"`
	Field         string    `json:"field"`
	OldValue      string    `json:"old_value"`
	NewValue      string    `json:"new_value"`
	ChangedBy     string    `json:"changed_by"`
	ChangedByName string    `json:"changed_by_name"`
	ChangedAt     time.Time `json:"changed_at"`
}

// Synthetic change-record fields for file lifecycle events. They live in the
// same log as column edits so the history view shows one timeline.
const (
	FieldFileUpload = "file_upload"
	FieldFileDelete = "file_delete"
)

// FileRemovalDetail is the structured old_value payload of a file_delete
// record, preserving enough to identify the removed attachment.
type FileRemovalDetail struct {
	FileName    string `json:"fileName"`
	Category    string `json:"category"`
	FileID      string `json:"fileId"`
	ViewURL     string `json:"viewUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// UpdateResult reports the outcome of a field update. AuditIncomplete is set
// when the asset write succeeded but appending the change records failed;
// the update is not rolled back in that case.
type UpdateResult struct {
	Asset           Asset          `json:"asset"`
	Changes         []ChangeRecord `json:"changes"`
	AuditIncomplete bool           `json:"audit_incomplete,omitempty"`
}

// LogFilter selects change records for one asset. StartDate and EndDate are
// calendar bounds, both inclusive. Field narrows to one column when set.
type LogFilter struct {
	AssetID   string
	Field     string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// LogPage is one page of change records, newest first.
type LogPage struct {
	Records    []ChangeRecord `json:"records"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalCount int64          `json:"total_count"`
	TotalPages int            `json:"total_pages"`
}

// ListFilter selects a page of assets.
type ListFilter struct {
	Page      int
	Limit     int
	OrderBy   string
	OrderType string
}

// AssetPage is one page of the asset list.
type AssetPage struct {
	Assets     []Asset `json:"assets"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalCount int64   `json:"total_count"`
	TotalPages int     `json:"total_pages"`
}
