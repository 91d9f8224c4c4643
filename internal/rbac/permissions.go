package rbac

import "sort"

// Permission keys understood by the authorization gate. Unknown keys always
// resolve to false.
const (
	PermManageRoles    = "canManageRoles"
	PermManageUsers    = "canManageUsers"
	PermViewAutopark   = "canViewAutopark"
	PermViewDetails    = "canViewDetails"
	PermViewFiles      = "canViewFiles"
	PermViewHistory    = "canViewHistory"
	PermEditAutopark   = "canEditAutopark"
	PermCreateAutopark = "canCreateAutopark"
	PermDeleteAutopark = "canDeleteAutopark"
	PermUploadFiles    = "canUploadFiles"
	PermDeleteFiles    = "canDeleteFiles"
)

// PermissionBagSchemaVersion tags the current wire layout of PermissionBag so
// stored bags can be migrated if the shape ever changes.
const PermissionBagSchemaVersion = 1

// DefaultColumns is the canonical set of asset fields subject to column-level
// visibility and editability.
var DefaultColumns = []string{
	"name",
	"zkkid",
	"position",
	"owner",
	"brand",
	"model",
	"gosnumber",
	"serial",
	"hoznumber",
	"year",
	"narabotka",
	"izmerenie_narabotka",
	"condition",
	"kapital_remont",
	"note",
	"Encumbrance",
	"inventory_number",
	"width",
}

// PermissionBag is the versioned permission payload stored on a role. Column
// lists are kept sorted and deduplicated by Normalize.
type PermissionBag struct {
	SchemaVersion   int      `json:"schema_version"`
	ManageRoles     bool     `json:"canManageRoles"`
	ManageUsers     bool     `json:"canManageUsers"`
	ViewAutopark    bool     `json:"canViewAutopark"`
	ViewDetails     bool     `json:"canViewDetails"`
	ViewFiles       bool     `json:"canViewFiles"`
	ViewHistory     bool     `json:"canViewHistory"`
	EditAutopark    bool     `json:"canEditAutopark"`
	CreateAutopark  bool     `json:"canCreateAutopark"`
	DeleteAutopark  bool     `json:"canDeleteAutopark"`
	UploadFiles     bool     `json:"canUploadFiles"`
	DeleteFiles     bool     `json:"canDeleteFiles"`
	VisibleColumns  []string `json:"visibleColumns"`
	EditableColumns []string `json:"editableColumns"`
}

// Allows reports whether the named capability flag is set. Unknown keys are
// denied.
func (b PermissionBag) Allows(key string) bool {
	switch key {
	case PermManageRoles:
		return b.ManageRoles
	case PermManageUsers:
		return b.ManageUsers
	case PermViewAutopark:
		return b.ViewAutopark
	case PermViewDetails:
		return b.ViewDetails
	case PermViewFiles:
		return b.ViewFiles
	case PermViewHistory:
		return b.ViewHistory
	case PermEditAutopark:
		return b.EditAutopark
	case PermCreateAutopark:
		return b.CreateAutopark
	case PermDeleteAutopark:
		return b.DeleteAutopark
	case PermUploadFiles:
		return b.UploadFiles
	case PermDeleteFiles:
		return b.DeleteFiles
	default:
		return false
	}
}

// ColumnVisible reports whether the column is in the visible set.
func (b PermissionBag) ColumnVisible(column string) bool {
	return containsString(b.VisibleColumns, column)
}

// ColumnEditable reports whether the column may be edited. Editable implies
// visible, which Normalize enforces on write.
func (b PermissionBag) ColumnEditable(column string) bool {
	return containsString(b.EditableColumns, column)
}

// Normalize returns a copy with the schema version stamped, both column lists
// sorted and deduplicated, and every editable column also marked visible.
// Stores call this before persisting a bag so the invariant holds at rest.
func (b PermissionBag) Normalize() PermissionBag {
	out := b
	out.SchemaVersion = PermissionBagSchemaVersion
	out.EditableColumns = dedupeStrings(b.EditableColumns)
	visible := append([]string{}, b.VisibleColumns...)
	visible = append(visible, out.EditableColumns...)
	out.VisibleColumns = dedupeStrings(visible)
	return out
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
