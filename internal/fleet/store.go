package fleet

import (
	"context"
	"time"
)

// AssetStore persists asset documents. UpdateAssetFields must compare the
// stored version with expectedVersion inside the same statement and fail
// with ErrConflict on a mismatch.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset Asset) (Asset, error)
	GetAsset(ctx context.Context, assetID string) (Asset, error)
	ListAssets(ctx context.Context, filter ListFilter) (AssetPage, error)
	UpdateAssetFields(ctx context.Context, assetID string, expectedVersion int64, fields map[string]string, now time.Time) (Asset, error)
	DeleteAsset(ctx context.Context, assetID string) error
}

// ChangeLogStore persists the append-only change log. ListChanges orders by
// changed_at descending with the record id as tie-break.
type ChangeLogStore interface {
	AppendChanges(ctx context.Context, records []ChangeRecord) error
	ListChanges(ctx context.Context, filter LogFilter) (LogPage, error)
}
