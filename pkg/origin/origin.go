// pkg/origin/origin.go
package origin

import (
	"context"
	"errors"

	"assetvault/pkg/types"
)

// ErrNotFound 表示源站确认资源不存在 (404)
// 检索层看到它就把该资产标记为永久失败，不再重试。
var ErrNotFound = errors.New("origin: asset not found")

// PendingAsset 是一次待上传的资产 (字节 + 足够的元数据)
type PendingAsset struct {
	ID       types.ID
	Filename string
	MIME     string
	Hash     types.Hash
	Bytes    []byte
}

// Download 是按 id 下载的结果
type Download struct {
	Bytes    []byte
	MIME     string
	Hash     types.Hash
	Size     int64
	Filename string
}

// InventoryEntry 是源站清单里的一项
type InventoryEntry struct {
	ID   types.ID
	Size int64
}

// Client 定义源站能力
// 所有调用都是尽力而为的最终一致：远端失败永远不回滚本地状态，
// 本地是用户设备上的权威。
type Client interface {
	// UploadPending 批量上传，按 id 返回成功/失败两组
	UploadPending(ctx context.Context, assets []PendingAsset) (uploaded, failed []types.ID, err error)

	// DownloadByID 按 id 下载；资源不存在返回 ErrNotFound
	DownloadByID(ctx context.Context, id types.ID) (*Download, error)

	// BulkDelete 批量删除 (尽力而为)
	BulkDelete(ctx context.Context, ids []types.ID) error

	// ListInventory 列出源站持有的资产清单
	ListInventory(ctx context.Context) ([]InventoryEntry, error)
}
