package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assetvault/pkg/assetref"
	"assetvault/pkg/blobstore/memstore"
	"assetvault/pkg/manager"
	"assetvault/pkg/origin"
	"assetvault/pkg/replica"
	"assetvault/pkg/resolver"
	"assetvault/pkg/retrieval"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOrigin 是进程内的源站，用于验证双设备同步链路
// 我们只关心它被下载的次数，不关心传输细节
type memOrigin struct {
	mu        sync.Mutex
	blobs     map[types.ID]origin.PendingAsset
	downloads int32
}

func newMemOrigin() *memOrigin {
	return &memOrigin{blobs: make(map[types.ID]origin.PendingAsset)}
}

func (o *memOrigin) UploadPending(_ context.Context, assets []origin.PendingAsset) ([]types.ID, []types.ID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	uploaded := make([]types.ID, 0, len(assets))
	for _, a := range assets {
		o.blobs[a.ID] = a
		uploaded = append(uploaded, a.ID)
	}
	return uploaded, nil, nil
}

func (o *memOrigin) DownloadByID(_ context.Context, id types.ID) (*origin.Download, error) {
	atomic.AddInt32(&o.downloads, 1)
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.blobs[id]
	if !ok {
		return nil, origin.ErrNotFound
	}
	return &origin.Download{
		Bytes:    a.Bytes,
		MIME:     a.MIME,
		Hash:     a.Hash,
		Size:     int64(len(a.Bytes)),
		Filename: a.Filename,
	}, nil
}

func (o *memOrigin) BulkDelete(_ context.Context, ids []types.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		delete(o.blobs, id)
	}
	return nil
}

func (o *memOrigin) ListInventory(_ context.Context) ([]origin.InventoryEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]origin.InventoryEntry, 0, len(o.blobs))
	for id, a := range o.blobs {
		out = append(out, origin.InventoryEntry{ID: id, Size: int64(len(a.Bytes))})
	}
	return out, nil
}

type device struct {
	store *memstore.Store
	urls  *urlcache.Cache
	coord *retrieval.Coordinator
	mgr   *manager.Manager
	res   *resolver.Resolver
}

func newDevice(t *testing.T, project types.ProjectID, meta replica.Replica, org origin.Client) *device {
	t.Helper()
	store := memstore.New()
	urls := urlcache.New()
	coord := retrieval.New(retrieval.Config{
		Project:     project,
		Concurrency: 2,
		MaxAttempts: 3,
		Cooldown:    20 * time.Millisecond,
	}, store, meta, urls, nil, org, nil)
	mgr := manager.New(manager.Config{Project: project}, store, meta, urls, coord, nil, org, nil)
	res := resolver.New(store, meta, urls, coord, nil)
	return &device{store: store, urls: urls, coord: coord, mgr: mgr, res: res}
}

// TestTwoDeviceSyncWorkflow 验证完整链路：
// 设备 A 离线插入 -> 推送源站 -> 设备 B 本地无字节 ->
// 异步解析出占位符 -> 后台取回 -> 最终解析出真实内容 -> 导出自包含 HTML
func TestTwoDeviceSyncWorkflow(t *testing.T) {
	ctx := context.Background()

	// 1. 基础设施准备
	// -------------------------------------------------------------
	project := types.ProjectID("e2e-project")
	meta := replica.NewMemory() // 元数据副本收敛后两台设备看到同一张表
	org := newMemOrigin()

	devA := newDevice(t, project, meta, org)
	devA.coord.Start(ctx)
	defer devA.coord.Close()

	// 2. 设备 A：离线插入图片和引用它的页面
	// -------------------------------------------------------------
	imgData := []byte("\x89PNG\r\n\x1a\ne2e-image-bytes")
	imgRef, err := devA.mgr.Insert(ctx, imgData, "logo.png", "image/png", manager.InsertOptions{FolderPath: "site"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(imgRef, "asset://"))

	pageHTML := `<html><body><img src="` + imgRef + `"></body></html>`
	_, err = devA.mgr.Insert(ctx, []byte(pageHTML), "index.html", "text/html", manager.InsertOptions{FolderPath: "site"})
	require.NoError(t, err)

	stats := devA.mgr.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Pending, "nothing uploaded yet while offline")

	// 3. 设备 A：推送源站
	// -------------------------------------------------------------
	uploaded, failed, err := devA.mgr.UploadPending(ctx)
	require.NoError(t, err)
	assert.Len(t, uploaded, 2)
	assert.Empty(t, failed)
	assert.Equal(t, 0, devA.mgr.Stats().Pending)
	t.Log("✅ Device A pushed both assets to origin")

	// 4. 设备 B：元数据已收敛，但本地没有任何字节
	// -------------------------------------------------------------
	devB := newDevice(t, project, meta, org)
	devB.coord.Start(ctx)
	defer devB.coord.Close()

	out := devB.mgr.ResolveAsync(ctx, imgRef)
	assert.Equal(t, resolver.LoadingPlaceholder(), out, "first paint shows the loading placeholder")

	imgID := mustID(t, imgRef)
	require.Eventually(t, func() bool {
		return devB.coord.State(imgID) == retrieval.StateResolved
	}, 2*time.Second, 10*time.Millisecond, "background retrieval should land the bytes")

	got, err := devB.store.Get(ctx, imgID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(imgData, got), "bytes must survive the round trip")
	assert.Equal(t, int32(1), atomic.LoadInt32(&org.downloads), "single-flight: one download per asset")

	// 5. 设备 B：再次解析，这次应该拿到真实句柄
	// -------------------------------------------------------------
	out = devB.mgr.ResolveAsync(ctx, imgRef)
	assert.True(t, strings.HasPrefix(out, "mem://"), "resolved asset serves a live handle")

	resolved, missing := devB.res.ResolveHTMLAsync(ctx, pageHTML, "index.html")
	assert.Empty(t, missing)
	assert.NotContains(t, resolved, "asset://")
	assert.Contains(t, resolved, out)

	// 6. 设备 B：导出自包含 HTML，图片内联为 data URL
	// -------------------------------------------------------------
	exported, err := devB.res.ResolveHTMLAsDataURLs(ctx, pageHTML, "site")
	require.NoError(t, err)
	assert.NotContains(t, exported, "asset://")
	assert.Contains(t, exported, base64.StdEncoding.EncodeToString(imgData))
	t.Log("✅ SUCCESS: two-device sync workflow passed")
}

// TestDeletePropagation 验证删除链路：本地先行，远端尽力而为
func TestDeletePropagation(t *testing.T) {
	ctx := context.Background()

	project := types.ProjectID("e2e-project")
	meta := replica.NewMemory()
	org := newMemOrigin()

	dev := newDevice(t, project, meta, org)
	dev.coord.Start(ctx)
	defer dev.coord.Close()

	ref, err := dev.mgr.Insert(ctx, []byte("throwaway"), "tmp.txt", "", manager.InsertOptions{})
	require.NoError(t, err)
	_, _, err = dev.mgr.UploadPending(ctx)
	require.NoError(t, err)

	id := mustID(t, ref)
	require.NoError(t, dev.mgr.Delete(ctx, id))

	_, ok := meta.Get(id)
	assert.False(t, ok, "local record goes immediately")
	require.Eventually(t, func() bool {
		inv, _ := org.ListInventory(ctx)
		return len(inv) == 0
	}, 2*time.Second, 10*time.Millisecond, "remote delete catches up asynchronously")
}

func mustID(t *testing.T, ref string) types.ID {
	t.Helper()
	parsed, err := assetref.Parse(ref)
	require.NoError(t, err)
	return parsed.ID
}
