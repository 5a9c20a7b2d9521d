// pkg/manager/manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"assetvault/pkg/assetref"
	"assetvault/pkg/blobstore"
	"assetvault/pkg/core"
	"assetvault/pkg/origin"
	"assetvault/pkg/peer"
	"assetvault/pkg/replica"
	"assetvault/pkg/resolver"
	"assetvault/pkg/retrieval"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"
)

var (
	ErrEmptyContent = errors.New("manager: empty content")
	ErrNoFilename   = errors.New("manager: filename required")
	ErrUnknownAsset = errors.New("manager: unknown asset")
)

// InsertOptions 控制插入行为
type InsertOptions struct {
	FolderPath string
	ForceNewID bool // 跳过内容寻址，强制铸一个随机 id (显式去重豁免)
}

// Stats 是项目级统计，纯由元数据推导，不碰 Blob
type Stats struct {
	Total     int
	Pending   int // uploaded=false
	Uploaded  int
	TotalSize int64
}

// Config 是 AssetManager 的参数
type Config struct {
	Project types.ProjectID
	Hash    core.Algorithm // "" = sha256

	// RemoteDeleteTimeout 是异步远端删除的预算
	RemoteDeleteTimeout time.Duration
}

// Manager 是资产引擎的总协调者
//
// 分层契约：MetadataReplica 是身份和元数据的唯一权威；
// BlobStore 和句柄缓存只是本地缓存，任何时候都可以由
// 元数据 + 一次成功取回重建。所有远端操作 (上传、删除) 都是
// 尽力而为的最终一致，远端失败从不回滚本地状态。
type Manager struct {
	cfg   Config
	hash  core.HashFunc
	store blobstore.Store
	meta  replica.Replica
	urls  *urlcache.Cache
	coord *retrieval.Coordinator // 可选
	peers peer.Channel           // 可选
	org   origin.Client          // 可选
	log   *slog.Logger
}

func New(cfg Config, store blobstore.Store, meta replica.Replica, urls *urlcache.Cache, coord *retrieval.Coordinator, peers peer.Channel, org origin.Client, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RemoteDeleteTimeout <= 0 {
		cfg.RemoteDeleteTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:   cfg,
		hash:  core.HasherFor(cfg.Hash),
		store: store,
		meta:  meta,
		urls:  urls,
		coord: coord,
		peers: peers,
		org:   org,
		log:   log,
	}
}

// Insert 插入内容并返回规范形式的引用 URL
//
// 身份来自内容哈希 (ForceNewID 例外)，所以同样的字节天然去重：
//  1. 元数据已存在且 Blob 归本项目 → 幂等返回既有引用，
//     调用方给了不同的 folderPath 就顺手刷新；
//  2. 元数据存在但 Blob 缺失/属于别的项目 → 同 id 复用字节，
//     挂到当前项目下 (跨项目内容复用正是内容寻址的意义)；
//  3. 全新 → 写 Blob + 元数据，uploaded=false 等待推送。
//
// 返回前一定同步注册句柄缓存，调用方可以立即渲染。
func (m *Manager) Insert(ctx context.Context, data []byte, filename, mime string, opts InsertOptions) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	if filename == "" {
		return "", ErrNoFilename
	}
	if mime == "" {
		mime = core.MIMEFromFilename(filename)
	}
	folder := types.CleanFolderPath(opts.FolderPath)

	hash := m.hash(data)
	var id types.ID
	if opts.ForceNewID {
		id = core.NewRandomID()
	} else {
		id = core.IDFromHash(hash)
	}

	if rec, ok := m.meta.Get(id); ok && !opts.ForceNewID {
		return m.insertExisting(ctx, id, rec, data, filename, mime, hash, folder)
	}

	rec := replica.Record{
		Filename:   filename,
		FolderPath: folder,
		MIME:       mime,
		Size:       int64(len(data)),
		Hash:       hash,
		Uploaded:   false,
		CreatedAt:  time.Now(),
	}
	if err := m.store.Put(ctx, id, m.cfg.Project, data); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	m.meta.Set(id, rec)
	m.urls.Register(id, data, mime)
	m.announce(id)

	m.log.Debug("asset inserted", "id", id, "filename", filename, "bytes", len(data))
	return assetref.Canonical(id, filename), nil
}

// insertExisting 处理内容寻址命中的两种情形 (幂等重插 / 跨项目复用)
func (m *Manager) insertExisting(ctx context.Context, id types.ID, rec replica.Record, data []byte, filename, mime string, hash types.Hash, folder string) (string, error) {
	ownedHere := false
	if blobRec, err := m.store.GetRecord(ctx, id); err == nil && blobRec.ProjectID == m.cfg.Project {
		ownedHere = true
	}

	if ownedHere {
		// 幂等重插：引用原样返回，只刷新调用方指定的目录
		if folder != "" && folder != rec.FolderPath {
			rec.FolderPath = folder
			rec.Uploaded = false
			m.meta.Set(id, rec)
		}
		m.urls.Register(id, data, rec.MIME)
		return assetref.Canonical(id, rec.Filename), nil
	}

	// 跨项目复用：同 id 把字节挂到当前项目，元数据按本次插入重写。
	// 内容没变，远端若已有同 id 对象则无需重传，uploaded 继承。
	if err := m.store.Put(ctx, id, m.cfg.Project, data); err != nil {
		return "", fmt.Errorf("adopt blob: %w", err)
	}
	fresh := replica.Record{
		Filename:   filename,
		FolderPath: folder,
		MIME:       mime,
		Size:       int64(len(data)),
		Hash:       hash,
		Uploaded:   rec.Uploaded,
		CreatedAt:  time.Now(),
	}
	m.meta.Set(id, fresh)
	m.urls.Register(id, data, mime)
	m.announce(id)
	return assetref.Canonical(id, filename), nil
}

// Resolve 同步解析：只看句柄缓存，永不做 I/O
func (m *Manager) Resolve(ref string) (urlcache.Handle, bool) {
	r, err := assetref.Parse(ref)
	if err != nil {
		return "", false
	}
	return m.urls.HandleFor(r.ID)
}

// ResolveAsync 异步解析：句柄缓存 → BlobStore → 触发后台取回
// 彻底未命中时立即返回加载占位图，永不阻塞在网络上。
// 解析不出 id 的引用视同永久失败，直接给未找到占位图。
func (m *Manager) ResolveAsync(ctx context.Context, ref string) string {
	r, err := assetref.Parse(ref)
	if err != nil {
		return resolver.NotFoundPlaceholder()
	}
	if h, ok := m.urls.HandleFor(r.ID); ok {
		return h.String()
	}
	if data, err := m.store.Get(ctx, r.ID); err == nil {
		mime := m.mimeFor(r.ID)
		return m.urls.Register(r.ID, data, mime).String()
	}
	if m.coord != nil {
		if m.coord.State(r.ID) == retrieval.StatePermanentlyFailed {
			return resolver.NotFoundPlaceholder()
		}
		m.coord.Fetch(r.ID, retrieval.PriorityCritical, "resolve miss")
	}
	return resolver.LoadingPlaceholder()
}

// Rename 改文件名：纯元数据变更，内容不动
// 远端记录随之过期，标记 uploaded=false 等待重推。
func (m *Manager) Rename(ctx context.Context, id types.ID, newFilename string) error {
	if newFilename == "" {
		return ErrNoFilename
	}
	rec, ok := m.meta.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	rec.Filename = newFilename
	rec.MIME = core.MIMEFromFilename(newFilename)
	rec.Uploaded = false
	m.meta.Set(id, rec)
	return nil
}

// Move 改所在目录：同 Rename，纯元数据
func (m *Manager) Move(ctx context.Context, id types.ID, newFolderPath string) error {
	rec, ok := m.meta.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	rec.FolderPath = types.CleanFolderPath(newFolderPath)
	rec.Uploaded = false
	m.meta.Set(id, rec)
	return nil
}

// RewriteLegacyRefs 重写内容里指向 id 的遗留形式引用
// 遗留形式把展示路径编进了引用串，改名后必须跟着改；
// 规范形式只带扩展名，天然免疫，原样保留。
func (m *Manager) RewriteLegacyRefs(content string, id types.ID, newFilename string) string {
	return assetref.ReplaceAll(content, func(ref assetref.Ref) (string, bool) {
		if ref.ID != id || !ref.IsLegacy() {
			return "", false
		}
		dir := path.Dir(ref.LegacyPath)
		if dir == "." || dir == "/" {
			return assetref.Legacy(id, newFilename), true
		}
		return assetref.Legacy(id, dir+"/"+newFilename), true
	})
}

// Delete 删除资产：元数据、句柄、Blob，然后异步尽力删远端
// 远端删除失败只记日志，本地删除不回滚。对未知 id 幂等。
func (m *Manager) Delete(ctx context.Context, id types.ID) error {
	m.meta.Delete(id)
	m.urls.Release(id)
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("delete blob: %w", err)
	}

	if m.org != nil {
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), m.cfg.RemoteDeleteTimeout)
			defer cancel()
			if err := m.org.BulkDelete(rctx, []types.ID{id}); err != nil {
				m.log.Warn("remote delete failed, local delete stands", "id", id, "error", err)
			}
		}()
	}
	return nil
}

// Stats 统计项目资产：只扫元数据，Blob 有多大都一样快
func (m *Manager) Stats() Stats {
	var s Stats
	m.meta.ForEach(func(_ types.ID, rec replica.Record) bool {
		s.Total++
		s.TotalSize += rec.Size
		if rec.Uploaded {
			s.Uploaded++
		} else {
			s.Pending++
		}
		return true
	})
	return s
}

// UploadPending 把所有 uploaded=false 的资产推到源站
// 成功的翻标记，失败的保持 pending 下次再推。
func (m *Manager) UploadPending(ctx context.Context) (uploaded, failed []types.ID, err error) {
	if m.org == nil {
		return nil, nil, errors.New("manager: no origin configured")
	}

	var batch []origin.PendingAsset
	m.meta.ForEach(func(id types.ID, rec replica.Record) bool {
		if rec.Uploaded {
			return true
		}
		data, gerr := m.store.Get(ctx, id)
		if gerr != nil {
			// 元数据在、字节不在 (still pending retrieval)：这轮跳过
			m.log.Warn("pending asset has no local bytes, skipping upload", "id", id)
			failed = append(failed, id)
			return true
		}
		batch = append(batch, origin.PendingAsset{
			ID:       id,
			Filename: rec.Filename,
			MIME:     rec.MIME,
			Hash:     rec.Hash,
			Bytes:    data,
		})
		return true
	})
	if len(batch) == 0 {
		return nil, failed, nil
	}

	ok, bad, uerr := m.org.UploadPending(ctx, batch)
	if uerr != nil {
		return nil, append(failed, bad...), fmt.Errorf("upload pending: %w", uerr)
	}
	failed = append(failed, bad...)

	// 翻标记走单个事务，观察者看到的是一次性的批量完成
	terr := m.meta.Transact(func(tx replica.Tx) error {
		for _, id := range ok {
			if rec, found := m.meta.Get(id); found {
				rec.Uploaded = true
				tx.Set(id, rec)
			}
		}
		return nil
	})
	if terr != nil {
		return ok, failed, terr
	}
	m.log.Info("pending assets pushed", "uploaded", len(ok), "failed", len(failed))
	return ok, failed, nil
}

// Close 释放句柄缓存并停掉后台取回
func (m *Manager) Close() error {
	m.urls.ReleaseAll()
	if m.coord != nil {
		return m.coord.Close()
	}
	return nil
}

func (m *Manager) announce(id types.ID) {
	if m.peers == nil || !m.peers.Connected() {
		return
	}
	go m.peers.AnnounceAvailability(context.Background(), []types.ID{id})
}

func (m *Manager) mimeFor(id types.ID) string {
	rec, ok := m.meta.Get(id)
	if !ok {
		return "application/octet-stream"
	}
	if rec.MIME != "" {
		return rec.MIME
	}
	return core.MIMEFromFilename(rec.Filename)
}
