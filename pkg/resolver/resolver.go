// pkg/resolver/resolver.go
package resolver

import (
	"context"
	"encoding/base64"
	"log/slog"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/core"
	"assetvault/pkg/replica"
	"assetvault/pkg/retrieval"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"
)

// Resolver 把内容里的 asset:// 引用解析成可渲染的形式
//
// 两条路径刻意不同：
//   - 实时路径 (live.go) 用正则做文本替换 —— 渲染热路径上
//     不值得为每次击键做完整的 HTML 解析；
//   - 导出路径 (export.go) 用 x/net/html 做结构化遍历 ——
//     嵌套引用 (CSS 里的 url、锚点后面的整页 HTML) 只有
//     解析树能做对。
type Resolver struct {
	store blobstore.Store
	meta  replica.Replica
	urls  *urlcache.Cache
	coord *retrieval.Coordinator // 可选，nil = 不触发后台取回
	log   *slog.Logger
}

func New(store blobstore.Store, meta replica.Replica, urls *urlcache.Cache, coord *retrieval.Coordinator, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, meta: meta, urls: urls, coord: coord, log: log}
}

// handleFor 给 id 找一个进程内句柄
// readStore=false 只看句柄缓存 (同步路径的契约：永不碰磁盘)；
// readStore=true 允许从 BlobStore 捞字节并顺手注册句柄。
func (r *Resolver) handleFor(ctx context.Context, id types.ID, readStore bool) (urlcache.Handle, bool) {
	if h, ok := r.urls.HandleFor(id); ok {
		return h, true
	}
	if !readStore {
		return "", false
	}
	data, err := r.store.Get(ctx, id)
	if err != nil {
		return "", false
	}
	return r.urls.Register(id, data, r.mimeFor(id)), true
}

// bytesFor 拿 id 的字节 + MIME：句柄缓存优先，其次 BlobStore
func (r *Resolver) bytesFor(ctx context.Context, id types.ID) ([]byte, string, bool) {
	if h, ok := r.urls.HandleFor(id); ok {
		if data, mime, ok := r.urls.Bytes(h); ok {
			return data, mime, true
		}
	}
	data, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, "", false
	}
	return data, r.mimeFor(id), true
}

func (r *Resolver) mimeFor(id types.ID) string {
	rec, ok := r.meta.Get(id)
	if !ok {
		return "application/octet-stream"
	}
	if rec.MIME != "" {
		return rec.MIME
	}
	return core.MIMEFromFilename(rec.Filename)
}

// lookupByPath 按 (folderPath, filename) 在元数据里找资产
// 相对路径引用 (CSS 的 url(./x.png) 等) 靠它回到 id 世界。
func (r *Resolver) lookupByPath(folder, file string) (types.ID, replica.Record, bool) {
	folder = types.CleanFolderPath(folder)
	var (
		foundID  types.ID
		foundRec replica.Record
		found    bool
	)
	r.meta.ForEach(func(id types.ID, rec replica.Record) bool {
		if rec.Filename == file && rec.FolderPath == folder {
			foundID, foundRec, found = id, rec, true
			return false
		}
		return true
	})
	return foundID, foundRec, found
}

// permanentlyFailed 判断 id 是否已被检索层永久放弃
func (r *Resolver) permanentlyFailed(id types.ID) bool {
	if r.coord == nil {
		return false
	}
	return r.coord.State(id) == retrieval.StatePermanentlyFailed
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
