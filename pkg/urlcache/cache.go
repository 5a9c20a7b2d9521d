// pkg/urlcache/cache.go
package urlcache

import (
	"sync"

	"assetvault/pkg/types"

	"github.com/google/uuid"
)

// Handle 是进程内的临时可解析句柄 ("mem://<token>")
// 它只在当前进程有效，不持久化。渲染层拿它当对象 URL 用。
type Handle string

const scheme = "mem://"

func (h Handle) String() string { return string(h) }

// Cache 是 id <-> 句柄的双向映射，查询两个方向都是同步 O(1)
// 设计约束：这是一个由 Manager 显式持有的结构体，有明确的
// 初始化/销毁生命周期，绝不是包级单例。
type Cache struct {
	mu       sync.RWMutex
	byID     map[types.ID]*slot
	byHandle map[Handle]types.ID
}

// slot 持有句柄指向的实际字节，保证句柄在进程内可渲染
type slot struct {
	handle Handle
	data   []byte
	mime   string
}

func New() *Cache {
	return &Cache{
		byID:     make(map[types.ID]*slot),
		byHandle: make(map[Handle]types.ID),
	}
}

// Register 为资产登记句柄并返回
// 幂等：同一个 id 重复登记返回已有句柄 (字节以第一次为准，
// 内容寻址保证它们本来就相同)。
func (c *Cache) Register(id types.ID, data []byte, mime string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.byID[id]; ok {
		return s.handle
	}

	h := Handle(scheme + uuid.NewString())
	c.byID[id] = &slot{handle: h, data: data, mime: mime}
	c.byHandle[h] = id
	return h
}

// HandleFor 正向查找 (同步，缓存未命中返回 false)
func (c *Cache) HandleFor(id types.ID) (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return s.handle, true
}

// IDFor 反向查找：句柄 -> 资产 id
func (c *Cache) IDFor(h Handle) (types.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byHandle[h]
	return id, ok
}

// Bytes 取句柄背后的字节和 MIME (导出/渲染路径用)
func (c *Cache) Bytes(h Handle) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byHandle[h]
	if !ok {
		return nil, "", false
	}
	s := c.byID[id]
	return s.data, s.mime, true
}

// Release 释放单个资产的句柄 (删除路径调用)
func (c *Cache) Release(id types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.byID[id]; ok {
		delete(c.byHandle, s.handle)
		delete(c.byID, id)
	}
}

// ReleaseAll 释放全部句柄 (Manager 销毁时调用)
func (c *Cache) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[types.ID]*slot)
	c.byHandle = make(map[Handle]types.ID)
}

// Len 当前登记的句柄数
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
