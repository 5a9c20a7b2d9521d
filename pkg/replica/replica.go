// pkg/replica/replica.go
package replica

import (
	"time"

	"assetvault/pkg/types"
)

// Record 是一条资产元数据
// 它和 Blob 是分离的：元数据瞬时复制到所有协作者，Blob 只存在于
// 真正拿到过字节的客户端。“有元数据没 Blob”是合法的常态
// (known but not yet fetched)。
type Record struct {
	Filename   string
	FolderPath string // "" = 根目录
	MIME       string
	Size       int64
	Hash       types.Hash
	Uploaded   bool // false = 还没推到源站
	CreatedAt  time.Time
}

// Event 是一次变更通知
// Keys 是本次变更涉及的资产 id；Remote 标记变更来自远端协作者
// 还是本地写入。
type Event struct {
	Keys   []types.ID
	Remote bool
}

// Tx 是批量写事务的操作面
// Transact 里的所有写入对观察者全有或全无地可见，
// 文件夹级批量改名依赖这个保证。
type Tx interface {
	Set(id types.ID, rec Record)
	Delete(id types.ID)
}

// Replica 是复制的 id -> Record 映射
//
// 契约：
//   - 读永远走本地，永不阻塞在网络上；
//   - 写本地立即生效，异步传播给其他协作者；
//   - 合并按 key 做 LWW (不同 key 的并发写永不冲突)。
type Replica interface {
	Get(id types.ID) (Record, bool)
	Set(id types.ID, rec Record)
	Delete(id types.ID)

	// ForEach 遍历当前快照，fn 返回 false 提前终止
	ForEach(fn func(id types.ID, rec Record) bool)

	// Transact 原子批量写：没有观察者能看到半途状态
	Transact(fn func(tx Tx) error) error

	// Subscribe 注册变更回调，返回取消函数
	Subscribe(fn func(Event)) (cancel func())

	Close() error
}
