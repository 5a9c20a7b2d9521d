package blobstore

import (
	"context"
	"errors"

	"assetvault/pkg/types"
)

var (
	ErrNotFound = errors.New("blob not found")
)

// Record 是持久层的一条 Blob 记录
// 除了字节本身，只带一个归属 ProjectID 标签：同样的内容第一次由哪个
// 项目写入，标签就是谁。复用时由 Manager 负责重新打标/复制，
// 存储层不做任何归属假设。
type Record struct {
	ID        types.ID
	ProjectID types.ProjectID
	Bytes     []byte
}

// Store 定义本地持久 Blob 存储
// 全局按 id 唯一 (一个 id 一份 Blob，后写者胜)，跨项目复用是设计目标。
// 没有隐式淘汰：这是 cache of record，空间只能靠显式 Delete 回收。
type Store interface {
	// Put 写入/覆盖一份 Blob
	Put(ctx context.Context, id types.ID, projectID types.ProjectID, data []byte) error

	// Get 只取字节，不存在返回 ErrNotFound
	Get(ctx context.Context, id types.ID) ([]byte, error)

	// GetRecord 取完整记录 (含归属标签)
	GetRecord(ctx context.Context, id types.ID) (*Record, error)

	// Delete 幂等删除：不存在不算错
	Delete(ctx context.Context, id types.ID) error

	// ListByProject 按归属项目列出 id
	ListByProject(ctx context.Context, projectID types.ProjectID) ([]types.ID, error)

	// Close 释放底层资源
	Close() error
}
