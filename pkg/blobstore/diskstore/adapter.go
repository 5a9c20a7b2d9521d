package diskstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/core"
	"assetvault/pkg/types"
)

// Adapter 实现了 blobstore.Store 接口 (纯文件系统后端)
// 适合不想引入数据库的最小部署。
type Adapter struct {
	rootPath string // 比如: <workspace>/.av/blobs
}

// diskRecord 是磁盘上的单文件格式 (规范化 CBOR)
// 一个资产一个文件，项目标签内嵌，写入保持原子。
type diskRecord struct {
	ID        string `cbor:"id"`
	ProjectID string `cbor:"project"`
	Bytes     []byte `cbor:"bytes"`
}

// NewAdapter 创建磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回 id 对应的物理路径
// 策略：前 2 个字符做子目录 (Sharding)，避免单目录文件数爆炸
// Example: "2cf24dba-..." -> root/2c/f24dba-...
func (a *Adapter) layout(id types.ID) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(a.rootPath, s)
	}
	return filepath.Join(a.rootPath, s[:2], s[2:])
}

func (a *Adapter) Put(ctx context.Context, id types.ID, projectID types.ProjectID, data []byte) error {
	targetPath := a.layout(id)

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	payload, err := core.EncodeCanonical(diskRecord{
		ID:        id.String(),
		ProjectID: projectID.String(),
		Bytes:     data,
	})
	if err != nil {
		return err
	}

	// 原子写入：先写临时文件再 Rename
	// 保证文件要么不存在，要么是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name()) // Rename 成功后这个删除无害

	if _, err := tempFile.Write(payload); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	return os.Rename(tempFile.Name(), targetPath)
}

func (a *Adapter) Get(ctx context.Context, id types.ID) ([]byte, error) {
	rec, err := a.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Bytes, nil
}

func (a *Adapter) GetRecord(ctx context.Context, id types.ID) (*blobstore.Record, error) {
	data, err := os.ReadFile(a.layout(id))
	if os.IsNotExist(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob file: %w", err)
	}

	var rec diskRecord
	if err := core.DecodeCanonical(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupted blob file for %s: %w", id, err)
	}
	return &blobstore.Record{
		ID:        types.ID(rec.ID),
		ProjectID: types.ProjectID(rec.ProjectID),
		Bytes:     rec.Bytes,
	}, nil
}

// Delete 幂等删除
func (a *Adapter) Delete(ctx context.Context, id types.ID) error {
	err := os.Remove(a.layout(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListByProject 全量扫描 (维护路径，不在热路径上)
func (a *Adapter) ListByProject(ctx context.Context, projectID types.ProjectID) ([]types.ID, error) {
	var out []types.ID

	err := filepath.WalkDir(a.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var rec diskRecord
		if err := core.DecodeCanonical(data, &rec); err != nil {
			// 损坏的文件跳过，不让一个坏 Blob 拖垮整个列表
			return nil
		}
		if types.ProjectID(rec.ProjectID) == projectID {
			out = append(out, types.ID(rec.ID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob walk failed: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (a *Adapter) Close() error { return nil }
