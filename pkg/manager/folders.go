// pkg/manager/folders.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"assetvault/pkg/replica"
	"assetvault/pkg/types"
)

// ErrFolderCycle 表示试图把文件夹移进它自己的后代
var ErrFolderCycle = errors.New("manager: cannot move a folder into its own descendant")

// 文件夹不是实体，只是元数据里的 folderPath 前缀。
// 所有文件夹操作都是对前缀命中的全部资产做批量元数据重写，
// 且必须在一个事务里完成 —— 协作者要么看到改名前，要么看到
// 改名后，永远不会看到半个文件夹。

// RenameFolder 把 oldPath 及其所有后代改到 newPath 下
func (m *Manager) RenameFolder(ctx context.Context, oldPath, newPath string) error {
	oldF := types.CleanFolderPath(oldPath)
	newF := types.CleanFolderPath(newPath)
	if oldF == "" {
		return errors.New("manager: cannot rename the root folder")
	}
	if newF == "" {
		return errors.New("manager: target folder path required")
	}
	if oldF == newF {
		return nil
	}
	if types.FolderContains(oldF, newF) {
		return fmt.Errorf("%w: %s -> %s", ErrFolderCycle, oldF, newF)
	}

	n := m.rewritePrefix(oldF, newF)
	m.log.Info("folder renamed", "from", oldF, "to", newF, "assets", n)
	return nil
}

// MoveFolder 把 path 整体挪到 destinationParent 下面
// destinationParent="" 表示挪到根。
func (m *Manager) MoveFolder(ctx context.Context, folderPath, destinationParent string) error {
	src := types.CleanFolderPath(folderPath)
	dst := types.CleanFolderPath(destinationParent)
	if src == "" {
		return errors.New("manager: cannot move the root folder")
	}
	// 自包含检查：目标是自己或自己的后代都拒绝
	if src == dst || types.FolderContains(src, dst) {
		return fmt.Errorf("%w: %s -> %s", ErrFolderCycle, src, dst)
	}

	target := path.Base(src)
	if dst != "" {
		target = dst + "/" + target
	}
	if target == src {
		return nil
	}

	n := m.rewritePrefix(src, target)
	m.log.Info("folder moved", "from", src, "to", target, "assets", n)
	return nil
}

// DeleteFolderContents 删除 path 及其后代下的全部资产
// 元数据删除在一个事务里；Blob 和句柄随后清理，远端异步尽力删。
func (m *Manager) DeleteFolderContents(ctx context.Context, folderPath string) error {
	folder := types.CleanFolderPath(folderPath)
	if folder == "" {
		return errors.New("manager: refusing to delete the root folder")
	}

	var victims []types.ID
	err := m.meta.Transact(func(tx replica.Tx) error {
		m.meta.ForEach(func(id types.ID, rec replica.Record) bool {
			if rec.FolderPath == folder || types.FolderContains(folder, rec.FolderPath) {
				tx.Delete(id)
				victims = append(victims, id)
			}
			return true
		})
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range victims {
		m.urls.Release(id)
		if derr := m.store.Delete(ctx, id); derr != nil {
			m.log.Warn("blob cleanup failed after folder delete", "id", id, "error", derr)
		}
	}

	if m.org != nil && len(victims) > 0 {
		ids := append([]types.ID(nil), victims...)
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), m.cfg.RemoteDeleteTimeout)
			defer cancel()
			if derr := m.org.BulkDelete(rctx, ids); derr != nil {
				m.log.Warn("remote folder delete failed, local delete stands", "folder", folder, "error", derr)
			}
		}()
	}

	m.log.Info("folder contents deleted", "folder", folder, "assets", len(victims))
	return nil
}

// rewritePrefix 在一个事务里把 src 前缀换成 dst，返回命中数
func (m *Manager) rewritePrefix(src, dst string) int {
	n := 0
	_ = m.meta.Transact(func(tx replica.Tx) error {
		m.meta.ForEach(func(id types.ID, rec replica.Record) bool {
			switch {
			case rec.FolderPath == src:
				rec.FolderPath = dst
			case types.FolderContains(src, rec.FolderPath):
				rec.FolderPath = dst + strings.TrimPrefix(rec.FolderPath, src)
			default:
				return true
			}
			rec.Uploaded = false
			tx.Set(id, rec)
			n++
			return true
		})
		return nil
	})
	return n
}
