// pkg/importer/importer.go
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assetvault/pkg/core"
	"assetvault/pkg/ignore"
	"assetvault/pkg/manager"
	"assetvault/pkg/types"
)

// Result 是一次批量导入的汇总
type Result struct {
	Files int
	Bytes int64
	Refs  []string // 每个导入文件的规范引用 URL
}

// Importer 负责把磁盘上的文件/目录树批量喂给 AssetManager
// folderPath 按文件在目录树里的相对位置生成，忽略规则走 .avignore。
type Importer struct {
	mgr     *manager.Manager
	matcher *ignore.Matcher
}

func New(mgr *manager.Manager, workspaceRoot string) (*Importer, error) {
	matcher, err := ignore.NewMatcher(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ignore rules: %w", err)
	}
	return &Importer{mgr: mgr, matcher: matcher}, nil
}

// ImportPath 导入一个文件或整棵目录树
// targetPath 是文件也能正常工作 (WalkDir 只回调一次)。
// folderPrefix 是目标资产目录的前缀 ("" = 按相对路径放到根下)。
// onFile 非 nil 时每导入一个文件回调一次 (CLI 进度条用)。
func (imp *Importer) ImportPath(ctx context.Context, targetPath, folderPrefix string, onFile func(path string, size int64)) (*Result, error) {
	res := &Result{}
	base := filepath.Clean(targetPath)

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err // 权限错误等
		}

		rel, rerr := filepath.Rel(base, path)
		if rerr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			// 目录本身不需要导入，folderPath 由文件的相对路径推出
			if rel != "." && imp.matcher.Matches(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel != "." && imp.matcher.Matches(rel) {
			return nil
		}

		data, rerr2 := os.ReadFile(path)
		if rerr2 != nil {
			return fmt.Errorf("failed to read %s: %w", path, rerr2)
		}
		if len(data) == 0 {
			return nil // 空文件没有内容身份，跳过
		}

		folder := folderFor(folderPrefix, rel)
		filename := filepath.Base(path)
		ref, ierr := imp.mgr.Insert(ctx, data, filename, core.MIMEFromFilename(filename), manager.InsertOptions{FolderPath: folder})
		if ierr != nil {
			return fmt.Errorf("failed to import %s: %w", path, ierr)
		}

		res.Files++
		res.Bytes += int64(len(data))
		res.Refs = append(res.Refs, ref)
		if onFile != nil {
			onFile(path, int64(len(data)))
		}
		return nil
	}

	if err := filepath.WalkDir(base, walkFn); err != nil {
		return nil, fmt.Errorf("walk failed: %w", err)
	}
	return res, nil
}

// folderFor 把相对路径的目录部分挂到前缀下
func folderFor(prefix, rel string) string {
	dir := ""
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		dir = rel[:idx]
	}
	switch {
	case prefix == "":
		return types.CleanFolderPath(dir)
	case dir == "" || dir == ".":
		return types.CleanFolderPath(prefix)
	default:
		return types.CleanFolderPath(prefix + "/" + dir)
	}
}
