// pkg/project/project.go
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetvault/pkg/core"
	"assetvault/pkg/types"
)

var ErrNotInitialized = errors.New("project not initialized (missing .av/PROJECT)")

// Manager 负责管理工作区身份 (.av 目录)
// .av/PROJECT 里只有一行：项目 id。它决定 Blob 的归属项目和
// 复制通道的名字，所有协作者共享同一个 id。
type Manager struct {
	rootPath string
}

func NewManager(rootPath string) *Manager {
	return &Manager{rootPath: rootPath}
}

// Dir 返回 .av 元数据目录的物理路径
func (m *Manager) Dir() string {
	return filepath.Join(m.rootPath, ".av")
}

func (m *Manager) projectPath() string {
	return filepath.Join(m.Dir(), "PROJECT")
}

// ProjectID 读取当前工作区的项目 id
// 没初始化过返回 ErrNotInitialized。
func (m *Manager) ProjectID() (types.ProjectID, error) {
	data, err := os.ReadFile(m.projectPath())
	if os.IsNotExist(err) {
		return "", ErrNotInitialized
	}
	if err != nil {
		return "", fmt.Errorf("failed to read PROJECT: %w", err)
	}

	// 清理换行符 (手工编辑时可能会带 \n)
	id := types.ProjectID(strings.TrimSpace(string(data)))
	if id.IsZero() {
		return "", ErrNotInitialized
	}
	return id, nil
}

// Init 初始化工作区：建 .av 目录、写 PROJECT 文件
// id 为空就铸一个随机 id。已初始化则返回现有 id，不覆盖。
func (m *Manager) Init(id types.ProjectID) (types.ProjectID, error) {
	if existing, err := m.ProjectID(); err == nil {
		return existing, nil
	}

	if id.IsZero() {
		id = types.ProjectID(core.NewRandomID())
	}
	if err := os.MkdirAll(m.Dir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(m.projectPath(), []byte(id.String()+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write PROJECT: %w", err)
	}
	return id, nil
}
