package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装了导入时的忽略逻辑
// 它负责判断一个文件是否应该被批量导入跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 工作区根目录（用于查找 .avignore 文件）
func NewMatcher(rootPath string) (*Matcher, error) {
	// 1. 系统级默认忽略规则，强制生效
	defaultRules := []string{
		// --- 关键系统目录 ---
		".av",  // 绝对禁止导入工作区元数据目录，否则会无限递归！
		".git", // 忽略 Git 仓库数据

		// --- 安全与配置 ---
		"config.yaml", // 防止 S3 Secret Key 泄露
		".env",        // 防止环境变量文件泄露

		// --- 常见垃圾文件 ---
		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}

	var ignorer *gitignore.GitIgnore
	var err error

	// 2. 用户的 .avignore 规则和默认规则合并编译
	ignoreFilePath := filepath.Join(rootPath, ".avignore")

	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}

	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于工作区根目录的相对路径 (例如 "site/img/logo.png")
// 返回: true 表示应该跳过, false 表示应该导入
func (m *Matcher) Matches(path string) bool {
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
