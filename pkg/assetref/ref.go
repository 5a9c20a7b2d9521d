// pkg/assetref/ref.go
package assetref

import (
	"errors"
	"regexp"
	"strings"

	"assetvault/pkg/core"
	"assetvault/pkg/types"
)

// Scheme 是嵌入在内容里的资产引用协议前缀
const Scheme = "asset://"

var ErrMalformed = errors.New("malformed asset reference")

// Ref 是解析后的资产引用
// 两种合法形式：
//   - 规范形式 asset://<uuid>.<ext>    (只带扩展名，重命名/移动免疫)
//   - 遗留形式 asset://<uuid>/<路径>   (路径仅用于展示，身份只看 uuid)
type Ref struct {
	ID  types.ID
	Ext string // 规范形式的扩展名 ("" = 无)

	// LegacyPath 是遗留形式携带的展示路径，规范形式下为空
	LegacyPath string

	// Raw 是内容里出现的原始文本 (替换时用它做精确匹配)
	Raw string
}

// IsLegacy 判断是否是遗留形式
func (r Ref) IsLegacy() bool { return r.LegacyPath != "" }

// String 重建规范形式的引用
func (r Ref) String() string {
	if r.Ext != "" {
		return Scheme + r.ID.String() + "." + r.Ext
	}
	return Scheme + r.ID.String()
}

// Canonical 构建规范形式引用，扩展名取自文件名
func Canonical(id types.ID, filename string) string {
	if ext := core.ExtFromFilename(filename); ext != "" {
		return Scheme + id.String() + "." + ext
	}
	return Scheme + id.String()
}

// Legacy 构建遗留形式引用 (仅为兼容旧内容保留，新代码不要用)
func Legacy(id types.ID, displayPath string) string {
	return Scheme + id.String() + "/" + strings.TrimPrefix(displayPath, "/")
}

// uuid 部分的形状: 8-4-4-4-12 Hex
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// refPattern 用于在内容文本里扫描引用
// 允许重复的 scheme 前缀 (损坏数据)，Parse 时会清洗掉
var refPattern = regexp.MustCompile(`(?:asset://)+[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(?:\.[A-Za-z0-9]+|/[^\s"'<>()\\]*)?`)

// Parse 解析一条引用文本
// 容错处理：重复叠加的 "asset://asset://..." 前缀会被清洗到一层，
// 这是真实数据里出现过的损坏形态。完全解析不出 uuid 的引用返回 ErrMalformed
// (上层把它当作永久失败处理)。
func Parse(raw string) (Ref, error) {
	rest := raw

	// 1. 剥离 scheme (允许叠加多层)
	if !strings.HasPrefix(rest, Scheme) {
		return Ref{}, ErrMalformed
	}
	for strings.HasPrefix(rest, Scheme) {
		rest = strings.TrimPrefix(rest, Scheme)
	}

	// 2. 提取 uuid
	m := uuidPattern.FindString(rest)
	if m == "" {
		return Ref{}, ErrMalformed
	}
	ref := Ref{ID: types.ID(strings.ToLower(m)), Raw: raw}
	rest = rest[len(m):]

	// 3. 余下部分决定形式
	switch {
	case rest == "":
		// 裸 uuid，按规范形式处理
	case strings.HasPrefix(rest, "."):
		ref.Ext = strings.ToLower(rest[1:])
	case strings.HasPrefix(rest, "/"):
		ref.LegacyPath = strings.TrimPrefix(rest, "/")
	default:
		return Ref{}, ErrMalformed
	}

	return ref, nil
}

// FindRefs 扫描内容，返回出现顺序的去重引用列表
// 解析失败的匹配直接跳过 (它们会留在内容里，渲染层按死链处理)
func FindRefs(content string) []Ref {
	seen := make(map[types.ID]bool)
	var out []Ref

	for _, m := range refPattern.FindAllString(content, -1) {
		ref, err := Parse(m)
		if err != nil {
			continue
		}
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		out = append(out, ref)
	}
	return out
}

// ReplaceAll 把内容里每个 asset:// 引用替换为 fn 的返回值
// fn 返回 ("", false) 表示保持原文不动。
// 注意：这是文本模式替换 (性能路径)，嵌套引号的正确性由导出路径的
// 解析器兜底，见 pkg/resolver。
func ReplaceAll(content string, fn func(Ref) (string, bool)) string {
	return refPattern.ReplaceAllStringFunc(content, func(m string) string {
		ref, err := Parse(m)
		if err != nil {
			return m
		}
		if repl, ok := fn(ref); ok {
			return repl
		}
		return m
	})
}
