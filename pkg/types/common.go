// pkg/types/common.go
package types

import "strings"

// ID 是资产的全局唯一标识符 (UUID 格式的字符串)
// 正常插入时由内容哈希确定性派生，同样的字节永远得到同一个 ID。
// 这是一个“值对象”，应当是不可变的。
type ID string

func (id ID) String() string { return string(id) }
func (id ID) IsZero() bool   { return id == "" }

// IsValid 做最基础的格式检查 (8-4-4-4-12)
// 我们不强制 UUID 的 version/variant 位，因为它只是展示格式，不是加密学 UUID
func (id ID) IsValid() bool {
	if len(id) != 36 {
		return false
	}
	return id[8] == '-' && id[13] == '-' && id[18] == '-' && id[23] == '-'
}

// Hash 代表内容哈希 (SHA-256 Hex String，64 个字符)
type Hash string

func (h Hash) String() string { return string(h) }
func (h Hash) IsZero() bool   { return h == "" }
func (h Hash) IsValid() bool  { return len(h) == 64 } // 简单的长度检查

// ProjectID 标识一个协作项目
// 同一份内容可以被多个项目引用，但 Blob 的物理归属只有一个 ProjectID
type ProjectID string

func (p ProjectID) String() string { return string(p) }
func (p ProjectID) IsZero() bool   { return p == "" }

// CleanFolderPath 统一清洗文件夹路径
// 约定: "" 代表根目录；路径分隔符是 "/"；不允许首尾斜杠
func CleanFolderPath(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "." {
		return ""
	}
	return p
}

// FolderContains 判断 child 是否等于 parent 或嵌套在 parent 之下
// ("a/b" 是 "a" 的后代；"ab" 不是)
func FolderContains(parent, child string) bool {
	if parent == "" {
		return true // 根目录包含一切
	}
	return child == parent || strings.HasPrefix(child, parent+"/")
}
