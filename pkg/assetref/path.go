package assetref

import "strings"

// IsAbsoluteURL 判断一个 URL 是否已经是终态，不需要再做任何解析
// 覆盖：http(s)、data、blob、mem (进程内句柄)、asset、协议相对 (//)、锚点
func IsAbsoluteURL(u string) bool {
	lower := strings.ToLower(strings.TrimSpace(u))
	for _, p := range []string{"http:", "https:", "data:", "blob:", "mem:", "asset:", "mailto:", "javascript:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.HasPrefix(lower, "//") || strings.HasPrefix(lower, "#")
}

// ResolveRelative 把相对路径按引用方资产的 folderPath 归一化
// 处理 "./"、"../" 和裸段。越出根目录的 ".." 直接丢弃 (不报错，
// 行为与浏览器一致)。返回归一化后的 "folder/.../name" 形式。
func ResolveRelative(baseFolder, target string) string {
	if IsAbsoluteURL(target) {
		return target
	}

	var stack []string
	if base := strings.Trim(baseFolder, "/"); base != "" {
		stack = strings.Split(base, "/")
	}

	// 以 "/" 开头的目标视为相对于根
	if strings.HasPrefix(target, "/") {
		stack = nil
	}

	for _, seg := range strings.Split(strings.Trim(target, "/"), "/") {
		switch seg {
		case "", ".":
			// 跳过
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return strings.Join(stack, "/")
}

// SplitFolderFile 把 "a/b/name.png" 拆成 ("a/b", "name.png")
func SplitFolderFile(p string) (folder, file string) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}
