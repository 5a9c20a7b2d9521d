package core

import (
	"path"
	"strings"
)

// mimeByExt 是文件扩展名到 MIME 类型的映射表
// 覆盖协作编辑场景常见的图片/音频/视频/文档/字体类型
var mimeByExt = map[string]string{
	// 图片
	"jpg": "image/jpeg", "jpeg": "image/jpeg",
	"png": "image/png", "gif": "image/gif",
	"webp": "image/webp", "svg": "image/svg+xml",
	"ico": "image/x-icon", "bmp": "image/bmp", "avif": "image/avif",
	// 音频
	"mp3": "audio/mpeg", "wav": "audio/wav",
	"ogg": "audio/ogg", "m4a": "audio/mp4", "flac": "audio/flac",
	// 视频
	"mp4": "video/mp4", "webm": "video/webm",
	"mov": "video/quicktime", "avi": "video/x-msvideo", "mkv": "video/x-matroska",
	// 文档
	"pdf": "application/pdf", "txt": "text/plain",
	"md": "text/markdown", "json": "application/json", "csv": "text/csv",
	// Web 内容 (HTML 资产支持递归解析)
	"html": "text/html", "htm": "text/html",
	"css": "text/css", "js": "text/javascript",
	// 字体
	"woff": "font/woff", "woff2": "font/woff2",
	"ttf": "font/ttf", "otf": "font/otf",
	// 压缩包
	"zip": "application/zip",
}

// MIMEFromFilename 根据文件名分类 MIME 类型
// 未知扩展名统一归为 application/octet-stream
func MIMEFromFilename(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// ExtFromFilename 提取小写扩展名 (不含点)，没有扩展名时返回 ""
func ExtFromFilename(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// IsHTMLMIME 判断是否是 HTML 资产 (递归解析的对象)
func IsHTMLMIME(mime string) bool {
	return mime == "text/html"
}

// IsCSSMIME 判断是否是样式表资产
func IsCSSMIME(mime string) bool {
	return mime == "text/css"
}
