// pkg/resolver/placeholder.go
package resolver

import "encoding/base64"

// 占位图是内联 SVG 的 data URL：不依赖任何网络或本地存储，
// 在取回完成前/永久失败后直接塞进 src 就能渲染。

const loadingSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="160" height="120" viewBox="0 0 160 120"><rect width="160" height="120" fill="#f0f1f3"/><circle cx="80" cy="52" r="14" fill="none" stroke="#b0b4ba" stroke-width="4" stroke-dasharray="66" stroke-dashoffset="22"><animateTransform attributeName="transform" type="rotate" from="0 80 52" to="360 80 52" dur="1s" repeatCount="indefinite"/></circle><text x="80" y="96" text-anchor="middle" font-family="sans-serif" font-size="11" fill="#8a8f96">loading</text></svg>`

const notFoundSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="160" height="120" viewBox="0 0 160 120"><rect width="160" height="120" fill="#f0f1f3"/><path d="M66 38l28 28M94 38L66 66" stroke="#c56" stroke-width="4" stroke-linecap="round"/><text x="80" y="96" text-anchor="middle" font-family="sans-serif" font-size="11" fill="#8a8f96">not found</text></svg>`

var (
	loadingDataURL  = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(loadingSVG))
	notFoundDataURL = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(notFoundSVG))
)

// LoadingPlaceholder 返回取回进行中的占位图 data URL
func LoadingPlaceholder() string { return loadingDataURL }

// NotFoundPlaceholder 返回永久失败的占位图 data URL
func NotFoundPlaceholder() string { return notFoundDataURL }
