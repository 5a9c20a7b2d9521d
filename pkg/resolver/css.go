// pkg/resolver/css.go
package resolver

import (
	"context"
	"regexp"
	"strings"

	"assetvault/pkg/assetref"
	"assetvault/pkg/types"
)

// CSS 里的引用走正则而不是完整的 CSS 解析器：
// url(...) 的形状足够规整，真正的难点在相对路径的归一化。
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// resolveCSS 把一段 CSS 里的全部内部 url() 引用内联成 data URL
// baseFolder 是这段 CSS 所属资产自己的 folderPath —— 外链样式表的
// 相对引用必须相对它自己的目录解析，而不是父 HTML 的目录。
// 只服务导出路径；实时路径上 CSS 里的 asset:// 引用由通用替换覆盖。
func (r *Resolver) resolveCSS(ctx context.Context, css, baseFolder string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		target := cssURLPattern.FindStringSubmatch(match)[1]

		var id types.ID
		if strings.HasPrefix(strings.ToLower(target), assetref.Scheme) {
			ref, err := assetref.Parse(target)
			if err != nil {
				return match
			}
			id = ref.ID
		} else if assetref.IsAbsoluteURL(target) {
			// http(s)/data/mem 等终态引用保持原样
			return match
		} else {
			folder, file := assetref.SplitFolderFile(assetref.ResolveRelative(baseFolder, target))
			found, _, ok := r.lookupByPath(folder, file)
			if !ok {
				return match
			}
			id = found
		}

		data, mime, ok := r.bytesFor(ctx, id)
		if !ok {
			return `url("` + NotFoundPlaceholder() + `")`
		}
		return `url("` + dataURL(mime, data) + `")`
	})
}
