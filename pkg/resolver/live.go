// pkg/resolver/live.go
package resolver

import (
	"context"
	"regexp"
	"strings"

	"assetvault/pkg/assetref"
	"assetvault/pkg/retrieval"
	"assetvault/pkg/types"
)

var imgTagPattern = regexp.MustCompile(`(?i)<img\b[^>]*>`)

// ResolveHTML 实时解析：同步、只看句柄缓存，永不阻塞
// 未命中的 id 换成加载占位图并以 CRITICAL 入队取回。
// 返回重写后的内容和缺失 id (按首次出现顺序)。
func (r *Resolver) ResolveHTML(content, pageContext string) (string, []types.ID) {
	return r.resolveLive(context.Background(), content, pageContext, false)
}

// ResolveHTMLAsync 异步变体：允许从 BlobStore 捞字节
// 仍然不碰网络 —— 彻底未命中只入队，立即返回占位图。
func (r *Resolver) ResolveHTMLAsync(ctx context.Context, content, pageContext string) (string, []types.ID) {
	return r.resolveLive(ctx, content, pageContext, true)
}

func (r *Resolver) resolveLive(ctx context.Context, content, pageContext string, readStore bool) (string, []types.ID) {
	seen := make(map[types.ID]bool)
	var missing []types.ID
	markMissing := func(id types.ID) {
		if !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}

	// 1. 先处理 img 标签：除了换 src，还要打上 data-asset-id
	//    追踪属性，取回完成后渲染方能精确打补丁而不必整页重渲
	out := imgTagPattern.ReplaceAllStringFunc(content, func(tag string) string {
		refs := assetref.FindRefs(tag)
		if len(refs) == 0 {
			return tag
		}
		ref := refs[0]
		replacement := tag
		if h, ok := r.handleFor(ctx, ref.ID, readStore); ok {
			replacement = strings.Replace(tag, ref.Raw, h.String(), 1)
		} else if r.permanentlyFailed(ref.ID) {
			replacement = strings.Replace(tag, ref.Raw, NotFoundPlaceholder(), 1)
		} else {
			markMissing(ref.ID)
			replacement = strings.Replace(tag, ref.Raw, LoadingPlaceholder(), 1)
		}
		return withTrackingAttr(replacement, ref.ID)
	})

	// 2. 其余引用 (CSS 内联 url、href、source 等) 做通用替换
	out = assetref.ReplaceAll(out, func(ref assetref.Ref) (string, bool) {
		if h, ok := r.handleFor(ctx, ref.ID, readStore); ok {
			return h.String(), true
		}
		if r.permanentlyFailed(ref.ID) {
			return NotFoundPlaceholder(), true
		}
		markMissing(ref.ID)
		return LoadingPlaceholder(), true
	})

	// 3. 缺失的 id 交给检索层 (当前页面要渲染 = CRITICAL)
	if r.coord != nil {
		for _, id := range missing {
			r.coord.Fetch(id, retrieval.PriorityCritical, "live resolve: "+pageContext)
		}
	}
	return out, missing
}

// withTrackingAttr 在 img 标签上补 data-asset-id="<id>"
func withTrackingAttr(tag string, id types.ID) string {
	if strings.Contains(tag, "data-asset-id=") {
		return tag
	}
	attr := ` data-asset-id="` + id.String() + `"`
	if strings.HasSuffix(tag, "/>") {
		return tag[:len(tag)-2] + attr + "/>"
	}
	if strings.HasSuffix(tag, ">") {
		return tag[:len(tag)-1] + attr + ">"
	}
	return tag
}
