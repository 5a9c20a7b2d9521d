// pkg/resolver/export.go
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"assetvault/pkg/assetref"
	"assetvault/pkg/core"
	"assetvault/pkg/replica"
	"assetvault/pkg/types"
)

// exportState 跨递归共享：visited 集防环，pages 收集预渲染页面
type exportState struct {
	pageIndex map[types.ID]int
	pages     []string
}

// ResolveHTMLAsDataURLs 导出模式：把内容解析成完全自包含的 HTML
//
// 输出必须在脱离本应用内存/存储的环境下可渲染，所以：
//   - 所有内部引用内联成 data URL；
//   - 外链样式表取回字节、按它自己的目录解析 url() 后内联成 <style>；
//   - 锚点指向的 HTML 资产递归预渲染 (visited 集防环)，通过注入的
//     同文档换页脚本按序号挂接 —— 大段 HTML 塞进 href 在一些渲染器
//     里会坏，所以 href 只留 "#"。
func (r *Resolver) ResolveHTMLAsDataURLs(ctx context.Context, content, baseFolder string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	st := &exportState{pageIndex: make(map[types.ID]int)}
	if err := r.exportWalk(ctx, doc, baseFolder, st); err != nil {
		return "", err
	}
	if len(st.pages) > 0 {
		injectNavScript(doc, st.pages)
	}

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return sb.String(), nil
}

func (r *Resolver) exportWalk(ctx context.Context, n *html.Node, baseFolder string, st *exportState) error {
	if n.Type == html.ElementNode {
		// 内联 style="" 属性里的 url()
		for i := range n.Attr {
			if n.Attr[i].Key == "style" {
				n.Attr[i].Val = r.resolveCSS(ctx, n.Attr[i].Val, baseFolder)
			}
		}

		switch n.DataAtom {
		case atom.Img, atom.Source, atom.Video, atom.Audio, atom.Embed, atom.Input:
			r.inlineSrc(ctx, n, baseFolder)

		case atom.Link:
			if strings.EqualFold(getAttr(n, "rel"), "stylesheet") {
				r.inlineStylesheet(ctx, n, baseFolder)
				return nil // 已变成 <style>，没有子节点要走
			}

		case atom.Style:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = r.resolveCSS(ctx, c.Data, baseFolder)
				}
			}

		case atom.A:
			if err := r.resolveAnchor(ctx, n, baseFolder, st); err != nil {
				return err
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := r.exportWalk(ctx, c, baseFolder, st); err != nil {
			return err
		}
	}
	return nil
}

// inlineSrc 把 src 指向的内部资产换成 data URL
func (r *Resolver) inlineSrc(ctx context.Context, n *html.Node, baseFolder string) {
	target := getAttr(n, "src")
	if target == "" {
		return
	}
	id, _, ok := r.resolveTarget(target, baseFolder)
	if !ok {
		return // 外部/终态 URL 保持原样
	}
	data, mime, ok := r.bytesFor(ctx, id)
	if !ok {
		setAttr(n, "src", NotFoundPlaceholder())
		return
	}
	setAttr(n, "src", dataURL(mime, data))
}

// inlineStylesheet 把 <link rel=stylesheet> 换成内联 <style>
// url() 相对的是样式表资产自己的目录，不是父 HTML 的目录。
func (r *Resolver) inlineStylesheet(ctx context.Context, n *html.Node, baseFolder string) {
	id, rec, ok := r.resolveTarget(getAttr(n, "href"), baseFolder)
	if !ok {
		return
	}
	data, _, ok := r.bytesFor(ctx, id)
	if !ok {
		return
	}
	css := r.resolveCSS(ctx, string(data), rec.FolderPath)

	n.DataAtom = atom.Style
	n.Data = "style"
	n.Attr = nil
	n.AppendChild(&html.Node{Type: html.TextNode, Data: css})
}

// resolveAnchor 处理 <a href=...>
// 指向 HTML 资产 → 递归预渲染 + data-nav-index；
// 指向其他资产 → 内联成 data URL (下载语义保留)。
func (r *Resolver) resolveAnchor(ctx context.Context, n *html.Node, baseFolder string, st *exportState) error {
	id, rec, ok := r.resolveTarget(getAttr(n, "href"), baseFolder)
	if !ok {
		return nil
	}

	mime := rec.MIME
	if mime == "" {
		mime = r.mimeFor(id)
	}
	if !core.IsHTMLMIME(mime) {
		if data, m, ok := r.bytesFor(ctx, id); ok {
			setAttr(n, "href", dataURL(m, data))
		}
		return nil
	}

	idx, err := r.prerenderPage(ctx, id, rec, st)
	if err != nil {
		r.log.Warn("linked page could not be pre-rendered, leaving anchor", "id", id, "error", err)
		return nil
	}
	setAttr(n, "href", "#")
	setAttr(n, "data-nav-index", strconv.Itoa(idx))
	return nil
}

// prerenderPage 递归渲染被链接的 HTML 资产，返回它在页面表里的序号
// 先占号再递归：环路链接 (A↔B) 在第二次遇到时直接复用序号。
func (r *Resolver) prerenderPage(ctx context.Context, id types.ID, rec replica.Record, st *exportState) (int, error) {
	if idx, ok := st.pageIndex[id]; ok {
		return idx, nil
	}
	data, _, ok := r.bytesFor(ctx, id)
	if !ok {
		return -1, fmt.Errorf("page bytes not available locally: %s", id)
	}

	idx := len(st.pages)
	st.pages = append(st.pages, "")
	st.pageIndex[id] = idx

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return -1, fmt.Errorf("parse linked page %s: %w", id, err)
	}
	if err := r.exportWalk(ctx, doc, rec.FolderPath, st); err != nil {
		return -1, err
	}
	st.pages[idx] = renderBodyInner(doc)
	return idx, nil
}

// resolveTarget 把一个引用 (asset://、相对路径) 还原成资产 id
// 终态的外部 URL 返回 false，调用方保持原样。
func (r *Resolver) resolveTarget(target, baseFolder string) (types.ID, replica.Record, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", replica.Record{}, false
	}
	if strings.HasPrefix(strings.ToLower(target), assetref.Scheme) {
		ref, err := assetref.Parse(target)
		if err != nil {
			return "", replica.Record{}, false
		}
		rec, _ := r.meta.Get(ref.ID)
		return ref.ID, rec, true
	}
	if assetref.IsAbsoluteURL(target) {
		return "", replica.Record{}, false
	}
	folder, file := assetref.SplitFolderFile(assetref.ResolveRelative(baseFolder, target))
	return r.lookupByPath(folder, file)
}

// ---- DOM 工具 ----

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// renderBodyInner 渲染 body 的内容 (换页脚本只换 body 内部)
func renderBodyInner(doc *html.Node) string {
	body := findBody(doc)
	if body == nil {
		return ""
	}
	var sb strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// injectNavScript 在 body 末尾挂同文档换页脚本
// 监听挂在 document 上 (事件代理)，换 body 后依然生效；
// 页面表用 JSON 内嵌，encoding/json 默认转义 <、>，script 安全。
func injectNavScript(doc *html.Node, pages []string) {
	body := findBody(doc)
	if body == nil {
		return
	}
	payload, err := json.Marshal(pages)
	if err != nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(`(function(){var pages=`)
	sb.Write(payload)
	sb.WriteString(`;document.addEventListener("click",function(e){`)
	sb.WriteString(`var t=e.target;while(t&&t.getAttribute&&!t.getAttribute("data-nav-index")){t=t.parentNode;}`)
	sb.WriteString(`if(!t||!t.getAttribute){return;}`)
	sb.WriteString(`var i=parseInt(t.getAttribute("data-nav-index"),10);`)
	sb.WriteString(`if(isNaN(i)||pages[i]===undefined){return;}`)
	sb.WriteString(`e.preventDefault();document.body.innerHTML=pages[i];`)
	sb.WriteString(`});})();`)

	script := &html.Node{Type: html.ElementNode, DataAtom: atom.Script, Data: "script"}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: sb.String()})
	body.AppendChild(script)
}
