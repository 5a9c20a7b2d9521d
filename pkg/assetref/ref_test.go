package assetref

import (
	"testing"

	"assetvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "2cf24dba-5fb0-a30e-26e8-3b2ac5b9e29e"

func TestParse_Canonical(t *testing.T) {
	ref, err := Parse("asset://" + testID + ".jpg")
	require.NoError(t, err)

	assert.Equal(t, types.ID(testID), ref.ID)
	assert.Equal(t, "jpg", ref.Ext)
	assert.False(t, ref.IsLegacy())
}

func TestParse_Legacy(t *testing.T) {
	ref, err := Parse("asset://" + testID + "/images/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, types.ID(testID), ref.ID)
	assert.True(t, ref.IsLegacy())
	assert.Equal(t, "images/photo.jpg", ref.LegacyPath)
	// 身份只看 uuid，路径不参与
	assert.Equal(t, "asset://"+testID, ref.String())
}

func TestParse_DoubledPrefix(t *testing.T) {
	// 损坏数据：叠加的 scheme 前缀必须被清洗掉
	ref, err := Parse("asset://asset://asset://" + testID + ".png")
	require.NoError(t, err)
	assert.Equal(t, types.ID(testID), ref.ID)
	assert.Equal(t, "png", ref.Ext)
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"http://example.com/a.jpg",
		"asset://",
		"asset://not-a-uuid.jpg",
		"asset://" + testID + "garbage", // uuid 后面跟了非法字符
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed, "input: %q", raw)
	}
}

func TestCanonical_Builder(t *testing.T) {
	assert.Equal(t, "asset://"+testID+".jpg", Canonical(testID, "photo.JPG"))
	assert.Equal(t, "asset://"+testID, Canonical(testID, "noext"))
}

func TestFindRefs(t *testing.T) {
	otherID := "aaaabbbb-cccc-dddd-eeee-ffff00001111"
	html := `<img src="asset://` + testID + `.jpg">
	<a href="asset://` + otherID + `/page.html">link</a>
	<img src="asset://` + testID + `.jpg">` // 重复出现

	refs := FindRefs(html)
	require.Len(t, refs, 2, "重复引用应该被去重")
	assert.Equal(t, types.ID(testID), refs[0].ID)
	assert.Equal(t, types.ID(otherID), refs[1].ID)
	assert.True(t, refs[1].IsLegacy())
}

func TestReplaceAll(t *testing.T) {
	html := `<img src="asset://` + testID + `.jpg"> plain http://x.test/y.jpg`

	out := ReplaceAll(html, func(r Ref) (string, bool) {
		return "mem://handle-1", true
	})

	assert.Contains(t, out, `<img src="mem://handle-1">`)
	assert.Contains(t, out, "http://x.test/y.jpg", "外部 URL 不能被碰")
}

func TestResolveRelative(t *testing.T) {
	cases := []struct {
		base, target, want string
	}{
		{"site/css", "icon.png", "site/css/icon.png"},
		{"site/css", "./icon.png", "site/css/icon.png"},
		{"site/css", "../img/icon.png", "site/img/icon.png"},
		{"site/css", "../../icon.png", "icon.png"},
		{"site/css", "../../../icon.png", "icon.png"}, // 越出根目录，多余的 .. 丢弃
		{"", "img/icon.png", "img/icon.png"},
		{"site", "/abs/icon.png", "abs/icon.png"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ResolveRelative(c.base, c.target), "base=%q target=%q", c.base, c.target)
	}

	// 绝对 URL 原样返回
	assert.Equal(t, "https://x.test/a.png", ResolveRelative("site", "https://x.test/a.png"))
	assert.Equal(t, "data:image/png;base64,AAAA", ResolveRelative("site", "data:image/png;base64,AAAA"))
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, IsAbsoluteURL("http://x.test"))
	assert.True(t, IsAbsoluteURL("HTTPS://x.test"))
	assert.True(t, IsAbsoluteURL("data:image/png;base64,x"))
	assert.True(t, IsAbsoluteURL("blob:xyz"))
	assert.True(t, IsAbsoluteURL("mem://handle"))
	assert.True(t, IsAbsoluteURL("asset://"+testID))
	assert.True(t, IsAbsoluteURL("//cdn.x.test/a.js"))
	assert.False(t, IsAbsoluteURL("./a.png"))
	assert.False(t, IsAbsoluteURL("../a.png"))
	assert.False(t, IsAbsoluteURL("img/a.png"))
}

func TestSplitFolderFile(t *testing.T) {
	f, n := SplitFolderFile("a/b/name.png")
	assert.Equal(t, "a/b", f)
	assert.Equal(t, "name.png", n)

	f, n = SplitFolderFile("name.png")
	assert.Equal(t, "", f)
	assert.Equal(t, "name.png", n)
}
