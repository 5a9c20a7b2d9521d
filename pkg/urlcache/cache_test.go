package urlcache

import (
	"strings"
	"testing"

	"assetvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = types.ID("2cf24dba-5fb0-a30e-26e8-3b2ac5b9e29e")

func TestCache_Bidirectional(t *testing.T) {
	c := New()
	data := []byte("png bytes")

	h := c.Register(testID, data, "image/png")
	assert.True(t, strings.HasPrefix(h.String(), "mem://"))

	// 正向
	got, ok := c.HandleFor(testID)
	require.True(t, ok)
	assert.Equal(t, h, got)

	// 反向
	id, ok := c.IDFor(h)
	require.True(t, ok)
	assert.Equal(t, testID, id)

	// 字节可取回
	b, mime, ok := c.Bytes(h)
	require.True(t, ok)
	assert.Equal(t, data, b)
	assert.Equal(t, "image/png", mime)
}

func TestCache_Register_Idempotent(t *testing.T) {
	c := New()

	h1 := c.Register(testID, []byte("x"), "image/png")
	h2 := c.Register(testID, []byte("x"), "image/png")

	assert.Equal(t, h1, h2, "同一个 id 重复登记必须拿到同一个句柄")
	assert.Equal(t, 1, c.Len())
}

func TestCache_Release(t *testing.T) {
	c := New()
	h := c.Register(testID, []byte("x"), "image/png")

	c.Release(testID)

	_, ok := c.HandleFor(testID)
	assert.False(t, ok)
	_, ok = c.IDFor(h)
	assert.False(t, ok, "反向映射也要一起清掉")

	// 释放不存在的 id：no-op
	c.Release(testID)
}

func TestCache_ReleaseAll(t *testing.T) {
	c := New()
	c.Register(testID, []byte("x"), "image/png")
	c.Register(types.ID("aaaabbbb-cccc-dddd-eeee-ffff00001111"), []byte("y"), "image/png")

	c.ReleaseAll()
	assert.Equal(t, 0, c.Len())
}
