// pkg/manager/folders_test.go
package manager

import (
	"context"
	"testing"

	"assetvault/pkg/replica"
	"assetvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idCSS   = types.ID("11111111-1111-1111-1111-111111111111")
	idIcons = types.ID("22222222-2222-2222-2222-222222222222")
	idJS    = types.ID("33333333-3333-3333-3333-333333333333")
)

func seedFolders(f *fixture) {
	f.meta.Set(idCSS, replica.Record{Filename: "main.css", FolderPath: "site/css", Uploaded: true})
	f.meta.Set(idIcons, replica.Record{Filename: "x.svg", FolderPath: "site/css/icons", Uploaded: true})
	f.meta.Set(idJS, replica.Record{Filename: "app.js", FolderPath: "site/js", Uploaded: true})
}

func TestRenameFolder_PrefixRewrite(t *testing.T) {
	f := setup(t)
	seedFolders(f)

	require.NoError(t, f.mgr.RenameFolder(context.Background(), "site/css", "site/styles"))

	rec, _ := f.meta.Get(idCSS)
	assert.Equal(t, "site/styles", rec.FolderPath)
	assert.False(t, rec.Uploaded, "改名后的资产需要重推")

	rec, _ = f.meta.Get(idIcons)
	assert.Equal(t, "site/styles/icons", rec.FolderPath)

	// 前缀相似但不在其下的目录不能被误伤
	rec, _ = f.meta.Get(idJS)
	assert.Equal(t, "site/js", rec.FolderPath)
	assert.True(t, rec.Uploaded)
}

func TestRenameFolder_AtomicVisibility(t *testing.T) {
	f := setup(t)
	seedFolders(f)

	// 订阅者看到的必须是一次完整的批量变更，不允许半个文件夹
	var events [][]types.ID
	cancel := f.meta.Subscribe(func(e replica.Event) {
		events = append(events, e.Keys)
	})
	defer cancel()

	require.NoError(t, f.mgr.RenameFolder(context.Background(), "site/css", "site/styles"))

	require.Len(t, events, 1)
	assert.Len(t, events[0], 2)
}

func TestMoveFolder_RejectsOwnDescendant(t *testing.T) {
	f := setup(t)
	f.meta.Set(idCSS, replica.Record{Filename: "x", FolderPath: "a"})
	f.meta.Set(idIcons, replica.Record{Filename: "y", FolderPath: "a/b"})

	err := f.mgr.MoveFolder(context.Background(), "a", "a/b")
	assert.ErrorIs(t, err, ErrFolderCycle)

	err = f.mgr.MoveFolder(context.Background(), "a", "a")
	assert.ErrorIs(t, err, ErrFolderCycle)

	// 没有任何元数据被动过
	rec, _ := f.meta.Get(idCSS)
	assert.Equal(t, "a", rec.FolderPath)
	rec, _ = f.meta.Get(idIcons)
	assert.Equal(t, "a/b", rec.FolderPath)
}

func TestMoveFolder_UpdatesNestedAssets(t *testing.T) {
	f := setup(t)
	f.meta.Set(idCSS, replica.Record{Filename: "x", FolderPath: "a"})
	f.meta.Set(idIcons, replica.Record{Filename: "y", FolderPath: "a/deep/nest"})
	f.meta.Set(idJS, replica.Record{Filename: "z", FolderPath: "c"})

	require.NoError(t, f.mgr.MoveFolder(context.Background(), "a", "c"))

	rec, _ := f.meta.Get(idCSS)
	assert.Equal(t, "c/a", rec.FolderPath)
	rec, _ = f.meta.Get(idIcons)
	assert.Equal(t, "c/a/deep/nest", rec.FolderPath)
	rec, _ = f.meta.Get(idJS)
	assert.Equal(t, "c", rec.FolderPath)
}

func TestMoveFolder_ToRoot(t *testing.T) {
	f := setup(t)
	f.meta.Set(idCSS, replica.Record{Filename: "x", FolderPath: "deep/inner"})

	require.NoError(t, f.mgr.MoveFolder(context.Background(), "deep/inner", ""))

	rec, _ := f.meta.Get(idCSS)
	assert.Equal(t, "inner", rec.FolderPath)
}

func TestDeleteFolderContents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	refKeep, err := f.mgr.Insert(ctx, []byte("keep"), "keep.png", "", InsertOptions{FolderPath: "other"})
	require.NoError(t, err)
	_, err = f.mgr.Insert(ctx, []byte("gone 1"), "a.png", "", InsertOptions{FolderPath: "trash"})
	require.NoError(t, err)
	_, err = f.mgr.Insert(ctx, []byte("gone 2"), "b.png", "", InsertOptions{FolderPath: "trash/sub"})
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteFolderContents(ctx, "trash"))

	s := f.mgr.Stats()
	assert.Equal(t, 1, s.Total)
	_, ok := f.mgr.Resolve(refKeep)
	assert.True(t, ok)
}

func TestDeleteFolderContents_RefusesRoot(t *testing.T) {
	f := setup(t)
	assert.Error(t, f.mgr.DeleteFolderContents(context.Background(), ""))
	assert.Error(t, f.mgr.DeleteFolderContents(context.Background(), "/"))
}
