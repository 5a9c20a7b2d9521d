// pkg/retrieval/coordinator_test.go
package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/blobstore/memstore"
	"assetvault/pkg/origin"
	"assetvault/pkg/replica"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = types.ID("2cf24dba-5fb0-a30e-26e8-3b2ac5b9e29e")
	idB = types.ID("aaaabbbb-cccc-dddd-eeee-ffff00001111")
)

// ---- 测试替身 ----

// fakeOrigin 记录调用顺序，可选地在 gate 上阻塞
type fakeOrigin struct {
	mu    sync.Mutex
	blobs map[types.ID][]byte
	errs  map[types.ID]error
	order []types.ID
	calls int
	gate  chan struct{}
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{blobs: make(map[types.ID][]byte), errs: make(map[types.ID]error)}
}

func (f *fakeOrigin) DownloadByID(_ context.Context, id types.ID) (*origin.Download, error) {
	f.mu.Lock()
	f.order = append(f.order, id)
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if b, ok := f.blobs[id]; ok {
		return &origin.Download{Bytes: b, MIME: "image/png", Size: int64(len(b))}, nil
	}
	return nil, origin.ErrNotFound
}

func (f *fakeOrigin) UploadPending(context.Context, []origin.PendingAsset) ([]types.ID, []types.ID, error) {
	return nil, nil, nil
}

func (f *fakeOrigin) BulkDelete(context.Context, []types.ID) error { return nil }

func (f *fakeOrigin) ListInventory(context.Context) ([]origin.InventoryEntry, error) {
	return nil, nil
}

func (f *fakeOrigin) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOrigin) callOrder() []types.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ID(nil), f.order...)
}

type fakePeer struct {
	mu    sync.Mutex
	blobs map[types.ID][]byte
	hints []types.ID
}

func (p *fakePeer) RequestAsset(_ context.Context, id types.ID, _ time.Duration) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[id]
	return b, ok
}

func (p *fakePeer) AnnounceAvailability(context.Context, []types.ID) {}

func (p *fakePeer) SendPriorityHint(_ context.Context, id types.ID, _, _, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hints = append(p.hints, id)
}

func (p *fakePeer) Connected() bool { return true }

type fixture struct {
	store *memstore.Store
	meta  *replica.Memory
	urls  *urlcache.Cache
	org   *fakeOrigin
	coord *Coordinator
}

func setup(t *testing.T, cfg Config, peers *fakePeer) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		meta:  replica.NewMemory(),
		urls:  urlcache.New(),
		org:   newFakeOrigin(),
	}
	if peers != nil {
		f.coord = New(cfg, f.store, f.meta, f.urls, peers, f.org, nil)
	} else {
		f.coord = New(cfg, f.store, f.meta, f.urls, nil, f.org, nil)
	}
	t.Cleanup(func() { _ = f.coord.Close() })
	return f
}

// ---- 用例 ----

func TestFetch_SuccessPopulatesStoreAndCache(t *testing.T) {
	f := setup(t, Config{Project: "p1"}, nil)
	f.meta.Set(idA, replica.Record{Filename: "photo.png", MIME: "image/png"})
	f.org.blobs[idA] = []byte("png bytes")

	var mu sync.Mutex
	var notified []types.ID
	f.coord.OnResolved(func(id types.ID) {
		mu.Lock()
		notified = append(notified, id)
		mu.Unlock()
	})

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "resolve miss")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	// Blob 落地
	got, err := f.store.Get(context.Background(), idA)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), got)

	// 句柄缓存就绪
	h, ok := f.urls.HandleFor(idA)
	require.True(t, ok)
	data, mime, ok := f.urls.Bytes(h)
	require.True(t, ok)
	assert.Equal(t, []byte("png bytes"), data)
	assert.Equal(t, "image/png", mime)

	// 渲染方回调收到了 id，失败记账被清空
	mu.Lock()
	assert.Equal(t, []types.ID{idA}, notified)
	mu.Unlock()
	_, hasFailure := f.coord.FailureFor(idA)
	assert.False(t, hasFailure)
}

func TestFetch_PriorityOrdering(t *testing.T) {
	// 并发额度 1：先入队 NORMAL 再入队 CRITICAL，
	// CRITICAL 仍然必须先被服务。
	f := setup(t, Config{Concurrency: 1}, nil)
	f.meta.Set(idA, replica.Record{Filename: "a.png"})
	f.meta.Set(idB, replica.Record{Filename: "b.png"})
	f.org.blobs[idA] = []byte("a")
	f.org.blobs[idB] = []byte("b")

	f.coord.Fetch(idA, PriorityNormal, "backfill")
	f.coord.Fetch(idB, PriorityCritical, "current page")
	f.coord.Start(context.Background())

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved && f.coord.State(idB) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []types.ID{idB, idA}, f.org.callOrder())
}

func TestFetch_NotFoundIsPermanent(t *testing.T) {
	f := setup(t, Config{Cooldown: 20 * time.Millisecond}, nil)
	f.meta.Set(idA, replica.Record{Filename: "gone.png"})
	// fakeOrigin 对未知 id 返回 origin.ErrNotFound

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "resolve miss")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StatePermanentlyFailed
	}, 3*time.Second, 10*time.Millisecond)

	fail, ok := f.coord.FailureFor(idA)
	require.True(t, ok)
	assert.True(t, fail.Permanent)
	assert.Equal(t, 1, fail.Count)

	// 移出缺失集，冷却过后也不再重试
	assert.NotContains(t, f.coord.Missing(), idA)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.org.callCount())

	// 永久失败后的 Fetch 是 no-op
	f.coord.Fetch(idA, PriorityCritical, "retry anyway")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.org.callCount())
}

func TestFetch_TransientRetriesThenAbandons(t *testing.T) {
	f := setup(t, Config{MaxAttempts: 3, Cooldown: 15 * time.Millisecond}, nil)
	f.meta.Set(idA, replica.Record{Filename: "flaky.png"})
	f.org.errs[idA] = errors.New("connection reset")

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "resolve miss")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StatePermanentlyFailed
	}, 3*time.Second, 10*time.Millisecond)

	fail, ok := f.coord.FailureFor(idA)
	require.True(t, ok)
	assert.Equal(t, 3, fail.Count)
	assert.True(t, fail.Permanent)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, f.org.callCount())
}

func TestFetch_SingleFlightPerID(t *testing.T) {
	f := setup(t, Config{}, nil)
	f.meta.Set(idA, replica.Record{Filename: "big.png"})
	f.org.blobs[idA] = []byte("big")
	f.org.gate = make(chan struct{})

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "first caller")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StatePending
	}, 3*time.Second, 5*time.Millisecond)

	// 在途期间的重复请求必须共享同一次取回
	f.coord.Fetch(idA, PriorityCritical, "second caller")
	f.coord.Fetch(idA, PriorityNormal, "third caller")

	close(f.org.gate)
	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.org.callCount())
}

func TestFetch_DeletionRaceDropsBlob(t *testing.T) {
	// 元数据从未存在 (等价于在途期间被删)：
	// 取回成功也必须丢弃字节，不能让资产复活。
	f := setup(t, Config{}, nil)
	f.org.blobs[idA] = []byte("zombie")

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "resolve miss")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateUnknown
	}, 3*time.Second, 10*time.Millisecond)

	_, err := f.store.Get(context.Background(), idA)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	_, ok := f.urls.HandleFor(idA)
	assert.False(t, ok)
}

func TestFetch_LocalStoreServedBeforeNetwork(t *testing.T) {
	// 重启后的常态：句柄缓存空了，但字节还在本地仓库里。
	// 取回必须从本地补齐，不碰源站，更不能用网络副本覆盖本地字节。
	f := setup(t, Config{}, nil)
	ctx := context.Background()
	f.meta.Set(idA, replica.Record{Filename: "photo.png", MIME: "image/png"})
	require.NoError(t, f.store.Put(ctx, idA, "p1", []byte("already local")))
	f.org.blobs[idA] = []byte("from network")

	f.coord.Start(ctx)
	f.coord.Fetch(idA, PriorityCritical, "live resolve")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	got, err := f.store.Get(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, []byte("already local"), got)
	assert.Equal(t, 0, f.org.callCount(), "本地已有字节时不应该碰源站")

	h, ok := f.urls.HandleFor(idA)
	require.True(t, ok)
	data, mime, ok := f.urls.Bytes(h)
	require.True(t, ok)
	assert.Equal(t, []byte("already local"), data)
	assert.Equal(t, "image/png", mime)
}

func TestFetch_LocalStoreWorksWithoutOrigin(t *testing.T) {
	// 纯离线 (origin.type=none)：本地有字节的资产照样能解析，
	// 不能因为没有源站就被打成永久失败。
	store := memstore.New()
	meta := replica.NewMemory()
	urls := urlcache.New()
	coord := New(Config{MaxAttempts: 1}, store, meta, urls, nil, nil, nil)
	t.Cleanup(func() { _ = coord.Close() })

	ctx := context.Background()
	meta.Set(idA, replica.Record{Filename: "photo.png", MIME: "image/png"})
	require.NoError(t, store.Put(ctx, idA, "p1", []byte("offline bytes")))

	coord.Start(ctx)
	coord.Fetch(idA, PriorityCritical, "live resolve")

	require.Eventually(t, func() bool {
		return coord.State(idA) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	_, hasFailure := coord.FailureFor(idA)
	assert.False(t, hasFailure)
}

func TestFetch_PeerServedBeforeOrigin(t *testing.T) {
	peers := &fakePeer{blobs: map[types.ID][]byte{idA: []byte("from peer")}}
	f := setup(t, Config{}, peers)
	f.meta.Set(idA, replica.Record{Filename: "shared.png", MIME: "image/png"})
	f.org.blobs[idA] = []byte("from origin")

	f.coord.Start(context.Background())
	f.coord.Fetch(idA, PriorityNormal, "resolve miss")

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	got, err := f.store.Get(context.Background(), idA)
	require.NoError(t, err)
	assert.Equal(t, []byte("from peer"), got)
	assert.Equal(t, 0, f.org.callCount(), "对等方命中时不应该碰源站")
}

func TestBoostForNavigation(t *testing.T) {
	peers := &fakePeer{blobs: map[types.ID][]byte{}}
	f := setup(t, Config{}, peers)
	ctx := context.Background()

	// idA 本地已有，idB 缺失
	require.NoError(t, f.store.Put(ctx, idA, "p1", []byte("local")))
	content := `<img src="asset://` + string(idA) + `.png"> <img src="asset://` + string(idB) + `.png">`

	// 不 Start：入队项保持排队状态，方便断言
	f.coord.BoostForNavigation(ctx, content, "page-2")

	assert.Equal(t, StateUnknown, f.coord.State(idA), "本地已有的资产不应入队")
	assert.Equal(t, StateMissing, f.coord.State(idB))

	// 对等方收到了预取提示
	peers.mu.Lock()
	defer peers.mu.Unlock()
	assert.Equal(t, []types.ID{idB}, peers.hints)
}

func TestEnqueue_BoostRaisesQueuedPriority(t *testing.T) {
	f := setup(t, Config{Concurrency: 1}, nil)
	f.meta.Set(idA, replica.Record{Filename: "a.png"})
	f.meta.Set(idB, replica.Record{Filename: "b.png"})
	f.org.blobs[idA] = []byte("a")
	f.org.blobs[idB] = []byte("b")

	// idA 先以 NORMAL 入队，再被提升到 CRITICAL，应该排到 idB (HIGH) 前面
	f.coord.Fetch(idA, PriorityNormal, "backfill")
	f.coord.Fetch(idB, PriorityHigh, "prefetch")
	f.coord.Fetch(idA, PriorityCritical, "current page")
	f.coord.Start(context.Background())

	require.Eventually(t, func() bool {
		return f.coord.State(idA) == StateResolved && f.coord.State(idB) == StateResolved
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []types.ID{idA, idB}, f.org.callOrder())
}
