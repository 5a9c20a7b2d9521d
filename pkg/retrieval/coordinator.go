// pkg/retrieval/coordinator.go
package retrieval

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"assetvault/pkg/assetref"
	"assetvault/pkg/blobstore"
	"assetvault/pkg/core"
	"assetvault/pkg/origin"
	"assetvault/pkg/peer"
	"assetvault/pkg/replica"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"

	"golang.org/x/sync/semaphore"
)

// State 是单个资产 id 在协调器里的检索状态
// unknown → missing → pending → {resolved | failed(n) → permanentlyFailed}
type State int

const (
	StateUnknown State = iota
	StateMissing             // 解析未命中，已记入缺失集
	StatePending             // 正在取回 (同 id 单飞)
	StateResolved            // 取回成功，Blob 已落地
	StateFailed              // 瞬时失败，等待冷却后重试
	StatePermanentlyFailed   // 404 或重试耗尽，不再自动重试
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StatePermanentlyFailed:
		return "permanently-failed"
	default:
		return "unknown"
	}
}

// Failure 是单个 id 的失败记账
type Failure struct {
	Count       int
	LastAttempt time.Time
	Permanent   bool // 源站确认不存在，或重试已耗尽
}

// Config 是检索协调器的参数
type Config struct {
	Project        types.ProjectID
	Concurrency    int64         // 同时在途的取回数上限
	MaxAttempts    int           // 瞬时失败的最大尝试次数
	Cooldown       time.Duration // 两次尝试之间的固定冷却
	PeerTimeout    time.Duration // 单个资产问对等方的预算
	AttemptTimeout time.Duration // 单次尝试 (含源站) 的总预算
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Second
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = 3 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
}

// Coordinator 编排缺失资产的取回：先问在线对等方，再回退源站
//
// 架构决策: 调用方从不阻塞在网络上。Fetch 只入队立即返回，
// 取回在后台收敛，完成后通过 OnResolved 回调通知渲染方打补丁。
// 失败走固定冷却 + 上限重试；404 立即永久放弃。
type Coordinator struct {
	cfg   Config
	store blobstore.Store
	meta  replica.Replica
	urls  *urlcache.Cache
	peers peer.Channel  // 可选，nil = 无对等能力
	org   origin.Client // 可选，nil = 纯离线
	log   *slog.Logger

	mu       sync.Mutex
	states   map[types.ID]State
	failures map[types.ID]Failure
	queued   map[types.ID]*request
	queue    requestQueue
	seq      uint64
	closed   bool

	sem        *semaphore.Weighted
	wake       chan struct{}
	stop       chan struct{}
	started    bool
	onResolved func(types.ID)
}

func New(cfg Config, store blobstore.Store, meta replica.Replica, urls *urlcache.Cache, peers peer.Channel, org origin.Client, log *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		meta:     meta,
		urls:     urls,
		peers:    peers,
		org:      org,
		log:      log,
		states:   make(map[types.ID]State),
		failures: make(map[types.ID]Failure),
		queued:   make(map[types.ID]*request),
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// OnResolved 注册取回成功的回调 (渲染方用它把占位图换成真内容)
// 必须在 Start 之前调用。
func (c *Coordinator) OnResolved(fn func(id types.ID)) {
	c.onResolved = fn
}

// Start 启动后台分发循环。可以先入队再 Start，
// 已排队的请求会按优先级顺序被服务。
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.dispatch(ctx)
}

// Close 停止分发并丢弃未执行的队列项
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.stop)
	return nil
}

// MarkMissing 把一次解析未命中记入缺失集 (不入队，等显式 Fetch)
func (c *Coordinator) MarkMissing(id types.ID) {
	if !id.IsValid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[id] == StateUnknown {
		c.states[id] = StateMissing
	}
}

// Fetch 请求取回一个缺失资产
// 同 id 在途时是 no-op (单飞)；已排队时只提升优先级，不重复入队；
// 永久失败的 id 被忽略。
func (c *Coordinator) Fetch(id types.ID, priority Priority, reason string) {
	c.enqueue(id, priority, reason, "")
}

func (c *Coordinator) enqueue(id types.ID, priority Priority, reason, pageContext string) {
	if !id.IsValid() {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch c.states[id] {
	case StatePending, StatePermanentlyFailed:
		c.mu.Unlock()
		return
	}
	if r, ok := c.queued[id]; ok {
		// 已排队：只升不降
		if priority > r.priority {
			r.priority = priority
			heap.Fix(&c.queue, r.index)
		}
		c.mu.Unlock()
		return
	}
	r := &request{id: id, priority: priority, reason: reason, pageContext: pageContext, seq: c.seq}
	c.seq++
	c.states[id] = StateMissing
	heap.Push(&c.queue, r)
	c.queued[id] = r
	c.mu.Unlock()
	c.signal()
}

// BoostForNavigation 在页面切换前扫描内容，把本地还没有的资产
// 以 HIGH 优先级入队。这是预取提示，不是导航的阻塞前置条件。
func (c *Coordinator) BoostForNavigation(ctx context.Context, content, pageContext string) {
	for _, ref := range assetref.FindRefs(content) {
		if _, ok := c.urls.HandleFor(ref.ID); ok {
			continue
		}
		if _, err := c.store.Get(ctx, ref.ID); err == nil {
			continue
		}
		c.enqueue(ref.ID, PriorityHigh, "prefetch", pageContext)
		if c.peers != nil && c.peers.Connected() {
			c.peers.SendPriorityHint(ctx, ref.ID, PriorityHigh.String(), "prefetch", pageContext)
		}
	}
}

// State 返回 id 当前的检索状态
func (c *Coordinator) State(id types.ID) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[id]
}

// FailureFor 返回 id 的失败记账 (没有失败过返回 false)
func (c *Coordinator) FailureFor(id types.ID) (Failure, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.failures[id]
	return f, ok
}

// Missing 返回当前缺失集的快照
func (c *Coordinator) Missing() []types.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []types.ID
	for id, s := range c.states {
		if s == StateMissing {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatch 是唯一的分发循环
// 先占并发额度再弹队头，这样容量受限时弹出顺序就是服务顺序，
// CRITICAL 一定先于低档位被执行。
func (c *Coordinator) dispatch(ctx context.Context) {
	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return
		}
		r, ok := c.next(ctx)
		if !ok {
			c.sem.Release(1)
			return
		}
		go func(r *request) {
			defer c.sem.Release(1)
			c.attempt(ctx, r)
		}(r)
	}
}

func (c *Coordinator) next(ctx context.Context) (*request, bool) {
	for {
		c.mu.Lock()
		if c.queue.Len() > 0 {
			r := heap.Pop(&c.queue).(*request)
			delete(c.queued, r.id)
			c.states[r.id] = StatePending
			c.mu.Unlock()
			return r, true
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-c.stop:
			return nil, false
		case <-c.wake:
		}
	}
}

func (c *Coordinator) attempt(ctx context.Context, r *request) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	// 1. 本地仓库先行：句柄缓存未命中但字节还在盘上
	// (进程重启后的常态)，直接从本地补齐，绝不碰网络
	if data, err := c.store.Get(actx, r.id); err == nil {
		c.log.Debug("asset already in local store", "id", r.id)
		c.complete(actx, r, data, "", false)
		return
	}

	// 2. 快路径：问在线的对等协作者
	if c.peers != nil && c.peers.Connected() {
		if data, ok := c.peers.RequestAsset(actx, r.id, c.cfg.PeerTimeout); ok {
			c.log.Debug("asset served by peer", "id", r.id)
			c.complete(actx, r, data, "", true)
			return
		}
	}

	// 3. 回退源站按 id 下载
	if c.org == nil {
		c.fail(r, errors.New("retrieval: no origin configured"))
		return
	}
	dl, err := c.org.DownloadByID(actx, r.id)
	if err != nil {
		c.fail(r, err)
		return
	}
	c.complete(actx, r, dl.Bytes, dl.MIME, true)
}

// complete 收尾一次成功的取回。persist=false 表示字节本来就
// 来自本地仓库，不需要 (也不应该) 重写 Blob。
func (c *Coordinator) complete(ctx context.Context, r *request, data []byte, mime string, persist bool) {
	// 删除竞态：取回落地前元数据已被删 → 丢弃字节。删除单调获胜，
	// 迟到的取回永远不能让已删资产复活。
	rec, ok := c.meta.Get(r.id)
	if !ok {
		c.mu.Lock()
		delete(c.states, r.id)
		delete(c.failures, r.id)
		c.mu.Unlock()
		c.log.Info("asset deleted mid-flight, dropping fetched bytes", "id", r.id)
		return
	}

	if mime == "" {
		mime = rec.MIME
	}
	if mime == "" {
		mime = core.MIMEFromFilename(rec.Filename)
	}

	if persist {
		if err := c.store.Put(ctx, r.id, c.cfg.Project, data); err != nil {
			c.fail(r, fmt.Errorf("persist fetched blob: %w", err))
			return
		}
	}
	c.urls.Register(r.id, data, mime)

	c.mu.Lock()
	c.states[r.id] = StateResolved
	delete(c.failures, r.id)
	fn := c.onResolved
	c.mu.Unlock()

	c.log.Info("asset retrieved", "id", r.id, "bytes", len(data), "priority", r.priority.String())
	if fn != nil {
		fn(r.id)
	}
	if c.peers != nil {
		c.peers.AnnounceAvailability(ctx, []types.ID{r.id})
	}
}

func (c *Coordinator) fail(r *request, err error) {
	c.mu.Lock()
	f := c.failures[r.id]
	f.Count++
	f.LastAttempt = time.Now()

	// 404 = 源站确认不存在，立即永久放弃，移出缺失集
	if errors.Is(err, origin.ErrNotFound) {
		f.Permanent = true
		c.failures[r.id] = f
		c.states[r.id] = StatePermanentlyFailed
		c.mu.Unlock()
		c.log.Warn("asset not found at origin, giving up", "id", r.id)
		return
	}

	// 瞬时失败：重试到上限后同样放弃
	if f.Count >= c.cfg.MaxAttempts {
		f.Permanent = true
		c.failures[r.id] = f
		c.states[r.id] = StatePermanentlyFailed
		c.mu.Unlock()
		c.log.Warn("asset retrieval abandoned after retries", "id", r.id, "attempts", f.Count, "error", err)
		return
	}
	c.failures[r.id] = f
	c.states[r.id] = StateFailed
	c.mu.Unlock()
	c.log.Warn("asset retrieval failed, cooling down", "id", r.id, "attempt", f.Count, "error", err)

	time.AfterFunc(c.cfg.Cooldown, func() { c.requeue(r) })
}

func (c *Coordinator) requeue(r *request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// 冷却期间状态变了 (被解决/删除/永久放弃) 就不再重试
	if c.states[r.id] != StateFailed {
		return
	}
	if _, dup := c.queued[r.id]; dup {
		return
	}
	r.seq = c.seq
	c.seq++
	c.states[r.id] = StateMissing
	heap.Push(&c.queue, r)
	c.queued[r.id] = r
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
