package replica

import (
	"sync"
	"time"

	"assetvault/pkg/types"
)

// entry 是镜像里的一个槽位
// 删除保留墓碑 (deleted=true)，否则远端的旧 Set 会把本地删除“复活”。
// at 是该 key 最后一次写入的时间戳 (unix nano)，LWW 合并用。
type entry struct {
	rec     Record
	at      int64
	deleted bool
}

// Memory 是进程内的 Replica 实现
// 既是离线/测试用的独立实现，也是 Redis 实现的本地读镜像。
type Memory struct {
	mu      sync.RWMutex
	entries map[types.ID]*entry

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[types.ID]*entry),
		subs:    make(map[int]func(Event)),
	}
}

func (m *Memory) Get(id types.ID) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok || e.deleted {
		return Record{}, false
	}
	return e.rec, true // Record 是值类型，天然是副本
}

func (m *Memory) Set(id types.ID, rec Record) {
	m.applyLocal([]mutation{{id: id, rec: rec}})
}

func (m *Memory) Delete(id types.ID) {
	m.applyLocal([]mutation{{id: id, delete: true}})
}

func (m *Memory) ForEach(fn func(id types.ID, rec Record) bool) {
	// 先拷快照再回调，避免 fn 里再进锁造成死锁
	m.mu.RLock()
	snap := make(map[types.ID]Record, len(m.entries))
	for id, e := range m.entries {
		if !e.deleted {
			snap[id] = e.rec
		}
	}
	m.mu.RUnlock()

	for id, rec := range snap {
		if !fn(id, rec) {
			return
		}
	}
}

// memTx 收集一批写操作，Commit 时一次性应用
type memTx struct {
	muts []mutation
}

type mutation struct {
	id     types.ID
	rec    Record
	delete bool
}

func (t *memTx) Set(id types.ID, rec Record) {
	t.muts = append(t.muts, mutation{id: id, rec: rec})
}

func (t *memTx) Delete(id types.ID) {
	t.muts = append(t.muts, mutation{id: id, delete: true})
}

func (m *Memory) Transact(fn func(tx Tx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err // 回调报错 = 整批放弃，什么都没发生
	}
	m.applyLocal(tx.muts)
	return nil
}

// applyLocal 在一次加锁内应用整批变更，然后发一个事件
// 这就是“全有或全无可见性”的实现：观察者要么看到批前，要么看到批后。
// 返回本批使用的时间戳，供 Redis 实现带着同一个时间戳传播。
func (m *Memory) applyLocal(muts []mutation) int64 {
	if len(muts) == 0 {
		return 0
	}
	now := time.Now().UnixNano()

	m.mu.Lock()
	keys := make([]types.ID, 0, len(muts))
	for _, mu := range muts {
		m.entries[mu.id] = &entry{rec: mu.rec, at: now, deleted: mu.delete}
		keys = append(keys, mu.id)
	}
	m.mu.Unlock()

	m.emit(Event{Keys: keys, Remote: false})
	return now
}

// applyRemote 按 key 做 LWW 合并远端变更
// 只有真正赢了的 key 会进事件，老旧的远端写直接丢弃。
func (m *Memory) applyRemote(muts []mutation, at int64) {
	m.mu.Lock()
	var won []types.ID
	for _, mu := range muts {
		if cur, ok := m.entries[mu.id]; ok && cur.at >= at {
			continue // 本地更新，远端的输了
		}
		m.entries[mu.id] = &entry{rec: mu.rec, at: at, deleted: mu.delete}
		won = append(won, mu.id)
	}
	m.mu.Unlock()

	if len(won) > 0 {
		m.emit(Event{Keys: won, Remote: true})
	}
}

func (m *Memory) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Memory) emit(ev Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	// 锁外回调，订阅者可以安全地反查 Replica
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Memory) Close() error { return nil }
