// pkg/retrieval/queue.go
package retrieval

import "assetvault/pkg/types"

// Priority 是检索请求的优先级档位
// 当前页面渲染需要的资产是 CRITICAL，导航预取是 HIGH，
// 其他补抓是 NORMAL。容量受限时高档位永远先被服务。
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	default:
		return "NORMAL"
	}
}

// request 是队列里的一次待执行检索
type request struct {
	id          types.ID
	priority    Priority
	reason      string
	pageContext string
	seq         uint64 // 同档位内按入队顺序 FIFO
	index       int    // heap 内部位置，提升优先级时用 Fix
}

// requestQueue 实现 container/heap：优先级降序，同档位 seq 升序
type requestQueue []*request

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}
