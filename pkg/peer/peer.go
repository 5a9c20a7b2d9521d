// pkg/peer/peer.go
package peer

import (
	"context"
	"time"

	"assetvault/pkg/types"
)

// Channel 定义对等协作者的请求/响应能力
// 检索层先问在线的协作者要缺失资产，失败/超时再回退源站。
// 注入是可选的 (nil = 没有对等能力)，在构造时检查一次，
// 不做运行时的动态探测。
type Channel interface {
	// RequestAsset 向在线协作者请求一份资产
	// 超时或无人持有返回 ok=false。这是尽力而为的快路径，
	// false 不代表资产不存在。
	RequestAsset(ctx context.Context, id types.ID, timeout time.Duration) (data []byte, ok bool)

	// AnnounceAvailability 广播“我这里有这些资产” (非阻塞尽力而为)
	AnnounceAvailability(ctx context.Context, ids []types.ID)

	// SendPriorityHint 把优先级提示转发给协作者 (预取协同)
	SendPriorityHint(ctx context.Context, id types.ID, priority, reason, pageContext string)

	// Connected 当前是否有可用的对等连接
	Connected() bool
}
