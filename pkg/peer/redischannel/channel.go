package redischannel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/core"
	"assetvault/pkg/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// frame 是对等协议的统一帧 (规范化 CBOR，Kind 区分语义)
// 单结构体 + 判别字段比四套独立消息省事，字段留空不编码。
type frame struct {
	Kind    string   `cbor:"k"` // "req" | "resp" | "announce" | "hint"
	From    string   `cbor:"f"`
	ReqID   string   `cbor:"q,omitempty"`
	AssetID string   `cbor:"a,omitempty"`
	Found   bool     `cbor:"ok,omitempty"`
	Bytes   []byte   `cbor:"b,omitempty"`
	MIME    string   `cbor:"m,omitempty"`
	IDs     []string `cbor:"ids,omitempty"`

	Priority    string `cbor:"p,omitempty"`
	Reason      string `cbor:"r,omitempty"`
	PageContext string `cbor:"pg,omitempty"`
}

// Config 对等通道配置
type Config struct {
	// URL 标准 Redis 连接串
	URL string

	// Project 决定频道命名空间，同项目的客户端互为对等方
	Project types.ProjectID

	// MaxFrameBytes 是响应帧的大小上限，超过的资产走源站
	// 0 = 默认 8 MiB
	MaxFrameBytes int
}

const defaultMaxFrame = 8 << 20

// Channel 是 Redis pub/sub 上的对等请求/响应实现
// 协作客户端都连着同一个 broker：请求广播到项目频道，
// 持有该资产的客户端把字节发回一次性的响应频道。
type Channel struct {
	client   *redis.Client
	self     string // 本客户端标识
	reqCh    string
	ctrlCh   string
	maxFrame int
	store    blobstore.Store
	log      *slog.Logger

	serving atomic.Bool

	// 控制帧回调 (协调器注入)
	onAnnounce atomic.Pointer[func(ids []types.ID)]
	onHint     atomic.Pointer[func(id types.ID, priority, reason, pageCtx string)]
}

// New 创建对等通道 (fail-fast 连接检查)
// store 用于响应别人的请求；只发不答的客户端可以传 nil。
func New(ctx context.Context, cfg Config, store blobstore.Store, log *slog.Logger) (*Channel, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	maxFrame := cfg.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = defaultMaxFrame
	}
	if log == nil {
		log = slog.Default()
	}

	return &Channel{
		client:   client,
		self:     uuid.NewString(),
		reqCh:    "av:peer:req:" + cfg.Project.String(),
		ctrlCh:   "av:peer:ctrl:" + cfg.Project.String(),
		maxFrame: maxFrame,
		store:    store,
		log:      log,
	}, nil
}

// OnAnnounce 注册“协作者宣告持有”回调
func (c *Channel) OnAnnounce(fn func(ids []types.ID)) { c.onAnnounce.Store(&fn) }

// OnHint 注册优先级提示回调
func (c *Channel) OnHint(fn func(id types.ID, priority, reason, pageCtx string)) {
	c.onHint.Store(&fn)
}

func respChannel(reqID string) string { return "av:peer:resp:" + reqID }

// Serve 运行响应循环：回答对等请求、分发控制帧
// 阻塞直到 ctx 取消。通常跑在独立 goroutine / av-agent 进程里。
func (c *Channel) Serve(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, c.reqCh, c.ctrlCh)
	defer sub.Close()

	// 确认订阅建立，之后才能宣告自己在线
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("peer subscribe failed: %w", err)
	}
	c.serving.Store(true)
	defer c.serving.Store(false)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var f frame
			if err := core.DecodeCanonical([]byte(msg.Payload), &f); err != nil {
				c.log.Warn("peer frame decode failed", "error", err)
				continue
			}
			if f.From == c.self {
				continue // 自己的回声
			}
			c.dispatch(ctx, f)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, f frame) {
	switch f.Kind {
	case "req":
		c.answer(ctx, f)
	case "announce":
		if fn := c.onAnnounce.Load(); fn != nil {
			ids := make([]types.ID, len(f.IDs))
			for i, s := range f.IDs {
				ids[i] = types.ID(s)
			}
			(*fn)(ids)
		}
	case "hint":
		if fn := c.onHint.Load(); fn != nil {
			(*fn)(types.ID(f.AssetID), f.Priority, f.Reason, f.PageContext)
		}
	}
}

// answer 用本地 BlobStore 的内容回答一次对等请求
func (c *Channel) answer(ctx context.Context, req frame) {
	resp := frame{Kind: "resp", From: c.self, ReqID: req.ReqID}

	if c.store != nil {
		if data, err := c.store.Get(ctx, types.ID(req.AssetID)); err == nil && len(data) <= c.maxFrame {
			resp.Found = true
			resp.Bytes = data
		}
	}
	// 没有也要回 Found=false，让请求方立刻回退源站而不是干等超时

	payload, err := core.EncodeCanonical(resp)
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, respChannel(req.ReqID), payload).Err(); err != nil {
		c.log.Warn("peer response publish failed", "error", err)
	}
}

// RequestAsset 向对等方请求一份资产，在 timeout 内等第一个肯定答复
func (c *Channel) RequestAsset(ctx context.Context, id types.ID, timeout time.Duration) ([]byte, bool) {
	reqID := uuid.NewString()

	sub := c.client.Subscribe(ctx, respChannel(reqID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, false
	}

	payload, err := core.EncodeCanonical(frame{
		Kind: "req", From: c.self, ReqID: reqID, AssetID: id.String(),
	})
	if err != nil {
		return nil, false
	}
	if err := c.client.Publish(ctx, c.reqCh, payload).Err(); err != nil {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return nil, false
		case msg, ok := <-ch:
			if !ok {
				return nil, false
			}
			var resp frame
			if err := core.DecodeCanonical([]byte(msg.Payload), &resp); err != nil {
				continue
			}
			if resp.Found {
				return resp.Bytes, true
			}
			// 否定答复：可能还有别的对等方会答，继续等到超时
			// (多人在线时第一个 Found=false 不代表没人有)
		}
	}
}

// AnnounceAvailability 广播持有宣告 (尽力而为，错误只告警)
func (c *Channel) AnnounceAvailability(ctx context.Context, ids []types.ID) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	payload, err := core.EncodeCanonical(frame{Kind: "announce", From: c.self, IDs: strs})
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, c.ctrlCh, payload).Err(); err != nil {
		c.log.Warn("peer announce failed", "error", err)
	}
}

// SendPriorityHint 转发优先级提示
func (c *Channel) SendPriorityHint(ctx context.Context, id types.ID, priority, reason, pageContext string) {
	payload, err := core.EncodeCanonical(frame{
		Kind: "hint", From: c.self, AssetID: id.String(),
		Priority: priority, Reason: reason, PageContext: pageContext,
	})
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, c.ctrlCh, payload).Err(); err != nil {
		c.log.Warn("peer hint failed", "error", err)
	}
}

// Connected 判断是否有别的对等方在线
// 依据请求频道的订阅者数：除掉自己 (如果在 Serve)，还有人就算在线。
func (c *Channel) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	counts, err := c.client.PubSubNumSub(ctx, c.reqCh).Result()
	if err != nil {
		return false
	}
	n := counts[c.reqCh]
	if c.serving.Load() {
		n--
	}
	return n > 0
}

// Close 释放连接
func (c *Channel) Close() error {
	return c.client.Close()
}
