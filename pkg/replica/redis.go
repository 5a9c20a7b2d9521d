package replica

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"assetvault/pkg/core"
	"assetvault/pkg/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// wireRecord 是 Record 的传输形态 (规范化 CBOR)
type wireRecord struct {
	Filename   string `cbor:"f"`
	FolderPath string `cbor:"p"`
	MIME       string `cbor:"m"`
	Size       int64  `cbor:"s"`
	Hash       string `cbor:"h"`
	Uploaded   bool   `cbor:"u"`
	CreatedAt  int64  `cbor:"c"` // unix 秒
}

type wireOp struct {
	Kind string      `cbor:"k"` // "set" | "del"
	ID   string      `cbor:"id"`
	Rec  *wireRecord `cbor:"r,omitempty"`
}

// wireFrame 是发布到变更频道的一批操作
// At 是整批的 LWW 时间戳；Origin 用于过滤自己发出的回声。
type wireFrame struct {
	Origin string   `cbor:"o"`
	At     int64    `cbor:"at"`
	Ops    []wireOp `cbor:"ops"`
}

// RedisConfig Redis 副本配置
type RedisConfig struct {
	// URL 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	URL string

	// Project 决定频道/状态键的命名空间，同项目的客户端互为协作者
	Project types.ProjectID

	// JournalPath 本地日志 (sqlite) 路径，"" = 不落盘
	JournalPath string
}

// Redis 是跨客户端复制的 Replica 实现
//
// 结构：
//   - 读全部走本地镜像 (Memory)，永不碰网络；
//   - 写先进镜像 (立即可见)，再异步发布 CBOR 帧 + 更新远端状态哈希；
//   - 订阅循环接收其他客户端的帧，按 key LWW 合并进镜像；
//   - 可选的本地日志保证崩溃后重启仍能看到最后的元数据状态。
type Redis struct {
	mirror  *Memory
	client  *redis.Client
	origin  string // 本客户端标识，过滤回声用
	channel string
	hashKey string
	journal *journal
	log     *slog.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedis 创建并连接 Redis 副本
// 连接检查是 fail-fast 的：配置错了要立刻知道，而不是第一次写时才炸。
func NewRedis(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*Redis, error) {
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

	if log == nil {
		log = slog.Default()
	}

	r := &Redis{
		mirror:  NewMemory(),
		client:  client,
		origin:  uuid.NewString(),
		channel: "av:meta:feed:" + cfg.Project.String(),
		hashKey: "av:meta:state:" + cfg.Project.String(),
		log:     log,
		done:    make(chan struct{}),
	}

	// 1. 本地日志重放 (先于网络，离线启动也有完整视图)
	if cfg.JournalPath != "" {
		j, err := openJournal(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open replica journal: %w", err)
		}
		r.journal = j
		if err := j.replay(r.mirror); err != nil {
			return nil, fmt.Errorf("failed to replay replica journal: %w", err)
		}
	}

	// 2. 远端全量状态合并 (fail-soft：拉不到就先用本地视图工作)
	if err := r.syncRemote(ctx); err != nil {
		r.log.Warn("replica initial sync failed, continuing offline", "error", err)
	}

	// 3. 订阅变更频道
	r.pubsub = client.Subscribe(ctx, r.channel)
	go r.receiveLoop()

	return r, nil
}

// ---- 读路径：全部透传本地镜像 ----

func (r *Redis) Get(id types.ID) (Record, bool) { return r.mirror.Get(id) }
func (r *Redis) ForEach(fn func(types.ID, Record) bool) { r.mirror.ForEach(fn) }
func (r *Redis) Subscribe(fn func(Event)) (cancel func()) { return r.mirror.Subscribe(fn) }

// ---- 写路径：镜像先行，传播异步 ----

func (r *Redis) Set(id types.ID, rec Record) {
	muts := []mutation{{id: id, rec: rec}}
	at := r.mirror.applyLocal(muts)
	r.persistAndPublish(muts, at)
}

func (r *Redis) Delete(id types.ID) {
	muts := []mutation{{id: id, delete: true}}
	at := r.mirror.applyLocal(muts)
	r.persistAndPublish(muts, at)
}

func (r *Redis) Transact(fn func(tx Tx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}
	at := r.mirror.applyLocal(tx.muts)
	r.persistAndPublish(tx.muts, at)
	return nil
}

// persistAndPublish 落日志 (同步，便宜) + 发布帧 (异步，不阻塞调用方)
func (r *Redis) persistAndPublish(muts []mutation, at int64) {
	if len(muts) == 0 {
		return
	}
	if r.journal != nil {
		if err := r.journal.append(muts, at); err != nil {
			// 可用性优先：日志失败不阻止写入，下次重启少一点历史而已
			r.log.Warn("replica journal write failed", "error", err)
		}
	}

	frame := wireFrame{Origin: r.origin, At: at, Ops: toWireOps(muts)}
	payload, err := core.EncodeCanonical(frame)
	if err != nil {
		r.log.Error("replica frame encode failed", "error", err)
		return
	}

	// 后台传播：即使上层 ctx 已取消，变更也应该送达协作者
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		pipe := r.client.Pipeline()
		for _, mu := range muts {
			opData, err := core.EncodeCanonical(wireFrame{Origin: r.origin, At: at, Ops: toWireOps([]mutation{mu})})
			if err != nil {
				continue
			}
			// 状态哈希给晚加入的客户端做全量同步
			pipe.HSet(ctx, r.hashKey, mu.id.String(), opData)
		}
		pipe.Publish(ctx, r.channel, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			r.log.Warn("replica propagation failed", "error", err)
		}
	}()
}

// receiveLoop 消费其他客户端的变更帧
func (r *Redis) receiveLoop() {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame wireFrame
			if err := core.DecodeCanonical([]byte(msg.Payload), &frame); err != nil {
				r.log.Warn("replica frame decode failed", "error", err)
				continue
			}
			if frame.Origin == r.origin {
				continue // 自己的回声
			}
			muts := fromWireOps(frame.Ops)
			r.mirror.applyRemote(muts, frame.At)
			if r.journal != nil {
				if err := r.journal.append(muts, frame.At); err != nil {
					r.log.Warn("replica journal write failed", "error", err)
				}
			}
		}
	}
}

// syncRemote 从状态哈希拉全量，LWW 合并进镜像
func (r *Redis) syncRemote(ctx context.Context) error {
	syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	all, err := r.client.HGetAll(syncCtx, r.hashKey).Result()
	if err != nil {
		return err
	}
	for _, raw := range all {
		var frame wireFrame
		if err := core.DecodeCanonical([]byte(raw), &frame); err != nil {
			continue // 坏条目跳过
		}
		r.mirror.applyRemote(fromWireOps(frame.Ops), frame.At)
	}
	return nil
}

func (r *Redis) Close() error {
	close(r.done)
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	if r.journal != nil {
		_ = r.journal.close()
	}
	return r.client.Close()
}

// ---- 转换辅助 ----

func toWireOps(muts []mutation) []wireOp {
	ops := make([]wireOp, 0, len(muts))
	for _, mu := range muts {
		op := wireOp{ID: mu.id.String()}
		if mu.delete {
			op.Kind = "del"
		} else {
			op.Kind = "set"
			op.Rec = &wireRecord{
				Filename:   mu.rec.Filename,
				FolderPath: mu.rec.FolderPath,
				MIME:       mu.rec.MIME,
				Size:       mu.rec.Size,
				Hash:       mu.rec.Hash.String(),
				Uploaded:   mu.rec.Uploaded,
				CreatedAt:  mu.rec.CreatedAt.Unix(),
			}
		}
		ops = append(ops, op)
	}
	return ops
}

func fromWireOps(ops []wireOp) []mutation {
	muts := make([]mutation, 0, len(ops))
	for _, op := range ops {
		mu := mutation{id: types.ID(op.ID), delete: op.Kind == "del"}
		if op.Rec != nil {
			mu.rec = Record{
				Filename:   op.Rec.Filename,
				FolderPath: op.Rec.FolderPath,
				MIME:       op.Rec.MIME,
				Size:       op.Rec.Size,
				Hash:       types.Hash(op.Rec.Hash),
				Uploaded:   op.Rec.Uploaded,
				CreatedAt:  time.Unix(op.Rec.CreatedAt, 0).UTC(),
			}
		}
		muts = append(muts, mu)
	}
	return muts
}
