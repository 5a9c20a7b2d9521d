// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/blobstore/diskstore"
	"assetvault/pkg/blobstore/gormstore"
	"assetvault/pkg/blobstore/memstore"
	"assetvault/pkg/core"
	"assetvault/pkg/manager"
	"assetvault/pkg/origin"
	"assetvault/pkg/origin/s3origin"
	"assetvault/pkg/peer"
	"assetvault/pkg/peer/redischannel"
	"assetvault/pkg/project"
	"assetvault/pkg/replica"
	"assetvault/pkg/resolver"
	"assetvault/pkg/retrieval"
	"assetvault/pkg/types"
	"assetvault/pkg/urlcache"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有"单例"服务，按 Viper 配置组装
type App struct {
	Project  types.ProjectID
	RootPath string

	Store    blobstore.Store
	Meta     replica.Replica
	URLs     *urlcache.Cache
	Origin   origin.Client          // 可选，nil = 纯离线
	PeerHub  *redischannel.Channel  // 可选，nil = 无对等能力
	Coord    *retrieval.Coordinator
	Manager  *manager.Manager
	Resolver *resolver.Resolver
	Log      *slog.Logger
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令。
// 架构决策: 本地存储初始化失败是硬错误 (环境坏了要立刻知道)；
// 对等通道是可选能力，Redis 不可达只降级成离线，不拦启动。
func NewApp(ctx context.Context) (*App, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	log := slog.Default()

	// 1. 工作区身份 (Single Source of Truth)
	proj := project.NewManager(wd)
	projectID, err := proj.ProjectID()
	if err != nil {
		return nil, err
	}

	// 2. 本地 Blob 存储 (硬错误)
	store, err := initStore(ctx, proj.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. 元数据副本
	meta, err := initReplica(ctx, projectID, proj.Dir(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata replica: %w", err)
	}

	// 4. 可选能力：源站 + 对等通道
	org, err := initOrigin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init origin: %w", err)
	}
	hub := initPeer(ctx, projectID, store, log)

	// 5. 句柄缓存是显式结构体，归 App 所有，随 App 销毁
	urls := urlcache.New()

	var peers peer.Channel
	if hub != nil {
		peers = hub
	}

	// 6. 检索协调器 + 管理器 + 解析器
	coord := retrieval.New(retrieval.Config{
		Project:        projectID,
		Concurrency:    viper.GetInt64("retrieval.concurrency"),
		MaxAttempts:    viper.GetInt("retrieval.max_attempts"),
		Cooldown:       viper.GetDuration("retrieval.cooldown"),
		PeerTimeout:    viper.GetDuration("retrieval.peer_timeout"),
		AttemptTimeout: viper.GetDuration("retrieval.attempt_timeout"),
	}, store, meta, urls, peers, org, log)
	coord.Start(ctx)

	mgr := manager.New(manager.Config{
		Project: projectID,
		Hash:    core.Algorithm(viper.GetString("hash.algorithm")),
	}, store, meta, urls, coord, peers, org, log)

	res := resolver.New(store, meta, urls, coord, log)

	return &App{
		Project:  projectID,
		RootPath: wd,
		Store:    store,
		Meta:     meta,
		URLs:     urls,
		Origin:   org,
		PeerHub:  hub,
		Coord:    coord,
		Manager:  mgr,
		Resolver: res,
		Log:      log,
	}, nil
}

// Close 按依赖相反的顺序收尾
func (a *App) Close() error {
	var firstErr error
	if err := a.Manager.Close(); err != nil {
		firstErr = err
	}
	if a.PeerHub != nil {
		if err := a.PeerHub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// initStore 按配置初始化本地 Blob 存储
func initStore(ctx context.Context, avDir string) (blobstore.Store, error) {
	switch viper.GetString("storage.type") {
	case "sqlite":
		path := viper.GetString("storage.path")
		if path == "" {
			path = filepath.Join(avDir, "blobs.db")
		}
		return gormstore.New(ctx, gormstore.Config{Driver: "sqlite", Path: path})

	case "postgres":
		dsn := viper.GetString("storage.dsn")
		if dsn == "" {
			return nil, fmt.Errorf("storage dsn is required for postgres")
		}
		return gormstore.New(ctx, gormstore.Config{Driver: "postgres", DSN: dsn})

	case "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			path = filepath.Join(avDir, "objects")
		}
		return diskstore.NewAdapter(path)

	case "memory":
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", viper.GetString("storage.type"))
	}
}

// initReplica 按配置初始化元数据副本
func initReplica(ctx context.Context, projectID types.ProjectID, avDir string, log *slog.Logger) (replica.Replica, error) {
	switch viper.GetString("replica.type") {
	case "memory":
		return replica.NewMemory(), nil

	case "redis":
		journalPath := ""
		if viper.GetBool("replica.journal") {
			journalPath = filepath.Join(avDir, "journal.db")
		}
		return replica.NewRedis(ctx, replica.RedisConfig{
			URL:         viper.GetString("replica.redis_url"),
			Project:     projectID,
			JournalPath: journalPath,
		}, log)

	default:
		return nil, fmt.Errorf("unsupported replica type: %s", viper.GetString("replica.type"))
	}
}

// initOrigin 按配置初始化源站客户端，"none" 返回 nil (纯离线)
func initOrigin(ctx context.Context) (origin.Client, error) {
	switch viper.GetString("origin.type") {
	case "", "none":
		return nil, nil

	case "s3":
		return s3origin.NewAdapter(ctx, s3origin.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
		})

	default:
		return nil, fmt.Errorf("unsupported origin type: %s", viper.GetString("origin.type"))
	}
}

// initPeer 初始化对等通道 (fail-soft：连不上只是降级成离线)
func initPeer(ctx context.Context, projectID types.ProjectID, store blobstore.Store, log *slog.Logger) *redischannel.Channel {
	if !viper.GetBool("peer.enabled") {
		return nil
	}
	hub, err := redischannel.New(ctx, redischannel.Config{
		URL:     viper.GetString("peer.redis_url"),
		Project: projectID,
	}, store, log)
	if err != nil {
		log.Warn("peer channel unavailable, continuing without peers", "error", err)
		return nil
	}
	return hub
}
