package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/types"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Config 数据库配置
// 默认走本地 sqlite (离线优先、零运维)；共享部署可以切 postgres。
type Config struct {
	// Driver: "sqlite" (默认) 或 "postgres"
	Driver string

	// Path 是 sqlite 数据库文件路径
	Path string

	// DSN 是 postgres 连接串 (Driver=postgres 时必填)
	DSN string
}

// Adapter 实现了 blobstore.Store 接口
type Adapter struct {
	conn *gorm.DB
}

// New 打开数据库并准备表结构
// 存储初始化失败是硬错误，必须向上传播：Manager 绝不能在没有
// 持久存储的情况下静默工作。
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var dial gorm.Dialector

	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
		dial = sqlite.Open(cfg.Path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		dial = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown blobstore driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	// 连接池配置 (sqlite 下基本是摆设，postgres 下是必需)
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("blob store ping failed: %w", err)
	}

	a := &Adapter{conn: db}
	if err := a.ensureSchema(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewWithConn 复用现有 GORM 连接 (依赖注入 / 单元测试用)
func NewWithConn(conn *gorm.DB) (*Adapter, error) {
	a := &Adapter{conn: conn}
	if err := a.ensureSchema(); err != nil {
		return nil, err
	}
	return a, nil
}

// ensureSchema 校验 schema 版本，不兼容时重建空库
func (a *Adapter) ensureSchema() error {
	if err := a.conn.AutoMigrate(&SchemaMeta{}); err != nil {
		return fmt.Errorf("schema meta migration failed: %w", err)
	}

	var meta SchemaMeta
	err := a.conn.Where("key = ?", "blobstore").First(&meta).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 全新的库
	case err != nil:
		return err
	case meta.Version != SchemaVersion:
		// 旧版本格式：整表重建，不迁移
		if a.conn.Migrator().HasTable(&BlobRecord{}) {
			if err := a.conn.Migrator().DropTable(&BlobRecord{}); err != nil {
				return fmt.Errorf("failed to reset outdated blob table: %w", err)
			}
		}
	}

	if err := a.conn.AutoMigrate(&BlobRecord{}); err != nil {
		return fmt.Errorf("blob table migration failed: %w", err)
	}

	return a.conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version"}),
	}).Create(&SchemaMeta{Key: "blobstore", Version: SchemaVersion}).Error
}

// Put 写入/覆盖 Blob (Upsert，后写者胜)
func (a *Adapter) Put(ctx context.Context, id types.ID, projectID types.ProjectID, data []byte) error {
	rec := BlobRecord{
		ID:        id.String(),
		ProjectID: projectID.String(),
		Bytes:     data,
	}
	err := a.conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"project_id", "bytes", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("blob put failed: %w", err)
	}
	return nil
}

func (a *Adapter) Get(ctx context.Context, id types.ID) ([]byte, error) {
	rec, err := a.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Bytes, nil
}

func (a *Adapter) GetRecord(ctx context.Context, id types.ID) (*blobstore.Record, error) {
	var rec BlobRecord
	err := a.conn.WithContext(ctx).Where("id = ?", id.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob get failed: %w", err)
	}
	return &blobstore.Record{
		ID:        types.ID(rec.ID),
		ProjectID: types.ProjectID(rec.ProjectID),
		Bytes:     rec.Bytes,
	}, nil
}

// Delete 幂等删除 (删除不存在的 id 不算错)
func (a *Adapter) Delete(ctx context.Context, id types.ID) error {
	err := a.conn.WithContext(ctx).Where("id = ?", id.String()).Delete(&BlobRecord{}).Error
	if err != nil {
		return fmt.Errorf("blob delete failed: %w", err)
	}
	return nil
}

func (a *Adapter) ListByProject(ctx context.Context, projectID types.ProjectID) ([]types.ID, error) {
	var ids []string
	err := a.conn.WithContext(ctx).
		Model(&BlobRecord{}).
		Where("project_id = ?", projectID.String()).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("blob list failed: %w", err)
	}

	out := make([]types.ID, len(ids))
	for i, s := range ids {
		out[i] = types.ID(s)
	}
	return out, nil
}

func (a *Adapter) Close() error {
	sqlDB, err := a.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
