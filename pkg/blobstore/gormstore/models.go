package gormstore

import "time"

// SchemaVersion 是当前存储格式的版本号
// 只维护一个“当前版本”：检测到不兼容的旧 schema 时直接重建空库，
// 不做迁移链 (本地 Blob 都可以从副本元数据 + 一次成功拉取重建)。
const SchemaVersion = 1

// BlobRecord 是 blobs 表的 GORM 模型
type BlobRecord struct {
	// ID 是主键 (UUID 格式字符串)
	ID string `gorm:"primaryKey;type:varchar(36)"`

	// ProjectID 是归属标签 (B-Tree 索引，支撑 ListByProject)
	ProjectID string `gorm:"index;type:varchar(64)"`

	// Bytes 是原始内容
	Bytes []byte `gorm:"type:blob"`

	UpdatedAt time.Time
}

// TableName 强制指定表名
func (BlobRecord) TableName() string {
	return "blobs"
}

// SchemaMeta 记录当前库的 schema 版本 (单行表)
type SchemaMeta struct {
	Key     string `gorm:"primaryKey;type:varchar(32)"`
	Version int
}

func (SchemaMeta) TableName() string {
	return "store_schema"
}
