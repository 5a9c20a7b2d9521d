package replica

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"assetvault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// journalRow 是本地日志的一行：每个 key 只保留最终状态
// (不是 append-only 流水，重放 O(资产数) 而不是 O(历史长度))
type journalRow struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	Deleted bool
	At      int64 `gorm:"index"`

	// Payload 是 Record 的 JSON 投影 (JSONB 风格，调试时肉眼可读)
	Payload datatypes.JSON

	UpdatedAt time.Time
}

func (journalRow) TableName() string {
	return "replica_journal"
}

// journal 给 Redis 副本提供崩溃一致的本地落盘
type journal struct {
	conn *gorm.DB
}

func openJournal(path string) (*journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.AutoMigrate(&journalRow{}); err != nil {
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &journal{conn: db}, nil
}

// append 把一批变更落盘 (每 key upsert 最终状态)
func (j *journal) append(muts []mutation, at int64) error {
	rows := make([]journalRow, 0, len(muts))
	for _, mu := range muts {
		row := journalRow{ID: mu.id.String(), Deleted: mu.delete, At: at}
		if !mu.delete {
			payload, err := json.Marshal(mu.rec)
			if err != nil {
				return err
			}
			row.Payload = payload
		}
		rows = append(rows, row)
	}
	return j.conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"deleted", "at", "payload", "updated_at"}),
	}).Create(&rows).Error
}

// replay 把日志内容合并进镜像 (按行携带的时间戳走 LWW)
func (j *journal) replay(m *Memory) error {
	var rows []journalRow
	if err := j.conn.Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		mu := mutation{id: types.ID(row.ID), delete: row.Deleted}
		if !row.Deleted {
			if err := json.Unmarshal(row.Payload, &mu.rec); err != nil {
				continue // 坏行跳过
			}
		}
		m.applyRemote([]mutation{mu}, row.At)
	}
	return nil
}

func (j *journal) close() error {
	sqlDB, err := j.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
