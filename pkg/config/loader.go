package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .av
		viper.AddConfigPath(".av")
		// 3. 用户主目录下的 .av
		viper.AddConfigPath(filepath.Join(home, ".av"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (AV_STORAGE_TYPE 等)
	viper.SetEnvPrefix("AV")
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (默认值 + 环境变量也能跑)，
		// 但找到了读不了/格式坏了就是错
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Println("🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 本地 Blob 存储：sqlite 单文件是默认，disk 是分片目录布局
	wd, _ := os.Getwd()
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.path", filepath.Join(wd, ".av", "blobs.db"))
	viper.SetDefault("storage.dsn", "") // storage.type=postgres 时必填

	// 内容哈希：sha256，受限环境可以切 fallback (文档化的弱哈希)
	viper.SetDefault("hash.algorithm", "sha256")

	// 元数据复制：memory = 单机离线，redis = 多协作者
	viper.SetDefault("replica.type", "memory")
	viper.SetDefault("replica.redis_url", "redis://localhost:6379/0")
	viper.SetDefault("replica.journal", true) // 崩溃后从本地日志恢复镜像

	// 对等通道 (可选能力，没有 redis 一样能跑)
	viper.SetDefault("peer.enabled", false)
	viper.SetDefault("peer.redis_url", "redis://localhost:6379/0")

	// 源站 (可选能力)
	viper.SetDefault("origin.type", "none") // none | s3
	viper.SetDefault("s3.endpoint", "")
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.bucket", "")
	viper.SetDefault("s3.access_key", "")
	viper.SetDefault("s3.secret_key", "")

	// 检索调度
	viper.SetDefault("retrieval.concurrency", 4)
	viper.SetDefault("retrieval.max_attempts", 3)
	viper.SetDefault("retrieval.cooldown", 5*time.Second)
	viper.SetDefault("retrieval.peer_timeout", 3*time.Second)
	viper.SetDefault("retrieval.attempt_timeout", 30*time.Second)
}
