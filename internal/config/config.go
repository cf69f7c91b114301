package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config 描述 sonicud 启动阶段需要加载的全部配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Storage       StorageConfig       `json:"storage"`
	TxQueue       TxQueueConfig       `json:"tx_queue"`
	Web3          Web3Config          `json:"web3"`
	Contracts     ContractsConfig     `json:"contracts"`
	WalletConnect WalletConnectConfig `json:"wallet_connect"`
	Catalog       CatalogConfig       `json:"catalog"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 描述交易记录存储的驱动与连接信息。
type StorageConfig struct {
	AttemptStore AttemptStoreConfig `json:"attempt_store"`
}

// AttemptStoreConfig 支持 memory 与 mysql 两种驱动。
type AttemptStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// TxQueueConfig 描述交易提交队列的驱动。
type TxQueueConfig struct {
	Driver   string              `json:"driver"`
	Worker   int                 `json:"worker"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// Web3Config 描述链上访问所需的端点与签名信息。
type Web3Config struct {
	RPCURL          string `json:"rpc_url"`
	ChainConfig     string `json:"chain_config"`
	RequiredChainID uint64 `json:"required_chain_id"`
	PrivateKeyEnv   string `json:"private_key_env"`
	ScanLimit       int    `json:"scan_limit"`
}

// ContractsConfig 保存两个合约的部署地址。为空表示功能降级，不是错误。
type ContractsConfig struct {
	TrackerAddress string `json:"tracker_address"`
	TokenAddress   string `json:"token_address"`
}

// WalletConnectConfig 透传给前端的 WalletConnect 项目标识。
type WalletConnectConfig struct {
	ProjectID string `json:"project_id"`
}

// CatalogConfig 指向静态课程目录文件，为空时使用内置目录。
type CatalogConfig struct {
	Source string `json:"source"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// 环境变量覆盖项，与原部署脚本保持一致的命名。
const (
	EnvTrackerAddress       = "LEARN_TO_EARN_CONTRACT"
	EnvTokenAddress         = "SUT_TOKEN_CONTRACT"
	EnvWalletConnectProject = "WALLETCONNECT_PROJECT_ID"
)

// Load 解析指定路径的 JSON 配置文件并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnvOverrides()

	return &cfg, nil
}

// applyDefaults 为未填写的字段设置默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.AttemptStore.Driver == "" {
		c.Storage.AttemptStore.Driver = "memory"
	}

	if c.TxQueue.Driver == "" {
		c.TxQueue.Driver = "memory"
	}
	if c.TxQueue.Worker <= 0 {
		c.TxQueue.Worker = 4
	}

	// 写操作默认只允许 Sepolia 测试网。
	if c.Web3.RequiredChainID == 0 {
		c.Web3.RequiredChainID = 11155111
	}
	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = "SONICU_PRIVATE_KEY"
	}
	if c.Web3.ScanLimit <= 0 {
		c.Web3.ScanLimit = 20
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Catalog.Source != "" && !filepath.IsAbs(c.Catalog.Source) {
		c.Catalog.Source = filepath.Join(baseDir, c.Catalog.Source)
	}
}

// applyEnvOverrides 让部署环境里的合约地址覆盖配置文件内容。
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvTrackerAddress)); v != "" {
		c.Contracts.TrackerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTokenAddress)); v != "" {
		c.Contracts.TokenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWalletConnectProject)); v != "" {
		c.WalletConnect.ProjectID = v
	}
}
