package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Sonic-University/internal/api"
	"Sonic-University/internal/config"
	"Sonic-University/internal/course"
	"Sonic-University/internal/observability/alerting"
	"Sonic-University/internal/txflow"
	"Sonic-University/internal/web3"
	"Sonic-University/internal/web3/gateway"
	"Sonic-University/internal/web3/wallet"
	"Sonic-University/pkg/logger"
)

// main 是 Sonic University 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("sonicud 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SONICU_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "sonicu.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 链配置:先读 YAML,再让环境变量注入的地址覆盖目标链。
	defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainConfig)
	if err != nil {
		return err
	}
	defs.Override("deploy", cfg.Web3.RequiredChainID,
		cfg.Contracts.TrackerAddress, cfg.Contracts.TokenAddress)

	registry, err := web3.NewRegistry(defs)
	if err != nil {
		return err
	}
	gw := gateway.New(registry, cfg.Web3.RequiredChainID)

	// 钱包桥。没有 RPC 端点时进入只读降级模式,课程列表退回静态目录。
	var bridge wallet.Bridge
	if cfg.Web3.RPCURL != "" {
		local, err := wallet.NewLocalBridge(ctx, wallet.LocalConfig{
			RPCURL:        cfg.Web3.RPCURL,
			PrivateKeyHex: strings.TrimSpace(os.Getenv(cfg.Web3.PrivateKeyEnv)),
		})
		if err != nil {
			return err
		}
		defer local.Close()
		bridge = local
	}

	session := wallet.NewSession(bridge)
	session.Restore(ctx)
	go session.Watch(ctx)

	catalog, err := course.LoadCatalog(cfg.Catalog.Source)
	if err != nil {
		return err
	}
	engine := course.NewEngine(gw, catalog, cfg.Web3.ScanLimit)

	var store txflow.Store
	switch cfg.Storage.AttemptStore.Driver {
	case "", "memory":
		store = txflow.NewMemoryStore()
	case "mysql":
		mysqlStore, err := txflow.NewMySQLStore(cfg.Storage.AttemptStore.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.AttemptStore.Driver)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("关闭交易存储失败: %v", err)
		}
	}()

	var queue txflow.Queue
	switch cfg.TxQueue.Driver {
	case "", "memory":
		queue = txflow.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := txflow.NewRedisQueue(txflow.RedisQueueConfig{
			Address:   cfg.TxQueue.Redis.Address,
			Password:  cfg.TxQueue.Redis.Password,
			DB:        cfg.TxQueue.Redis.DB,
			Queue:     cfg.TxQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TxQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := txflow.NewRabbitMQQueue(txflow.RabbitMQConfig{
			URL:        cfg.TxQueue.RabbitMQ.URL,
			Queue:      cfg.TxQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TxQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TxQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TxQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.TxQueue.Driver)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Printf("关闭交易队列失败: %v", err)
		}
	}()

	controller := txflow.NewController(gw, session)
	service := txflow.NewService(store, queue, session, func(ctx context.Context) uint8 {
		return engine.TokenDecimals(ctx, session.Provider(), session.ChainID())
	})

	processor := txflow.NewProcessor(controller, store, queue,
		txflow.WithWorkerCount(cfg.TxQueue.Worker),
		txflow.WithProcessorLogger(logger.Named("txflow")),
		txflow.WithAlertDispatcher(alerting.NewFanout()),
		txflow.WithRefetch(func(ctx context.Context, attempt *txflow.Attempt) {
			// 交易确认后重读链上状态,让下一次课程查询反映最新结果。
			var account *common.Address
			if common.IsHexAddress(attempt.Account) {
				addr := common.HexToAddress(attempt.Account)
				account = &addr
			}
			if _, err := engine.FetchAll(ctx, session.Provider(), session.ChainID(), account); err != nil {
				logger.Named("txflow").Warn("确认后回读课程状态失败",
					"attempt_id", attempt.ID, "error", err)
			}
		}),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("交易处理器异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, cfg, engine, session, service)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
