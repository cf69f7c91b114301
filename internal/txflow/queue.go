package txflow

import (
	"context"
)

// Handler 处理来自消息队列的尝试 ID。返回错误表示该次处理失败;
// 队列不会重投,失败的尝试停留在 failed 终态等人工介入。
type Handler func(ctx context.Context, attemptID string) error

// Producer 负责向队列投递尝试。
type Producer interface {
	Publish(ctx context.Context, attemptID string) error
	Close() error
}

// Consumer 负责从队列中消费尝试。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
