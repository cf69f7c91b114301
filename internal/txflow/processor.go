package txflow

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/observability/alerting"
	"Sonic-University/internal/observability/metrics"
	"Sonic-University/pkg/logger"
)

// Executor 定义了处理器执行一笔交易所需的能力。
type Executor interface {
	Execute(ctx context.Context, attempt *Attempt, onSubmitted func(txHash string)) (Confirmation, error)
}

// RefetchFunc 在交易确认后触发一次课程状态回读,保证展示数据尽快
// 跟上链上事实。
type RefetchFunc func(ctx context.Context, attempt *Attempt)

// Processor 负责从队列消费尝试并交给控制器执行。失败的尝试写成
// failed 终态后就结束,不会重投,也不会自动重发交易。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	refetch     RefetchFunc
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRefetch 配置确认后的课程状态回读。
func WithRefetch(refetch RefetchFunc) ProcessorOption {
	return func(p *Processor) {
		p.refetch = refetch
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动尝试处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置尝试消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, attemptID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	attempt, err := p.store.Claim(ctx, attemptID)
	if err != nil {
		if stdErrors.Is(err, ErrAttemptNotFound) || stdErrors.Is(err, ErrAttemptFinished) || stdErrors.Is(err, ErrAttemptConflict) {
			p.logDebug("跳过尝试", slog.String("attempt_id", attemptID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取尝试失败", slog.Any("error", err), slog.String("attempt_id", attemptID))
		return err
	}

	conf, execErr := p.executor.Execute(ctx, attempt, func(txHash string) {
		// 哈希在交易进入内存池后立刻落库,等待确认期间就对外可见。
		if markErr := p.store.MarkSubmitted(ctx, attempt.ID, txHash); markErr != nil {
			logger.L().Error("记录交易哈希失败", slog.Any("error", markErr), slog.String("attempt_id", attempt.ID))
		}
		logger.Audit().Info("交易已提交",
			slog.String("attempt_id", attempt.ID),
			slog.String("tx_hash", txHash),
			slog.String("operation", string(attempt.Operation)),
		)
	})
	if execErr != nil {
		return p.handleExecutionFailure(ctx, attempt, execErr)
	}

	if err := p.store.MarkConfirmed(ctx, attempt.ID, conf); err != nil {
		logger.L().Error("标记尝试已确认失败", slog.Any("error", err), slog.String("attempt_id", attempt.ID))
		return err
	}
	metrics.ObserveAttempt(string(attempt.Operation), string(PhaseConfirmed))
	logger.Audit().Info("交易已确认",
		slog.String("attempt_id", attempt.ID),
		slog.String("operation", string(attempt.Operation)),
		slog.String("tx_hash", conf.TxHash),
		slog.Uint64("block_number", conf.BlockNumber),
		slog.Uint64("gas_used", conf.GasUsed),
	)
	if p.refetch != nil {
		p.refetch(ctx, attempt)
	}
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, attempt *Attempt, execErr error) error {
	coded := Classify(execErr)

	if storeErr := p.store.MarkFailed(ctx, attempt.ID, coded.Code(), coded.Message()); storeErr != nil {
		logger.L().Error("标记尝试失败状态出错", slog.Any("error", storeErr), slog.String("attempt_id", attempt.ID))
		return storeErr
	}
	logger.Audit().Warn("交易执行失败",
		slog.String("attempt_id", attempt.ID),
		slog.String("operation", string(attempt.Operation)),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(coded.Code())),
	)
	metrics.ObserveAttempt(string(attempt.Operation), string(PhaseFailed))
	p.emitAlert(ctx, attempt, coded)
	// 不重投:一次尝试至多对应一笔链上交易。
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, attempt *Attempt, coded *xerrors.Error) {
	if p == nil || p.alerter == nil || attempt == nil || !coded.ShouldAlert() {
		return
	}
	event := alerting.Event{
		Code:       coded.Code(),
		Message:    coded.Message(),
		Severity:   coded.Severity(),
		AttemptID:  attempt.ID,
		Operation:  string(attempt.Operation),
		Account:    attempt.Account,
		Metadata:   map[string]string{"cause": coded.Error()},
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("attempt_id", attempt.ID),
		)
	}
}
