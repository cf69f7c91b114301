package txflow

import (
	"context"

	xerrors "Sonic-University/internal/errors"
)

// Store 抽象了交易尝试状态的持久化接口。
type Store interface {
	Create(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	// Claim 将 pending 的尝试推进到 estimating。已被领取或已进入
	// 终态的尝试返回相应的哨兵错误,绝不二次领取。
	Claim(ctx context.Context, id string) (*Attempt, error)
	MarkSubmitted(ctx context.Context, id string, txHash string) error
	MarkConfirmed(ctx context.Context, id string, conf Confirmation) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, message string) error
	List(ctx context.Context, opts ListOptions) ([]*Attempt, error)
	Stats(ctx context.Context, opts ListOptions) (AttemptStats, error)
	Close() error
}
