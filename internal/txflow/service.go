package txflow

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3/wallet"
	"Sonic-University/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DecimalsFunc 返回奖励代币的精度,用于把展示金额换算到最小单位。
type DecimalsFunc func(ctx context.Context) uint8

// SubmitRequest 描述一次交易提交请求。
type SubmitRequest struct {
	// ID 可选。携带已存在的 ID 时直接返回对应尝试,不会重复提交。
	ID           string    `json:"id,omitempty"`
	Operation    Operation `json:"operation"`
	CourseID     uint64    `json:"course_id"`
	Student      string    `json:"student,omitempty"`
	RewardTokens float64   `json:"reward_tokens,omitempty"`
}

// Service 负责交易尝试的创建与查询。
type Service struct {
	store    Store
	producer Producer
	session  *wallet.Session
	decimals DecimalsFunc
}

// NewService 构造交易服务。
func NewService(store Store, producer Producer, session *wallet.Session, decimals DecimalsFunc) *Service {
	return &Service{store: store, producer: producer, session: session, decimals: decimals}
}

// Submit 校验请求、落库并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Attempt, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易服务未初始化")
	}
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	attemptID := strings.TrimSpace(req.ID)
	if attemptID != "" {
		attempt, err := s.store.Get(ctx, attemptID)
		if err == nil {
			return attempt, nil
		}
		if !stdErrors.Is(err, ErrAttemptNotFound) {
			return nil, err
		}
	} else {
		attemptID = uuid.NewString()
	}

	attempt := &Attempt{
		ID:        attemptID,
		Operation: req.Operation,
		CourseID:  req.CourseID,
		Student:   strings.TrimSpace(req.Student),
		Phase:     PhasePending,
	}
	if s.session != nil {
		if account, ok := s.session.Account(); ok {
			attempt.Account = account.Hex()
		}
	}
	if req.Operation == OpAddCourse {
		dec := uint8(18)
		if s.decimals != nil {
			dec = s.decimals(ctx)
		}
		attempt.RewardTokens = req.RewardTokens
		attempt.RewardRaw = scaleTokens(req.RewardTokens, dec).String()
	}

	if err := s.store.Create(ctx, attempt); err != nil {
		if stdErrors.Is(err, ErrAttemptConflict) {
			existing, getErr := s.store.Get(ctx, attemptID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrAttemptNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, attemptID); err != nil {
		logger.L().Error("尝试入队失败", slog.Any("error", err), slog.String("attempt_id", attemptID))
		wrapped := xerrors.Wrap(CodeAttemptPublish, err, "发布尝试到队列失败")
		_ = s.store.MarkFailed(ctx, attemptID, CodeAttemptPublish, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("尝试入队成功",
		slog.String("attempt_id", attemptID),
		slog.String("operation", string(attempt.Operation)),
		slog.String("account", attempt.Account),
		slog.Uint64("course_id", attempt.CourseID),
	)
	return attempt, nil
}

func validateSubmit(req SubmitRequest) error {
	if !IsValidOperation(req.Operation) {
		return xerrors.New(xerrors.CodeInvalidArgument, "不支持的合约操作")
	}
	if req.CourseID == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "课程 ID 必须大于 0")
	}
	switch req.Operation {
	case OpAddCourse:
		if req.RewardTokens <= 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, "奖励金额必须大于 0")
		}
	case OpMarkCompletion:
		if !common.IsHexAddress(strings.TrimSpace(req.Student)) {
			return xerrors.New(xerrors.CodeInvalidArgument, "学员地址不合法")
		}
	}
	return nil
}

// scaleTokens 把十进制展示金额换算为最小单位。经由 big.Rat 换算,
// 向下取整,避免 float64 直接乘幂的精度误差。
func scaleTokens(tokens float64, decimals uint8) *big.Int {
	rat := new(big.Rat).SetFloat64(tokens)
	if rat == nil || rat.Sign() <= 0 {
		return big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// Get 返回指定尝试的状态。
func (s *Service) Get(ctx context.Context, id string) (*Attempt, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "尝试存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的尝试列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Attempt, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "尝试存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的尝试统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (AttemptStats, error) {
	if s.store == nil {
		return AttemptStats{}, xerrors.New(xerrors.CodeInitializationFailure, "尝试存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilFinished 在指定超时时间内轮询尝试状态,直到进入终态。
func (s *Service) WaitUntilFinished(ctx context.Context, id string, interval time.Duration) (*Attempt, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		attempt, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if attempt.Phase.Terminal() {
			return attempt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
