package txflow

import (
	xerrors "Sonic-University/internal/errors"
)

// Phase 表示一次交易尝试在生命周期中的阶段。阶段只能沿
// pending -> estimating -> submitted -> confirmed/failed 单向推进。
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseEstimating Phase = "estimating"
	PhaseSubmitted  Phase = "submitted"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

// Operation 是 tracker 合约支持的写操作。
type Operation string

const (
	OpClaimReward    Operation = "claim_reward"
	OpAddCourse      Operation = "add_course"
	OpMarkCompletion Operation = "mark_completion"
	OpDeleteCourse   Operation = "delete_course"
)

// Attempt 描述一次交易尝试。一次尝试最多只对应一笔链上交易:失败的
// 尝试不会自动重试,调用方需要显式发起新的尝试。
type Attempt struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	Account   string    `json:"account"`
	CourseID  uint64    `json:"course_id"`
	// Student 仅在 mark_completion 时有值。
	Student string `json:"student,omitempty"`
	// RewardTokens 是 add_course 请求的十进制展示值,RewardRaw 是按
	// 代币精度换算后的最小单位(十进制字符串),上链用的是后者。
	RewardTokens float64 `json:"reward_tokens,omitempty"`
	RewardRaw    string  `json:"reward_raw,omitempty"`

	Phase        Phase  `json:"phase"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	GasUsed      uint64 `json:"gas_used,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Confirmation 是交易上链后的回执摘要。
type Confirmation struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

var (
	// ErrAttemptNotFound 表示指定的交易尝试不存在。
	ErrAttemptNotFound = xerrors.New(CodeAttemptNotFound, "attempt not found")
	// ErrAttemptConflict 表示尝试在当前阶段无法进行所请求的操作。
	ErrAttemptConflict = xerrors.New(CodeAttemptConflict, "attempt conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrAttemptFinished 表示尝试已经进入终态。
	ErrAttemptFinished = xerrors.New(CodeAttemptFinished, "attempt already finished", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeAttemptNotFound   xerrors.Code = "ATTEMPT_NOT_FOUND"
	CodeAttemptConflict   xerrors.Code = "ATTEMPT_CONFLICT"
	CodeAttemptFinished   xerrors.Code = "ATTEMPT_FINISHED"
	CodeAttemptPublish    xerrors.Code = "ATTEMPT_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeAttemptNotFound, xerrors.Attributes{
		Message:   "attempt not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAttemptConflict, xerrors.Attributes{
		Message:   "attempt conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAttemptFinished, xerrors.Attributes{
		Message:   "attempt already finished",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAttemptPublish, xerrors.Attributes{
		Message:   "failed to publish attempt",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// IsValidPhase 检查给定阶段是否为支持的枚举值。
func IsValidPhase(phase Phase) bool {
	switch phase {
	case PhasePending, PhaseEstimating, PhaseSubmitted, PhaseConfirmed, PhaseFailed:
		return true
	default:
		return false
	}
}

// IsValidOperation 检查给定操作是否为支持的枚举值。
func IsValidOperation(op Operation) bool {
	switch op {
	case OpClaimReward, OpAddCourse, OpMarkCompletion, OpDeleteCourse:
		return true
	default:
		return false
	}
}

// Terminal 报告阶段是否为终态。
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed
}

func cloneAttempt(attempt *Attempt) *Attempt {
	clone := *attempt
	return &clone
}
