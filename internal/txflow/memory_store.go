package txflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Sonic-University/internal/errors"
)

// MemoryStore 以内存方式保存交易尝试，主要用于测试与单机部署。
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]*Attempt)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, attempt *Attempt) error {
	if attempt == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "attempt 不能为空")
	}
	if attempt.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "尝试 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; ok {
		return ErrAttemptConflict
	}
	now := time.Now().Unix()
	if attempt.CreatedAt == 0 {
		attempt.CreatedAt = now
	}
	attempt.UpdatedAt = now
	if attempt.Phase == "" {
		attempt.Phase = PhasePending
	}
	m.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

// Get 返回尝试。
func (m *MemoryStore) Get(_ context.Context, id string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

// Claim 将 pending 的尝试推进到 estimating。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if attempt.Phase.Terminal() {
		return cloneAttempt(attempt), ErrAttemptFinished
	}
	if attempt.Phase != PhasePending {
		return cloneAttempt(attempt), ErrAttemptConflict
	}
	attempt.Phase = PhaseEstimating
	attempt.ErrorCode = ""
	attempt.ErrorMessage = ""
	attempt.UpdatedAt = time.Now().Unix()
	return cloneAttempt(attempt), nil
}

// MarkSubmitted 记录交易哈希并推进到 submitted。
func (m *MemoryStore) MarkSubmitted(_ context.Context, id string, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	if attempt.Phase.Terminal() {
		return ErrAttemptFinished
	}
	attempt.Phase = PhaseSubmitted
	attempt.TxHash = txHash
	attempt.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkConfirmed 记录回执并推进到 confirmed 终态。
func (m *MemoryStore) MarkConfirmed(_ context.Context, id string, conf Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	if attempt.Phase.Terminal() {
		return ErrAttemptFinished
	}
	attempt.Phase = PhaseConfirmed
	if conf.TxHash != "" {
		attempt.TxHash = conf.TxHash
	}
	attempt.BlockNumber = conf.BlockNumber
	attempt.GasUsed = conf.GasUsed
	attempt.ErrorCode = ""
	attempt.ErrorMessage = ""
	attempt.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 推进到 failed 终态。失败不会被重投,终态不再变化。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	if attempt.Phase.Terminal() {
		return ErrAttemptFinished
	}
	attempt.Phase = PhaseFailed
	attempt.ErrorCode = string(code)
	attempt.ErrorMessage = message
	attempt.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的尝试。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Attempt, 0, len(m.attempts))
	for _, attempt := range m.attempts {
		if !matchesListFilters(attempt, opts) {
			continue
		}
		results = append(results, cloneAttempt(attempt))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset >= len(results) {
		return []*Attempt{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的尝试数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (AttemptStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := AttemptStats{}
	for _, attempt := range m.attempts {
		if !matchesListFilters(attempt, opts) {
			continue
		}
		stats.Total++
		switch attempt.Phase {
		case PhasePending:
			stats.Pending++
		case PhaseEstimating:
			stats.Estimating++
		case PhaseSubmitted:
			stats.Submitted++
		case PhaseConfirmed:
			stats.Confirmed++
		case PhaseFailed:
			stats.Failed++
		}
		if attempt.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = attempt.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (attempt.UpdatedAt != 0 && attempt.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = attempt.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(attempt *Attempt, opts ListOptions) bool {
	if len(opts.Phases) > 0 {
		matched := false
		for _, phase := range opts.Phases {
			if attempt.Phase == phase {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(opts.Operations) > 0 {
		matched := false
		for _, op := range opts.Operations {
			if attempt.Operation == op {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Account != "" && !strings.EqualFold(attempt.Account, opts.Account) {
		return false
	}
	if opts.UpdatedGTE > 0 && attempt.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && attempt.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	return true
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
