package txflow

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "Sonic-University/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录交易尝试。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS tx_attempts (
        id VARCHAR(64) PRIMARY KEY,
        operation VARCHAR(32) NOT NULL,
        account VARCHAR(64) NOT NULL,
        course_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
        student VARCHAR(64) DEFAULT '',
        reward_tokens DOUBLE NOT NULL DEFAULT 0,
        reward_raw VARCHAR(96) DEFAULT '',
        phase VARCHAR(32) NOT NULL,
        tx_hash VARCHAR(66) DEFAULT '',
        block_number BIGINT UNSIGNED NOT NULL DEFAULT 0,
        gas_used BIGINT UNSIGNED NOT NULL DEFAULT 0,
        error_code VARCHAR(64) DEFAULT '',
        error_message TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_attempt_phase (phase),
        INDEX idx_attempt_account (account),
        INDEX idx_attempt_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 tx_attempts 表失败")
	}
	return nil
}

// Create 插入新的尝试记录。
func (s *MySQLStore) Create(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "attempt 不能为空")
	}
	if strings.TrimSpace(attempt.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "尝试 ID 不能为空")
	}

	now := time.Now().Unix()
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	if attempt.Phase == "" {
		attempt.Phase = PhasePending
	}

	const stmt = `INSERT INTO tx_attempts
        (id, operation, account, course_id, student, reward_tokens, reward_raw, phase, tx_hash, error_code, error_message, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		attempt.ID,
		attempt.Operation,
		attempt.Account,
		attempt.CourseID,
		attempt.Student,
		attempt.RewardTokens,
		attempt.RewardRaw,
		attempt.Phase,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAttemptConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入尝试失败")
	}
	return nil
}

const attemptColumns = `id, operation, account, course_id, student, reward_tokens, reward_raw, phase,
        tx_hash, block_number, gas_used, error_code, error_message, created_at, updated_at`

func scanAttempt(scanner interface{ Scan(...any) error }) (*Attempt, error) {
	var attempt Attempt
	err := scanner.Scan(
		&attempt.ID,
		&attempt.Operation,
		&attempt.Account,
		&attempt.CourseID,
		&attempt.Student,
		&attempt.RewardTokens,
		&attempt.RewardRaw,
		&attempt.Phase,
		&attempt.TxHash,
		&attempt.BlockNumber,
		&attempt.GasUsed,
		&attempt.ErrorCode,
		&attempt.ErrorMessage,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Get 查询指定尝试。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM tx_attempts WHERE id = ?`
	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询尝试失败")
	}
	return attempt, nil
}

// Claim 将 pending 的尝试推进到 estimating 并返回最新状态。条件更新
// 保证并发 worker 只有一个能领取成功。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Attempt, error) {
	const updateStmt = `UPDATE tx_attempts SET phase = ?, updated_at = ?, error_code = '', error_message = ''
        WHERE id = ? AND phase = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt, PhaseEstimating, now, id, PhasePending)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新尝试阶段失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		attempt, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if attempt.Phase.Terminal() {
			return attempt, ErrAttemptFinished
		}
		return attempt, ErrAttemptConflict
	}
	return s.Get(ctx, id)
}

// MarkSubmitted 记录交易哈希并推进到 submitted。
func (s *MySQLStore) MarkSubmitted(ctx context.Context, id string, txHash string) error {
	const stmt = `UPDATE tx_attempts SET phase = ?, tx_hash = ?, updated_at = ?
        WHERE id = ? AND phase NOT IN (?, ?)`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt, PhaseSubmitted, txHash, now, id, PhaseConfirmed, PhaseFailed)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记尝试已提交失败")
	}
	return s.checkTransition(ctx, res, id)
}

// MarkConfirmed 记录回执并推进到 confirmed 终态。
func (s *MySQLStore) MarkConfirmed(ctx context.Context, id string, conf Confirmation) error {
	const stmt = `UPDATE tx_attempts SET phase = ?, tx_hash = IF(? <> '', ?, tx_hash),
        block_number = ?, gas_used = ?, error_code = '', error_message = '', updated_at = ?
        WHERE id = ? AND phase NOT IN (?, ?)`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		PhaseConfirmed,
		conf.TxHash, conf.TxHash,
		conf.BlockNumber,
		conf.GasUsed,
		now,
		id,
		PhaseConfirmed, PhaseFailed,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记尝试已确认失败")
	}
	return s.checkTransition(ctx, res, id)
}

// MarkFailed 推进到 failed 终态。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, message string) error {
	const stmt = `UPDATE tx_attempts SET phase = ?, error_code = ?, error_message = ?, updated_at = ?
        WHERE id = ? AND phase NOT IN (?, ?)`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt, PhaseFailed, string(code), message, now, id, PhaseConfirmed, PhaseFailed)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记尝试失败失败")
	}
	return s.checkTransition(ctx, res, id)
}

func (s *MySQLStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return getErr
	}
	// 记录存在但没被更新:说明已经进入终态。
	return ErrAttemptFinished
}

// List 返回符合过滤条件的尝试。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Attempt, error) {
	opts.applyDefaults()

	query := `SELECT ` + attemptColumns + ` FROM tx_attempts`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询尝试列表失败")
	}
	defer rows.Close()

	attempts := make([]*Attempt, 0, opts.Limit)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析尝试记录失败")
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历尝试失败")
	}
	return attempts, nil
}

// Stats 返回符合过滤条件的尝试聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (AttemptStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END) AS estimating,
        SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END) AS submitted,
        SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END) AS confirmed,
        SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM tx_attempts`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(PhasePending), string(PhaseEstimating), string(PhaseSubmitted), string(PhaseConfirmed), string(PhaseFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats AttemptStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Estimating,
		&stats.Submitted,
		&stats.Confirmed,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return AttemptStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询尝试统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if len(opts.Phases) > 0 {
		placeholders := make([]string, 0, len(opts.Phases))
		for range opts.Phases {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("phase IN (%s)", strings.Join(placeholders, ",")))
		for _, phase := range opts.Phases {
			args = append(args, phase)
		}
	}
	if len(opts.Operations) > 0 {
		placeholders := make([]string, 0, len(opts.Operations))
		for range opts.Operations {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("operation IN (%s)", strings.Join(placeholders, ",")))
		for _, op := range opts.Operations {
			args = append(args, op)
		}
	}
	if opts.Account != "" {
		conditions = append(conditions, "LOWER(account) = LOWER(?)")
		args = append(args, opts.Account)
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
