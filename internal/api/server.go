package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Sonic-University/internal/config"
	"Sonic-University/internal/course"
	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/observability/metrics"
	"Sonic-University/internal/txflow"
	"Sonic-University/internal/web3/wallet"
)

// Server 负责暴露 REST 接口,供前端查询课程状态并提交链上交易。
type Server struct {
	addr    string
	cfg     *config.Config
	engine  *course.Engine
	session *wallet.Session
	txs     *txflow.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, cfg *config.Config, engine *course.Engine, session *wallet.Session, txs *txflow.Service) *Server {
	return &Server{addr: addr, cfg: cfg, engine: engine, session: session, txs: txs}
}

// Start 启动 HTTP 服务,直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/config", s.instrument("config", s.handleConfig))
	mux.HandleFunc("/api/v1/courses", s.instrument("courses", s.handleCourses))
	mux.HandleFunc("/api/v1/courses/onchain", s.instrument("courses_onchain", s.handleCoursesOnChain))
	mux.HandleFunc("/api/v1/balance", s.instrument("balance", s.handleBalance))
	mux.HandleFunc("/api/v1/owner", s.instrument("owner", s.handleOwner))
	mux.HandleFunc("/api/v1/transactions", s.instrument("transactions", s.handleTransactions))
	mux.HandleFunc("/api/v1/transactions/", s.instrument("transaction_detail", s.handleTransactionDetail))
	mux.HandleFunc("/api/v1/transactions/stats", s.instrument("transaction_stats", s.handleTransactionStats))
	mux.Handle("/metrics", metrics.Handler())

	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// configResponse 是启动配置的前端视图。地址为空表示对应功能降级。
type configResponse struct {
	Contracts struct {
		Tracker string `json:"tracker"`
		Token   string `json:"token"`
	} `json:"contracts"`
	WalletConnect struct {
		ProjectID string `json:"projectId"`
	} `json:"walletConnect"`
	RequiredChainID uint64 `json:"requiredChainId"`
}

// handleConfig 返回前端初始化所需的合约地址与 WalletConnect 项目标识。
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	var resp configResponse
	resp.Contracts.Tracker = s.cfg.Contracts.TrackerAddress
	resp.Contracts.Token = s.cfg.Contracts.TokenAddress
	resp.WalletConnect.ProjectID = s.cfg.WalletConnect.ProjectID
	resp.RequiredChainID = s.cfg.Web3.RequiredChainID

	writeJSON(w, http.StatusOK, resp)
}

// handleCourses 返回课程目录与链上状态合并后的快照。
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	account, ok := parseAccount(w, r)
	if !ok {
		return
	}

	courses, err := s.engine.FetchAll(r.Context(), s.session.Provider(), s.session.ChainID(), account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, courses)
}

// handleCoursesOnChain 直接枚举合约里存在的课程,用于管理视图。
func (s *Server) handleCoursesOnChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	account, ok := parseAccount(w, r)
	if !ok {
		return
	}

	discovered, err := s.engine.Discover(r.Context(), s.session.Provider(), s.session.ChainID(), account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, discovered)
}

// handleBalance 查询账户的奖励代币余额。
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	if account == nil {
		http.Error(w, "缺少 account 参数", http.StatusBadRequest)
		return
	}

	balance, err := s.engine.TokenBalance(r.Context(), s.session.Provider(), s.session.ChainID(), *account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"balance": balance,
	})
}

// handleOwner 查询 tracker 合约的管理员地址。前端用它决定是否展示
// 管理入口;真正的权限校验始终在合约侧。
func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	owner, err := s.engine.TrackerOwner(r.Context(), s.session.Provider(), s.session.ChainID())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.Hex()})
}

// handleTransactions 处理交易尝试的提交与列表查询。
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTransaction(w, r)
	case http.MethodGet:
		s.handleListTransactions(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitTransaction 记录一次交易尝试并投递到队列,立即返回 202。
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req txflow.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	attempt, err := s.txs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, attempt)
}

// handleListTransactions 按查询参数过滤交易尝试。
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	attempts, err := s.txs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attempts)
}

// handleTransactionDetail 返回单个交易尝试的当前状态。
func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "无效的交易尝试 ID", http.StatusBadRequest)
		return
	}

	attempt, err := s.txs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attempt)
}

// handleTransactionStats 返回按阶段聚合的计数。
func (s *Server) handleTransactionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.txs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// parseAccount 解析可选的 account 查询参数。非法地址直接拒绝。
func parseAccount(w http.ResponseWriter, r *http.Request) (*common.Address, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("account"))
	if raw == "" {
		return nil, true
	}
	if !common.IsHexAddress(raw) {
		http.Error(w, "无效的 account 地址", http.StatusBadRequest)
		return nil, false
	}
	addr := common.HexToAddress(raw)
	return &addr, true
}

// parseListOptions 把查询参数翻译成列表过滤选项。
func parseListOptions(r *http.Request) ([]txflow.ListOption, error) {
	query := r.URL.Query()
	var opts []txflow.ListOption

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, errors.New("limit 参数必须是正整数")
		}
		opts = append(opts, txflow.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errors.New("offset 参数必须是非负整数")
		}
		opts = append(opts, txflow.WithOffset(offset))
	}
	if raws := query["phase"]; len(raws) > 0 {
		phases := make([]txflow.Phase, 0, len(raws))
		for _, raw := range raws {
			phase := txflow.Phase(strings.ToLower(strings.TrimSpace(raw)))
			if !txflow.IsValidPhase(phase) {
				return nil, errors.New("无效的 phase 参数: " + raw)
			}
			phases = append(phases, phase)
		}
		opts = append(opts, txflow.WithPhases(phases...))
	}
	if raws := query["operation"]; len(raws) > 0 {
		operations := make([]txflow.Operation, 0, len(raws))
		for _, raw := range raws {
			op := txflow.Operation(strings.ToLower(strings.TrimSpace(raw)))
			if !txflow.IsValidOperation(op) {
				return nil, errors.New("无效的 operation 参数: " + raw)
			}
			operations = append(operations, op)
		}
		opts = append(opts, txflow.WithOperations(operations...))
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, errors.New("无效的 account 地址")
		}
		opts = append(opts, txflow.WithAccount(raw))
	}
	if raw := query.Get("since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("since 参数必须是 Unix 秒")
		}
		opts = append(opts, txflow.WithUpdatedSince(time.Unix(ts, 0)))
	}
	if raw := query.Get("until"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("until 参数必须是 Unix 秒")
		}
		opts = append(opts, txflow.WithUpdatedUntil(time.Unix(ts, 0)))
	}
	if raw := query.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "asc":
			opts = append(opts, txflow.WithSortOrder(txflow.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, txflow.WithSortOrder(txflow.SortByUpdatedDesc))
		default:
			return nil, errors.New("order 参数只支持 asc/desc")
		}
	}

	return opts, nil
}

// errorBody 是错误响应的统一结构,code 与内部错误码保持一致。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 把带错误码的内部错误翻译成 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	coded, ok := xerrors.From(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    string(xerrors.CodeUnknown),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, httpStatus(coded.Code()), errorBody{
		Code:    string(coded.Code()),
		Message: coded.Message(),
	})
}

// httpStatus 按错误码映射 HTTP 状态。
func httpStatus(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, txflow.CodeAttemptNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, txflow.CodeAttemptConflict, txflow.CodeAttemptFinished:
		return http.StatusConflict
	case xerrors.CodeChainUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusRecorder 捕获写入的状态码,供指标采集使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 包装处理器并上报请求指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	// 包装处理器以检查上下文状态。
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
