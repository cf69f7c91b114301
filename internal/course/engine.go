package course

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"Sonic-University/internal/web3"
	"Sonic-University/internal/web3/gateway"
	"Sonic-University/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Engine 负责把静态目录与链上状态对账成统一的课程视图。所有读取都
// 走 gateway 解析出的只读句柄，引擎本身不持有任何连接。
type Engine struct {
	gateway   *gateway.Gateway
	catalog   *Catalog
	scanLimit int

	mu       sync.Mutex
	decimals map[uint64]uint8 // 按链缓存代币精度，成功取到一次后不再查询
}

// NewEngine 构建对账引擎。scanLimit 是枚举接口不可用时顺序扫描的
// 课程 ID 上限。
func NewEngine(gw *gateway.Gateway, catalog *Catalog, scanLimit int) *Engine {
	if scanLimit <= 0 {
		scanLimit = 20
	}
	return &Engine{
		gateway:   gw,
		catalog:   catalog,
		scanLimit: scanLimit,
		decimals:  make(map[uint64]uint8),
	}
}

// Catalog 返回引擎使用的静态目录。
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Defaults 返回纯目录视图:所有课程 is_created=false、奖励为 0、
// 状态为 available。没有 provider 或单门课程读取失败时都会退回到它。
func (e *Engine) Defaults() []CombinedCourse {
	courses := e.catalog.Courses()
	out := make([]CombinedCourse, len(courses))
	for i, c := range courses {
		out[i] = CombinedCourse{Course: c, Status: StatusAvailable}
	}
	return out
}

// FetchAll 对目录中的每门课程读取链上状态并合并。结果顺序与目录
// 一致。account 为 nil 表示未连接钱包,只取课程登记信息。
//
// 单门课程读取失败只降级该条目并记日志,不影响整批;tracker 合约
// 本身解析不出来才返回错误。
func (e *Engine) FetchAll(ctx context.Context, caller bind.ContractCaller, chainID uint64, account *common.Address) ([]CombinedCourse, error) {
	if caller == nil {
		return e.Defaults(), nil
	}
	tracker, err := e.gateway.Reader(chainID, web3.RoleTracker, caller)
	if err != nil {
		return nil, err
	}
	decimals := e.tokenDecimals(ctx, caller, chainID)

	courses := e.catalog.Courses()
	results := make([]CombinedCourse, len(courses))
	var wg sync.WaitGroup
	for i, c := range courses {
		wg.Add(1)
		go func(i int, c Course) {
			defer wg.Done()
			results[i] = e.fetchOne(ctx, tracker, decimals, c, account)
		}(i, c)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchOne 读取单门课程。三次读取中任何一次失败都整体退回目录默认值,
// 绝不返回半新半旧的状态。
func (e *Engine) fetchOne(ctx context.Context, tracker *gateway.Handle, decimals uint8, c Course, account *common.Address) CombinedCourse {
	fallback := CombinedCourse{Course: c, Status: StatusAvailable}

	onChain, err := readCourse(ctx, tracker, c.ID)
	if err != nil {
		logger.Named("course").Warn("读取课程链上状态失败,回退目录默认值",
			"course_id", c.ID, "error", err)
		return fallback
	}
	combined := CombinedCourse{
		Course:    c,
		IsCreated: onChain.IsCreated,
		Status:    StatusAvailable,
	}
	if onChain.IsCreated {
		combined.Reward = formatUnits(onChain.RewardAmount, decimals)
	}
	if account == nil || !onChain.IsCreated {
		return combined
	}

	user, err := readUserState(ctx, tracker, *account, c.ID)
	if err != nil {
		logger.Named("course").Warn("读取学员课程状态失败,回退目录默认值",
			"course_id", c.ID, "account", account.Hex(), "error", err)
		return fallback
	}
	combined.HasCompleted = user.HasCompleted
	combined.HasClaimed = user.HasClaimed
	combined.Status = DeriveStatus(user.HasCompleted, user.HasClaimed)
	return combined
}

// Discover 枚举链上登记的全部课程,包括目录之外的条目。优先调用
// get_course_ids;老版本合约没有该方法时退回 1..scanLimit 的顺序扫描。
func (e *Engine) Discover(ctx context.Context, caller bind.ContractCaller, chainID uint64, account *common.Address) ([]DiscoveredCourse, error) {
	if caller == nil {
		return nil, nil
	}
	tracker, err := e.gateway.Reader(chainID, web3.RoleTracker, caller)
	if err != nil {
		return nil, err
	}

	ids, err := readCourseIDs(ctx, tracker)
	if err != nil {
		logger.Named("course").Info("课程 ID 枚举不可用,退回顺序扫描",
			"scan_limit", e.scanLimit, "error", err)
		ids = make([]uint64, 0, e.scanLimit)
		for id := 1; id <= e.scanLimit; id++ {
			ids = append(ids, uint64(id))
		}
	}

	out := make([]DiscoveredCourse, 0, len(ids))
	for _, id := range ids {
		onChain, err := readCourse(ctx, tracker, id)
		if err != nil {
			logger.Named("course").Warn("读取课程链上状态失败,跳过",
				"course_id", id, "error", err)
			continue
		}
		if !onChain.IsCreated {
			continue
		}
		decimals := e.tokenDecimals(ctx, caller, chainID)
		d := DiscoveredCourse{
			ID:     id,
			Title:  e.discoveredTitle(id),
			Reward: formatUnits(onChain.RewardAmount, decimals),
			Status: StatusAvailable,
		}
		if account != nil {
			user, err := readUserState(ctx, tracker, *account, id)
			if err != nil {
				logger.Named("course").Warn("读取学员课程状态失败,按未完成处理",
					"course_id", id, "account", account.Hex(), "error", err)
			} else {
				d.HasCompleted = user.HasCompleted
				d.HasClaimed = user.HasClaimed
				d.Status = DeriveStatus(user.HasCompleted, user.HasClaimed)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// TokenBalance 读取账户的奖励代币余额,换算成十进制数量。
func (e *Engine) TokenBalance(ctx context.Context, caller bind.ContractCaller, chainID uint64, account common.Address) (float64, error) {
	token, err := e.gateway.Reader(chainID, web3.RoleToken, caller)
	if err != nil {
		return 0, err
	}
	var out []any
	if err := token.Call(ctx, &out, "balanceOf", account); err != nil {
		return 0, err
	}
	raw, ok := first[*big.Int](out)
	if !ok {
		return 0, fmt.Errorf("balanceOf 返回值类型不符")
	}
	return formatUnits(raw, e.tokenDecimals(ctx, caller, chainID)), nil
}

// TrackerOwner 读取 tracker 合约的所有者地址。
func (e *Engine) TrackerOwner(ctx context.Context, caller bind.ContractCaller, chainID uint64) (common.Address, error) {
	tracker, err := e.gateway.Reader(chainID, web3.RoleTracker, caller)
	if err != nil {
		return common.Address{}, err
	}
	var out []any
	if err := tracker.Call(ctx, &out, "owner"); err != nil {
		return common.Address{}, err
	}
	owner, ok := first[common.Address](out)
	if !ok {
		return common.Address{}, fmt.Errorf("owner 返回值类型不符")
	}
	return owner, nil
}

// TokenDecimals 查询奖励代币精度,供交易服务换算奖励金额。
func (e *Engine) TokenDecimals(ctx context.Context, caller bind.ContractCaller, chainID uint64) uint8 {
	return e.tokenDecimals(ctx, caller, chainID)
}

// tokenDecimals 返回当前链上奖励代币的精度。每条链只成功查询一次;
// 查询失败时按该次调用退回 18 并记日志,不缓存失败结果。
func (e *Engine) tokenDecimals(ctx context.Context, caller bind.ContractCaller, chainID uint64) uint8 {
	e.mu.Lock()
	if d, ok := e.decimals[chainID]; ok {
		e.mu.Unlock()
		return d
	}
	e.mu.Unlock()

	token, err := e.gateway.Reader(chainID, web3.RoleToken, caller)
	if err == nil {
		var out []any
		if err = token.Call(ctx, &out, "decimals"); err == nil {
			if d, ok := first[uint8](out); ok {
				e.mu.Lock()
				e.decimals[chainID] = d
				e.mu.Unlock()
				return d
			}
			err = fmt.Errorf("decimals 返回值类型不符")
		}
	}
	logger.Named("course").Warn("查询代币精度失败,本次按 18 处理",
		"chain_id", chainID, "error", err)
	return 18
}

func (e *Engine) discoveredTitle(id uint64) string {
	if c, ok := e.catalog.Lookup(id); ok {
		return c.Title
	}
	return fmt.Sprintf("Course #%d", id)
}

func readCourse(ctx context.Context, tracker *gateway.Handle, id uint64) (OnChainState, error) {
	var out []any
	if err := tracker.Call(ctx, &out, "courses", new(big.Int).SetUint64(id)); err != nil {
		return OnChainState{}, err
	}
	if len(out) != 2 {
		return OnChainState{}, fmt.Errorf("courses 返回 %d 个值,预期 2 个", len(out))
	}
	isCreated, ok1 := out[0].(bool)
	reward, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return OnChainState{}, fmt.Errorf("courses 返回值类型不符")
	}
	return OnChainState{IsCreated: isCreated, RewardAmount: reward}, nil
}

func readCourseIDs(ctx context.Context, tracker *gateway.Handle) ([]uint64, error) {
	var out []any
	if err := tracker.Call(ctx, &out, "get_course_ids"); err != nil {
		return nil, err
	}
	raw, ok := first[[]*big.Int](out)
	if !ok {
		return nil, fmt.Errorf("get_course_ids 返回值类型不符")
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		if id == nil || !id.IsUint64() {
			continue
		}
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

func readUserState(ctx context.Context, tracker *gateway.Handle, account common.Address, id uint64) (UserState, error) {
	courseID := new(big.Int).SetUint64(id)

	var completedOut []any
	if err := tracker.Call(ctx, &completedOut, "has_completed", account, courseID); err != nil {
		return UserState{}, err
	}
	hasCompleted, ok := first[bool](completedOut)
	if !ok {
		return UserState{}, fmt.Errorf("has_completed 返回值类型不符")
	}

	var claimedOut []any
	if err := tracker.Call(ctx, &claimedOut, "has_claimed_reward", account, courseID); err != nil {
		return UserState{}, err
	}
	hasClaimed, ok := first[bool](claimedOut)
	if !ok {
		return UserState{}, fmt.Errorf("has_claimed_reward 返回值类型不符")
	}
	return UserState{HasCompleted: hasCompleted, HasClaimed: hasClaimed}, nil
}

// formatUnits 按代币精度把最小单位换算成十进制数量。用 big.Rat 做
// 除法,避免先转 float64 再除带来的精度损失。
func formatUnits(raw *big.Int, decimals uint8) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value, _ := new(big.Rat).SetFrac(raw, scale).Float64()
	return value
}

func first[T any](out []any) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, false
	}
	return v, true
}
