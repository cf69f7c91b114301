package course

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"
	"Sonic-University/internal/web3/gateway"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const testChainID = 31337

var (
	testTrackerAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testTokenAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testOwnerAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testStudentAddr = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type courseRecord struct {
	created bool
	reward  *big.Int
}

// fakeChain 在内存里模拟 tracker 与 token 两个合约,按 ABI 解码请求
// 再按 ABI 编码返回值,行为与真实节点的 eth_call 一致。
type fakeChain struct {
	trackerABI abi.ABI
	tokenABI   abi.ABI

	courses    map[uint64]courseRecord
	courseIDs  []uint64
	enumerable bool
	completed  map[string]bool
	claimed    map[string]bool
	balances   map[common.Address]*big.Int
	decimals   uint8

	failCourses   map[uint64]bool
	decimalsCalls int
	decimalsErr   bool
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	trackerABI, err := web3.TrackerABI()
	if err != nil {
		t.Fatalf("parse tracker abi: %v", err)
	}
	tokenABI, err := web3.TokenABI()
	if err != nil {
		t.Fatalf("parse token abi: %v", err)
	}
	return &fakeChain{
		trackerABI:  trackerABI,
		tokenABI:    tokenABI,
		courses:     make(map[uint64]courseRecord),
		completed:   make(map[string]bool),
		claimed:     make(map[string]bool),
		balances:    make(map[common.Address]*big.Int),
		failCourses: make(map[uint64]bool),
		decimals:    18,
	}
}

func stateKey(account common.Address, id uint64) string {
	return fmt.Sprintf("%s/%d", account.Hex(), id)
}

func (f *fakeChain) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("malformed call")
	}
	switch *msg.To {
	case testTrackerAddr:
		return f.callTracker(msg.Data)
	case testTokenAddr:
		return f.callToken(msg.Data)
	}
	return nil, fmt.Errorf("unknown contract %s", msg.To.Hex())
}

func (f *fakeChain) callTracker(data []byte) ([]byte, error) {
	method, err := f.trackerABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "owner":
		return method.Outputs.Pack(testOwnerAddr)
	case "courses":
		id := args[0].(*big.Int).Uint64()
		if f.failCourses[id] {
			return nil, errors.New("node unavailable")
		}
		rec := f.courses[id]
		reward := rec.reward
		if reward == nil {
			reward = big.NewInt(0)
		}
		return method.Outputs.Pack(rec.created, reward)
	case "get_course_ids":
		if !f.enumerable {
			return nil, errors.New("execution reverted")
		}
		ids := make([]*big.Int, len(f.courseIDs))
		for i, id := range f.courseIDs {
			ids[i] = new(big.Int).SetUint64(id)
		}
		return method.Outputs.Pack(ids)
	case "has_completed":
		return method.Outputs.Pack(f.completed[stateKey(args[0].(common.Address), args[1].(*big.Int).Uint64())])
	case "has_claimed_reward":
		return method.Outputs.Pack(f.claimed[stateKey(args[0].(common.Address), args[1].(*big.Int).Uint64())])
	}
	return nil, fmt.Errorf("unexpected tracker method %s", method.Name)
}

func (f *fakeChain) callToken(data []byte) ([]byte, error) {
	method, err := f.tokenABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		f.decimalsCalls++
		if f.decimalsErr {
			return nil, errors.New("node unavailable")
		}
		return method.Outputs.Pack(f.decimals)
	case "balanceOf":
		bal := f.balances[args[0].(common.Address)]
		if bal == nil {
			bal = big.NewInt(0)
		}
		return method.Outputs.Pack(bal)
	case "symbol":
		return method.Outputs.Pack("SUT")
	}
	return nil, fmt.Errorf("unexpected token method %s", method.Name)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	registry, err := web3.NewRegistry(web3.ChainDefinitions{Chains: map[string]web3.ChainDefinition{
		"devnet": {
			ChainID:        testChainID,
			TrackerAddress: testTrackerAddr.Hex(),
			TokenAddress:   testTokenAddr.Hex(),
		},
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return NewEngine(gateway.New(registry, testChainID), catalog, 20)
}

func sut(amount int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(amount), wei)
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		completed, claimed bool
		want               Status
	}{
		{false, false, StatusAvailable},
		{true, false, StatusClaimable},
		{true, true, StatusCompleted},
		// 不信任 hasClaimed 蕴含 hasCompleted:未完成一律 available。
		{false, true, StatusAvailable},
	}
	for _, tc := range cases {
		if got := DeriveStatus(tc.completed, tc.claimed); got != tc.want {
			t.Errorf("DeriveStatus(%v, %v) = %q, want %q", tc.completed, tc.claimed, got, tc.want)
		}
	}
}

func TestFetchAllWithoutProvider(t *testing.T) {
	engine := newTestEngine(t)
	got, err := engine.FetchAll(context.Background(), nil, testChainID, nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != engine.Catalog().Len() {
		t.Fatalf("got %d courses, want %d", len(got), engine.Catalog().Len())
	}
	for _, c := range got {
		if c.IsCreated || c.Reward != 0 || c.Status != StatusAvailable {
			t.Errorf("course %d: want catalog defaults, got %+v", c.ID, c)
		}
	}
}

func TestFetchAllMergesChainState(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.courses[1] = courseRecord{created: true, reward: sut(100)}
	chain.courses[2] = courseRecord{created: true, reward: sut(250)}
	chain.completed[stateKey(testStudentAddr, 1)] = true
	chain.claimed[stateKey(testStudentAddr, 1)] = true
	chain.completed[stateKey(testStudentAddr, 2)] = true

	got, err := engine.FetchAll(context.Background(), chain, testChainID, &testStudentAddr)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	// 结果顺序必须与目录一致。
	for i, c := range engine.Catalog().Courses() {
		if got[i].ID != c.ID {
			t.Fatalf("position %d: got course %d, want %d", i, got[i].ID, c.ID)
		}
	}
	if got[0].Status != StatusCompleted || got[0].Reward != 100 {
		t.Errorf("course 1: got status %q reward %v, want completed / 100", got[0].Status, got[0].Reward)
	}
	if got[1].Status != StatusClaimable || got[1].Reward != 250 {
		t.Errorf("course 2: got status %q reward %v, want claimable / 250", got[1].Status, got[1].Reward)
	}
	if got[2].IsCreated || got[2].Status != StatusAvailable {
		t.Errorf("course 3: want uncreated available, got %+v", got[2])
	}
}

func TestFetchAllDegradesFailedCourse(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.courses[1] = courseRecord{created: true, reward: sut(100)}
	chain.courses[2] = courseRecord{created: true, reward: sut(250)}
	chain.failCourses[2] = true

	got, err := engine.FetchAll(context.Background(), chain, testChainID, &testStudentAddr)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got[1].IsCreated || got[1].Reward != 0 || got[1].Status != StatusAvailable {
		t.Errorf("failed course should fall back to defaults, got %+v", got[1])
	}
	if !got[0].IsCreated || got[0].Reward != 100 {
		t.Errorf("healthy course should be unaffected, got %+v", got[0])
	}
}

func TestFetchAllStructuralFailure(t *testing.T) {
	// 注册表里没有该链的 tracker 部署:这是结构性失败,整批报错。
	registry, err := web3.NewRegistry(web3.ChainDefinitions{Chains: map[string]web3.ChainDefinition{
		"devnet": {ChainID: testChainID, TokenAddress: testTokenAddr.Hex()},
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	engine := NewEngine(gateway.New(registry, testChainID), catalog, 20)

	_, err = engine.FetchAll(context.Background(), newFakeChain(t), testChainID, nil)
	if err == nil {
		t.Fatal("expected error for missing tracker deployment")
	}
	if code := xerrors.CodeOf(err); code != web3.CodeContractUnavailable {
		t.Fatalf("got code %q, want %q", code, web3.CodeContractUnavailable)
	}
}

func TestFetchAllQueriesDecimalsOnce(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.courses[1] = courseRecord{created: true, reward: sut(100)}

	for i := 0; i < 3; i++ {
		if _, err := engine.FetchAll(context.Background(), chain, testChainID, nil); err != nil {
			t.Fatalf("FetchAll #%d: %v", i, err)
		}
	}
	if chain.decimalsCalls != 1 {
		t.Fatalf("decimals queried %d times, want 1", chain.decimalsCalls)
	}
}

func TestFetchAllRespectsTokenDecimals(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.decimals = 6
	chain.courses[1] = courseRecord{created: true, reward: big.NewInt(1_500_000)}

	got, err := engine.FetchAll(context.Background(), chain, testChainID, nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got[0].Reward != 1.5 {
		t.Fatalf("reward = %v, want 1.5", got[0].Reward)
	}
}

func TestDiscoverEnumerates(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.enumerable = true
	chain.courseIDs = []uint64{1, 42}
	chain.courses[1] = courseRecord{created: true, reward: sut(100)}
	chain.courses[42] = courseRecord{created: true, reward: sut(7)}
	chain.completed[stateKey(testStudentAddr, 42)] = true

	got, err := engine.Discover(context.Background(), chain, testChainID, &testStudentAddr)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d courses, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].Title != "Blockchain Fundamentals" {
		t.Errorf("course 1: got %+v", got[0])
	}
	if got[1].ID != 42 || got[1].Title != "Course #42" {
		t.Errorf("off-catalog course should get a synthetic title, got %+v", got[1])
	}
	if got[1].Status != StatusClaimable {
		t.Errorf("course 42: got status %q, want claimable", got[1].Status)
	}
}

func TestDiscoverFallsBackToScan(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.enumerable = false
	chain.courses[3] = courseRecord{created: true, reward: sut(10)}
	chain.courses[7] = courseRecord{created: true, reward: sut(20)}

	got, err := engine.Discover(context.Background(), chain, testChainID, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 7 {
		t.Fatalf("scan should find courses 3 and 7, got %+v", got)
	}
}

func TestTokenBalance(t *testing.T) {
	engine := newTestEngine(t)
	chain := newFakeChain(t)
	chain.balances[testStudentAddr] = sut(360)

	got, err := engine.TokenBalance(context.Background(), chain, testChainID, testStudentAddr)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if got != 360 {
		t.Fatalf("balance = %v, want 360", got)
	}
}

func TestTrackerOwner(t *testing.T) {
	engine := newTestEngine(t)
	got, err := engine.TrackerOwner(context.Background(), newFakeChain(t), testChainID)
	if err != nil {
		t.Fatalf("TrackerOwner: %v", err)
	}
	if got != testOwnerAddr {
		t.Fatalf("owner = %s, want %s", got.Hex(), testOwnerAddr.Hex())
	}
}
