package web3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRegistryLookupIsolation(t *testing.T) {
	registry, err := NewRegistry(ChainDefinitions{Chains: map[string]ChainDefinition{
		"sepolia": {
			ChainID:        11155111,
			TrackerAddress: "0x1000000000000000000000000000000000000001",
			TokenAddress:   "0x1000000000000000000000000000000000000002",
		},
		"local": {
			ChainID:        31337,
			TrackerAddress: "0x2000000000000000000000000000000000000001",
		},
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	tracker, ok := registry.Contract(11155111, RoleTracker)
	if !ok {
		t.Fatal("expected tracker on sepolia")
	}
	if tracker.Address != common.HexToAddress("0x1000000000000000000000000000000000000001") {
		t.Fatalf("unexpected tracker address: %v", tracker.Address)
	}

	// 每条链只返回自己的部署,绝不串链。
	localTracker, ok := registry.Contract(31337, RoleTracker)
	if !ok {
		t.Fatal("expected tracker on local chain")
	}
	if localTracker.Address == tracker.Address {
		t.Fatal("chains must not share deployments")
	}

	// local 链没有配置 token,查询失败而不是退回其它链。
	if _, ok := registry.Contract(31337, RoleToken); ok {
		t.Fatal("token must be absent on local chain")
	}
	if _, ok := registry.Contract(1, RoleTracker); ok {
		t.Fatal("unconfigured chain must yield nothing")
	}
}

func TestRegistrySkipsUnconfiguredChains(t *testing.T) {
	registry, err := NewRegistry(ChainDefinitions{Chains: map[string]ChainDefinition{
		"empty":   {ChainID: 5},
		"no-id":   {TrackerAddress: "0x1000000000000000000000000000000000000001"},
		"partial": {ChainID: 10, TokenAddress: "0x1000000000000000000000000000000000000002"},
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	chains := registry.Chains()
	if len(chains) != 1 || chains[0] != 10 {
		t.Fatalf("unexpected chains: %v", chains)
	}
	if _, ok := registry.Contract(10, RoleToken); !ok {
		t.Fatal("expected token-only deployment on chain 10")
	}
	if _, ok := registry.Contract(10, RoleTracker); ok {
		t.Fatal("tracker must be absent on chain 10")
	}
}

func TestLoadChainDefinitions(t *testing.T) {
	content := `chains:
  sepolia:
    chain_id: 11155111
    tracker_address: "0x1000000000000000000000000000000000000001"
    token_address: "0x1000000000000000000000000000000000000002"
    description: "testnet"
`
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load chain config: %v", err)
	}
	def, ok := defs.Chains["sepolia"]
	if !ok {
		t.Fatal("expected sepolia definition")
	}
	if def.ChainID != 11155111 {
		t.Fatalf("unexpected chain id: %d", def.ChainID)
	}

	// 空路径返回空定义集,守护进程可以只靠环境变量运行。
	empty, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("load empty path: %v", err)
	}
	if len(empty.Chains) != 0 {
		t.Fatalf("expected no chains, got %d", len(empty.Chains))
	}
}

func TestChainDefinitionsOverride(t *testing.T) {
	defs := ChainDefinitions{Chains: map[string]ChainDefinition{
		"sepolia": {
			ChainID:        11155111,
			TrackerAddress: "0x1000000000000000000000000000000000000001",
			TokenAddress:   "0x1000000000000000000000000000000000000002",
		},
	}}

	// 只覆盖 tracker,token 保持原值。
	defs.Override("sepolia", 11155111, "0x3000000000000000000000000000000000000003", "")
	def := defs.Chains["sepolia"]
	if def.TrackerAddress != "0x3000000000000000000000000000000000000003" {
		t.Fatalf("unexpected tracker address: %s", def.TrackerAddress)
	}
	if def.TokenAddress != "0x1000000000000000000000000000000000000002" {
		t.Fatalf("token address must survive override: %s", def.TokenAddress)
	}

	// 覆盖不存在的链会新建定义。
	defs.Override("local", 31337, "0x4000000000000000000000000000000000000004", "")
	if def := defs.Chains["local"]; def.ChainID != 31337 {
		t.Fatalf("unexpected new definition: %+v", def)
	}
}

func TestContractABIs(t *testing.T) {
	trackerABI, err := TrackerABI()
	if err != nil {
		t.Fatalf("tracker abi: %v", err)
	}
	for _, method := range []string{"courses", "get_course_ids", "has_completed", "has_claimed_reward", "claim_reward", "add_course", "mark_completion", "delete_course", "owner"} {
		if _, ok := trackerABI.Methods[method]; !ok {
			t.Fatalf("tracker abi missing method %s", method)
		}
	}

	tokenABI, err := TokenABI()
	if err != nil {
		t.Fatalf("token abi: %v", err)
	}
	for _, method := range []string{"balanceOf", "decimals", "symbol"} {
		if _, ok := tokenABI.Methods[method]; !ok {
			t.Fatalf("token abi missing method %s", method)
		}
	}
}
