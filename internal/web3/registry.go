package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Role identifies one of the logical contracts a deployment consists of.
// Keeping this a closed enumeration avoids the stringly-typed lookups the
// dapp prototype used.
type Role string

const (
	RoleTracker Role = "courseCompletionTracker"
	RoleToken   Role = "rewardToken"
)

// Contract is a resolved deployment entry: where the contract lives and how
// to talk to it.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

// Deployment maps contract roles to their resolved entries for one chain.
type Deployment map[Role]Contract

// Registry is the immutable chain id -> deployment table. It is built once
// at startup and is safe for concurrent reads.
type Registry struct {
	chains map[uint64]Deployment
}

// NewRegistry builds the registry from chain definitions. Chains without any
// configured address are skipped entirely; a chain may carry only one of the
// two roles when the other address is unset.
func NewRegistry(defs ChainDefinitions) (*Registry, error) {
	trackerABI, err := TrackerABI()
	if err != nil {
		return nil, err
	}
	tokenABI, err := TokenABI()
	if err != nil {
		return nil, err
	}

	chains := make(map[uint64]Deployment)
	for _, def := range defs.Chains {
		if def.ChainID == 0 {
			continue
		}
		deployment := Deployment{}
		if addr := strings.TrimSpace(def.TrackerAddress); addr != "" {
			deployment[RoleTracker] = Contract{Address: common.HexToAddress(addr), ABI: trackerABI}
		}
		if addr := strings.TrimSpace(def.TokenAddress); addr != "" {
			deployment[RoleToken] = Contract{Address: common.HexToAddress(addr), ABI: tokenABI}
		}
		if len(deployment) == 0 {
			continue
		}
		chains[def.ChainID] = deployment
	}

	return &Registry{chains: chains}, nil
}

// Lookup returns the deployment for a chain id. Unconfigured chains yield an
// empty deployment, never an error and never an address from another chain:
// callers treat a missing contract as a recoverable condition.
func (r *Registry) Lookup(chainID uint64) Deployment {
	if r == nil {
		return Deployment{}
	}
	deployment, ok := r.chains[chainID]
	if !ok {
		return Deployment{}
	}
	// Shallow copy so callers cannot mutate the table.
	clone := make(Deployment, len(deployment))
	for role, contract := range deployment {
		clone[role] = contract
	}
	return clone
}

// Contract resolves a single role on a chain.
func (r *Registry) Contract(chainID uint64, role Role) (Contract, bool) {
	if r == nil {
		return Contract{}, false
	}
	deployment, ok := r.chains[chainID]
	if !ok {
		return Contract{}, false
	}
	contract, ok := deployment[role]
	return contract, ok
}

// Chains returns the configured chain ids, mainly for logging.
func (r *Registry) Chains() []uint64 {
	if r == nil {
		return nil
	}
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
