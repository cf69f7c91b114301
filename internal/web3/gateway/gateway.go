// Package gateway resolves logical contract roles into callable handles,
// combining the chain registry's static lookup with the session's provider
// or signer. It is also where the write-side guardrails live: no signer
// means NOT_CONNECTED, a chain other than the required deployment chain
// means WRONG_NETWORK, both raised before any gas estimation.
package gateway

import (
	"context"
	"fmt"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway binds registry entries to chain backends.
type Gateway struct {
	registry        *web3.Registry
	requiredChainID uint64
}

// New constructs a gateway. requiredChainID is the single chain write
// operations are gated to.
func New(registry *web3.Registry, requiredChainID uint64) *Gateway {
	return &Gateway{registry: registry, requiredChainID: requiredChainID}
}

// RequiredChainID returns the deployment chain writes are restricted to.
func (g *Gateway) RequiredChainID() uint64 {
	return g.requiredChainID
}

// Handle is a bound contract plus the pieces callers need for explicit gas
// estimation.
type Handle struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// Address returns the contract's deployment address.
func (h *Handle) Address() common.Address {
	return h.address
}

// Pack encodes a method call. Callers use it to build gas-estimation
// messages without going through Transact.
func (h *Handle) Pack(method string, args ...any) ([]byte, error) {
	return h.abi.Pack(method, args...)
}

// Call performs a read. It never needs a signer.
func (h *Handle) Call(ctx context.Context, results *[]any, method string, args ...any) error {
	return h.contract.Call(&bind.CallOpts{Context: ctx}, results, method, args...)
}

// Transact submits a state-changing call with the provided opts. The opts
// carry the explicit gas limit computed by the lifecycle controller.
func (h *Handle) Transact(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	return h.contract.Transact(opts, method, args...)
}

// Reader resolves a read-only handle. Missing deployments are reported as a
// structural CONTRACT_UNAVAILABLE condition callers may treat as recoverable.
func (g *Gateway) Reader(chainID uint64, role web3.Role, caller bind.ContractCaller) (*Handle, error) {
	if caller == nil {
		return nil, xerrors.New(web3.CodeWalletUnavailable, "no read provider available")
	}
	contract, ok := g.registry.Contract(chainID, role)
	if !ok {
		return nil, xerrors.New(web3.CodeContractUnavailable,
			fmt.Sprintf("contract %s not deployed on chain %d", role, chainID))
	}
	return &Handle{
		address:  contract.Address,
		abi:      contract.ABI,
		contract: bind.NewBoundContract(contract.Address, contract.ABI, caller, nil, nil),
	}, nil
}

// Writer resolves a write-capable handle. The guards run in a fixed order:
// signer presence first, then the chain gate, then registry resolution —
// so a wallet on the wrong network fails fast without touching the node.
func (g *Gateway) Writer(chainID uint64, role web3.Role, backend bind.ContractBackend, signer *bind.TransactOpts) (*Handle, error) {
	if signer == nil {
		return nil, xerrors.New(web3.CodeNotConnected, "")
	}
	if chainID != g.requiredChainID {
		return nil, xerrors.New(web3.CodeWrongNetwork,
			fmt.Sprintf("connected to chain %d, writes require chain %d", chainID, g.requiredChainID))
	}
	if backend == nil {
		return nil, xerrors.New(web3.CodeWalletUnavailable, "no chain backend available")
	}
	contract, ok := g.registry.Contract(chainID, role)
	if !ok {
		return nil, xerrors.New(web3.CodeContractUnavailable,
			fmt.Sprintf("contract %s not deployed on chain %d", role, chainID))
	}
	return &Handle{
		address:  contract.Address,
		abi:      contract.ABI,
		contract: bind.NewBoundContract(contract.Address, contract.ABI, backend, backend, backend),
	}, nil
}
