package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// EventType distinguishes the notifications a wallet backend can emit.
type EventType string

const (
	EventAccountsChanged EventType = "accountsChanged"
	EventChainChanged    EventType = "chainChanged"
)

// Event is one wallet-originated notification. Accounts is meaningful for
// EventAccountsChanged (empty slice means the wallet revoked access),
// ChainID for EventChainChanged.
type Event struct {
	Type     EventType
	Accounts []common.Address
	ChainID  *big.Int
}

// Bridge abstracts the wallet backend the session talks to. RequestAccounts
// is the interactive authorization path and may fail when the holder
// declines; Accounts is the silent probe used to restore a prior session
// without prompting.
type Bridge interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	// Backend returns the read/write capable chain backend. It stays usable
	// for reads even when no account is authorized.
	Backend() bind.ContractBackend
	// Signer returns transact opts bound to the given account, or an error
	// when the bridge holds no key for it.
	Signer(account common.Address) (*bind.TransactOpts, error)
	// Events delivers wallet-originated notifications until Close.
	Events() <-chan Event
	Close()
}
