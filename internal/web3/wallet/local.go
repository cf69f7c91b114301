package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// LocalConfig describes a bridge backed by an RPC endpoint and an optional
// local signing key. Without a key the bridge is read-only: reads work,
// connect attempts find no authorized account.
type LocalConfig struct {
	RPCURL        string
	PrivateKeyHex string
}

// LocalBridge is the daemon-side stand-in for a browser wallet extension:
// one fixed account derived from a configured key, chain id taken from the
// RPC endpoint. It emits no events since a local endpoint does not switch
// accounts or chains underneath us.
type LocalBridge struct {
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	key       *ecdsa.PrivateKey
	account   common.Address
	chainID   *big.Int

	closeOnce sync.Once
	events    chan Event
}

// NewLocalBridge dials the endpoint and derives the account when a key is
// configured.
func NewLocalBridge(ctx context.Context, cfg LocalConfig) (*LocalBridge, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("rpc url is required")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	bridge := &LocalBridge{
		rpcClient: rpcClient,
		eth:       eth,
		chainID:   chainID,
		events:    make(chan Event),
	}

	if keyHex := strings.TrimSpace(cfg.PrivateKeyHex); keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		bridge.key = key
		bridge.account = crypto.PubkeyToAddress(key.PublicKey)
	}

	return bridge, nil
}

// RequestAccounts returns the configured account. There is no prompt to
// decline locally, so this never fails with a rejection.
func (b *LocalBridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return b.Accounts(ctx)
}

// Accounts returns the configured account without side effects.
func (b *LocalBridge) Accounts(context.Context) ([]common.Address, error) {
	if b == nil || b.key == nil {
		return nil, nil
	}
	return []common.Address{b.account}, nil
}

// ChainID returns the endpoint's chain id captured at dial time.
func (b *LocalBridge) ChainID(context.Context) (*big.Int, error) {
	if b == nil || b.chainID == nil {
		return nil, errors.New("bridge not initialised")
	}
	return new(big.Int).Set(b.chainID), nil
}

// Backend exposes the underlying ethclient for contract calls.
func (b *LocalBridge) Backend() bind.ContractBackend {
	if b == nil {
		return nil
	}
	return b.eth
}

// Signer builds keyed transact opts for the configured account.
func (b *LocalBridge) Signer(account common.Address) (*bind.TransactOpts, error) {
	if b == nil || b.key == nil {
		return nil, errors.New("no signing key configured")
	}
	if account != b.account {
		return nil, fmt.Errorf("unknown account %s", account.Hex())
	}
	return bind.NewKeyedTransactorWithChainID(b.key, b.chainID)
}

// Events returns the (silent) notification channel.
func (b *LocalBridge) Events() <-chan Event {
	if b == nil {
		return nil
	}
	return b.events
}

// Close releases the RPC connection.
func (b *LocalBridge) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		close(b.events)
		if b.eth != nil {
			b.eth.Close()
		}
		if b.rpcClient != nil {
			b.rpcClient.Close()
		}
	})
}

var _ Bridge = (*LocalBridge)(nil)
