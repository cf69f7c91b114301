package wallet

import (
	"context"
	"log/slog"
	"sync"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"
	"Sonic-University/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Session owns the connected-wallet state: account, chain id and the
// provider/signer pair. It is the single writer of its own fields; every
// other component reads them through the accessors. Transitions happen only
// on explicit Connect/Disconnect calls or on wallet-originated events — the
// session never polls.
type Session struct {
	mu         sync.Mutex
	bridge     Bridge
	account    common.Address
	hasAccount bool
	chainID    uint64
	connected  bool
	connecting bool
}

// NewSession wraps a bridge. A nil bridge is a valid degraded state: the
// platform stays browsable read-only and every connect attempt reports that
// no wallet is available.
func NewSession(bridge Bridge) *Session {
	return &Session{bridge: bridge}
}

// Restore silently adopts an already-authorized account, without prompting.
// It is called once on startup and failures are not fatal.
func (s *Session) Restore(ctx context.Context) {
	if s.bridge == nil {
		return
	}
	accounts, err := s.bridge.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return
	}
	chainID, err := s.bridge.ChainID(ctx)
	if err != nil {
		logger.L().Warn("restore: chain id unavailable", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.account = accounts[0]
	s.hasAccount = true
	s.chainID = chainID.Uint64()
	s.connected = true
	s.mu.Unlock()
}

// Connect runs the interactive authorization flow. Re-entrant calls while a
// connect is already in flight are ignored rather than interleaved.
func (s *Session) Connect(ctx context.Context) error {
	if s.bridge == nil {
		return xerrors.New(web3.CodeWalletUnavailable, "")
	}

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	accounts, err := s.bridge.RequestAccounts(ctx)
	if err != nil {
		return xerrors.Wrap(web3.CodeUserRejected, err, "wallet authorization failed")
	}
	if len(accounts) == 0 {
		return nil
	}
	chainID, err := s.bridge.ChainID(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainUnavailable, err, "chain id lookup failed")
	}

	s.mu.Lock()
	s.account = accounts[0]
	s.hasAccount = true
	s.chainID = chainID.Uint64()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Disconnect clears the session locally. The wallet itself keeps whatever
// authorization it granted; there is nothing to revoke on-chain.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.account = common.Address{}
	s.hasAccount = false
	s.chainID = 0
	s.connected = false
	s.mu.Unlock()
}

// Watch consumes bridge events until the context is cancelled. Zero
// accounts reported means access was revoked and the session disconnects;
// an account change updates only the account; a chain change updates only
// the chain id. Provider/signer handles are re-derived lazily by callers.
func (s *Session) Watch(ctx context.Context) {
	if s.bridge == nil {
		return
	}
	events := s.bridge.Events()
	if events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ev)
		}
	}
}

func (s *Session) apply(ev Event) {
	switch ev.Type {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.Disconnect()
			return
		}
		s.mu.Lock()
		s.account = ev.Accounts[0]
		s.hasAccount = true
		s.mu.Unlock()
	case EventChainChanged:
		if ev.ChainID == nil {
			return
		}
		s.mu.Lock()
		s.chainID = ev.ChainID.Uint64()
		s.mu.Unlock()
	}
}

// Account returns the connected account, if any.
func (s *Session) Account() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.hasAccount
}

// ChainID returns the session's current chain id, 0 when disconnected.
func (s *Session) ChainID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

// IsConnected reports whether an account is attached.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Provider returns the read-capable backend. It works without a connected
// account and is nil only when no bridge is configured at all.
func (s *Session) Provider() bind.ContractBackend {
	if s.bridge == nil {
		return nil
	}
	return s.bridge.Backend()
}

// Signer returns transact opts for the connected account. Write paths call
// this and surface NOT_CONNECTED when no account is attached.
func (s *Session) Signer() (*bind.TransactOpts, error) {
	s.mu.Lock()
	account, connected := s.account, s.connected
	s.mu.Unlock()

	if s.bridge == nil || !connected {
		return nil, xerrors.New(web3.CodeNotConnected, "")
	}
	return s.bridge.Signer(account)
}
