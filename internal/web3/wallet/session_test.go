package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"
)

type fakeBridge struct {
	accounts    []common.Address
	silent      []common.Address
	chainID     *big.Int
	requestErr  error
	events      chan Event
	requestSeen int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		chainID: big.NewInt(11155111),
		events:  make(chan Event, 4),
	}
}

func (b *fakeBridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	b.requestSeen++
	if b.requestErr != nil {
		return nil, b.requestErr
	}
	return b.accounts, nil
}

func (b *fakeBridge) Accounts(ctx context.Context) ([]common.Address, error) {
	return b.silent, nil
}

func (b *fakeBridge) ChainID(ctx context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func (b *fakeBridge) Backend() bind.ContractBackend { return nil }

func (b *fakeBridge) Signer(account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account}, nil
}

func (b *fakeBridge) Events() <-chan Event { return b.events }

func (b *fakeBridge) Close() {}

var (
	accountA = common.HexToAddress("0xa000000000000000000000000000000000000001")
	accountB = common.HexToAddress("0xa000000000000000000000000000000000000002")
)

func TestSessionConnect(t *testing.T) {
	bridge := newFakeBridge()
	bridge.accounts = []common.Address{accountA}
	session := NewSession(bridge)

	if session.IsConnected() {
		t.Fatal("expected disconnected session before connect")
	}

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	account, ok := session.Account()
	if !ok || account != accountA {
		t.Fatalf("unexpected account: %v ok=%v", account, ok)
	}
	if session.ChainID() != 11155111 {
		t.Fatalf("unexpected chain id: %d", session.ChainID())
	}
	if !session.IsConnected() {
		t.Fatal("expected connected session")
	}
}

func TestSessionConnectRejected(t *testing.T) {
	bridge := newFakeBridge()
	bridge.requestErr = errors.New("User rejected the request")
	session := NewSession(bridge)

	err := session.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if code := xerrors.CodeOf(err); code != web3.CodeUserRejected {
		t.Fatalf("unexpected code: %s", code)
	}
	if session.IsConnected() {
		t.Fatal("rejected connect must leave session disconnected")
	}
}

func TestSessionConnectWithoutBridge(t *testing.T) {
	session := NewSession(nil)

	err := session.Connect(context.Background())
	if code := xerrors.CodeOf(err); code != web3.CodeWalletUnavailable {
		t.Fatalf("unexpected code: %s", code)
	}
}

func TestSessionRestore(t *testing.T) {
	bridge := newFakeBridge()
	bridge.silent = []common.Address{accountB}
	session := NewSession(bridge)

	session.Restore(context.Background())

	account, ok := session.Account()
	if !ok || account != accountB {
		t.Fatalf("unexpected account: %v ok=%v", account, ok)
	}
	if bridge.requestSeen != 0 {
		t.Fatal("restore must not trigger the interactive authorization flow")
	}
}

func TestSessionRestoreWithoutAuthorization(t *testing.T) {
	bridge := newFakeBridge()
	session := NewSession(bridge)

	session.Restore(context.Background())

	if session.IsConnected() {
		t.Fatal("expected disconnected session when no account is authorized")
	}
}

func TestSessionWatchAccountEvents(t *testing.T) {
	bridge := newFakeBridge()
	bridge.accounts = []common.Address{accountA}
	session := NewSession(bridge)
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		session.Watch(ctx)
		close(done)
	}()

	// 切换账户只更新账户。
	bridge.events <- Event{Type: EventAccountsChanged, Accounts: []common.Address{accountB}}
	waitSession(t, func() bool {
		account, _ := session.Account()
		return account == accountB
	})
	if session.ChainID() != 11155111 {
		t.Fatalf("account change must not touch chain id, got %d", session.ChainID())
	}

	// 切换链只更新链。
	bridge.events <- Event{Type: EventChainChanged, ChainID: big.NewInt(1)}
	waitSession(t, func() bool { return session.ChainID() == 1 })
	if account, _ := session.Account(); account != accountB {
		t.Fatalf("chain change must not touch account, got %v", account)
	}

	// 空账户列表等于撤销授权。
	bridge.events <- Event{Type: EventAccountsChanged, Accounts: nil}
	waitSession(t, func() bool { return !session.IsConnected() })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}

func TestSessionSignerRequiresConnection(t *testing.T) {
	bridge := newFakeBridge()
	session := NewSession(bridge)

	if _, err := session.Signer(); xerrors.CodeOf(err) != web3.CodeNotConnected {
		t.Fatalf("unexpected error: %v", err)
	}

	bridge.accounts = []common.Address{accountA}
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	signer, err := session.Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer.From != accountA {
		t.Fatalf("unexpected signer account: %v", signer.From)
	}
}

func waitSession(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
