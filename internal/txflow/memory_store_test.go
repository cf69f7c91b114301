package txflow

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"Sonic-University/internal/web3"
)

func TestMemoryStorePhaseTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	attempt := &Attempt{ID: "a1", Operation: OpClaimReward, CourseID: 1, Account: "0xabc"}
	if err := store.Create(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "a1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Phase != PhaseEstimating {
		t.Fatalf("phase after claim = %q, want estimating", claimed.Phase)
	}

	// 已领取的尝试不能被第二个 worker 再次领取。
	if _, err := store.Claim(ctx, "a1"); !stdErrors.Is(err, ErrAttemptConflict) {
		t.Fatalf("second claim: got %v, want ErrAttemptConflict", err)
	}

	if err := store.MarkSubmitted(ctx, "a1", "0xhash"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != PhaseSubmitted || got.TxHash != "0xhash" {
		t.Fatalf("after submit: %+v", got)
	}

	if err := store.MarkConfirmed(ctx, "a1", Confirmation{TxHash: "0xhash", BlockNumber: 42, GasUsed: 21000}); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}
	got, _ = store.Get(ctx, "a1")
	if got.Phase != PhaseConfirmed || got.BlockNumber != 42 || got.GasUsed != 21000 {
		t.Fatalf("after confirm: %+v", got)
	}

	// 终态不再变化。
	if err := store.MarkFailed(ctx, "a1", CodeAttemptPublish, "boom"); !stdErrors.Is(err, ErrAttemptFinished) {
		t.Fatalf("mark failed after confirm: got %v, want ErrAttemptFinished", err)
	}
	if _, err := store.Claim(ctx, "a1"); !stdErrors.Is(err, ErrAttemptFinished) {
		t.Fatalf("claim after confirm: got %v, want ErrAttemptFinished", err)
	}
}

func TestMemoryStoreFailedAttemptStaysFailed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Attempt{ID: "a1", Operation: OpClaimReward, CourseID: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "a1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "a1", web3.CodeUserRejected, "user rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != PhaseFailed || got.ErrorCode != string(web3.CodeUserRejected) {
		t.Fatalf("after fail: %+v", got)
	}

	// 失败是终态,领取或改写都被拒绝。
	if _, err := store.Claim(ctx, "a1"); !stdErrors.Is(err, ErrAttemptFinished) {
		t.Fatalf("claim after fail: got %v, want ErrAttemptFinished", err)
	}
	if err := store.MarkConfirmed(ctx, "a1", Confirmation{}); !stdErrors.Is(err, ErrAttemptFinished) {
		t.Fatalf("confirm after fail: got %v, want ErrAttemptFinished", err)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	attempts := []*Attempt{
		{ID: "a1", Operation: OpClaimReward, CourseID: 1, Account: "0xAAA"},
		{ID: "a2", Operation: OpAddCourse, CourseID: 2, Account: "0xBBB"},
		{ID: "a3", Operation: OpClaimReward, CourseID: 3, Account: "0xaaa"},
	}
	for _, attempt := range attempts {
		if err := store.Create(ctx, attempt); err != nil {
			t.Fatalf("create %s: %v", attempt.ID, err)
		}
	}
	if _, err := store.Claim(ctx, "a2"); err != nil {
		t.Fatalf("claim a2: %v", err)
	}
	if err := store.MarkFailed(ctx, "a2", web3.CodeInsufficientFunds, "insufficient funds"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	store.mu.Lock()
	store.attempts["a1"].UpdatedAt = base.Unix()
	store.attempts["a2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.attempts["a3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(all))
	}
	if all[0].ID != "a3" {
		t.Fatalf("expected newest attempt first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithPhases(PhaseFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "a2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	// 账户过滤不区分大小写。
	byAccount, err := store.List(ctx, buildListOptions([]ListOption{WithAccount("0xaaa")}))
	if err != nil {
		t.Fatalf("list by account: %v", err)
	}
	if len(byAccount) != 2 {
		t.Fatalf("expected 2 attempts for account, got %d", len(byAccount))
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 attempts to match since filter, got %d", len(recent))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	attempts := []*Attempt{
		{ID: "a", Operation: OpClaimReward, CourseID: 1},
		{ID: "b", Operation: OpClaimReward, CourseID: 2},
		{ID: "c", Operation: OpAddCourse, CourseID: 3},
	}
	for _, attempt := range attempts {
		if err := store.Create(ctx, attempt); err != nil {
			t.Fatalf("create %s: %v", attempt.ID, err)
		}
	}
	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if err := store.MarkFailed(ctx, "b", web3.CodeUserRejected, "rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "c"); err != nil {
		t.Fatalf("claim c: %v", err)
	}
	if err := store.MarkConfirmed(ctx, "c", Confirmation{TxHash: "0x1", BlockNumber: 7, GasUsed: 100}); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Confirmed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	claimOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithOperations(OpClaimReward)}))
	if err != nil {
		t.Fatalf("stats claim only: %v", err)
	}
	if claimOnly.Total != 2 {
		t.Fatalf("unexpected claim stats: %+v", claimOnly)
	}
}
