package txflow

import (
	"context"
	"errors"
	"testing"

	xerrors "Sonic-University/internal/errors"
)

type recordingProducer struct {
	published []string
	err       error
}

func (p *recordingProducer) Publish(_ context.Context, attemptID string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, attemptID)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), &recordingProducer{}, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"unknown operation", SubmitRequest{Operation: "transfer", CourseID: 1}},
		{"zero course id", SubmitRequest{Operation: OpClaimReward, CourseID: 0}},
		{"bad student address", SubmitRequest{Operation: OpMarkCompletion, CourseID: 1, Student: "not-an-address"}},
		{"zero reward", SubmitRequest{Operation: OpAddCourse, CourseID: 1, RewardTokens: 0}},
		{"negative reward", SubmitRequest{Operation: OpAddCourse, CourseID: 1, RewardTokens: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Submit(ctx, tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
				t.Fatalf("got code %q, want INVALID_ARGUMENT", code)
			}
		})
	}
}

func TestServiceSubmitScalesReward(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, &recordingProducer{}, nil, func(context.Context) uint8 { return 6 })

	attempt, err := service.Submit(context.Background(), SubmitRequest{
		Operation:    OpAddCourse,
		CourseID:     7,
		RewardTokens: 1.5,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.RewardRaw != "1500000" {
		t.Fatalf("reward raw = %q, want 1500000 (6 decimals)", attempt.RewardRaw)
	}
	if attempt.RewardTokens != 1.5 {
		t.Fatalf("reward tokens = %v, want 1.5", attempt.RewardTokens)
	}
	if attempt.Phase != PhasePending {
		t.Fatalf("phase = %q, want pending", attempt.Phase)
	}
}

func TestServiceSubmitIsIdempotentOnID(t *testing.T) {
	producer := &recordingProducer{}
	service := NewService(NewMemoryStore(), producer, nil, nil)
	ctx := context.Background()

	first, err := service.Submit(ctx, SubmitRequest{Operation: OpClaimReward, CourseID: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: first.ID, Operation: OpClaimReward, CourseID: 1})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmit created a new attempt: %s != %s", second.ID, first.ID)
	}
	// 幂等提交不会再次入队,也就不会触发第二笔交易。
	if len(producer.published) != 1 {
		t.Fatalf("published %d times, want 1", len(producer.published))
	}
}

func TestServiceSubmitPublishFailure(t *testing.T) {
	store := NewMemoryStore()
	producer := &recordingProducer{err: errors.New("broker down")}
	service := NewService(store, producer, nil, nil)

	attempt, err := service.Submit(context.Background(), SubmitRequest{Operation: OpClaimReward, CourseID: 1})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if attempt != nil {
		t.Fatalf("expected nil attempt, got %+v", attempt)
	}
	if code := xerrors.CodeOf(err); code != CodeAttemptPublish {
		t.Fatalf("got code %q, want %q", code, CodeAttemptPublish)
	}

	// 入队失败的尝试要落成 failed 终态,不能停在 pending。
	attempts, listErr := store.List(context.Background(), ListOptions{})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(attempts) != 1 || attempts[0].Phase != PhaseFailed {
		t.Fatalf("unexpected attempts after publish failure: %+v", attempts)
	}
}

func TestScaleTokens(t *testing.T) {
	cases := []struct {
		tokens   float64
		decimals uint8
		want     string
	}{
		{100, 18, "100000000000000000000"},
		{1.5, 6, "1500000"},
		{0.000001, 6, "1"},
		{0, 18, "0"},
	}
	for _, tc := range cases {
		if got := scaleTokens(tc.tokens, tc.decimals).String(); got != tc.want {
			t.Errorf("scaleTokens(%v, %d) = %s, want %s", tc.tokens, tc.decimals, got, tc.want)
		}
	}
}
