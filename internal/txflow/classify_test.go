package txflow

import (
	"errors"
	"testing"

	xerrors "Sonic-University/internal/errors"
	"Sonic-University/internal/web3"
)

func TestClassifyByMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want xerrors.Code
	}{
		{"user rejected", errors.New("MetaMask Tx Signature: User denied transaction signature."), web3.CodeUserRejected},
		{"user rejected alt", errors.New("user rejected the request"), web3.CodeUserRejected},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), web3.CodeInsufficientFunds},
		{"reverted", errors.New("execution reverted: Course not completed"), web3.CodeContractReverted},
		{"unknown", errors.New("nonce too low"), xerrors.CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Code() != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.err, got.Code(), tc.want)
			}
		})
	}
}

func TestClassifyKeepsRevertReason(t *testing.T) {
	got := Classify(errors.New("execution reverted: Reward already claimed"))
	if got.Code() != web3.CodeContractReverted {
		t.Fatalf("code = %q, want %q", got.Code(), web3.CodeContractReverted)
	}
	if got.Message() != "Reward already claimed" {
		t.Fatalf("message = %q, want revert reason verbatim", got.Message())
	}
}

func TestClassifyKeepsRawUnknownMessage(t *testing.T) {
	got := Classify(errors.New("replacement transaction underpriced"))
	if got.Code() != xerrors.CodeUnknown {
		t.Fatalf("code = %q, want UNKNOWN", got.Code())
	}
	if got.Message() != "replacement transaction underpriced" {
		t.Fatalf("message = %q, raw message must survive", got.Message())
	}
}

func TestClassifyPassesThroughCodedErrors(t *testing.T) {
	coded := xerrors.New(web3.CodeWrongNetwork, "")
	got := Classify(coded)
	if got.Code() != web3.CodeWrongNetwork {
		t.Fatalf("code = %q, want WRONG_NETWORK", got.Code())
	}
}
